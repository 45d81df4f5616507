// Package httpprovider looks directory identifiers up through a resolution web
// service:
//
//	POST {base}/v1/resolve {"identifiers": [...]}
//	200 {"entries": [{"identifier": "...", "address": "..."}]}
package httpprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"mailanon/internal/directory/providers"
)

const (
	ProviderID   = "http"
	ResolvePath  = "/v1/resolve"
	HealthPath   = "/healthz"
	maxBodyBytes = 32 << 20
)

// ResolveRequest is the body sent to the directory service.
type ResolveRequest struct {
	Identifiers []string `json:"identifiers"`
}

// ResolveEntry is one resolved identifier.
type ResolveEntry struct {
	Identifier string `json:"identifier"`
	Address    string `json:"address"`
}

// ResolveResponse is the body returned by the directory service.
type ResolveResponse struct {
	Entries []ResolveEntry `json:"entries"`
}

type Provider struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(baseURL, token string, timeout time.Duration) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) Lookup(ctx context.Context, identifiers []string) (map[string]string, error) {
	if len(identifiers) == 0 {
		return map[string]string{}, nil
	}
	data, err := json.Marshal(ResolveRequest{Identifiers: identifiers})
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, ProviderID, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+ResolvePath, bytes.NewReader(data))
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, ProviderID, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorProviderOutage, ProviderID, "read response", err)
	}
	return parseResolveResponse(resp.StatusCode, body)
}

func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+HealthPath, nil)
	if err != nil {
		return providers.NewProviderError(providers.ErrorInternal, ProviderID, "build request", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode)
	}
	return nil
}

func parseResolveResponse(status int, body []byte) (map[string]string, error) {
	if status != http.StatusOK {
		return nil, statusError(status)
	}
	var out ResolveResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, ProviderID, "decode response", err)
	}
	found := make(map[string]string, len(out.Entries))
	for _, e := range out.Entries {
		if e.Identifier == "" || strings.TrimSpace(e.Address) == "" {
			continue
		}
		found[e.Identifier] = e.Address
	}
	return found, nil
}

func statusError(status int) error {
	msg := fmt.Sprintf("unexpected status %d", status)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return providers.NewProviderError(providers.ErrorAuthentication, ProviderID, msg, nil)
	case status == http.StatusTooManyRequests:
		return providers.NewProviderError(providers.ErrorRateLimited, ProviderID, msg, nil)
	case status == http.StatusNotFound:
		return providers.NewProviderError(providers.ErrorNotFound, ProviderID, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return providers.NewProviderError(providers.ErrorTimeout, ProviderID, msg, nil)
	case status >= 500:
		return providers.NewProviderError(providers.ErrorProviderOutage, ProviderID, msg, nil)
	default:
		return providers.NewProviderError(providers.ErrorBadData, ProviderID, msg, nil)
	}
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return providers.NewProviderError(providers.ErrorTimeout, ProviderID, "request timed out", err)
	}
	return providers.NewProviderError(providers.ErrorProviderOutage, ProviderID, "request failed", err)
}
