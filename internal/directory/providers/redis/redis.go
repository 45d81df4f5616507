// Package redisprovider looks directory identifiers up in a Redis hash holding a
// directory export: field = lower-cased identifier, value = SMTP address.
package redisprovider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"mailanon/internal/directory/providers"
)

const ProviderID = "redis"

type Provider struct {
	client  goredis.Cmdable
	hashKey string
}

func New(client goredis.Cmdable, hashKey string) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if hashKey == "" {
		return nil, fmt.Errorf("hash key is required")
	}
	return &Provider{client: client, hashKey: hashKey}, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) Lookup(ctx context.Context, identifiers []string) (map[string]string, error) {
	found := make(map[string]string)
	if len(identifiers) == 0 {
		return found, nil
	}
	fields := make([]string, len(identifiers))
	for i, id := range identifiers {
		fields[i] = strings.ToLower(strings.TrimSpace(id))
	}

	values, err := p.client.HMGet(ctx, p.hashKey, fields...).Result()
	if err != nil {
		return nil, classify(ctx, err)
	}
	for i, v := range values {
		addr, ok := v.(string)
		if !ok || strings.TrimSpace(addr) == "" {
			continue
		}
		found[identifiers[i]] = addr
	}
	return found, nil
}

func (p *Provider) Health(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return classify(ctx, err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	var netErr net.Error
	if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
		return providers.NewProviderError(providers.ErrorTimeout, ProviderID, "hmget timed out", err)
	}
	if strings.HasPrefix(err.Error(), "NOAUTH") || strings.HasPrefix(err.Error(), "WRONGPASS") {
		return providers.NewProviderError(providers.ErrorAuthentication, ProviderID, "hmget rejected", err)
	}
	if strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return providers.NewProviderError(providers.ErrorBadData, ProviderID, "directory key is not a hash", err)
	}
	return providers.NewProviderError(providers.ErrorProviderOutage, ProviderID, "hmget failed", err)
}
