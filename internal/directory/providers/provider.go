// Package providers defines the external directory collaborator used to
// resolve opaque directory identifiers to SMTP addresses.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"mailanon/internal/directory/cache"
	"mailanon/internal/platform/logger"
)

// Refresher resolves identifiers in one batched call and appends every
// resolved pair to the cache file. It never rewrites existing cache rows.
// Identifiers it cannot resolve are simply not appended.
type Refresher interface {
	Refresh(ctx context.Context, identifiers []string) error
}

// Provider looks identifiers up in a directory without touching the cache.
// The returned map may be partial. Directories may key it in their own
// casing; identifiers are matched case-insensitively.
type Provider interface {
	ID() string
	Lookup(ctx context.Context, identifiers []string) (map[string]string, error)
	Health(ctx context.Context) error
}

// Appender is the part of the cache file store a refresher writes to.
type Appender interface {
	Append(entries []cache.Entry) error
}

// AppendingRefresher turns a Provider into a Refresher by appending its
// lookup result to the cache file.
type AppendingRefresher struct {
	provider Provider
	store    Appender
	logger   *slog.Logger
}

type Option func(*AppendingRefresher)

func WithLogger(logger *slog.Logger) Option {
	return func(r *AppendingRefresher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewAppendingRefresher(provider Provider, store Appender, opts ...Option) (*AppendingRefresher, error) {
	if provider == nil {
		return nil, fmt.Errorf("directory provider is required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	r := &AppendingRefresher{provider: provider, store: store, logger: logger.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *AppendingRefresher) Refresh(ctx context.Context, identifiers []string) error {
	if len(identifiers) == 0 {
		return nil
	}
	found, err := r.provider.Lookup(ctx, identifiers)
	if err != nil {
		return err
	}

	folded := foldKeys(found)
	entries := make([]cache.Entry, 0, len(found))
	for _, id := range identifiers {
		addr, ok := found[id]
		if !ok {
			addr, ok = folded[fold(id)]
		}
		if ok && strings.TrimSpace(addr) != "" {
			entries = append(entries, cache.Entry{Identifier: id, Address: addr})
		}
	}
	if err := r.store.Append(entries); err != nil {
		return NewProviderError(ErrorInternal, r.provider.ID(), "append to cache", err)
	}
	r.logger.Info("directory refresh appended entries",
		"provider", r.provider.ID(),
		"requested", len(identifiers),
		"resolved", len(entries),
	)
	return nil
}

// foldKeys indexes found by folded identifier. When two keys fold to the same
// value the lexically smallest original key wins.
func foldKeys(found map[string]string) map[string]string {
	out := make(map[string]string, len(found))
	for _, id := range slices.Sorted(maps.Keys(found)) {
		k := fold(id)
		if _, dup := out[k]; !dup {
			out[k] = found[id]
		}
	}
	return out
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
