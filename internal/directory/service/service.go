// Package service resolves directory references of raw records to SMTP
// addresses through the resolution cache, refreshing the cache at most once
// per run.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mailanon/internal/directory/cache"
	"mailanon/internal/directory/metrics"
	"mailanon/internal/directory/models"
	"mailanon/internal/directory/providers"
	"mailanon/internal/platform/logger"
	strs "mailanon/pkg/platform/strings"
)

// State is a step of one resolution run.
type State string

const (
	StateLoadCache     State = "LOAD_CACHE"
	StateCollectMisses State = "COLLECT_MISSES"
	StateRefresh       State = "REFRESH"
	StateReloadCache   State = "RELOAD_CACHE"
	StateApply         State = "APPLY"
	StateApplied       State = "APPLIED"
)

// CacheStore loads the resolution cache file.
type CacheStore interface {
	Load() (*cache.Cache, cache.LoadStats, error)
}

// Result describes one resolution run.
type Result struct {
	Records []models.RawRecord
	States  []State

	CacheBefore int
	CacheAfter  int
	// CacheStats describes the load the applied cache came from.
	CacheStats cache.LoadStats

	// Misses are the distinct lower-cased identifiers queued for refresh,
	// in first-seen order.
	Misses []string

	// Resolved and Unresolved count directory reference occurrences.
	Resolved   int
	Unresolved int

	// UnresolvedIdentifiers are the distinct identifiers still unknown after
	// the run.
	UnresolvedIdentifiers []string

	Degraded   bool
	RefreshErr error
}

// Resolver runs LOAD_CACHE, COLLECT_MISSES, REFRESH, RELOAD_CACHE and APPLY.
// REFRESH and RELOAD_CACHE only run when there are misses and a refresher.
type Resolver struct {
	store          CacheStore
	refresher      providers.Refresher
	providerID     string
	refreshTimeout time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRefresher sets the external collaborator. id labels metrics and logs.
func WithRefresher(refresher providers.Refresher, id string) Option {
	return func(r *Resolver) {
		r.refresher = refresher
		r.providerID = id
	}
}

// WithRefreshTimeout bounds the refresh call. Zero means no extra bound.
func WithRefreshTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.refreshTimeout = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func New(store CacheStore, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	r := &Resolver{
		store:  store,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.providerID == "" {
		r.providerID = "none"
	}
	return r, nil
}

// Resolve returns new records with every cached directory reference
// replaced by its SMTP address. The input records are not modified. Only a
// cache load failure is fatal; a failed refresh marks the result degraded.
func (r *Resolver) Resolve(ctx context.Context, records []models.RawRecord) (*Result, error) {
	res := &Result{}

	res.States = append(res.States, StateLoadCache)
	c, stats, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load resolution cache: %w", err)
	}
	res.CacheBefore = c.Len()
	res.CacheStats = stats

	res.States = append(res.States, StateCollectMisses)
	res.Misses = r.collectMisses(c, records)
	r.metrics.AddCacheMisses(len(res.Misses))
	r.logger.Info("collected directory misses", "misses", len(res.Misses), "cache_entries", c.Len())

	if len(res.Misses) > 0 && r.refresher != nil {
		res.States = append(res.States, StateRefresh)
		if err := r.refresh(ctx, res.Misses); err != nil {
			res.Degraded = true
			res.RefreshErr = err
			r.logger.Warn("directory refresh failed, continuing with cached entries",
				"provider", r.providerID,
				"category", providers.CategoryOf(err),
				"retryable", providers.IsRetryable(err),
				"error", err,
			)
		}

		// The collaborator may have appended rows even when it failed.
		res.States = append(res.States, StateReloadCache)
		reloaded, stats, err := r.store.Load()
		if err != nil {
			res.Degraded = true
			r.logger.Warn("reloading resolution cache failed, using previous entries", "error", err)
		} else {
			c = reloaded
			res.CacheStats = stats
		}
	} else if len(res.Misses) > 0 {
		r.logger.Info("no directory provider configured, misses stay unresolved", "misses", len(res.Misses))
	}
	res.CacheAfter = c.Len()

	res.States = append(res.States, StateApply)
	res.Records = r.apply(c, records, res)
	r.metrics.SetUnresolved(res.Unresolved)
	res.States = append(res.States, StateApplied)

	return res, nil
}

func (r *Resolver) collectMisses(c *cache.Cache, records []models.RawRecord) []string {
	misses := strs.NewOrderedSet(0)
	visit := func(ref models.Reference) {
		if kindOf(ref) != models.KindDirectory {
			return
		}
		if c.Contains(ref.Identifier) {
			r.metrics.IncCacheHit("collect")
			return
		}
		misses.Add(ref.Key())
	}
	for _, rec := range records {
		visit(rec.Source)
		for _, t := range rec.Targets {
			visit(t)
		}
	}
	return misses.Values()
}

func (r *Resolver) refresh(ctx context.Context, misses []string) error {
	if r.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.refreshTimeout)
		defer cancel()
	}
	start := time.Now()
	r.logger.Info("refreshing directory cache", "provider", r.providerID, "identifiers", len(misses))
	err := r.refresher.Refresh(ctx, misses)

	outcome := "ok"
	if err != nil {
		outcome = string(providers.CategoryOf(err))
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = string(providers.ErrorTimeout)
		}
	}
	r.metrics.ObserveRefresh(r.providerID, outcome, time.Since(start))
	return err
}

func (r *Resolver) apply(c *cache.Cache, records []models.RawRecord, res *Result) []models.RawRecord {
	unresolved := strs.NewOrderedSet(0)
	resolve := func(ref models.Reference) models.Reference {
		if kindOf(ref) != models.KindDirectory {
			return ref
		}
		if addr, ok := c.Lookup(ref.Identifier); ok {
			res.Resolved++
			r.metrics.IncCacheHit("apply")
			return models.Reference{Identifier: addr, Kind: models.KindSMTP}
		}
		res.Unresolved++
		unresolved.Add(ref.Key())
		return models.Reference{Identifier: ref.Identifier, Kind: models.KindDirectory}
	}

	out := make([]models.RawRecord, len(records))
	for i, rec := range records {
		next := rec.Clone()
		next.Source = resolve(rec.Source)
		for j, t := range rec.Targets {
			next.Targets[j] = resolve(t)
		}
		out[i] = next
	}
	res.UnresolvedIdentifiers = unresolved.Values()
	return out
}

// kindOf treats an untagged reference as a directory identifier when it has
// no "@".
func kindOf(ref models.Reference) models.Kind {
	if ref.Kind == "" {
		return models.InferKind(ref.Identifier)
	}
	return ref.Kind
}
