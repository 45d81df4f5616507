package main

import (
	"context"
	"fmt"
	"log/slog"

	"mailanon/internal/directory/cache"
	dirmetrics "mailanon/internal/directory/metrics"
	"mailanon/internal/directory/providers"
	"mailanon/internal/directory/providers/command"
	httpprovider "mailanon/internal/directory/providers/http"
	postgresprovider "mailanon/internal/directory/providers/postgres"
	redisprovider "mailanon/internal/directory/providers/redis"
	"mailanon/internal/directory/service"
	"mailanon/internal/platform/config"
	"mailanon/internal/platform/metrics"
	"mailanon/internal/platform/postgres"
	platformredis "mailanon/internal/platform/redis"
	dErrors "mailanon/pkg/domain-errors"
	"mailanon/pkg/platform/sentinel"
)

func buildResolver(ctx context.Context, cfg config.Config, m *metrics.Metrics, log *slog.Logger) (*service.Resolver, func(), error) {
	store := cache.NewFileStore(cfg.Resolve.CacheFile,
		cache.WithLogger(log),
		cache.WithDuplicatePolicy(cfg.Resolve.DuplicatePolicy),
		cache.WithStrict(cfg.Resolve.Strict),
	)

	refresher, id, cleanup, err := buildRefresher(ctx, cfg, store, log)
	if err != nil {
		return nil, nil, err
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithRefreshTimeout(cfg.Resolve.RefreshTimeout),
		service.WithMetrics(dirmetrics.New(m.Registry())),
	}
	if refresher != nil {
		opts = append(opts, service.WithRefresher(refresher, id))
	}
	resolver, err := service.New(store, opts...)
	if err != nil {
		cleanup()
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "build resolver")
	}
	return resolver, cleanup, nil
}

// buildRefresher selects the directory backend. Network backends that cannot
// be reached at startup are replaced by a refresher that always fails, so the
// run degrades the same way it would on a failed refresh.
func buildRefresher(ctx context.Context, cfg config.Config, store *cache.FileStore, log *slog.Logger) (providers.Refresher, string, func(), error) {
	noop := func() {}
	pc := cfg.Provider

	switch pc.Type {
	case config.ProviderNone, "":
		return nil, "", noop, nil

	case config.ProviderCommand:
		r, err := command.New(pc.Command.Args, store.Path(), command.WithLogger(log))
		if err != nil {
			return nil, "", noop, dErrors.Wrap(err, dErrors.CodeBadRequest, "configure command provider")
		}
		return r, command.ProviderID, noop, nil

	case config.ProviderHTTP:
		p, err := httpprovider.New(pc.HTTP.BaseURL, pc.HTTP.Token, pc.HTTP.Timeout)
		if err != nil {
			return nil, "", noop, dErrors.Wrap(err, dErrors.CodeBadRequest, "configure http provider")
		}
		if err := p.Health(ctx); err != nil {
			log.Warn("directory service unavailable", "error", err)
			return unavailable(httpprovider.ProviderID, err), httpprovider.ProviderID, noop, nil
		}
		r, err := appending(p, store, log)
		return r, p.ID(), noop, err

	case config.ProviderRedis:
		client, err := platformredis.New(ctx, pc.Redis)
		if err != nil {
			log.Warn("directory redis unavailable", "error", err)
			return unavailable(redisprovider.ProviderID, err), redisprovider.ProviderID, noop, nil
		}
		p, err := redisprovider.New(client, pc.Redis.HashKey)
		if err != nil {
			_ = client.Close()
			return nil, "", noop, dErrors.Wrap(err, dErrors.CodeBadRequest, "configure redis provider")
		}
		r, err := appending(p, store, log)
		return r, p.ID(), func() { _ = client.Close() }, err

	case config.ProviderPostgres:
		db, err := postgres.Open(ctx, pc.Postgres.DSN)
		if err != nil {
			log.Warn("directory database unavailable", "error", err)
			return unavailable(postgresprovider.ProviderID, err), postgresprovider.ProviderID, noop, nil
		}
		p, err := postgresprovider.New(db, postgresprovider.Table{
			Name:             pc.Postgres.Table,
			IdentifierColumn: pc.Postgres.IdentifierColumn,
			AddressColumn:    pc.Postgres.AddressColumn,
		})
		if err != nil {
			_ = db.Close()
			return nil, "", noop, dErrors.Wrap(err, dErrors.CodeBadRequest, "configure postgres provider")
		}
		r, err := appending(p, store, log)
		return r, p.ID(), func() { _ = db.Close() }, err
	}
	return nil, "", noop, dErrors.New(dErrors.CodeBadRequest, "unknown provider type: "+string(pc.Type))
}

func appending(p providers.Provider, store *cache.FileStore, log *slog.Logger) (providers.Refresher, error) {
	r, err := providers.NewAppendingRefresher(p, store, providers.WithLogger(log))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build directory refresher")
	}
	return r, nil
}

type unavailableRefresher struct {
	err error
}

func unavailable(providerID string, cause error) providers.Refresher {
	return unavailableRefresher{
		err: providers.NewProviderError(providers.ErrorProviderOutage, providerID, "directory backend unavailable", fmt.Errorf("%w: %w", sentinel.ErrUnavailable, cause)),
	}
}

func (u unavailableRefresher) Refresh(context.Context, []string) error {
	return u.err
}
