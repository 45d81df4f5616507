// Package pipeline runs the resolve and anonymize batch stages over files.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mailanon/internal/address"
	"mailanon/internal/directory/service"
	"mailanon/internal/platform/config"
	"mailanon/internal/platform/logger"
	"mailanon/internal/platform/metrics"
)

const (
	StageResolve   = "resolve"
	StageAnonymize = "anonymize"

	tracerName = "mailanon/internal/pipeline"
)

// Pipeline owns the per-run state of one CLI invocation. It is not safe for
// concurrent runs.
type Pipeline struct {
	cfg        config.Anonymize
	normalizer *address.Normalizer
	resolver   *service.Resolver
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	runID      string
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithResolver enables the resolve stage.
func WithResolver(r *service.Resolver) Option {
	return func(p *Pipeline) {
		p.resolver = r
	}
}

func WithNormalizer(n *address.Normalizer) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.normalizer = n
		}
	}
}

func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

func New(cfg config.Anonymize, opts ...Option) (*Pipeline, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if cfg.MappingFile == "" {
		cfg.MappingFile = "mapping.csv"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	p := &Pipeline{
		cfg:    cfg,
		logger: logger.Discard(),
		tracer: otel.Tracer(tracerName),
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.normalizer == nil {
		p.normalizer = address.New(address.WithLogger(p.logger))
	}
	return p, nil
}

// RunID identifies this run in logs and summaries.
func (p *Pipeline) RunID() string {
	return p.runID
}

// phase runs fn inside a span named after the stage and phase.
func (p *Pipeline) phase(ctx context.Context, stage, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, stage+"."+name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.logger.Debug("phase finished", "stage", stage, "phase", name, "duration", time.Since(start), "ok", err == nil)
	return err
}

// loadAll runs load over files with bounded concurrency and returns the
// results in file order.
func loadAll[T any](ctx context.Context, files []string, limit int, load func(path string) (T, error)) ([]T, error) {
	out := make([]T, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := load(path)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func sorted(files []string) []string {
	out := append([]string(nil), files...)
	sort.Strings(out)
	return out
}
