package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"mailanon/internal/address"
	"mailanon/internal/pipeline"
	"mailanon/internal/platform/config"
	"mailanon/internal/platform/metrics"
	dErrors "mailanon/pkg/domain-errors"
	strs "mailanon/pkg/platform/strings"
)

func runResolve(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f := newFlagSet(cmdResolve, stderr)
	if err := f.parse(args); err != nil {
		return err
	}
	cfg, err := f.configure(os.LookupEnv)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "configure resolve")
	}
	inputs := f.args()
	if len(inputs) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "resolve needs at least one raw record file")
	}

	runID := uuid.NewString()
	log := setupLogger(cfg.Log, stderr, cmdResolve, runID)
	m := metrics.New()

	resolver, cleanup, err := buildResolver(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := pipeline.New(cfg.Anonymize,
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
		pipeline.WithResolver(resolver),
		pipeline.WithRunID(runID),
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "configure pipeline")
	}

	sum, err := p.Resolve(ctx, inputs, f.Output)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "resolved %d records (%d references resolved, %d unresolved) into %s\n",
		sum.Records, sum.Resolved, sum.Unresolved, f.Output)
	if sum.Degraded {
		fmt.Fprintln(stdout, "warning: directory refresh failed, unresolved identifiers were kept")
	}
	return writeMetrics(m, cfg.Metrics, log)
}

func runAnonymize(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f := newFlagSet(cmdAnonymize, stderr)
	if err := f.parse(args); err != nil {
		return err
	}
	cfg, err := f.configure(os.LookupEnv)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "configure anonymize")
	}
	if len(f.args()) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "anonymize needs at least one input file or directory")
	}
	inputs, err := pipeline.DiscoverInputs(f.args(), ".csv", cfg.Anonymize.OutputDir)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := setupLogger(cfg.Log, stderr, cmdAnonymize, runID)
	m := metrics.New()

	normalizer := address.New(
		address.WithLogger(log),
		address.WithSpecialAddresses(address.UndisclosedRecipients, strs.DedupeAndTrimLower(cfg.Anonymize.SpecialAddresses)...),
		address.WithDenylist(strs.DedupeAndTrimLower(cfg.Anonymize.Denylist)...),
	)
	p, err := pipeline.New(cfg.Anonymize,
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
		pipeline.WithNormalizer(normalizer),
		pipeline.WithRunID(runID),
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "configure pipeline")
	}

	sum, err := p.Anonymize(ctx, inputs)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "anonymized %d files: %d addresses, %d rows written, %d rows skipped\n",
		sum.Files, sum.Addresses, sum.OutputRows, sum.Skipped())
	return writeMetrics(m, cfg.Metrics, log)
}

// writeMetrics exports the run metrics. A failed export does not fail a run
// whose outputs are already written.
func writeMetrics(m *metrics.Metrics, cfg config.Metrics, log *slog.Logger) error {
	if err := m.WriteTextfile(cfg.TextfilePath); err != nil {
		log.Warn("metrics textfile not written", "path", cfg.TextfilePath, "error", err)
	}
	return nil
}
