package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"mailanon/internal/directory/models"
	"mailanon/internal/directory/service"
	"mailanon/internal/records"
	dErrors "mailanon/pkg/domain-errors"
)

type rawFile struct {
	path string
	rows []records.RawRow
}

// Resolve reads raw JSON Lines records from inputs, resolves their directory
// references and writes the result as anonymization input CSV to output.
// A failed directory refresh degrades the run; it does not fail it.
func (p *Pipeline) Resolve(ctx context.Context, inputs []string, output string) (*Summary, error) {
	if p.resolver == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "resolve stage is not configured")
	}
	start := time.Now()
	sum := newSummary(p.runID, StageResolve)
	inputs = sorted(inputs)
	sum.Files = len(inputs)

	var (
		files []rawFile
		err   error
	)
	err = p.phase(ctx, StageResolve, "load", func(ctx context.Context) error {
		files, err = loadAll(ctx, inputs, p.cfg.Concurrency, loadRaw)
		return err
	})
	if err != nil {
		return nil, err
	}

	var recs []models.RawRecord
	for _, f := range files {
		for _, row := range f.rows {
			sum.RowsRead++
			p.metrics.IncRowsRead(StageResolve)
			if row.Skip != nil {
				sum.skip(row.Skip.Reason)
				p.metrics.IncRowsSkipped(StageResolve, string(row.Skip.Reason))
				p.logger.Debug("skipping raw record", "path", f.path, "line", row.Line, "error", row.Skip.Err)
				continue
			}
			recs = append(recs, row.Record)
		}
	}
	sum.Records = len(recs)

	var res *service.Result
	err = p.phase(ctx, StageResolve, "directory", func(ctx context.Context) error {
		res, err = p.resolver.Resolve(ctx, recs)
		return err
	})
	if err != nil {
		return nil, err
	}
	sum.Resolved = res.Resolved
	sum.Unresolved = res.Unresolved
	sum.UnresolvedIdentifiers = len(res.UnresolvedIdentifiers)
	sum.RefreshAttempted = slices.Contains(res.States, service.StateRefresh)
	sum.Degraded = res.Degraded
	sum.CacheMalformed = res.CacheStats.Malformed
	sum.CacheDuplicates = res.CacheStats.Duplicates

	err = p.phase(ctx, StageResolve, "write", func(context.Context) error {
		if dir := filepath.Dir(output); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		return records.WriteFileAtomic(output, func(w io.Writer) error {
			return records.WriteResolved(w, res.Records)
		})
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "write resolved records")
	}
	sum.Outputs = []string{output}

	sum.Duration = time.Since(start)
	p.metrics.ObserveRun(StageResolve, sum.Duration.Seconds())
	if sum.Degraded {
		p.logger.Warn("resolve finished with partial directory coverage", "summary", sum, "error", res.RefreshErr)
	} else {
		p.logger.Info("resolve finished", "summary", sum)
	}
	return sum, nil
}

func loadRaw(path string) (rawFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return rawFile{}, dErrors.Wrap(err, dErrors.CodeInternal, "open raw records "+path)
	}
	defer f.Close()
	rows, err := records.ReadRaw(f)
	if err != nil {
		return rawFile{}, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("read raw records %s", path))
	}
	return rawFile{path: path, rows: rows}, nil
}
