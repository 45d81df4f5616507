package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mailanon/internal/address"
	"mailanon/internal/identity"
	"mailanon/internal/records"
	dErrors "mailanon/pkg/domain-errors"
)

// AnonymizedSuffix replaces the extension of an input file name.
const AnonymizedSuffix = ".anon.csv"

type inputFile struct {
	path string
	rows []records.Row
}

// Anonymize maps every address of files to an identifier and writes one
// anonymized CSV per input file plus the mapping table. Files are processed
// in lexicographic path order so two runs over the same files produce the
// same identifiers. The mapping is complete before the first row is emitted.
func (p *Pipeline) Anonymize(ctx context.Context, files []string) (*Summary, error) {
	start := time.Now()
	sum := newSummary(p.runID, StageAnonymize)
	files = sorted(files)
	sum.Files = len(files)

	outputs, err := p.outputPaths(files)
	if err != nil {
		return nil, err
	}

	var inputs []inputFile
	err = p.phase(ctx, StageAnonymize, "load", func(ctx context.Context) error {
		inputs, err = loadAll(ctx, files, p.cfg.Concurrency, p.loadCSV)
		return err
	})
	if err != nil {
		return nil, err
	}

	mapping := identity.NewMapping()
	splitter := &countingSplitter{normalizer: p.normalizer, logger: p.logger}
	err = p.phase(ctx, StageAnonymize, "map", func(ctx context.Context) error {
		return p.buildMapping(ctx, inputs, mapping, splitter, sum)
	})
	if err != nil {
		return nil, err
	}
	sum.EntryErrors = splitter.failures
	sum.Addresses = mapping.Len()

	// Outputs are staged and renamed together once the mapping table is
	// written, so anonymized files never sit next to another run's mapping.
	var batch records.AtomicBatch
	defer func() { _ = batch.Discard() }()

	err = p.phase(ctx, StageAnonymize, "emit", func(ctx context.Context) error {
		if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create output directory")
		}
		transformer, err := records.NewTransformer(quietSplitter{p.normalizer}, mapping)
		if err != nil {
			return err
		}
		for i, in := range inputs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.emitFile(&batch, in, outputs[i], transformer, sum); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	mappingPath := filepath.Join(p.cfg.OutputDir, p.cfg.MappingFile)
	err = p.phase(ctx, StageAnonymize, "mapping", func(context.Context) error {
		err := batch.Stage(mappingPath, func(w io.Writer) error {
			return identity.WriteMapping(w, mapping)
		})
		if err != nil {
			return err
		}
		return batch.Commit()
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "write mapping table")
	}
	sum.Outputs = append(outputs, mappingPath)

	sum.Duration = time.Since(start)
	p.metrics.SetAddresses(sum.Addresses)
	p.metrics.AddEntryFailures(sum.EntryErrors)
	p.metrics.AddOutputRows(sum.OutputRows)
	p.metrics.ObserveRun(StageAnonymize, sum.Duration.Seconds())
	p.logger.Info("anonymize finished", "summary", sum)
	return sum, nil
}

func (p *Pipeline) loadCSV(path string) (inputFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return inputFile{}, dErrors.Wrap(err, dErrors.CodeInternal, "open input "+path)
	}
	defer f.Close()
	rows, err := records.ReadAll(f, p.cfg.InputEncoding)
	if err != nil {
		return inputFile{}, dErrors.Wrap(err, dErrors.CodeInternal, "read input "+path)
	}
	p.logger.Debug("loaded input file", "path", path, "rows", len(rows))
	return inputFile{path: path, rows: rows}, nil
}

func (p *Pipeline) buildMapping(ctx context.Context, inputs []inputFile, mapping *identity.Mapping, splitter identity.Splitter, sum *Summary) error {
	mapper, err := identity.NewMapper(mapping, splitter,
		identity.WithMaxAddressLength(p.cfg.MaxAddressLength),
		identity.WithLogger(p.logger),
	)
	if err != nil {
		return err
	}
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, row := range in.rows {
			sum.RowsRead++
			p.metrics.IncRowsRead(StageAnonymize)
			if row.Skip != nil {
				sum.skip(row.Skip.Reason)
				p.metrics.IncRowsSkipped(StageAnonymize, string(row.Skip.Reason))
				p.logger.Debug("skipping input row", "path", in.path, "line", row.Line, "reason", row.Skip.Reason, "error", row.Skip.Err)
				continue
			}
			if _, err := mapper.Assign(row.Record.Source, row.Record.Target); err != nil {
				return fmt.Errorf("%s line %d: %w", in.path, row.Line, err)
			}
		}
	}
	return nil
}

func (p *Pipeline) emitFile(batch *records.AtomicBatch, in inputFile, output string, transformer *records.Transformer, sum *Summary) error {
	err := batch.Stage(output, func(w io.Writer) error {
		out := records.NewOutputWriter(w)
		seq := 0
		for _, row := range in.rows {
			if row.Skip != nil {
				continue
			}
			emitted, err := transformer.Emit(seq+1, row.Record)
			if err != nil {
				return fmt.Errorf("%s line %d: %w", in.path, row.Line, err)
			}
			if len(emitted) == 0 {
				sum.skip(records.ReasonNoSender)
				p.metrics.IncRowsSkipped(StageAnonymize, string(records.ReasonNoSender))
				p.logger.Debug("record has no sender", "path", in.path, "line", row.Line)
				continue
			}
			seq++
			if err := out.Write(emitted); err != nil {
				return err
			}
		}
		if err := out.Flush(); err != nil {
			return err
		}
		sum.OutputRows += out.Rows()
		return nil
	})
	if err != nil && !dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write "+output)
	}
	return err
}

// outputPaths derives <outdir>/<name>.anon.csv for every input. Two inputs
// with the same base name would overwrite each other and are rejected.
func (p *Pipeline) outputPaths(files []string) ([]string, error) {
	out := make([]string, len(files))
	seen := make(map[string]string, len(files))
	for i, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base)) + AnonymizedSuffix
		path := filepath.Join(p.cfg.OutputDir, name)
		if prev, dup := seen[path]; dup {
			return nil, dErrors.New(dErrors.CodeBadRequest,
				fmt.Sprintf("inputs %s and %s would both write %s", prev, f, path))
		}
		if path == filepath.Join(p.cfg.OutputDir, p.cfg.MappingFile) {
			return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("input %s would overwrite the mapping table", f))
		}
		seen[path] = f
		out[i] = path
	}
	return out, nil
}

// countingSplitter logs and counts entries the normalizer had to drop.
type countingSplitter struct {
	normalizer *address.Normalizer
	logger     *slog.Logger
	failures   int
}

func (c *countingSplitter) Split(field string) []string {
	addrs, errs := c.normalizer.SplitEntries(field)
	for _, e := range errs {
		c.logger.Warn("dropping undecodable address entry", "entry", e.Entry, "error", e.Err)
	}
	c.failures += len(errs)
	return addrs
}

// quietSplitter re-splits fields during emit; failures were already counted
// while building the mapping.
type quietSplitter struct {
	normalizer *address.Normalizer
}

func (q quietSplitter) Split(field string) []string {
	addrs, _ := q.normalizer.SplitEntries(field)
	return addrs
}
