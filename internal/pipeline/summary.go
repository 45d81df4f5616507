package pipeline

import (
	"log/slog"
	"sort"
	"time"

	"mailanon/internal/records"
)

// Summary reports one run. Recoverable problems are counted here instead of
// being logged per row.
type Summary struct {
	RunID string
	Stage string

	Files       int
	RowsRead    int
	RowsSkipped map[records.SkipReason]int
	EntryErrors int

	Addresses  int
	OutputRows int
	Outputs    []string

	Records               int
	Resolved              int
	Unresolved            int
	UnresolvedIdentifiers int
	RefreshAttempted      bool
	Degraded              bool
	CacheMalformed        int
	CacheDuplicates       int

	Duration time.Duration
}

func newSummary(runID, stage string) *Summary {
	return &Summary{
		RunID:       runID,
		Stage:       stage,
		RowsSkipped: make(map[records.SkipReason]int),
	}
}

// Skipped returns the total number of skipped rows.
func (s *Summary) Skipped() int {
	n := 0
	for _, c := range s.RowsSkipped {
		n += c
	}
	return n
}

func (s *Summary) skip(reason records.SkipReason) {
	s.RowsSkipped[reason]++
}

// LogValue renders the summary as one structured log group.
func (s *Summary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("run_id", s.RunID),
		slog.String("stage", s.Stage),
		slog.Int("files", s.Files),
		slog.Int("rows_read", s.RowsRead),
		slog.Int("rows_skipped", s.Skipped()),
	}
	reasons := make([]string, 0, len(s.RowsSkipped))
	for r := range s.RowsSkipped {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		attrs = append(attrs, slog.Int("skipped_"+r, s.RowsSkipped[records.SkipReason(r)]))
	}
	switch s.Stage {
	case StageAnonymize:
		attrs = append(attrs,
			slog.Int("entry_errors", s.EntryErrors),
			slog.Int("addresses", s.Addresses),
			slog.Int("output_rows", s.OutputRows),
		)
	case StageResolve:
		attrs = append(attrs,
			slog.Int("records", s.Records),
			slog.Int("resolved", s.Resolved),
			slog.Int("unresolved", s.Unresolved),
			slog.Int("unresolved_identifiers", s.UnresolvedIdentifiers),
			slog.Int("cache_malformed", s.CacheMalformed),
			slog.Int("cache_duplicates", s.CacheDuplicates),
			slog.Bool("refresh_attempted", s.RefreshAttempted),
			slog.Bool("degraded", s.Degraded),
		)
	}
	attrs = append(attrs, slog.Duration("duration", s.Duration))
	return slog.GroupValue(attrs...)
}
