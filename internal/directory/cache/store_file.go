package cache

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"mailanon/internal/platform/config"
	"mailanon/internal/platform/logger"
	dErrors "mailanon/pkg/domain-errors"
	"mailanon/pkg/platform/sentinel"
)

// Header is the first row of a cache file, as written by Export-Csv.
var Header = []string{"legacyExchangeDN", "mail"}

// LoadStats describes one pass over the cache file.
type LoadStats struct {
	Rows       int
	Loaded     int
	Malformed  int
	Duplicates int
	Missing    bool
}

// FileStore reads and appends the cache CSV file. The file is never
// rewritten: new entries are appended, older rows stay.
type FileStore struct {
	mu     sync.Mutex
	path   string
	policy config.DuplicatePolicy
	strict bool
	logger *slog.Logger
}

type Option func(*FileStore)

func WithLogger(logger *slog.Logger) Option {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDuplicatePolicy selects which row wins when an identifier repeats.
func WithDuplicatePolicy(p config.DuplicatePolicy) Option {
	return func(s *FileStore) {
		if p != "" {
			s.policy = p
		}
	}
}

// WithStrict makes a missing cache file a load error.
func WithStrict(strict bool) Option {
	return func(s *FileStore) {
		s.strict = strict
	}
}

func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{
		path:   path,
		policy: config.FirstWins,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the whole cache file. The first row is a header. Rows with
// fewer than two columns or a blank identifier or address are skipped.
func (s *FileStore) Load() (*Cache, LoadStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := New()
	var stats LoadStats

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		stats.Missing = true
		if s.strict {
			return nil, stats, dErrors.Wrap(fmt.Errorf("%w: %w", sentinel.ErrNotFound, err), dErrors.CodeNotFound, "resolution cache file missing")
		}
		s.logger.Info("resolution cache file missing, starting empty", "path", s.path)
		return c, stats, nil
	}
	if err != nil {
		return nil, stats, dErrors.Wrap(err, dErrors.CodeInternal, "open resolution cache")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	overwrite := s.policy == config.LastWins
	header := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Malformed++
				s.logger.Debug("skipping unreadable cache row", "line", perr.Line, "error", err)
				continue
			}
			return nil, stats, dErrors.Wrap(err, dErrors.CodeInternal, "read resolution cache")
		}
		if header {
			header = false
			continue
		}
		stats.Rows++
		if len(row) < 2 || key(row[0]) == "" || key(row[1]) == "" {
			stats.Malformed++
			continue
		}
		if c.put(row[0], row[1], overwrite) {
			stats.Duplicates++
			continue
		}
		stats.Loaded++
	}
	s.logger.Debug("loaded resolution cache",
		"path", s.path,
		"entries", c.Len(),
		"malformed", stats.Malformed,
		"duplicates", stats.Duplicates,
	)
	return c, stats, nil
}

// Append adds entries to the end of the cache file, writing the header first
// when the file is new or empty.
func (s *FileStore) Append(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open resolution cache for append: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat resolution cache: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			_ = f.Close()
			return fmt.Errorf("write cache header: %w", err)
		}
	} else if err := terminateLastLine(f, info.Size()); err != nil {
		_ = f.Close()
		return err
	}
	for _, e := range entries {
		if key(e.Identifier) == "" || key(e.Address) == "" {
			continue
		}
		if err := w.Write([]string{e.Identifier, e.Address}); err != nil {
			_ = f.Close()
			return fmt.Errorf("append cache entry: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush resolution cache: %w", err)
	}
	return f.Close()
}

// terminateLastLine makes sure appended rows start on a fresh line.
func terminateLastLine(f *os.File, size int64) error {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return fmt.Errorf("read resolution cache tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte("\n")); err != nil {
		return fmt.Errorf("terminate resolution cache line: %w", err)
	}
	return nil
}
