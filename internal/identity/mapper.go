package identity

import (
	"errors"
	"fmt"
	"log/slog"

	"mailanon/internal/platform/logger"
	dErrors "mailanon/pkg/domain-errors"
)

// DefaultMaxAddressLength bounds a raw address field. A field this long is a
// sign of a broken export rather than a real header.
const DefaultMaxAddressLength = 9999

// ErrAddressTooLong is wrapped by Assign when a raw field exceeds the limit.
var ErrAddressTooLong = errors.New("address exceeds maximum length")

// Splitter turns a raw address field into canonical addresses.
type Splitter interface {
	Split(field string) []string
}

// Mapper feeds raw address fields into a Mapping.
type Mapper struct {
	mapping  *Mapping
	splitter Splitter
	maxLen   int
	logger   *slog.Logger
}

type Option func(*Mapper)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMaxAddressLength(n int) Option {
	return func(m *Mapper) {
		if n > 0 {
			m.maxLen = n
		}
	}
}

func NewMapper(mapping *Mapping, splitter Splitter, opts ...Option) (*Mapper, error) {
	if mapping == nil {
		return nil, fmt.Errorf("mapping is required")
	}
	if splitter == nil {
		return nil, fmt.Errorf("address splitter is required")
	}
	m := &Mapper{
		mapping:  mapping,
		splitter: splitter,
		maxLen:   DefaultMaxAddressLength,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Mapping returns the table the mapper writes to.
func (m *Mapper) Mapping() *Mapping {
	return m.mapping
}

// Assign splits each raw field in order and maps every unseen canonical
// address. It returns the next free identifier. A field longer than the
// configured maximum aborts with a validation error; addresses mapped before
// it stay mapped.
func (m *Mapper) Assign(raw ...string) (int, error) {
	for _, field := range raw {
		if len(field) > m.maxLen {
			return m.mapping.Next(), dErrors.Wrap(
				fmt.Errorf("%w: %d > %d bytes", ErrAddressTooLong, len(field), m.maxLen),
				dErrors.CodeValidation, "raw address field rejected")
		}
		for _, addr := range m.splitter.Split(field) {
			if id, added := m.mapping.Add(addr); added {
				m.logger.Debug("mapped address", "id", id)
			}
		}
	}
	return m.mapping.Next(), nil
}
