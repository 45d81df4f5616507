package records

import (
	"errors"
	"fmt"

	dErrors "mailanon/pkg/domain-errors"
)

// ErrUnmappedAddress means an address reached the transformer without an
// identifier. The mapping is built from the same records, so this is a bug.
var ErrUnmappedAddress = errors.New("address missing from identity mapping")

// Splitter turns a raw address field into canonical addresses.
type Splitter interface {
	Split(field string) []string
}

// IdentityLookup resolves canonical addresses to identifiers.
type IdentityLookup interface {
	Lookup(addr string) (int, bool)
}

// Transformer expands records into anonymized rows.
type Transformer struct {
	splitter Splitter
	mapping  IdentityLookup
}

func NewTransformer(splitter Splitter, mapping IdentityLookup) (*Transformer, error) {
	if splitter == nil {
		return nil, fmt.Errorf("address splitter is required")
	}
	if mapping == nil {
		return nil, fmt.Errorf("identity mapping is required")
	}
	return &Transformer{splitter: splitter, mapping: mapping}, nil
}

// Emit returns one row per (source, target) pair of rec, all carrying seq.
// A record without targets yields one row per source with an empty target;
// a record without a source yields no rows.
func (t *Transformer) Emit(seq int, rec Record) ([]OutputRow, error) {
	sources, err := t.ids(t.splitter.Split(rec.Source))
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, nil
	}
	targets, err := t.ids(t.splitter.Split(rec.Target))
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		targets = []int{0}
	}

	rows := make([]OutputRow, 0, len(sources)*len(targets))
	for _, src := range sources {
		for _, dst := range targets {
			rows = append(rows, OutputRow{Sequence: seq, Source: src, Target: dst, Timestamp: rec.Timestamp})
		}
	}
	return rows, nil
}

func (t *Transformer) ids(addrs []string) ([]int, error) {
	ids := make([]int, 0, len(addrs))
	for _, a := range addrs {
		id, ok := t.mapping.Lookup(a)
		if !ok {
			return nil, dErrors.Wrap(fmt.Errorf("%w: %q", ErrUnmappedAddress, a),
				dErrors.CodeInvariantViolation, "transform record")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
