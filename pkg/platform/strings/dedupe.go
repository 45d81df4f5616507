// Package strings provides ordered string-set helpers shared by the address
// normalizer and the directory resolver.
package strings

import (
	"strings"
)

// DedupeFunc applies normalize to every value, drops empty results and
// duplicates, and keeps the first-seen order.
func DedupeFunc(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	set := NewOrderedSet(len(values))
	for _, v := range values {
		set.Add(normalize(v))
	}
	return set.Values()
}

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  a@x.com ", "b@x.com", "a@x.com", "", "  "})
//	// Returns: []string{"a@x.com", "b@x.com"}
func DedupeAndTrim(values []string) []string {
	return DedupeFunc(values, strings.TrimSpace)
}

// DedupeAndTrimLower is like DedupeAndTrim but also lowercases each element.
func DedupeAndTrimLower(values []string) []string {
	return DedupeFunc(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

// OrderedSet is an insertion-ordered set of non-empty strings.
// The zero value is not usable; call NewOrderedSet.
type OrderedSet struct {
	index  map[string]struct{}
	values []string
}

// NewOrderedSet returns an empty set sized for n values.
func NewOrderedSet(n int) *OrderedSet {
	return &OrderedSet{
		index:  make(map[string]struct{}, n),
		values: make([]string, 0, n),
	}
}

// Add inserts v unless it is empty or already present. It reports whether v
// was inserted.
func (s *OrderedSet) Add(v string) bool {
	if v == "" {
		return false
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.values = append(s.values, v)
	return true
}

// Contains reports whether v is in the set.
func (s *OrderedSet) Contains(v string) bool {
	_, ok := s.index[v]
	return ok
}

// Len returns the number of values in the set.
func (s *OrderedSet) Len() int {
	return len(s.values)
}

// Values returns the values in insertion order. The slice is shared with the
// set and must not be modified.
func (s *OrderedSet) Values() []string {
	return s.values
}
