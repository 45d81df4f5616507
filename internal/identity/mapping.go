// Package identity assigns anonymous integer identifiers to canonical
// addresses. Identifiers start at 1, follow first-seen order and are never
// reused or reassigned.
package identity

// Entry is one row of the mapping table.
type Entry struct {
	Address string
	ID      int
}

// Mapping is the append-only address to identifier table of one run.
type Mapping struct {
	ids     map[string]int
	entries []Entry
}

// NewMapping returns an empty mapping whose first identifier is 1.
func NewMapping() *Mapping {
	return &Mapping{ids: make(map[string]int)}
}

// Add binds addr to the next identifier unless it is already mapped. It
// returns the identifier and whether it was newly assigned.
func (m *Mapping) Add(addr string) (int, bool) {
	if id, ok := m.ids[addr]; ok {
		return id, false
	}
	id := m.Next()
	m.ids[addr] = id
	m.entries = append(m.entries, Entry{Address: addr, ID: id})
	return id, true
}

// Lookup returns the identifier bound to addr.
func (m *Mapping) Lookup(addr string) (int, bool) {
	id, ok := m.ids[addr]
	return id, ok
}

// Next returns the identifier the next unseen address will receive.
func (m *Mapping) Next() int {
	return len(m.entries) + 1
}

// Len returns the number of mapped addresses.
func (m *Mapping) Len() int {
	return len(m.entries)
}

// Entries returns the table in identifier order. The slice must not be
// modified.
func (m *Mapping) Entries() []Entry {
	return m.entries
}
