// Package cache holds the directory resolution cache: a mapping from
// lower-cased directory identifiers to lower-cased SMTP addresses, persisted
// as a CSV file with a header row.
package cache

import "strings"

// Entry is one resolved directory identifier.
type Entry struct {
	Identifier string
	Address    string
}

// Cache is the in-memory view of the cache file. It is built by a single
// loader and only read afterwards.
type Cache struct {
	entries map[string]string
}

func New() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Lookup resolves an identifier case-insensitively.
func (c *Cache) Lookup(identifier string) (string, bool) {
	if c == nil {
		return "", false
	}
	addr, ok := c.entries[key(identifier)]
	return addr, ok
}

// Contains reports whether identifier is cached.
func (c *Cache) Contains(identifier string) bool {
	_, ok := c.Lookup(identifier)
	return ok
}

// Len returns the number of cached identifiers.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// put stores an entry. With overwrite false an existing identifier keeps its
// address. It reports whether the identifier was already present.
func (c *Cache) put(identifier, address string, overwrite bool) bool {
	k := key(identifier)
	if _, exists := c.entries[k]; exists {
		if overwrite {
			c.entries[k] = key(address)
		}
		return true
	}
	c.entries[k] = key(address)
	return false
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
