package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitEntries(t *testing.T) {
	tests := []struct {
		name  string
		field string
		want  []string
	}{
		{"single", "a@x.com", []string{"a@x.com"}},
		{"top level commas", "a@x.com,b@x.com", []string{"a@x.com", "b@x.com"}},
		{"comma in quotes", `"Mann, User" <u@x.com>, v@x.com`, []string{`"Mann, User" <u@x.com>`, " v@x.com"}},
		{"escaped quote", `"a\", b" <a@x.com>`, []string{`"a\", b" <a@x.com>`}},
		{"comma in comment", "a@x.com (A, B), b@x.com", []string{"a@x.com (A, B)", " b@x.com"}},
		{"comma in brackets", "<a@x.com,b@x.com>", []string{"<a@x.com,b@x.com>"}},
		{"unbalanced quote falls back", `"open, a@x.com`, []string{`"open`, " a@x.com"}},
		{"reopened bracket falls back", "A <a@x.com, B <b@x.com>", []string{"A <a@x.com", " B <b@x.com>"}},
		{"empty", "", []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitEntries(tt.field))
		})
	}
}
