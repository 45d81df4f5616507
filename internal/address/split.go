package address

import "strings"

// splitEntries cuts an address list at top-level commas. Commas inside quoted
// strings, comments and angle brackets belong to their entry. When quotes or
// brackets never close the field cannot be trusted, so it is cut at every
// comma instead.
func splitEntries(field string) []string {
	var (
		entries []string
		start   int
		inQuote bool
		escaped bool
		comment int
		angle   bool
		broken  bool
	)
	for i := 0; i < len(field); i++ {
		c := field[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && (inQuote || comment > 0):
			escaped = true
		case inQuote:
			if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote = true
		case c == '(':
			comment++
		case c == ')' && comment > 0:
			comment--
		case comment > 0:
		case c == '<':
			broken = broken || angle
			angle = true
		case c == '>':
			angle = false
		case c == ',' && !angle:
			entries = append(entries, field[start:i])
			start = i + 1
		}
	}
	if broken || inQuote || angle || comment > 0 {
		return strings.Split(field, ",")
	}
	return append(entries, field[start:])
}
