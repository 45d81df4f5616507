package identity

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteMapping writes the table as headerless CSV rows of
// [canonical address, id] in identifier order.
func WriteMapping(w io.Writer, m *Mapping) error {
	cw := csv.NewWriter(w)
	for _, e := range m.Entries() {
		if err := cw.Write([]string{e.Address, strconv.Itoa(e.ID)}); err != nil {
			return fmt.Errorf("write mapping row %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush mapping: %w", err)
	}
	return nil
}
