package records

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mailanon/internal/directory/models"
)

// WriteResolved writes resolved records as anonymization input:
// [subject, source, targets joined by ",", timestamp].
func WriteResolved(w io.Writer, recs []models.RawRecord) error {
	cw := csv.NewWriter(w)
	targets := make([]string, 0, 8)
	for i, rec := range recs {
		targets = targets[:0]
		for _, t := range rec.Targets {
			targets = append(targets, t.Identifier)
		}
		row := []string{rec.Subject, rec.Source.Identifier, strings.Join(targets, ","), rec.Timestamp}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write resolved record %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush resolved records: %w", err)
	}
	return nil
}

// OutputWriter writes anonymized rows:
// [sequence, source id, target id or empty, timestamp].
type OutputWriter struct {
	csv  *csv.Writer
	rows int
}

func NewOutputWriter(w io.Writer) *OutputWriter {
	return &OutputWriter{csv: csv.NewWriter(w)}
}

func (o *OutputWriter) Write(rows []OutputRow) error {
	for _, r := range rows {
		target := ""
		if r.Target != 0 {
			target = strconv.Itoa(r.Target)
		}
		if err := o.csv.Write([]string{
			strconv.Itoa(r.Sequence),
			strconv.Itoa(r.Source),
			target,
			r.Timestamp,
		}); err != nil {
			return fmt.Errorf("write output row %d: %w", r.Sequence, err)
		}
		o.rows++
	}
	return nil
}

// Rows returns the number of rows written so far.
func (o *OutputWriter) Rows() int {
	return o.rows
}

func (o *OutputWriter) Flush() error {
	o.csv.Flush()
	if err := o.csv.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
