package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Columns is the number of columns of an input row.
const Columns = 4

// Reader reads anonymization input CSV row by row. Malformed rows are
// returned as skips, never as errors.
type Reader struct {
	csv *csv.Reader
}

// NewReader returns a Reader over r. encoding names the input charset (IANA
// name); empty means UTF-8.
func NewReader(r io.Reader, encoding string) (*Reader, error) {
	if encoding != "" && !strings.EqualFold(encoding, "utf-8") && !strings.EqualFold(encoding, "utf8") {
		enc, err := ianaindex.IANA.Encoding(encoding)
		if err != nil {
			return nil, fmt.Errorf("input encoding %q: %w", encoding, err)
		}
		if enc == nil {
			return nil, fmt.Errorf("input encoding %q is not supported", encoding)
		}
		r = transform.NewReader(r, enc.NewDecoder())
	}
	cr := csv.NewReader(r)
	cr.Comma = ','
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return &Reader{csv: cr}, nil
}

// Next returns the next row, or io.EOF when the input is exhausted.
func (r *Reader) Next() (Row, error) {
	fields, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return Row{}, io.EOF
	}
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return Row{Line: perr.StartLine, Skip: &Skip{Line: perr.StartLine, Reason: ReasonParse, Err: err}}, nil
		}
		return Row{}, fmt.Errorf("read input: %w", err)
	}
	line, _ := r.csv.FieldPos(0)

	if !validColumns(fields) {
		return Row{Line: line, Skip: &Skip{
			Line:   line,
			Reason: ReasonColumnCount,
			Err:    fmt.Errorf("expected %d columns, got %d", Columns, len(fields)),
		}}, nil
	}
	return Row{Line: line, Record: Record{
		Subject:   fields[0],
		Source:    fields[1],
		Target:    fields[2],
		Timestamp: fields[3],
	}}, nil
}

// ReadAll reads every row of r.
func ReadAll(r io.Reader, encoding string) ([]Row, error) {
	reader, err := NewReader(r, encoding)
	if err != nil {
		return nil, err
	}
	var rows []Row
	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

// validColumns accepts exactly four columns, or more when the extras are
// blank (a trailing delimiter).
func validColumns(fields []string) bool {
	if len(fields) < Columns {
		return false
	}
	for _, extra := range fields[Columns:] {
		if strings.TrimSpace(extra) != "" {
			return false
		}
	}
	return true
}
