package records

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"mailanon/internal/directory/models"
)

// maxRawLine bounds one JSON Lines record.
const maxRawLine = 16 << 20

// RawRow is the per-line result of reading a raw record file.
type RawRow struct {
	Line   int
	Record models.RawRecord
	Skip   *Skip
}

type rawTarget struct {
	Address string `json:"address"`
	Type    string `json:"type"`
}

type rawLine struct {
	Subject    string      `json:"subject"`
	Source     string      `json:"source"`
	SourceType string      `json:"source_type"`
	Targets    []rawTarget `json:"targets"`
	Timestamp  string      `json:"timestamp"`
}

// ReadRaw reads JSON Lines raw records as written by the extractor. Blank
// lines are ignored; undecodable lines are skipped.
func ReadRaw(r io.Reader) ([]RawRow, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRawLine)

	var rows []RawRow
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var raw rawLine
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			rows = append(rows, RawRow{Line: line, Skip: &Skip{Line: line, Reason: ReasonParse, Err: err}})
			continue
		}
		rows = append(rows, RawRow{Line: line, Record: raw.record()})
	}
	if err := sc.Err(); err != nil {
		return rows, fmt.Errorf("read raw records: %w", err)
	}
	return rows, nil
}

func (l rawLine) record() models.RawRecord {
	rec := models.RawRecord{
		Subject:   l.Subject,
		Source:    reference(l.Source, l.SourceType),
		Timestamp: l.Timestamp,
	}
	if len(l.Targets) > 0 {
		rec.Targets = make([]models.Reference, 0, len(l.Targets))
		for _, t := range l.Targets {
			rec.Targets = append(rec.Targets, reference(t.Address, t.Type))
		}
	}
	return rec
}

// reference tags a value with its kind. Untagged values are directory
// identifiers unless they contain "@".
func reference(value, tag string) models.Reference {
	kind := models.InferKind(value)
	if strings.TrimSpace(tag) != "" {
		kind = models.ParseKind(tag)
	}
	return models.Reference{Identifier: value, Kind: kind}
}
