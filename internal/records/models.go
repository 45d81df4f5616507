// Package records reads and writes the CSV and JSON Lines files of a run and
// expands records into anonymized output rows.
package records

// Record is one row of the anonymization input:
// [subject, source, target, timestamp]. Source and target are raw address
// fields; target may list several addresses.
type Record struct {
	Subject   string
	Source    string
	Target    string
	Timestamp string
}

// OutputRow is one anonymized row. Target 0 means the record had no target.
type OutputRow struct {
	Sequence  int
	Source    int
	Target    int
	Timestamp string
}

// SkipReason labels why an input row was not used.
type SkipReason string

const (
	ReasonColumnCount SkipReason = "column_count"
	ReasonParse       SkipReason = "parse"
	ReasonNoSender    SkipReason = "no_sender"
)

// Skip describes a rejected input row.
type Skip struct {
	Line   int
	Reason SkipReason
	Err    error
}

// Row is the per-row result of reading an input CSV file. Exactly one of
// Record and Skip is meaningful.
type Row struct {
	Line   int
	Record Record
	Skip   *Skip
}
