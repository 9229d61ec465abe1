package core

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a dataset.
// The integer values are exposed in the HTTP API and must not be renumbered.
type Status int

const (
	StatusUnknown    Status = 0
	StatusQueued     Status = 1
	StatusProcessing Status = 2
	StatusReady      Status = 3
	StatusFailed     Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusProcessing:
		return "processing"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no ingestion job is driving the dataset.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Dataset is an immutable snapshot of a dataset. Mutations never modify a
// snapshot in place; they build a new one and swap it into the Store, so a
// reader holding a *Dataset always sees a consistent table.
type Dataset struct {
	ID        string
	Status    Status
	Created   time.Time
	Columns   []string
	Rows      [][]string
	Encoding  string
	Delimiter rune
	Error     string

	// index maps lower-cased column names to their position.
	index map[string]int
}

// RowCount returns the number of data rows.
func (d *Dataset) RowCount() int {
	return len(d.Rows)
}

// ColumnIndex looks up a column position ignoring case and surrounding space.
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	if d.index == nil {
		return 0, false
	}
	i, ok := d.index[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// Row returns row i as a column name to value mapping.
func (d *Dataset) Row(i int) map[string]string {
	row := d.Rows[i]
	m := make(map[string]string, len(d.Columns))
	for c, name := range d.Columns {
		m[name] = row[c]
	}
	return m
}

// DelimiterString returns the delimiter as a string, or "" when none was detected.
func (d *Dataset) DelimiterString() string {
	if d.Delimiter == 0 {
		return ""
	}
	return string(d.Delimiter)
}

// withStatus returns a copy of d carrying a new status. The error detail is
// kept only for StatusFailed.
func (d *Dataset) withStatus(s Status, detail string) *Dataset {
	next := *d
	next.Status = s
	if s == StatusFailed {
		next.Error = detail
	} else {
		next.Error = ""
	}
	return &next
}

// withTable returns a Ready copy of d holding the given columns and rows.
func (d *Dataset) withTable(columns []string, rows [][]string, enc string, delim rune) *Dataset {
	next := *d
	next.Status = StatusReady
	next.Error = ""
	next.Columns = columns
	next.Rows = rows
	next.Encoding = enc
	next.Delimiter = delim
	next.index = buildColumnIndex(columns)
	return &next
}

func buildColumnIndex(columns []string) map[string]int {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		key := strings.ToLower(c)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}
