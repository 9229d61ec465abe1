package core

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ctxCheckInterval is how many rows are processed between context checks
// during parsing and query scans.
const ctxCheckInterval = 4096

// Table is the parsed content of one upload.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ParseCSV splits decoded text into a normalized header and data rows.
//
// The first non-blank record is the header and its field count is
// authoritative: any later record with a different count fails the whole
// parse with a *MalformedCSVError naming the line.
func ParseCSV(ctx context.Context, text string, delim rune) (*Table, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var header []string
	for header == nil {
		record, err := cr.Read()
		if err == io.EOF {
			return nil, &MalformedCSVError{Reason: "empty upload"}
		}
		if err != nil {
			return nil, classifyReadError(err)
		}
		if isBlankRecord(record) {
			continue
		}
		header = record
	}

	table := &Table{Columns: NormalizeLabels(header)}
	want := len(header)

	for n := 0; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, classifyReadError(err)
		}
		if want > 1 && isBlankRecord(record) {
			continue
		}
		if len(record) != want {
			line, _ := cr.FieldPos(0)
			return nil, &MalformedCSVError{Line: line, Got: len(record), Want: want}
		}
		table.Rows = append(table.Rows, record)
	}

	return table, nil
}

func classifyReadError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &MalformedCSVError{Line: pe.Line, Reason: pe.Err.Error()}
	}
	return &DecodeError{Err: err}
}

// isBlankRecord reports whether a record came from a whitespace-only line.
func isBlankRecord(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}

// NormalizeLabels trims and lower-cases header labels. Empty labels become
// column_<n> (1-based position) and repeated labels get the smallest free
// _<n> suffix starting at 2, so every position keeps a distinct name.
func NormalizeLabels(raw []string) []string {
	labels := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))

	for i, label := range raw {
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			label = "column_" + strconv.Itoa(i+1)
		}
		if taken[label] {
			base := label
			for n := 2; ; n++ {
				candidate := base + "_" + strconv.Itoa(n)
				if !taken[candidate] {
					label = candidate
					break
				}
			}
		}
		taken[label] = true
		labels[i] = label
	}

	return labels
}
