package core

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes a Ready dataset as comma-separated UTF-8 with a header row.
func WriteCSV(w io.Writer, ds *Dataset) error {
	if err := checkQueryable(ds); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range ds.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
