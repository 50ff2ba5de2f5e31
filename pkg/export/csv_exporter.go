package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
)

// Column describes one table column of a rendered export.
type Column struct {
	Title string
	// Weight is the column's relative share of the PDF page width.
	// Zero means an equal share.
	Weight float64
	// Align is the PDF cell alignment: "L", "C" or "R". Empty means left.
	Align string
}

// Dataset is the tabular payload handed to an exporter. Rows are positional
// and must match the column count.
type Dataset struct {
	Title       string
	GeneratedAt time.Time
	Columns     []Column
	Rows        [][]string
}

// CSVExporter renders a dataset as CSV. Title and generation time are not
// part of the CSV body; consumers that need them put them in the filename.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes with one header row.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one column")
	}
	header := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		header[i] = col.Title
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range data.Rows {
		if len(row) != len(data.Columns) {
			return nil, fmt.Errorf("csv row %d has %d cells, want %d", i, len(row), len(data.Columns))
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
