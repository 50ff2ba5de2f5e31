package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:       "Attendance Report",
		GeneratedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Columns: []Column{
			{Title: "Student", Weight: 3},
			{Title: "Date", Weight: 2, Align: "C"},
			{Title: "Status", Weight: 2, Align: "C"},
		},
		Rows: [][]string{
			{"Asha Verma", "2026-03-01", "PRESENT"},
			{"Rohit Shah", "2026-03-01", "ABSENT"},
		},
	}
}

func TestCSVRenderWritesHeaderAndRows(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Date,Status", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "PRESENT")
	assert.Contains(t, lines[2], "ABSENT")
}

func TestCSVRenderRejectsRaggedRow(t *testing.T) {
	data := sampleDataset()
	data.Rows = append(data.Rows, []string{"only-one-cell"})

	_, err := NewCSVExporter().Render(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 3")
}

func TestCSVRenderRequiresColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFRenderProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFRenderRejectsRaggedRow(t *testing.T) {
	data := sampleDataset()
	data.Rows = append(data.Rows, []string{"only-one-cell"})

	_, err := NewPDFExporter().Render(data)
	require.Error(t, err)
}

func TestColumnWidthsFollowWeights(t *testing.T) {
	widths := columnWidths([]Column{{Weight: 3}, {Weight: 1}})
	assert.InDelta(t, 142.5, widths[0], 0.01)
	assert.InDelta(t, 47.5, widths[1], 0.01)
}
