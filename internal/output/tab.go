// Package output provides export formatters for sampled batches.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record describes one exported sample for the tab-delimited index.
type Record struct {
	Index    int
	Chrom    string
	Position int
	CellType string
	Values   []float32
}

// TabWriter writes the sample index in tab-delimited format, one row per
// exported sample, aligned with the rows of the .npy arrays.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewTabWriter creates a tab-delimited index writer with one value column
// per target feature.
func NewTabWriter(w io.Writer, features []string) *TabWriter {
	columns := []string{
		"#index",
		"chrom",
		"position",
		"cell_type",
	}
	columns = append(columns, features...)
	return &TabWriter{
		w:       bufio.NewWriter(w),
		columns: columns,
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes a single sample record.
func (tw *TabWriter) Write(rec Record) error {
	cellType := rec.CellType
	if cellType == "" {
		cellType = "-"
	}

	values := []string{
		strconv.Itoa(rec.Index),
		rec.Chrom,
		strconv.Itoa(rec.Position),
		cellType,
	}
	for _, v := range rec.Values {
		values = append(values, strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	if len(values) != len(tw.columns) {
		return fmt.Errorf("record has %d value columns, header has %d",
			len(rec.Values), len(tw.columns)-4)
	}

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}
