// Package export serializes curated point collections.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ironsheep/roi-editor-mcp/internal/points"
)

// PropertyColumns are the leading CSV columns, one per point property.
var PropertyColumns = []string{"label", "area", "status"}

// Header returns the CSV header for points with ndim coordinates.
func Header(ndim int) []string {
	header := append([]string(nil), PropertyColumns...)
	for i := 0; i < ndim; i++ {
		header = append(header, fmt.Sprintf("axis-%d", i))
	}
	return header
}

// WriteCSV writes a header row followed by one row per point, in order.
func WriteCSV(w io.Writer, c *points.Collection) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(c.Ndim())); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, p := range c.Points() {
		row := make([]string, 0, len(PropertyColumns)+len(p.Coordinates))
		row = append(row,
			strconv.Itoa(p.Label),
			strconv.Itoa(p.Area),
			string(p.Status),
		)
		for _, v := range p.Coordinates {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write point %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
