package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tirewatch/backend/internal/domain"
)

// Export column names
const (
	ColumnPattern      = "pattern"
	ColumnMake         = "make"
	ColumnSectionWidth = "section_width"
	ColumnAspectRatio  = "aspect_ratio"
	ColumnRimSize      = "rim_size"
	ColumnPrice        = "price"
	ColumnModelActive  = "is_model_active"
	ColumnPly          = "ply"
)

var requiredColumns = []string{
	ColumnPattern, ColumnMake, ColumnSectionWidth, ColumnAspectRatio, ColumnRimSize, ColumnPrice,
}

// ParseCSV maps the catalog export to rows, keeping only active models.
// A missing is_model_active column treats every row as active.
func ParseCSV(r io.Reader) ([]domain.CatalogRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty catalog export")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index := columnIndex(header)
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var rows []domain.CatalogRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := MapRow(record, index)
		if !row.Active {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// MapRow converts one CSV record using a header index
func MapRow(record []string, index map[string]int) domain.CatalogRow {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	active := true
	if _, ok := index[ColumnModelActive]; ok {
		active = isActive(get(ColumnModelActive))
	}

	return domain.CatalogRow{
		Pattern:      get(ColumnPattern),
		Make:         get(ColumnMake),
		SectionWidth: get(ColumnSectionWidth),
		AspectRatio:  get(ColumnAspectRatio),
		RimSize:      get(ColumnRimSize),
		Price:        get(ColumnPrice),
		Ply:          get(ColumnPly),
		Active:       active,
	}
}

// isActive accepts the export's 1/0 flag, also written as 1.0 or true
func isActive(v string) bool {
	switch strings.ToLower(v) {
	case "1", "1.0", "true", "yes":
		return true
	}
	return false
}

func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		index[h] = i
	}
	return index
}
