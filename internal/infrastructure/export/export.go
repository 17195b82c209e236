package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"github.com/tirewatch/backend/internal/domain"
)

// Header returns the column names for rows compared against sources
func Header(sources []domain.Source) []string {
	header := []string{"sku_name", "name", "brand", "raw_specs", "spec", "price_reference"}
	for _, s := range sources {
		header = append(header, "price_"+string(s))
	}
	return header
}

// WriteCSV writes rows as CSV, one price column per source in the given order.
// Missing prices are written as empty cells.
func WriteCSV(w io.Writer, rows []domain.ComparisonRow, sources []domain.Source) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(sources)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range rows {
		if err := cw.Write(record(&rows[i], sources)); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderTable writes rows as a bordered text table
func RenderTable(w io.Writer, rows []domain.ComparisonRow, sources []domain.Source) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	header := table.Row{}
	for _, h := range Header(sources) {
		header = append(header, h)
	}
	t.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(sources)+1)
	for i := 6; i <= 6+len(sources); i++ {
		configs = append(configs, table.ColumnConfig{Number: i, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)

	for i := range rows {
		row := table.Row{}
		for _, cell := range record(&rows[i], sources) {
			row = append(row, cell)
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", "", "", "", "rows", len(rows)})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func record(r *domain.ComparisonRow, sources []domain.Source) []string {
	out := []string{r.SKUName, r.Name, r.Brand, r.RawSpecs, r.Spec, formatPrice(r.ReferencePrice)}
	for _, s := range sources {
		out = append(out, formatPrice(r.Prices[s]))
	}
	return out
}

func formatPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return ""
	}
	return p.Decimal.StringFixed(2)
}
