package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

func renderTable(view View) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if title := view.Title(); title != "" {
		t.SetTitle(title)
	}

	t.AppendHeader(toRow(view.Header()))
	for _, row := range view.Rows() {
		t.AppendRow(toRow(row))
	}
	return t.Render()
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, cell := range cells {
		row[i] = cell
	}
	return row
}
