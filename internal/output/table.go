package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

const emptyCell = "-"

func renderTable(data Tabular, markdown bool) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if title := data.Title(); title != "" && !markdown {
		t.SetTitle(title)
	}
	t.AppendHeader(data.Header())

	rows := data.Rows()
	for _, row := range rows {
		t.AppendRow(row)
	}
	if len(rows) == 0 {
		empty := make(table.Row, len(data.Header()))
		for i := range empty {
			empty[i] = emptyCell
		}
		t.AppendRow(empty)
	}

	if markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}
