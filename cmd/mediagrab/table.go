package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"mediagrab/internal/catalog"
)

const emptyCatalog = "No formats found"

var catalogHeader = table.Row{"Format", "Badge", "Quality", "Details", "Size"}

// renderCatalog draws one row per card with the size column right aligned.
func renderCatalog(v *catalog.View) string {
	if v == nil || len(v.Cards) == 0 {
		return emptyCatalog
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(catalogHeader)
	for _, c := range v.Cards {
		tw.AppendRow(table.Row{c.DownloadID, c.Badge.Label, c.Title, c.Details, c.Size})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Size", Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	tw.SetCaption("%d %s formats", len(v.Cards), v.Category)
	return tw.Render()
}
