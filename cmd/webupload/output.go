package main

import (
	"encoding/json"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// renderTable draws a rounded table. Columns without an entry in aligns are
// left aligned; rows shorter than headers are padded with blanks.
func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	if len(headers) == 0 {
		return ""
	}
	width := len(headers)
	pad := func(values []string) table.Row {
		row := make(table.Row, width)
		for i := range row {
			row[i] = ""
			if i < len(values) {
				row[i] = values[i]
			}
		}
		return row
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(pad(headers))
	for _, row := range rows {
		tw.AppendRow(pad(row))
	}
	columns := make([]table.ColumnConfig, 0, width)
	for i := range width {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] != text.AlignDefault {
			align = aligns[i]
		}
		columns = append(columns, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(columns)
	return tw.Render() + "\n"
}

// writeJSON backs the --json flag of listing commands.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
