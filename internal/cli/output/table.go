package output

import (
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	// Headers returns the column headers for the table.
	Headers() []string
	// Rows returns the data rows for the table.
	Rows() [][]string
}

// RowStyler is implemented by a TableRenderer that wants its own rows
// colored by their content rather than left in the terminal's default
// color — snapshot.Defects colors a row by its defect Kind, for instance.
// RowColor is called once per row returned by Rows(); a nil result leaves
// that row uncolored.
type RowStyler interface {
	RowColor(row []string) *color.Color
}

// PrintTable writes data as a formatted table to the writer. When useColor
// is set and data also implements RowStyler, each row is colored according
// to its own RowColor verdict.
func PrintTable(w io.Writer, data TableRenderer, useColor bool) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())

	// Configure table style for clean output
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	styler, _ := data.(RowStyler)

	for _, row := range data.Rows() {
		if useColor && styler != nil {
			if c := styler.RowColor(row); c != nil {
				row = colorizeRow(c, row)
			}
		}
		table.Append(row)
	}

	table.Render()
	return nil
}

func colorizeRow(c *color.Color, row []string) []string {
	colored := make([]string, len(row))
	for i, cell := range row {
		colored[i] = c.Sprint(cell)
	}
	return colored
}
