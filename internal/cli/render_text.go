package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"notedb/internal/domain"
	"notedb/internal/view"
)

const untitled = "(untitled)"

func printRendered(o *IO, schema *domain.DatabaseSchema, r *view.Rendered) {
	o.Printf("%s (%s), %d rows\n\n", r.Name, r.View.Kind, r.RowCount)
	switch {
	case r.Board != nil:
		printBoard(o, schema, r.Board)
	case r.Calendar != nil:
		printCalendar(o, schema, r.Calendar)
	case r.Table != nil:
		printTable(o, r.Table)
	}
}

func printTable(o *IO, t *view.Table) {
	tw := tabwriter.NewWriter(o.Out(), 0, 0, 2, ' ', 0)
	header := []string{"ID"}
	for _, c := range t.Columns {
		header = append(header, c.Name)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range t.Rows {
		line := []string{row.ID}
		for _, c := range row.Cells {
			line = append(line, c.Display)
		}
		fmt.Fprintln(tw, strings.Join(line, "\t"))
	}
	_ = tw.Flush()
}

func printBoard(o *IO, schema *domain.DatabaseSchema, b *view.Board) {
	for i, lane := range b.Lanes {
		if i > 0 {
			o.Println()
		}
		o.Printf("## %s (%d)\n", lane.Label, len(lane.Rows))
		for _, row := range lane.Rows {
			o.Printf("- %s  [%s]\n", rowTitle(schema, row), row.ID)
		}
	}
}

func printCalendar(o *IO, schema *domain.DatabaseSchema, c *view.Calendar) {
	o.Printf("%d-%02d\n", c.Year, int(c.Month))
	for _, week := range c.Weeks {
		for _, day := range week {
			if !day.InMonth || len(day.Rows) == 0 {
				continue
			}
			titles := make([]string, 0, len(day.Rows))
			for _, row := range day.Rows {
				titles = append(titles, rowTitle(schema, row))
			}
			o.Printf("%s  %s\n", day.Date, strings.Join(titles, ", "))
		}
	}
	if len(c.NoDate) > 0 {
		o.Printf("\nno date (%d)\n", len(c.NoDate))
		for _, row := range c.NoDate {
			o.Printf("- %s  [%s]\n", rowTitle(schema, row), row.ID)
		}
	}
}

func rowTitle(schema *domain.DatabaseSchema, row *domain.DatabaseRow) string {
	col, ok := schema.TitleColumn()
	if !ok {
		return untitled
	}
	if title := domain.CoerceForDisplay(row.Fields[col.ID], col.Type); title != "" {
		return title
	}
	return untitled
}
