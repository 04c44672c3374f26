package render

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/smukkama/prayer-times/internal/prayer"
)

// UnavailableMarker fills the cells of a source that failed on a day
const UnavailableMarker = "n/a"

// DateHeader labels the first column
const DateHeader = "Date"

// Grid is the tabular form of a monthly sequence
type Grid struct {
	Header []string
	Rows   [][]string
}

// ColumnHeader labels the column of one prayer as computed by one source
func ColumnHeader(p prayer.Prayer, name prayer.SourceName) string {
	return fmt.Sprintf("%s\n%s", p, name)
}

// BuildGrid lays out a month with one row per day and, after the date,
// one column per (prayer, source) pair, prayers outermost.
func BuildGrid(seq *prayer.MonthlySequence) Grid {
	sources := seq.Sources
	if len(sources) == 0 {
		sources = prayer.DefaultSources
	}

	header := make([]string, 0, 1+len(prayer.Prayers)*len(sources))
	header = append(header, DateHeader)
	for _, p := range prayer.Prayers {
		for _, name := range sources {
			header = append(header, ColumnHeader(p, name))
		}
	}

	rows := make([][]string, 0, len(seq.Records))
	for _, rec := range seq.Records {
		row := make([]string, 0, len(header))
		row = append(row, rec.DateLabel())
		for _, p := range prayer.Prayers {
			for _, name := range sources {
				row = append(row, cell(rec.Result(name), p))
			}
		}
		rows = append(rows, row)
	}

	return Grid{Header: header, Rows: rows}
}

func cell(res prayer.SourceResult, p prayer.Prayer) string {
	times, ok := res.Times()
	if !ok {
		return UnavailableMarker
	}
	return times.At(p).String()
}

// Render serialises the month as a bordered text table
func Render(seq *prayer.MonthlySequence) string {
	return RenderGrid(BuildGrid(seq))
}

// RenderGrid serialises any grid as a bordered text table
func RenderGrid(g Grid) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := cellStyle.Bold(true).Align(lipgloss.Center)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(g.Header...).
		Rows(g.Rows...)

	return t.String()
}
