package render

import (
	"fmt"

	"github.com/smukkama/prayer-times/internal/prayer"
)

const minutesPerDay = 24 * 60

// DivergenceRow summarises how far one source drifts from the reference
// source for one prayer over a month
type DivergenceRow struct {
	Prayer    prayer.Prayer
	Source    prayer.SourceName
	Reference prayer.SourceName
	Days      int     // days on which both sources succeeded
	Mean      float64 // minutes
	Max       int     // minutes
}

// Divergence compares every source against the first source of the
// sequence, which is the reference authority. Days where either side
// failed are skipped.
func Divergence(seq *prayer.MonthlySequence) []DivergenceRow {
	if len(seq.Sources) < 2 {
		return nil
	}
	reference := seq.Sources[0]
	others := seq.Sources[1:]

	rows := make([]DivergenceRow, 0, len(prayer.Prayers)*len(others))
	for _, p := range prayer.Prayers {
		for _, name := range others {
			row := DivergenceRow{Prayer: p, Source: name, Reference: reference}
			total := 0
			for _, rec := range seq.Records {
				ref, ok := rec.Result(reference).Times()
				if !ok {
					continue
				}
				got, ok := rec.Result(name).Times()
				if !ok {
					continue
				}
				d := clockDistance(ref.At(p), got.At(p))
				total += d
				if d > row.Max {
					row.Max = d
				}
				row.Days++
			}
			if row.Days > 0 {
				row.Mean = float64(total) / float64(row.Days)
			}
			rows = append(rows, row)
		}
	}

	return rows
}

// clockDistance is the absolute difference in minutes, measured the short
// way round midnight
func clockDistance(a, b prayer.Clock) int {
	d := a.Minutes() - b.Minutes()
	if d < 0 {
		d = -d
	}
	if d > minutesPerDay/2 {
		d = minutesPerDay - d
	}
	return d
}

// RenderDivergence serialises divergence rows as a bordered text table
func RenderDivergence(rows []DivergenceRow) string {
	g := Grid{
		Header: []string{"Prayer", "Source", "Against", "Days", "Mean (min)", "Max (min)"},
		Rows:   make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		meanCell, maxCell := UnavailableMarker, UnavailableMarker
		if r.Days > 0 {
			meanCell = fmt.Sprintf("%.1f", r.Mean)
			maxCell = fmt.Sprintf("%d", r.Max)
		}
		g.Rows = append(g.Rows, []string{
			r.Prayer.String(),
			string(r.Source),
			string(r.Reference),
			fmt.Sprintf("%d", r.Days),
			meanCell,
			maxCell,
		})
	}
	return RenderGrid(g)
}
