package database

import (
	"fmt"
	"time"

	"github.com/smukkama/prayer-times/internal/prayer"
)

// DailyResult is the stored outcome of one source on one day
type DailyResult struct {
	LocationID  string
	Date        time.Time
	Source      string
	OK          bool
	Fajr        *string
	Dhuhr       *string
	Asr         *string
	Maghrib     *string
	Isha        *string
	FailureKind *string
	Reason      *string
	RunID       string
	UpdatedAt   time.Time
}

// NewDailyResult flattens the result of a source for storage
func NewDailyResult(locationID, runID string, date time.Time, source prayer.SourceName, res prayer.SourceResult) *DailyResult {
	row := &DailyResult{
		LocationID: locationID,
		Date:       date,
		Source:     string(source),
		OK:         res.OK(),
		RunID:      runID,
	}

	if times, ok := res.Times(); ok {
		row.Fajr = clockPtr(times.Fajr)
		row.Dhuhr = clockPtr(times.Dhuhr)
		row.Asr = clockPtr(times.Asr)
		row.Maghrib = clockPtr(times.Maghrib)
		row.Isha = clockPtr(times.Isha)
		return row
	}

	kind := string(res.Kind())
	reason := res.Reason()
	row.FailureKind = &kind
	row.Reason = &reason
	return row
}

func clockPtr(c prayer.Clock) *string {
	s := c.String()
	return &s
}

// Result converts the stored row back into a source result
func (r *DailyResult) Result() (prayer.SourceResult, error) {
	if !r.OK {
		var kind prayer.FailureKind
		var reason string
		if r.FailureKind != nil {
			kind = prayer.FailureKind(*r.FailureKind)
		}
		if r.Reason != nil {
			reason = *r.Reason
		}
		return prayer.Failed(kind, reason), nil
	}

	var set prayer.PrayerTimeSet
	for _, f := range []struct {
		name  string
		value *string
		dst   *prayer.Clock
	}{
		{"fajr", r.Fajr, &set.Fajr},
		{"dhuhr", r.Dhuhr, &set.Dhuhr},
		{"asr", r.Asr, &set.Asr},
		{"maghrib", r.Maghrib, &set.Maghrib},
		{"isha", r.Isha, &set.Isha},
	} {
		if f.value == nil {
			return prayer.SourceResult{}, fmt.Errorf("%s is null for %s on %s", f.name, r.Source, r.Date.Format("2006-01-02"))
		}
		c, err := prayer.ParseClock(*f.value)
		if err != nil {
			return prayer.SourceResult{}, err
		}
		*f.dst = c
	}

	return prayer.Ok(set), nil
}

// AssembleMonth rebuilds a month from stored rows. Days or sources without
// a row come back as missing.
func AssembleMonth(rows []*DailyResult, year int, month time.Month, loc *time.Location, sources []prayer.SourceName) (*prayer.MonthlySequence, error) {
	if err := prayer.ValidateMonth(year, month); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	days := prayer.DaysIn(year, month)
	seq := &prayer.MonthlySequence{
		Year:    year,
		Month:   month,
		Sources: sources,
		Records: make([]prayer.DailyRecord, days),
	}
	for i := range seq.Records {
		seq.Records[i] = prayer.DailyRecord{
			Date:    time.Date(year, month, i+1, 0, 0, 0, 0, loc),
			Results: make(map[prayer.SourceName]prayer.SourceResult, len(sources)),
		}
	}

	for _, row := range rows {
		if row.Date.Year() != year || row.Date.Month() != month {
			continue
		}
		res, err := row.Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read stored result: %w", err)
		}
		seq.Records[row.Date.Day()-1].Results[prayer.SourceName(row.Source)] = res
	}

	return seq, nil
}

// ResultsFromSequence flattens every cell of a month for storage
func ResultsFromSequence(locationID, runID string, seq *prayer.MonthlySequence) []*DailyResult {
	rows := make([]*DailyResult, 0, len(seq.Records)*len(seq.Sources))
	for _, rec := range seq.Records {
		for _, name := range seq.Sources {
			rows = append(rows, NewDailyResult(locationID, runID, rec.Date, name, rec.Result(name)))
		}
	}
	return rows
}
