package prayer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the display format of a record date (DD/MM/YYYY)
const DateLayout = "02/01/2006"

// Prayer identifies one of the five daily prayers
type Prayer int

const (
	Fajr Prayer = iota
	Dhuhr
	Asr
	Maghrib
	Isha
)

// Prayers lists the prayers in display order
var Prayers = []Prayer{Fajr, Dhuhr, Asr, Maghrib, Isha}

func (p Prayer) String() string {
	switch p {
	case Fajr:
		return "fajr"
	case Dhuhr:
		return "dhuhr"
	case Asr:
		return "asr"
	case Maghrib:
		return "maghrib"
	case Isha:
		return "isha"
	}
	return fmt.Sprintf("prayer(%d)", int(p))
}

// Coordinates is a geographic position in decimal degrees
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Validate checks that the coordinates lie on the globe
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return NewConfigurationError("latitude", fmt.Sprintf("%v is outside [-90, 90]", c.Latitude))
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return NewConfigurationError("longitude", fmt.Sprintf("%v is outside [-180, 180]", c.Longitude))
	}
	return nil
}

// CalculationRequest asks a source for the prayer times of one day
type CalculationRequest struct {
	Coordinates Coordinates
	Date        time.Time // local midnight
}

// Clock is a time of day with minute precision
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns the number of minutes since midnight
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// ClockFromTime truncates t to its minute in its own location
func ClockFromTime(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// ParseClock parses "H:MM" or "HH:MM", ignoring a trailing " (TZ)" annotation
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}

	hh, mm, found := strings.Cut(s, ":")
	if !found || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return Clock{}, fmt.Errorf("invalid time of day %q (expected HH:MM)", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("time of day %q out of range", s)
	}

	return Clock{Hour: hour, Minute: minute}, nil
}

// PrayerTimeSet holds the five times one source produced for one day
type PrayerTimeSet struct {
	Fajr    Clock
	Dhuhr   Clock
	Asr     Clock
	Maghrib Clock
	Isha    Clock
}

// At returns the time of the given prayer
func (s PrayerTimeSet) At(p Prayer) Clock {
	switch p {
	case Fajr:
		return s.Fajr
	case Dhuhr:
		return s.Dhuhr
	case Asr:
		return s.Asr
	case Maghrib:
		return s.Maghrib
	default:
		return s.Isha
	}
}

// SourceName identifies a time source
type SourceName string

const (
	SourceKemenag   SourceName = "kemenag"   // remote authority
	SourceSingapore SourceName = "singapore" // local method A
	SourceMakkah    SourceName = "makkah"    // local method B
)

// DefaultSources is the display order used when none is configured
var DefaultSources = []SourceName{SourceKemenag, SourceSingapore, SourceMakkah}

// ValidateSourceNames rejects empty or repeated names. A DailyRecord holds
// one result per name, so a repeated name would hide a source.
func ValidateSourceNames(names []SourceName) error {
	seen := make(map[SourceName]bool, len(names))
	for _, name := range names {
		if name == "" {
			return NewConfigurationError("sources", "source name must not be empty")
		}
		if seen[name] {
			return NewConfigurationError("sources", fmt.Sprintf("source %q is configured more than once", name))
		}
		seen[name] = true
	}
	return nil
}

// DailyRecord is the reconciled output of every source for one date
type DailyRecord struct {
	Date    time.Time
	Results map[SourceName]SourceResult
}

// Result returns the result of a source, or a missing failure if the source
// did not contribute to this record
func (r DailyRecord) Result(name SourceName) SourceResult {
	if res, ok := r.Results[name]; ok {
		return res
	}
	return Failed(FailureMissing, "source not reconciled")
}

// DateLabel formats the record date for display
func (r DailyRecord) DateLabel() string {
	return r.Date.Format(DateLayout)
}

// FailedCount returns how many sources failed on this date
func (r DailyRecord) FailedCount() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// MonthlySequence is the ordered list of daily records of one month
type MonthlySequence struct {
	Year    int
	Month   time.Month
	Sources []SourceName
	Records []DailyRecord
}

// DaysIn returns the number of days of a month in the proleptic Gregorian calendar
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Validate checks the sequence covers the whole month, one record per day, ascending
func (m *MonthlySequence) Validate() error {
	want := DaysIn(m.Year, m.Month)
	if len(m.Records) != want {
		return fmt.Errorf("expected %d records for %04d-%02d, got %d", want, m.Year, m.Month, len(m.Records))
	}

	sorted := sort.SliceIsSorted(m.Records, func(i, j int) bool {
		return m.Records[i].Date.Before(m.Records[j].Date)
	})
	if !sorted {
		return fmt.Errorf("records are not in ascending date order")
	}

	for i, rec := range m.Records {
		if rec.Date.Year() != m.Year || rec.Date.Month() != m.Month || rec.Date.Day() != i+1 {
			return fmt.Errorf("record %d is dated %s", i, rec.DateLabel())
		}
	}

	return nil
}

// FailedCells counts the failed source results across the month
func (m *MonthlySequence) FailedCells() int {
	n := 0
	for _, rec := range m.Records {
		n += rec.FailedCount()
	}
	return n
}

// ValidateMonth rejects a year or month the calendar cannot be built for
func ValidateMonth(year int, month time.Month) error {
	if year < 1 || year > 9999 {
		return NewConfigurationError("year", fmt.Sprintf("%d is outside [1, 9999]", year))
	}
	if month < time.January || month > time.December {
		return NewConfigurationError("month", fmt.Sprintf("%d is outside [1, 12]", int(month)))
	}
	return nil
}
