package protocol

import (
	"fmt"
	"time"

	"github.com/smukkama/prayer-times/internal/prayer"
)

// DateFormat is the wire format of a record date
const DateFormat = "2006-01-02"

// TimesData contains the five prayer times of a successful source, as HH:MM
type TimesData struct {
	Fajr    string `json:"fajr"`
	Dhuhr   string `json:"dhuhr"`
	Asr     string `json:"asr"`
	Maghrib string `json:"maghrib"`
	Isha    string `json:"isha"`
}

// SourceResultMessage is the outcome of one source on one day
type SourceResultMessage struct {
	Source string     `json:"source"`
	OK     bool       `json:"ok"`
	Times  *TimesData `json:"times,omitempty"`
	Kind   string     `json:"failure_kind,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// DailyRecordMessage is the message format of a reconciled day
type DailyRecordMessage struct {
	RunID      string                `json:"run_id"`
	LocationID string                `json:"location_id"`
	Date       string                `json:"date"`
	BuiltAt    time.Time             `json:"built_at"`
	Results    []SourceResultMessage `json:"results"`
}

// NewDailyRecordMessage converts a record, listing sources in the given order
func NewDailyRecordMessage(runID, locationID string, sources []prayer.SourceName, rec prayer.DailyRecord, builtAt time.Time) *DailyRecordMessage {
	msg := &DailyRecordMessage{
		RunID:      runID,
		LocationID: locationID,
		Date:       rec.Date.Format(DateFormat),
		BuiltAt:    builtAt,
		Results:    make([]SourceResultMessage, 0, len(sources)),
	}

	for _, name := range sources {
		res := rec.Result(name)
		item := SourceResultMessage{Source: string(name)}
		if times, ok := res.Times(); ok {
			item.OK = true
			item.Times = &TimesData{
				Fajr:    times.Fajr.String(),
				Dhuhr:   times.Dhuhr.String(),
				Asr:     times.Asr.String(),
				Maghrib: times.Maghrib.String(),
				Isha:    times.Isha.String(),
			}
		} else {
			item.Kind = string(res.Kind())
			item.Reason = res.Reason()
		}
		msg.Results = append(msg.Results, item)
	}

	return msg
}

// Parse converts the message back into a record dated at midnight in loc
func (m *DailyRecordMessage) Parse(loc *time.Location) (prayer.DailyRecord, error) {
	if loc == nil {
		loc = time.UTC
	}
	date, err := time.ParseInLocation(DateFormat, m.Date, loc)
	if err != nil {
		return prayer.DailyRecord{}, fmt.Errorf("invalid date %q: %w", m.Date, err)
	}

	rec := prayer.DailyRecord{
		Date:    date,
		Results: make(map[prayer.SourceName]prayer.SourceResult, len(m.Results)),
	}
	for _, item := range m.Results {
		if item.Source == "" {
			return prayer.DailyRecord{}, fmt.Errorf("result without source on %s", m.Date)
		}
		res, err := item.parse()
		if err != nil {
			return prayer.DailyRecord{}, fmt.Errorf("invalid result of %s on %s: %w", item.Source, m.Date, err)
		}
		rec.Results[prayer.SourceName(item.Source)] = res
	}

	return rec, nil
}

func (s SourceResultMessage) parse() (prayer.SourceResult, error) {
	if !s.OK {
		return prayer.Failed(prayer.FailureKind(s.Kind), s.Reason), nil
	}
	if s.Times == nil {
		return prayer.SourceResult{}, fmt.Errorf("times are required")
	}

	var set prayer.PrayerTimeSet
	for _, f := range []struct {
		value string
		dst   *prayer.Clock
	}{
		{s.Times.Fajr, &set.Fajr},
		{s.Times.Dhuhr, &set.Dhuhr},
		{s.Times.Asr, &set.Asr},
		{s.Times.Maghrib, &set.Maghrib},
		{s.Times.Isha, &set.Isha},
	} {
		c, err := prayer.ParseClock(f.value)
		if err != nil {
			return prayer.SourceResult{}, err
		}
		*f.dst = c
	}

	return prayer.Ok(set), nil
}
