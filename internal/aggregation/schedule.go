package aggregation

import (
	"fmt"
	"time"

	"github.com/smukkama/prayer-times/internal/prayer"
)

// NextMonthlyRun calculates when the monthly build should next run.
// It runs once a month on dayOfMonth at timeOfDay ("HH:MM") in now's location.
// A day past the end of a short month runs on that month's last day.
func NextMonthlyRun(now time.Time, dayOfMonth int, timeOfDay string) (time.Time, error) {
	if dayOfMonth < 1 || dayOfMonth > 31 {
		return time.Time{}, fmt.Errorf("invalid day of month: %d (expected 1-31)", dayOfMonth)
	}

	clock, err := prayer.ParseClock(timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format: %s (expected HH:MM)", timeOfDay)
	}

	// This month's run time
	run := runIn(now.Year(), now.Month(), dayOfMonth, clock, now.Location())

	// If we're past this month's run time, schedule for next month
	if !now.Before(run) {
		first := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
		run = runIn(first.Year(), first.Month(), dayOfMonth, clock, now.Location())
	}

	return run, nil
}

func runIn(year int, month time.Month, day int, clock prayer.Clock, loc *time.Location) time.Time {
	if last := prayer.DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, clock.Hour, clock.Minute, 0, 0, loc)
}
