package aggregation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smukkama/prayer-times/internal/prayer"
)

// DayReconciler produces the reconciled record of a single day
type DayReconciler interface {
	Reconcile(ctx context.Context, date time.Time, coords prayer.Coordinates) prayer.DailyRecord
	Sources() []prayer.SourceName
}

// MonthlyAggregator builds the records of every day of a month
type MonthlyAggregator struct {
	reconciler  DayReconciler
	location    *time.Location
	concurrency int
	logger      *zap.Logger
}

// NewMonthlyAggregator creates a new monthly aggregator.
// Days are processed one at a time unless concurrency is above 1.
func NewMonthlyAggregator(reconciler DayReconciler, location *time.Location, concurrency int, logger *zap.Logger) *MonthlyAggregator {
	if location == nil {
		location = time.Local
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonthlyAggregator{
		reconciler:  reconciler,
		location:    location,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Location returns the time zone the month is calendared in
func (a *MonthlyAggregator) Location() *time.Location {
	return a.location
}

// BuildMonth reconciles days 1..N of the month in ascending order.
// Invalid input fails before any day is processed; source failures never do.
func (a *MonthlyAggregator) BuildMonth(ctx context.Context, coords prayer.Coordinates, year int, month time.Month) (*prayer.MonthlySequence, error) {
	if err := coords.Validate(); err != nil {
		return nil, fmt.Errorf("failed to build month: %w", err)
	}
	if err := prayer.ValidateMonth(year, month); err != nil {
		return nil, fmt.Errorf("failed to build month: %w", err)
	}

	days := prayer.DaysIn(year, month)
	start := time.Now()

	a.logger.Info("Building month",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("days", days),
		zap.Int("concurrency", a.concurrency))

	records := make([]prayer.DailyRecord, days)
	if a.concurrency == 1 {
		for i := range records {
			records[i] = a.reconcileDay(ctx, coords, year, month, i+1)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.concurrency)
		for i := range records {
			g.Go(func() error {
				records[i] = a.reconcileDay(gctx, coords, year, month, i+1)
				return nil
			})
		}
		// Workers never return errors; a failed source is part of the record.
		_ = g.Wait()
	}

	seq := &prayer.MonthlySequence{
		Year:    year,
		Month:   month,
		Sources: a.reconciler.Sources(),
		Records: records,
	}

	a.logger.Info("Month built",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("records", len(records)),
		zap.Int("failed_cells", seq.FailedCells()),
		zap.Duration("elapsed", time.Since(start)))

	return seq, nil
}

// BuildNextMonth builds the calendar month following now
func (a *MonthlyAggregator) BuildNextMonth(ctx context.Context, coords prayer.Coordinates, now time.Time) (*prayer.MonthlySequence, error) {
	local := now.In(a.location)
	next := time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, a.location)
	return a.BuildMonth(ctx, coords, next.Year(), next.Month())
}

func (a *MonthlyAggregator) reconcileDay(ctx context.Context, coords prayer.Coordinates, year int, month time.Month, day int) prayer.DailyRecord {
	date := time.Date(year, month, day, 0, 0, 0, 0, a.location)
	record := a.reconciler.Reconcile(ctx, date, coords)

	a.logger.Debug("Day reconciled",
		zap.String("date", record.DateLabel()),
		zap.Int("failed", record.FailedCount()))

	return record
}
