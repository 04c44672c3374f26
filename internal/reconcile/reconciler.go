package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/prayer"
	"github.com/smukkama/prayer-times/internal/source"
)

// Reconciler collects the output of every configured source for one day
type Reconciler struct {
	sources []source.Source
	logger  *zap.Logger
}

// NewReconciler creates a reconciler over sources, in display order
func NewReconciler(sources []source.Source, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		sources: sources,
		logger:  logger,
	}
}

// Sources returns the source names in display order
func (r *Reconciler) Sources() []prayer.SourceName {
	names := make([]prayer.SourceName, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// Reconcile invokes all sources for date and waits for the slowest one.
// A failing source only affects its own entry in the record.
func (r *Reconciler) Reconcile(ctx context.Context, date time.Time, coords prayer.Coordinates) prayer.DailyRecord {
	req := prayer.CalculationRequest{
		Coordinates: coords,
		Date:        date,
	}

	results := make([]prayer.SourceResult, len(r.sources))

	var wg sync.WaitGroup
	for i, src := range r.sources {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()
			results[i] = r.invoke(ctx, src, req)
		}(i, src)
	}
	wg.Wait()

	record := prayer.DailyRecord{
		Date:    date,
		Results: make(map[prayer.SourceName]prayer.SourceResult, len(r.sources)),
	}
	for i, src := range r.sources {
		record.Results[src.Name()] = results[i]
		if !results[i].OK() {
			r.logger.Warn("source unavailable",
				zap.String("date", record.DateLabel()),
				zap.String("source", string(src.Name())),
				zap.String("kind", string(results[i].Kind())),
				zap.String("reason", results[i].Reason()))
		}
	}

	return record
}

// invoke shields the record from a source that breaks its own contract
func (r *Reconciler) invoke(ctx context.Context, src source.Source, req prayer.CalculationRequest) (result prayer.SourceResult) {
	defer func() {
		if p := recover(); p != nil {
			result = prayer.Failedf(prayer.FailureComputation, "source panicked: %v", p)
		}
	}()
	return src.Invoke(ctx, req)
}
