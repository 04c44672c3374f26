package source

import (
	"context"

	"github.com/smukkama/prayer-times/internal/calc"
	"github.com/smukkama/prayer-times/internal/prayer"
)

// Source is any provider of daily prayer times. Invoke never panics and
// reports every failure through the returned result.
type Source interface {
	Name() prayer.SourceName
	Invoke(ctx context.Context, req prayer.CalculationRequest) prayer.SourceResult
}

// LocalSource adapts a synchronous calculator to the Source contract
type LocalSource struct {
	name       prayer.SourceName
	calculator calc.Calculator
}

// Ensure LocalSource implements Source
var _ Source = (*LocalSource)(nil)

// NewLocalSource creates a source backed by a local calculator
func NewLocalSource(name prayer.SourceName, calculator calc.Calculator) *LocalSource {
	return &LocalSource{
		name:       name,
		calculator: calculator,
	}
}

// Name returns the source name
func (s *LocalSource) Name() prayer.SourceName {
	return s.name
}

// Invoke computes the times of the requested day
func (s *LocalSource) Invoke(ctx context.Context, req prayer.CalculationRequest) (result prayer.SourceResult) {
	defer func() {
		if r := recover(); r != nil {
			result = prayer.Failedf(prayer.FailureComputation, "%s calculation panicked: %v", s.calculator.Method().Name, r)
		}
	}()

	times, err := s.calculator.Compute(req.Coordinates, req.Date)
	if err != nil {
		return prayer.Failedf(prayer.FailureComputation, "%s calculation failed: %v", s.calculator.Method().Name, err)
	}

	return prayer.Ok(times)
}
