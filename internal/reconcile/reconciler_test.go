package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/calc"
	"github.com/smukkama/prayer-times/internal/prayer"
	"github.com/smukkama/prayer-times/internal/source"
)

var (
	jakarta = prayer.Coordinates{Latitude: -5.777508, Longitude: 106.3977983}
	wib     = time.FixedZone("WIB", 7*3600)
)

type fakeSource struct {
	name   prayer.SourceName
	delay  time.Duration
	result prayer.SourceResult
	panics bool
}

func (f fakeSource) Name() prayer.SourceName { return f.name }

func (f fakeSource) Invoke(ctx context.Context, _ prayer.CalculationRequest) prayer.SourceResult {
	if f.panics {
		panic("boom")
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return prayer.Failed(prayer.FailureTimeout, ctx.Err().Error())
	}
	return f.result
}

func localSources(t *testing.T) []source.Source {
	t.Helper()
	a, err := calc.NewSunriseCalculator(calc.MethodSingapore)
	require.NoError(t, err)
	b, err := calc.NewPrayerCalculator(calc.MethodMakkah)
	require.NoError(t, err)
	return []source.Source{
		source.NewLocalSource(prayer.SourceSingapore, a),
		source.NewLocalSource(prayer.SourceMakkah, b),
	}
}

func TestReconcile_AllSourcesOk(t *testing.T) {
	defer goleak.VerifyNone(t)

	remote := fakeSource{
		name:   prayer.SourceKemenag,
		delay:  20 * time.Millisecond,
		result: prayer.Ok(prayer.PrayerTimeSet{Fajr: prayer.Clock{Hour: 4, Minute: 36}}),
	}
	r := NewReconciler(append([]source.Source{remote}, localSources(t)...), zap.NewNop())

	date := time.Date(2026, time.April, 1, 0, 0, 0, 0, wib)
	rec := r.Reconcile(context.Background(), date, jakarta)

	assert.Equal(t, date, rec.Date)
	assert.Len(t, rec.Results, 3)
	assert.Zero(t, rec.FailedCount())
	for _, name := range r.Sources() {
		times, ok := rec.Result(name).Times()
		require.True(t, ok, "%s should succeed", name)
		for _, p := range prayer.Prayers {
			_, err := prayer.ParseClock(times.At(p).String())
			assert.NoError(t, err)
		}
	}
}

func TestReconcile_RemoteFailureKeepsLocalResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	remote := fakeSource{name: prayer.SourceKemenag, result: prayer.Failed(prayer.FailureNetwork, "network error")}
	r := NewReconciler(append([]source.Source{remote}, localSources(t)...), nil)

	rec := r.Reconcile(context.Background(), time.Date(2026, time.April, 2, 0, 0, 0, 0, wib), jakarta)

	assert.Equal(t, prayer.FailureNetwork, rec.Result(prayer.SourceKemenag).Kind())
	assert.True(t, rec.Result(prayer.SourceSingapore).OK())
	assert.True(t, rec.Result(prayer.SourceMakkah).OK())
	assert.Equal(t, 1, rec.FailedCount())
}

func TestReconcile_PanickingSourceIsContained(t *testing.T) {
	remote := fakeSource{name: prayer.SourceKemenag, panics: true}
	r := NewReconciler(append([]source.Source{remote}, localSources(t)...), zap.NewNop())

	rec := r.Reconcile(context.Background(), time.Date(2026, time.April, 3, 0, 0, 0, 0, wib), jakarta)

	assert.Equal(t, prayer.FailureComputation, rec.Result(prayer.SourceKemenag).Kind())
	assert.True(t, rec.Result(prayer.SourceMakkah).OK())
}

func TestReconcile_LocalEntriesDeterministic(t *testing.T) {
	r := NewReconciler(localSources(t), zap.NewNop())
	date := time.Date(2026, time.April, 4, 0, 0, 0, 0, wib)

	first := r.Reconcile(context.Background(), date, jakarta)
	second := r.Reconcile(context.Background(), date, jakarta)

	assert.Equal(t, first, second)
}

func TestReconciler_SourcesOrder(t *testing.T) {
	remote := fakeSource{name: prayer.SourceKemenag}
	r := NewReconciler(append([]source.Source{remote}, localSources(t)...), zap.NewNop())

	assert.Equal(t, prayer.DefaultSources, r.Sources())
}
