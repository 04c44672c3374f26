package aggregation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/calc"
	"github.com/smukkama/prayer-times/internal/prayer"
	"github.com/smukkama/prayer-times/internal/reconcile"
	"github.com/smukkama/prayer-times/internal/source"
)

var (
	jakarta = prayer.Coordinates{Latitude: -5.777508, Longitude: 106.3977983}
	wib     = time.FixedZone("WIB", 7*3600)
)

// countingReconciler records which days it was asked for
type countingReconciler struct {
	mu     sync.Mutex
	days   []int
	jitter bool
}

func (c *countingReconciler) Sources() []prayer.SourceName { return prayer.DefaultSources }

func (c *countingReconciler) Reconcile(_ context.Context, date time.Time, _ prayer.Coordinates) prayer.DailyRecord {
	if c.jitter {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}
	c.mu.Lock()
	c.days = append(c.days, date.Day())
	c.mu.Unlock()

	return prayer.DailyRecord{
		Date: date,
		Results: map[prayer.SourceName]prayer.SourceResult{
			prayer.SourceKemenag:   prayer.Ok(prayer.PrayerTimeSet{}),
			prayer.SourceSingapore: prayer.Ok(prayer.PrayerTimeSet{}),
			prayer.SourceMakkah:    prayer.Ok(prayer.PrayerTimeSet{}),
		},
	}
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

func scheduleJSON(day int) string {
	return fmt.Sprintf(`{"status":true,"data":{"jadwal":{"tanggal":"%02d/04/2026","subuh":"04:36","dzuhur":"11:58","ashar":"15:12","maghrib":"17:58","isya":"19:07"}}}`, day)
}

func TestBuildMonth_April(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, scheduleJSON(1))
	}))
	defer srv.Close()

	remote := source.NewRemoteSource(srv.URL, "1301", time.Second, zap.NewNop())
	r := reconcile.NewReconciler(append([]source.Source{remote}, localSources(t)...), zap.NewNop())
	agg := NewMonthlyAggregator(r, wib, 1, zap.NewNop())

	seq, err := agg.BuildMonth(context.Background(), jakarta, 2026, time.April)
	require.NoError(t, err)
	require.NoError(t, seq.Validate())

	require.Len(t, seq.Records, 30)
	assert.Equal(t, "01/04/2026", seq.Records[0].DateLabel())
	assert.Equal(t, "30/04/2026", seq.Records[29].DateLabel())
	assert.Zero(t, seq.FailedCells())
	assert.Equal(t, prayer.DefaultSources, seq.Sources)

	for _, rec := range seq.Records {
		for _, name := range seq.Sources {
			times, ok := rec.Result(name).Times()
			require.True(t, ok, "%s %s", rec.DateLabel(), name)
			for _, p := range prayer.Prayers {
				c := times.At(p)
				assert.True(t, c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59)
			}
		}
	}
}

func TestBuildMonth_Lengths(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2024, time.February, 29},
		{2025, time.February, 28},
		{2000, time.February, 29},
		{1900, time.February, 28},
		{2026, time.January, 31},
		{2026, time.June, 30},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-%02d", tt.year, tt.month), func(t *testing.T) {
			agg := NewMonthlyAggregator(&countingReconciler{}, wib, 1, nil)
			seq, err := agg.BuildMonth(context.Background(), jakarta, tt.year, tt.month)
			require.NoError(t, err)
			assert.Len(t, seq.Records, tt.want)
			assert.NoError(t, seq.Validate())
		})
	}
}

func TestBuildMonth_OrderUnderConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &countingReconciler{jitter: true}
	agg := NewMonthlyAggregator(rec, wib, 8, zap.NewNop())

	seq, err := agg.BuildMonth(context.Background(), jakarta, 2026, time.March)
	require.NoError(t, err)
	require.NoError(t, seq.Validate())

	for i, r := range seq.Records {
		assert.Equal(t, i+1, r.Date.Day())
	}
	assert.Len(t, rec.days, 31)
}

func TestBuildMonth_RemoteFailureDoesNotAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/4/17") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, scheduleJSON(1))
	}))
	defer srv.Close()

	remote := source.NewRemoteSource(srv.URL, "1301", time.Second, zap.NewNop())
	r := reconcile.NewReconciler(append([]source.Source{remote}, localSources(t)...), zap.NewNop())
	agg := NewMonthlyAggregator(r, wib, 4, zap.NewNop())

	seq, err := agg.BuildMonth(context.Background(), jakarta, 2026, time.April)
	require.NoError(t, err)
	require.Len(t, seq.Records, 30)

	day17 := seq.Records[16]
	assert.Equal(t, prayer.FailureBadStatus, day17.Result(prayer.SourceKemenag).Kind())
	assert.True(t, day17.Result(prayer.SourceSingapore).OK())
	assert.True(t, day17.Result(prayer.SourceMakkah).OK())
	assert.Equal(t, 1, seq.FailedCells())
}

func TestBuildMonth_TimeoutBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/4/10") {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		fmt.Fprint(w, scheduleJSON(1))
	}))
	defer srv.Close()

	remote := source.NewRemoteSource(srv.URL, "1301", 100*time.Millisecond, zap.NewNop())
	r := reconcile.NewReconciler(append([]source.Source{remote}, localSources(t)...), zap.NewNop())
	agg := NewMonthlyAggregator(r, wib, 10, zap.NewNop())

	start := time.Now()
	seq, err := agg.BuildMonth(context.Background(), jakarta, 2026, time.April)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, prayer.FailureTimeout, seq.Records[9].Result(prayer.SourceKemenag).Kind())
	assert.True(t, seq.Records[9].Result(prayer.SourceMakkah).OK())
	assert.True(t, seq.Records[10].Result(prayer.SourceKemenag).OK())
}

func TestBuildMonth_InvalidInputProcessesNoDays(t *testing.T) {
	tests := []struct {
		name   string
		coords prayer.Coordinates
		year   int
		month  time.Month
	}{
		{name: "month 13", coords: jakarta, year: 2026, month: 13},
		{name: "month 0", coords: jakarta, year: 2026, month: 0},
		{name: "year 0", coords: jakarta, year: 0, month: time.April},
		{name: "latitude", coords: prayer.Coordinates{Latitude: 91, Longitude: 0}, year: 2026, month: time.April},
		{name: "longitude", coords: prayer.Coordinates{Latitude: 0, Longitude: -181}, year: 2026, month: time.April},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &countingReconciler{}
			agg := NewMonthlyAggregator(rec, wib, 1, zap.NewNop())

			seq, err := agg.BuildMonth(context.Background(), tt.coords, tt.year, tt.month)
			assert.Nil(t, seq)
			assert.True(t, errors.Is(err, prayer.ErrConfigurationInvalid), "got %v", err)
			assert.Empty(t, rec.days)
		})
	}
}

func TestBuildNextMonth(t *testing.T) {
	agg := NewMonthlyAggregator(&countingReconciler{}, wib, 1, zap.NewNop())

	now := time.Date(2026, time.December, 20, 10, 0, 0, 0, wib)
	seq, err := agg.BuildNextMonth(context.Background(), jakarta, now)
	require.NoError(t, err)
	assert.Equal(t, 2027, seq.Year)
	assert.Equal(t, time.January, seq.Month)
	assert.Len(t, seq.Records, 31)
}
