package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/calc"
	"github.com/smukkama/prayer-times/internal/prayer"
)

var (
	jakarta = prayer.Coordinates{Latitude: -5.777508, Longitude: 106.3977983}
	wib     = time.FixedZone("WIB", 7*3600)
)

func request(day int) prayer.CalculationRequest {
	return prayer.CalculationRequest{
		Coordinates: jakarta,
		Date:        time.Date(2026, time.April, day, 0, 0, 0, 0, wib),
	}
}

const scheduleBody = `{
  "status": true,
  "data": {
    "id": "1301",
    "lokasi": "KOTA JAKARTA",
    "daerah": "DKI JAKARTA",
    "jadwal": {
      "tanggal": "Rabu, 01/04/2026",
      "imsak": "04:26",
      "subuh": "04:36",
      "terbit": "05:52",
      "dhuha": "06:20",
      "dzuhur": "11:58",
      "ashar": "15:12",
      "maghrib": "17:58",
      "isya": "19:07",
      "date": "2026-04-01"
    }
  }
}`

type stubCalculator struct {
	err    error
	panics bool
}

func (s stubCalculator) Method() calc.Method { return calc.MethodMakkah }

func (s stubCalculator) Compute(prayer.Coordinates, time.Time) (prayer.PrayerTimeSet, error) {
	if s.panics {
		panic("index out of range")
	}
	if s.err != nil {
		return prayer.PrayerTimeSet{}, s.err
	}
	return prayer.PrayerTimeSet{Fajr: prayer.Clock{Hour: 4, Minute: 40}}, nil
}

func TestLocalSource_Ok(t *testing.T) {
	engine, err := calc.NewPrayerCalculator(calc.MethodMakkah)
	require.NoError(t, err)
	src := NewLocalSource(prayer.SourceMakkah, engine)

	first := src.Invoke(context.Background(), request(1))
	second := src.Invoke(context.Background(), request(1))

	require.True(t, first.OK(), first.String())
	assert.Equal(t, first, second, "local sources are pure")
	assert.Equal(t, prayer.SourceMakkah, src.Name())
}

func TestLocalSource_ErrorBecomesFailed(t *testing.T) {
	src := NewLocalSource(prayer.SourceMakkah, stubCalculator{err: errors.New("sun does not set")})

	res := src.Invoke(context.Background(), request(1))
	assert.False(t, res.OK())
	assert.Equal(t, prayer.FailureComputation, res.Kind())
	assert.Contains(t, res.Reason(), "sun does not set")
}

func TestLocalSource_PanicBecomesFailed(t *testing.T) {
	src := NewLocalSource(prayer.SourceSingapore, stubCalculator{panics: true})

	res := src.Invoke(context.Background(), request(1))
	assert.False(t, res.OK())
	assert.Equal(t, prayer.FailureComputation, res.Kind())
	assert.Contains(t, res.Reason(), "panicked")
}

func TestRemoteSource_Ok(t *testing.T) {
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, scheduleBody)
	}))
	defer srv.Close()

	src := NewRemoteSource(srv.URL+"/", "1301", time.Second, zap.NewNop())
	res := src.Invoke(context.Background(), request(1))

	require.True(t, res.OK(), res.String())
	times, _ := res.Times()
	assert.Equal(t, "/v1/sholat/jadwal/1301/2026/4/1", <-paths)
	assert.Equal(t, "04:36", times.Fajr.String())
	assert.Equal(t, "11:58", times.Dhuhr.String())
	assert.Equal(t, "15:12", times.Asr.String())
	assert.Equal(t, "17:58", times.Maghrib.String())
	assert.Equal(t, "19:07", times.Isha.String())
}

func TestRemoteSource_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr prayer.FailureKind
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "oops", wantErr: prayer.FailureBadStatus},
		{name: "not found", status: http.StatusNotFound, body: "{}", wantErr: prayer.FailureBadStatus},
		{name: "not json", status: http.StatusOK, body: "<html>", wantErr: prayer.FailureMalformed},
		{name: "status false", status: http.StatusOK, body: `{"status":false,"message":"kota tidak ditemukan"}`, wantErr: prayer.FailureMalformed},
		{name: "missing field", status: http.StatusOK, body: `{"status":true,"data":{"jadwal":{"subuh":"04:36"}}}`, wantErr: prayer.FailureMalformed},
		{name: "bad time", status: http.StatusOK, body: `{"status":true,"data":{"jadwal":{"subuh":"4.36","dzuhur":"11:58","ashar":"15:12","maghrib":"17:58","isya":"19:07"}}}`, wantErr: prayer.FailureMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			res := NewRemoteSource(srv.URL, "1301", time.Second, nil).Invoke(context.Background(), request(2))
			assert.False(t, res.OK())
			assert.Equal(t, tt.wantErr, res.Kind(), res.Reason())
		})
	}
}

func TestRemoteSource_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	src := NewRemoteSource(srv.URL, "1301", 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	res := src.Invoke(context.Background(), request(3))

	assert.False(t, res.OK())
	assert.Equal(t, prayer.FailureTimeout, res.Kind(), res.Reason())
	assert.Less(t, time.Since(start), time.Second, "a timed out call must not wait for the server")
}

func TestRemoteSource_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewRemoteSource(url, "1301", time.Second, zap.NewNop()).Invoke(context.Background(), request(4))
	assert.False(t, res.OK())
	assert.Equal(t, prayer.FailureNetwork, res.Kind(), res.Reason())
}

func TestRateLimitedSource_CanceledWait(t *testing.T) {
	inner := NewLocalSource(prayer.SourceMakkah, stubCalculator{})
	limited := NewRateLimitedSource(inner, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := limited.Invoke(ctx, request(1))
	assert.Equal(t, prayer.FailureRateLimited, res.Kind())
	assert.Equal(t, prayer.SourceMakkah, limited.Name())
}

func TestRateLimitedSource_Forwards(t *testing.T) {
	limited := NewRateLimitedSource(NewLocalSource(prayer.SourceMakkah, stubCalculator{}), 100, 1)

	res := limited.Invoke(context.Background(), request(1))
	assert.True(t, res.OK())
}

type memStore struct {
	mu      sync.Mutex
	entries map[string]prayer.PrayerTimeSet
	getErr  error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]prayer.PrayerTimeSet)}
}

func (m *memStore) Get(_ context.Context, key string) (prayer.PrayerTimeSet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return prayer.PrayerTimeSet{}, false, m.getErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, times prayer.PrayerTimeSet, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = times
	return nil
}

type countingSource struct {
	mu     sync.Mutex
	calls  int
	result prayer.SourceResult
}

func (c *countingSource) Name() prayer.SourceName { return prayer.SourceKemenag }

func (c *countingSource) Invoke(context.Context, prayer.CalculationRequest) prayer.SourceResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.result
}

func TestCachedSource_HitAfterMiss(t *testing.T) {
	inner := &countingSource{result: prayer.Ok(prayer.PrayerTimeSet{Fajr: prayer.Clock{Hour: 4, Minute: 36}})}
	store := newMemStore()
	cached := NewCachedSource(inner, store, "1301", time.Hour, zap.NewNop())

	first := cached.Invoke(context.Background(), request(5))
	second := cached.Invoke(context.Background(), request(5))

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	hits, misses := cached.CacheStats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
	assert.Contains(t, store.entries, "prayer_times:kemenag:1301:2026-04-05")
}

func TestCachedSource_FailuresAreNotCached(t *testing.T) {
	inner := &countingSource{result: prayer.Failed(prayer.FailureNetwork, "down")}
	store := newMemStore()
	cached := NewCachedSource(inner, store, "1301", time.Hour, nil)

	cached.Invoke(context.Background(), request(6))
	res := cached.Invoke(context.Background(), request(6))

	assert.False(t, res.OK())
	assert.Equal(t, 2, inner.calls)
	assert.Empty(t, store.entries)
}

func TestCachedSource_StoreErrorFallsThrough(t *testing.T) {
	inner := &countingSource{result: prayer.Ok(prayer.PrayerTimeSet{})}
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	cached := NewCachedSource(inner, store, "1301", time.Hour, zap.NewNop())

	res := cached.Invoke(context.Background(), request(7))
	assert.True(t, res.OK())
	assert.Equal(t, 1, inner.calls)
}

func TestCacheEntryEncoding(t *testing.T) {
	want := prayer.PrayerTimeSet{
		Fajr:    prayer.Clock{Hour: 4, Minute: 36},
		Dhuhr:   prayer.Clock{Hour: 11, Minute: 58},
		Asr:     prayer.Clock{Hour: 15, Minute: 12},
		Maghrib: prayer.Clock{Hour: 17, Minute: 58},
		Isha:    prayer.Clock{Hour: 19, Minute: 7},
	}
	data, err := encodeTimes(want)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fajr":"04:36","dhuhr":"11:58","asr":"15:12","maghrib":"17:58","isha":"19:07"}`, string(data))

	got, err := decodeTimes(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = decodeTimes([]byte(`{"fajr":"bad"}`))
	assert.Error(t, err)
}
