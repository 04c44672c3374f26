package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/prayer"
)

// DefaultRemoteBaseURL is the public myquran API serving the Kemenag schedule
const DefaultRemoteBaseURL = "https://api.myquran.com"

// RemoteSource fetches the official schedule of a city from the myquran API
type RemoteSource struct {
	name       prayer.SourceName
	baseURL    string
	locationID string
	timeout    time.Duration
	client     *http.Client
	logger     *zap.Logger
}

// Ensure RemoteSource implements Source
var _ Source = (*RemoteSource)(nil)

// NewRemoteSource creates a remote source for a city id. Every call is
// bounded by timeout.
func NewRemoteSource(baseURL, locationID string, timeout time.Duration, logger *zap.Logger) *RemoteSource {
	if baseURL == "" {
		baseURL = DefaultRemoteBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RemoteSource{
		name:       prayer.SourceKemenag,
		baseURL:    strings.TrimRight(baseURL, "/"),
		locationID: locationID,
		timeout:    timeout,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Name returns the source name
func (r *RemoteSource) Name() prayer.SourceName {
	return r.name
}

// scheduleResponse is the subset of the myquran jadwal response we read
type scheduleResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Lokasi string `json:"lokasi"`
		Daerah string `json:"daerah"`
		Jadwal struct {
			Tanggal string `json:"tanggal"`
			Subuh   string `json:"subuh"`
			Dzuhur  string `json:"dzuhur"`
			Ashar   string `json:"ashar"`
			Maghrib string `json:"maghrib"`
			Isya    string `json:"isya"`
			Date    string `json:"date"`
		} `json:"jadwal"`
	} `json:"data"`
}

// Invoke fetches the schedule of the requested day
func (r *RemoteSource) Invoke(ctx context.Context, req prayer.CalculationRequest) prayer.SourceResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	year, month, day := req.Date.Date()
	endpoint := fmt.Sprintf("%s/v1/sholat/jadwal/%s/%d/%d/%d", r.baseURL, r.locationID, year, int(month), day)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return prayer.Failedf(prayer.FailureNetwork, "failed to create request: %v", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return r.transportFailure(ctx, "failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return prayer.Failedf(prayer.FailureBadStatus, "API returned non-2xx status: %d", resp.StatusCode)
	}

	rawData, err := io.ReadAll(resp.Body)
	if err != nil {
		return r.transportFailure(ctx, "failed to read response body", err)
	}

	r.logger.Debug("remote schedule fetched",
		zap.String("source", string(r.name)),
		zap.String("url", endpoint),
		zap.Duration("elapsed", time.Since(start)))

	times, err := parseSchedule(rawData)
	if err != nil {
		return prayer.Failed(prayer.FailureMalformed, err.Error())
	}

	return prayer.Ok(times)
}

func (r *RemoteSource) transportFailure(ctx context.Context, msg string, err error) prayer.SourceResult {
	if isTimeout(ctx, err) {
		return prayer.Failedf(prayer.FailureTimeout, "%s: no response within %s", msg, r.timeout)
	}
	return prayer.Failedf(prayer.FailureNetwork, "%s: %v", msg, err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseSchedule decodes a jadwal response and normalises its times
func parseSchedule(raw []byte) (prayer.PrayerTimeSet, error) {
	var resp scheduleResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return prayer.PrayerTimeSet{}, fmt.Errorf("failed to parse API response: %w", err)
	}
	if !resp.Status {
		return prayer.PrayerTimeSet{}, fmt.Errorf("API response has status=false")
	}

	j := resp.Data.Jadwal
	var set prayer.PrayerTimeSet
	fields := []struct {
		name  string
		value string
		dst   *prayer.Clock
	}{
		{"subuh", j.Subuh, &set.Fajr},
		{"dzuhur", j.Dzuhur, &set.Dhuhr},
		{"ashar", j.Ashar, &set.Asr},
		{"maghrib", j.Maghrib, &set.Maghrib},
		{"isya", j.Isya, &set.Isha},
	}

	for _, f := range fields {
		if f.value == "" {
			return prayer.PrayerTimeSet{}, fmt.Errorf("API response is missing %s", f.name)
		}
		clock, err := prayer.ParseClock(f.value)
		if err != nil {
			return prayer.PrayerTimeSet{}, fmt.Errorf("API response has invalid %s: %w", f.name, err)
		}
		*f.dst = clock
	}

	return set, nil
}
