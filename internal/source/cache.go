package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/prayer"
)

// Store persists successful source outputs between runs
type Store interface {
	Get(ctx context.Context, key string) (prayer.PrayerTimeSet, bool, error)
	Set(ctx context.Context, key string, times prayer.PrayerTimeSet, ttl time.Duration) error
}

// CachedSource wraps a Source and serves repeated days from a Store.
// Only Ok results are cached; failures always reach the wrapped source again.
type CachedSource struct {
	source Source
	store  Store
	scope  string
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	hits   int
	misses int
}

// Ensure CachedSource implements Source
var _ Source = (*CachedSource)(nil)

// NewCachedSource creates a cache in front of source. scope separates
// entries of different locations.
func NewCachedSource(source Source, store Store, scope string, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{
		source: source,
		store:  store,
		scope:  scope,
		ttl:    ttl,
		logger: logger,
	}
}

// Name returns the name of the wrapped source
func (c *CachedSource) Name() prayer.SourceName {
	return c.source.Name()
}

// CacheKey returns the store key of a source, scope and day
func CacheKey(name prayer.SourceName, scope string, date time.Time) string {
	return fmt.Sprintf("prayer_times:%s:%s:%s", name, scope, date.Format("2006-01-02"))
}

// Invoke returns the cached times of the day, fetching them on a miss
func (c *CachedSource) Invoke(ctx context.Context, req prayer.CalculationRequest) prayer.SourceResult {
	key := CacheKey(c.source.Name(), c.scope, req.Date)

	times, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		c.count(true)
		return prayer.Ok(times)
	}
	c.count(false)

	result := c.source.Invoke(ctx, req)
	if fresh, ok := result.Times(); ok {
		if err := c.store.Set(ctx, key, fresh, c.ttl); err != nil {
			c.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
		}
	}

	return result
}

func (c *CachedSource) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

// CacheStats returns statistics about cache hits and misses
func (c *CachedSource) CacheStats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// RedisStore keeps prayer time sets in Redis as JSON
type RedisStore struct {
	redis *redis.Client
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis backed store
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

// cachedTimes is the JSON layout of a cache entry
type cachedTimes struct {
	Fajr    string `json:"fajr"`
	Dhuhr   string `json:"dhuhr"`
	Asr     string `json:"asr"`
	Maghrib string `json:"maghrib"`
	Isha    string `json:"isha"`
}

func encodeTimes(times prayer.PrayerTimeSet) ([]byte, error) {
	return json.Marshal(cachedTimes{
		Fajr:    times.Fajr.String(),
		Dhuhr:   times.Dhuhr.String(),
		Asr:     times.Asr.String(),
		Maghrib: times.Maghrib.String(),
		Isha:    times.Isha.String(),
	})
}

func decodeTimes(data []byte) (prayer.PrayerTimeSet, error) {
	var entry cachedTimes
	if err := json.Unmarshal(data, &entry); err != nil {
		return prayer.PrayerTimeSet{}, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	var set prayer.PrayerTimeSet
	for _, f := range []struct {
		value string
		dst   *prayer.Clock
	}{
		{entry.Fajr, &set.Fajr},
		{entry.Dhuhr, &set.Dhuhr},
		{entry.Asr, &set.Asr},
		{entry.Maghrib, &set.Maghrib},
		{entry.Isha, &set.Isha},
	} {
		clock, err := prayer.ParseClock(f.value)
		if err != nil {
			return prayer.PrayerTimeSet{}, fmt.Errorf("corrupt cache entry: %w", err)
		}
		*f.dst = clock
	}

	return set, nil
}

// Get retrieves the times stored under key
func (s *RedisStore) Get(ctx context.Context, key string) (prayer.PrayerTimeSet, bool, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return prayer.PrayerTimeSet{}, false, nil
	}
	if err != nil {
		return prayer.PrayerTimeSet{}, false, fmt.Errorf("failed to get times from Redis: %w", err)
	}

	times, err := decodeTimes(data)
	if err != nil {
		return prayer.PrayerTimeSet{}, false, err
	}
	return times, true, nil
}

// Set saves the times under key with an expiration
func (s *RedisStore) Set(ctx context.Context, key string, times prayer.PrayerTimeSet, ttl time.Duration) error {
	data, err := encodeTimes(times)
	if err != nil {
		return fmt.Errorf("failed to marshal times: %w", err)
	}

	if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set times in Redis: %w", err)
	}
	return nil
}
