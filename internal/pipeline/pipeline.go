package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/aggregation"
	"github.com/smukkama/prayer-times/internal/calc"
	"github.com/smukkama/prayer-times/internal/database"
	"github.com/smukkama/prayer-times/internal/prayer"
	"github.com/smukkama/prayer-times/internal/queue"
	"github.com/smukkama/prayer-times/internal/reconcile"
	"github.com/smukkama/prayer-times/internal/source"
	"github.com/smukkama/prayer-times/pkg/config"
)

// Options selects the optional outputs of a run
type Options struct {
	Publish bool
	Persist bool
}

// Publisher sends a built month downstream
type Publisher interface {
	Publish(ctx context.Context, runID string, seq *prayer.MonthlySequence) error
}

// Store saves a built month
type Store interface {
	UpsertDailyResults(results []*database.DailyResult) error
}

// Run is the outcome of one month build
type Run struct {
	ID       string
	Sequence *prayer.MonthlySequence
}

// Pipeline builds months and hands them to the configured outputs
type Pipeline struct {
	aggregator *aggregation.MonthlyAggregator
	coords     prayer.Coordinates
	locationID string
	publisher  Publisher
	store      Store
	logger     *zap.Logger
	closers    []func() error
}

// New wires the sources and outputs described by cfg
func New(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := cfg.Location.LoadLocation()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		coords:     cfg.Location.Coordinates(),
		locationID: cfg.Location.CityID,
		logger:     logger,
	}

	var store source.Store
	if cfg.Cache.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, remote cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			redisClient.Close()
		} else {
			logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
			store = source.NewRedisStore(redisClient)
			p.closers = append(p.closers, redisClient.Close)
		}
	}

	sources, err := BuildSources(cfg, store, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	reconciler := reconcile.NewReconciler(sources, logger)
	p.aggregator = aggregation.NewMonthlyAggregator(reconciler, loc, cfg.Calendar.Concurrency, logger)

	if opts.Persist {
		db, err := database.Connect(cfg.Database.ConnectionString(), logger)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, db.Close)
		if err := db.RunMigrations(cfg.Database.MigrationsDir); err != nil {
			p.Close()
			return nil, err
		}
		p.store = db
	}

	if opts.Publish {
		records := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRecords)
		notifications := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		p.closers = append(p.closers, records.Close, notifications.Close)
		p.publisher = queue.NewRecordPublisher(records, notifications, cfg.Location.CityID, logger)
	}

	return p, nil
}

// NewWithComponents assembles a pipeline from already built parts
func NewWithComponents(aggregator *aggregation.MonthlyAggregator, coords prayer.Coordinates, locationID string, publisher Publisher, store Store, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		aggregator: aggregator,
		coords:     coords,
		locationID: locationID,
		publisher:  publisher,
		store:      store,
		logger:     logger,
	}
}

// BuildSources returns the remote authority followed by the two local
// methods. The remote source is rate limited and, when store is set, cached.
func BuildSources(cfg *config.Config, store source.Store, logger *zap.Logger) ([]source.Source, error) {
	rule, err := calc.ParseHighLatitudeRule(cfg.Methods.HighLatitude)
	if err != nil {
		return nil, err
	}

	methodA, err := calc.MethodByName(cfg.Methods.MethodA)
	if err != nil {
		return nil, err
	}
	engineA, err := calc.NewSunriseCalculator(methodA.WithHighLatitude(rule))
	if err != nil {
		return nil, fmt.Errorf("failed to create method A: %w", err)
	}

	methodB, err := calc.MethodByName(cfg.Methods.MethodB)
	if err != nil {
		return nil, err
	}
	engineB, err := calc.NewPrayerCalculator(methodB.WithHighLatitude(rule))
	if err != nil {
		return nil, fmt.Errorf("failed to create method B: %w", err)
	}

	var remote source.Source = source.NewRateLimitedSource(
		source.NewRemoteSource(cfg.Remote.BaseURL, cfg.Location.CityID, cfg.Remote.Timeout, logger),
		cfg.Remote.Rate,
		cfg.Remote.Burst,
	)
	if store != nil {
		remote = source.NewCachedSource(remote, store, cfg.Location.CityID, cfg.Cache.TTL, logger)
	}

	sources := []source.Source{
		remote,
		source.NewLocalSource(methodA.SourceName(), engineA),
		source.NewLocalSource(methodB.SourceName(), engineB),
	}
	names := make([]prayer.SourceName, len(sources))
	for i, src := range sources {
		names[i] = src.Name()
	}
	if err := prayer.ValidateSourceNames(names); err != nil {
		return nil, err
	}
	return sources, nil
}

// BuildMonth builds one month and sends it to every configured output.
// Output failures are reported after all outputs were attempted.
func (p *Pipeline) BuildMonth(ctx context.Context, year int, month time.Month) (*Run, error) {
	seq, err := p.aggregator.BuildMonth(ctx, p.coords, year, month)
	if err != nil {
		return nil, err
	}
	return p.deliver(ctx, seq)
}

// BuildNextMonth builds the month following now
func (p *Pipeline) BuildNextMonth(ctx context.Context, now time.Time) (*Run, error) {
	seq, err := p.aggregator.BuildNextMonth(ctx, p.coords, now)
	if err != nil {
		return nil, err
	}
	return p.deliver(ctx, seq)
}

func (p *Pipeline) deliver(ctx context.Context, seq *prayer.MonthlySequence) (*Run, error) {
	run := &Run{ID: uuid.NewString(), Sequence: seq}
	logger := p.logger.With(zap.String("run_id", run.ID))

	var errs []error
	if p.store != nil {
		if err := p.store.UpsertDailyResults(database.ResultsFromSequence(p.locationID, run.ID, seq)); err != nil {
			errs = append(errs, fmt.Errorf("failed to persist month: %w", err))
		} else {
			logger.Info("Persisted month", zap.Int("days", len(seq.Records)))
		}
	}
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, run.ID, seq); err != nil {
			errs = append(errs, err)
		}
	}

	return run, errors.Join(errs...)
}

// Location returns the time zone months are built in
func (p *Pipeline) Location() *time.Location {
	return p.aggregator.Location()
}

// Close releases the connections opened by New
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
