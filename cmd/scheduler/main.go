package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/aggregation"
	"github.com/smukkama/prayer-times/internal/logging"
	"github.com/smukkama/prayer-times/internal/pipeline"
	"github.com/smukkama/prayer-times/internal/timer"
	"github.com/smukkama/prayer-times/pkg/config"
)

const taskID = "monthly-build"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Scheduler stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting monthly scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := pipeline.New(ctx, cfg, pipeline.Options{
		Publish: cfg.Kafka.Publish,
		Persist: cfg.Database.Persist,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	loc := p.Location()

	// Create timer manager
	timerManager := timer.NewTimerManager(1)
	timerManager.Start()
	defer timerManager.Stop()

	next := func(after time.Time) (time.Time, error) {
		return aggregation.NextMonthlyRun(after.In(loc), cfg.Schedule.DayOfMonth, cfg.Schedule.TimeOfDay)
	}

	job := func(jobCtx context.Context) {
		now := time.Now().In(loc)
		logger.Info("Running monthly build", zap.Time("now", now))

		built, err := p.BuildNextMonth(jobCtx, now)
		if built == nil {
			logger.Error("Monthly build failed", zap.Error(err))
			return
		}
		if err != nil {
			logger.Error("Monthly build delivered partially", zap.String("run_id", built.ID), zap.Error(err))
		} else {
			logger.Info("Monthly build complete",
				zap.String("run_id", built.ID),
				zap.Int("year", built.Sequence.Year),
				zap.String("month", built.Sequence.Month.String()),
				zap.Int("failed_cells", built.Sequence.FailedCells()))
		}

		if at, ok := timerManager.NextRun(taskID); ok {
			logger.Info("Next monthly build scheduled", zap.Time("at", at))
		}
	}

	firstRun, err := timerManager.ScheduleRecurring(taskID, next, job)
	if err != nil {
		return fmt.Errorf("failed to schedule monthly build: %w", err)
	}
	logger.Info("Scheduler running",
		zap.Time("next_run", firstRun),
		zap.Int("day_of_month", cfg.Schedule.DayOfMonth),
		zap.String("time_of_day", cfg.Schedule.TimeOfDay))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down gracefully")
	return nil
}
