package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/database"
	"github.com/smukkama/prayer-times/internal/logging"
	"github.com/smukkama/prayer-times/internal/queue"
	"github.com/smukkama/prayer-times/pkg/config"
)

const (
	batchSize     = 100
	flushInterval = 5 * time.Second
	statsInterval = 60 * time.Second
)

func main() {
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
		logger.Error("Database writer stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting database writer service")

	loc, err := cfg.Location.LoadLocation()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		return err
	}

	topics := queue.TopicSpecs(cfg.Kafka.TopicRecords, cfg.Kafka.TopicNotifications, cfg.Kafka.NumPartitions, cfg.Kafka.ReplicationFactor)
	if err := queue.EnsureTopics(cfg.Kafka.Brokers, topics...); err != nil {
		logger.Warn("Could not create topics, assuming they exist",
			zap.String("topic", cfg.Kafka.TopicRecords), zap.Error(err))
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRecords, cfg.Kafka.GroupID)
	defer consumer.Close()

	batchWriter := queue.NewBatchWriter(consumer, db, loc, batchSize, flushInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batchWriter.Start(ctx)

	// Log consumer stats periodically
	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := consumer.Stats()
				logger.Info("Consumer stats",
					zap.Int64("messages", stats.Messages),
					zap.Int64("bytes", stats.Bytes),
					zap.Int64("errors", stats.Errors))
			}
		}
	}()

	logger.Info("Database writer running",
		zap.String("topic", cfg.Kafka.TopicRecords),
		zap.String("group_id", cfg.Kafka.GroupID),
		zap.Int("batch_size", batchSize),
		zap.Duration("flush_interval", flushInterval))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down gracefully")
	batchWriter.Stop()
	return nil
}
