package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/prayer"
	"github.com/smukkama/prayer-times/internal/protocol"
)

// RecordPublisher publishes every day of a month, keyed by date, followed
// by a notification that the month is complete
type RecordPublisher struct {
	records       MessageWriter
	notifications MessageWriter
	locationID    string
	logger        *zap.Logger
	now           func() time.Time
}

// NewRecordPublisher creates a new record publisher. notifications may be nil.
func NewRecordPublisher(records, notifications MessageWriter, locationID string, logger *zap.Logger) *RecordPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordPublisher{
		records:       records,
		notifications: notifications,
		locationID:    locationID,
		logger:        logger,
		now:           time.Now,
	}
}

// Publish writes the month as one batch of DailyRecordMessages
func (p *RecordPublisher) Publish(ctx context.Context, runID string, seq *prayer.MonthlySequence) error {
	builtAt := p.now().UTC()

	messages := make([]kafka.Message, 0, len(seq.Records))
	for _, rec := range seq.Records {
		msg := protocol.NewDailyRecordMessage(runID, p.locationID, seq.Sources, rec, builtAt)
		value, err := protocol.EncodeDailyRecordMessage(msg)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", msg.Date, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(msg.Date),
			Value: value,
		})
	}

	if err := p.records.PublishBatch(ctx, messages); err != nil {
		return fmt.Errorf("failed to publish month: %w", err)
	}

	p.logger.Info("Published month",
		zap.String("run_id", runID),
		zap.Int("year", seq.Year),
		zap.Int("month", int(seq.Month)),
		zap.Int("messages", len(messages)))

	if p.notifications == nil {
		return nil
	}

	value, err := protocol.EncodeMonthBuilt(&protocol.MonthBuiltNotification{
		Type:        protocol.NotificationTypeMonthBuilt,
		RunID:       runID,
		LocationID:  p.locationID,
		Year:        seq.Year,
		Month:       int(seq.Month),
		Days:        len(seq.Records),
		FailedCells: seq.FailedCells(),
		BuiltAt:     builtAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	key := fmt.Sprintf("%s:%04d-%02d", p.locationID, seq.Year, int(seq.Month))
	if err := p.notifications.PublishBatch(ctx, []kafka.Message{{Key: []byte(key), Value: value}}); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}
