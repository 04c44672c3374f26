package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smukkama/prayer-times/internal/database"
	"github.com/smukkama/prayer-times/internal/prayer"
	"github.com/smukkama/prayer-times/internal/protocol"
)

// ResultStore persists daily results
type ResultStore interface {
	UpsertDailyResults(results []*database.DailyResult) error
}

// BatchWriter consumes DailyRecordMessages from Kafka and batch-writes
// them to the database
type BatchWriter struct {
	consumer      MessageReader
	store         ResultStore
	location      *time.Location
	batchSize     int
	flushInterval time.Duration
	retryBackoff  time.Duration
	logger        *zap.Logger
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(consumer MessageReader, store ResultStore, location *time.Location, batchSize int, flushInterval time.Duration, logger *zap.Logger) *BatchWriter {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchWriter{
		consumer:      consumer,
		store:         store,
		location:      location,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retryBackoff:  time.Second,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// maxRetryBackoff caps the delay between attempts to write a failed batch
const maxRetryBackoff = 30 * time.Second

// WithRetryBackoff sets the first delay before a failed batch is written
// again. The delay doubles on every failure up to maxRetryBackoff.
func (bw *BatchWriter) WithRetryBackoff(d time.Duration) *BatchWriter {
	if d > 0 {
		bw.retryBackoff = d
	}
	return bw
}

// Start begins consuming and writing to database
func (bw *BatchWriter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	msgChan := make(chan kafka.Message, bw.batchSize)

	bw.wg.Add(2)
	go func() {
		defer bw.wg.Done()
		defer cancel()
		bw.run(ctx, msgChan)
	}()
	go func() {
		defer bw.wg.Done()
		bw.consume(ctx, msgChan)
	}()
}

// Stop stops the batch writer gracefully, flushing what was consumed
func (bw *BatchWriter) Stop() {
	close(bw.stopCh)
	bw.wg.Wait()
}

func (bw *BatchWriter) consume(ctx context.Context, msgChan chan<- kafka.Message) {
	for {
		msg, err := bw.consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			bw.logger.Warn("Consumer error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		select {
		case msgChan <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (bw *BatchWriter) run(ctx context.Context, msgChan <-chan kafka.Message) {
	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-bw.stopCh:
			// Flush remaining batch before stopping
			for drained := false; !drained; {
				select {
				case msg := <-msgChan:
					batch = append(batch, msg)
				default:
					drained = true
				}
			}
			bw.finalFlush(batch)
			return

		case <-ctx.Done():
			bw.finalFlush(batch)
			return

		case <-ticker.C:
			if len(batch) > 0 {
				bw.logger.Debug("Flush interval reached", zap.Int("messages", len(batch)))
				if !bw.flushUntilWritten(ctx, batch) {
					return
				}
				batch = nil
			}

		case msg := <-msgChan:
			batch = append(batch, msg)
			if len(batch) >= bw.batchSize {
				bw.logger.Debug("Batch full", zap.Int("messages", len(batch)))
				if !bw.flushUntilWritten(ctx, batch) {
					return
				}
				batch = nil
			}
		}
	}
}

// flushUntilWritten retries a batch until it is written and committed. No
// new message is taken meanwhile, so no later offset can be committed past
// an unwritten one. It reports false when the writer stopped first; the
// batch then stays uncommitted and is redelivered to the group.
func (bw *BatchWriter) flushUntilWritten(ctx context.Context, batch []kafka.Message) bool {
	backoff := bw.retryBackoff
	for attempt := 1; ; attempt++ {
		err := bw.flush(ctx, batch)
		if err == nil {
			return true
		}

		bw.logger.Warn("Batch not written, retrying",
			zap.Int("attempt", attempt),
			zap.Int("messages", len(batch)),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-bw.stopCh:
			timer.Stop()
			bw.logger.Warn("Stopping with an unwritten batch, offsets left for redelivery",
				zap.Int("messages", len(batch)))
			return false
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}

func (bw *BatchWriter) finalFlush(batch []kafka.Message) {
	if err := bw.flush(context.Background(), batch); err != nil {
		bw.logger.Error("Final batch not written, offsets left for redelivery",
			zap.Int("messages", len(batch)), zap.Error(err))
	}
}

// flush writes the rows of a batch in one transaction, then commits the
// offsets. Messages that cannot be decoded are skipped and committed.
func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) error {
	if len(batch) == 0 {
		return nil
	}

	var rows []*database.DailyResult
	for _, msg := range batch {
		decoded, err := bw.decode(msg)
		if err != nil {
			bw.logger.Warn("Skipping undecodable message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		rows = append(rows, decoded...)
	}

	if len(rows) > 0 {
		if err := bw.store.UpsertDailyResults(rows); err != nil {
			return fmt.Errorf("failed to write batch: %w", err)
		}
	}

	// Rows are upserted, so writing them again after a failed commit is harmless
	if err := bw.consumer.Commit(ctx, batch...); err != nil {
		return fmt.Errorf("failed to commit offsets: %w", err)
	}

	bw.logger.Info("Flushed batch to database",
		zap.Int("messages", len(batch)),
		zap.Int("rows", len(rows)))
	return nil
}

func (bw *BatchWriter) decode(msg kafka.Message) ([]*database.DailyResult, error) {
	recordMsg, err := protocol.DecodeDailyRecordMessage(msg.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	rec, err := recordMsg.Parse(bw.location)
	if err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}

	rows := make([]*database.DailyResult, 0, len(recordMsg.Results))
	for _, item := range recordMsg.Results {
		name := prayer.SourceName(item.Source)
		rows = append(rows, database.NewDailyResult(recordMsg.LocationID, recordMsg.RunID, rec.Date, name, rec.Result(name)))
	}

	return rows, nil
}
