package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the write side of a topic
type MessageWriter interface {
	PublishBatch(ctx context.Context, messages []kafka.Message) error
}

// MessageReader is the read side of a topic with manual commits
type MessageReader interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// A month is at most 31 record messages, published in one call.
const (
	monthBatchSize         = 31
	publishTimeout         = 10 * time.Second
	maxRecordBytes         = 1 << 20
	notificationPartitions = 1
)

// Producer publishes the records of a built month
type Producer struct {
	writer *kafka.Writer
}

var _ MessageWriter = (*Producer)(nil)

// NewProducer creates a producer for one topic. Messages are keyed by
// date or by location and month, so a key always lands on one partition.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: newWriter(brokers, topic)}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
		// Every replica must hold the month before the build is reported
		RequiredAcks: kafka.RequireAll,
		BatchSize:    monthBatchSize,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: publishTimeout,
		// Topics are created up front by EnsureTopics
		AllowAutoTopicCreation: false,
	}
}

// PublishBatch writes the messages and returns once they are acknowledged
func (p *Producer) PublishBatch(ctx context.Context, messages []kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish %d messages to %s: %w", len(messages), p.writer.Topic, err)
	}
	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads a topic as part of a consumer group. Offsets are only
// committed through Commit.
type Consumer struct {
	reader *kafka.Reader
}

var _ MessageReader = (*Consumer)(nil)

// NewConsumer creates a group consumer that starts from the oldest
// retained message when the group has no offset yet
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{reader: kafka.NewReader(readerConfig(brokers, topic, groupID))}
}

func readerConfig(brokers []string, topic, groupID string) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       maxRecordBytes,
		MaxWait:        time.Second,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	}
}

// Consume fetches the next message without committing it
func (c *Consumer) Consume(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch message: %w", err)
	}
	return msg, nil
}

// Commit marks the messages as processed for the group
func (c *Consumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to commit %d offsets: %w", len(msgs), err)
	}
	return nil
}

// Close leaves the group and closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Stats returns the reader counters since the last call
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// TopicSpecs returns the topics the services use. Daily records are spread
// over partitions by date; month notifications stay on one partition so
// they arrive in build order.
func TopicSpecs(recordsTopic, notificationsTopic string, recordPartitions, replicationFactor int) []kafka.TopicConfig {
	return []kafka.TopicConfig{
		{Topic: recordsTopic, NumPartitions: recordPartitions, ReplicationFactor: replicationFactor},
		{Topic: notificationsTopic, NumPartitions: notificationPartitions, ReplicationFactor: replicationFactor},
	}
}

func validateTopics(topics []kafka.TopicConfig) error {
	if len(topics) == 0 {
		return errors.New("no topics to create")
	}
	for _, t := range topics {
		switch {
		case t.Topic == "":
			return errors.New("topic name is empty")
		case t.NumPartitions < 1:
			return fmt.Errorf("topic %s: partitions must be positive, got %d", t.Topic, t.NumPartitions)
		case t.ReplicationFactor < 1:
			return fmt.Errorf("topic %s: replication factor must be positive, got %d", t.Topic, t.ReplicationFactor)
		}
	}
	return nil
}

// EnsureTopics creates the topics through the cluster controller. Topics
// that already exist are left as they are.
func EnsureTopics(brokers []string, topics ...kafka.TopicConfig) error {
	if len(brokers) == 0 {
		return errors.New("no brokers configured")
	}
	if err := validateTopics(topics); err != nil {
		return err
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	if err := controllerConn.CreateTopics(topics...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	return nil
}
