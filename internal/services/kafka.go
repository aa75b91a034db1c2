package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
)

// KafkaTransport is the durable task queue transport used by the queue
// dispatcher (C10); the processor does not use it. It wraps a
// single kafka.Writer and a set of topic-scoped kafka.Reader consumers.
type KafkaTransport struct {
	writer  *kafka.Writer
	readers map[string]*kafka.Reader
	logger  *logger.Logger
	config  config.KafkaConfig
	brokers []string
}

// MessageHandler processes one delivered message. Returning an error leaves
// the message uncommitted so the broker redelivers it; handlers are
// expected to be idempotent (spec invariant: at-least-once delivery).
type MessageHandler func(ctx context.Context, key string, value []byte) error

// NewKafkaTransport creates a new Kafka-backed transport.
func NewKafkaTransport(cfg config.KafkaConfig, log *logger.Logger) (*KafkaTransport, error) {
	t := &KafkaTransport{
		readers: make(map[string]*kafka.Reader),
		logger:  log.WithService("kafka"),
		config:  cfg,
		brokers: cfg.Brokers,
	}

	t.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		ErrorLogger:  kafka.LoggerFunc(t.logError),
		Logger:       kafka.LoggerFunc(t.logInfo),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.testConnection(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka: %w", err)
	}

	t.logger.Info("queue transport initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)
	return t, nil
}

// topicName applies the configured topic prefix, matching the convention
// the teacher used for its domain-event topics.
func (t *KafkaTransport) topicName(topic string) string {
	if t.config.TopicPrefix == "" {
		return topic
	}
	return fmt.Sprintf("%s.%s", t.config.TopicPrefix, topic)
}

// Publish serializes value as JSON and publishes it to topic keyed by key.
// The key determines partition routing, so ordering is only guaranteed
// among messages sharing a key (e.g. all events for one document ID).
func (t *KafkaTransport) Publish(ctx context.Context, topic, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}

	msg := kafka.Message{
		Topic: t.topicName(topic),
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	}

	start := time.Now()
	err = t.writer.WriteMessages(ctx, msg)
	duration := time.Since(start).Seconds() * 1000

	if err != nil {
		t.logger.Error("failed to publish message",
			zap.String("topic", msg.Topic),
			zap.String("key", key),
			zap.Float64("duration_ms", duration),
			zap.Error(err),
		)
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}

	t.logger.Debug("message published",
		zap.String("topic", msg.Topic),
		zap.String("key", key),
		zap.Float64("duration_ms", duration),
	)
	return nil
}

// Subscribe starts a consumer goroutine for topic/groupID that invokes
// handler for every delivered message. It returns once the reader is
// created; consumption happens asynchronously until ctx is canceled.
func (t *KafkaTransport) Subscribe(ctx context.Context, topic, groupID string, handler MessageHandler) error {
	fullTopic := t.topicName(topic)
	readerKey := fullTopic + "/" + groupID
	if _, exists := t.readers[readerKey]; exists {
		return fmt.Errorf("reader for topic %s group %s already exists", fullTopic, groupID)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        t.brokers,
		Topic:          fullTopic,
		GroupID:        groupID,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit synchronously after each successful handle
		StartOffset:    kafka.FirstOffset,
		ErrorLogger:    kafka.LoggerFunc(t.logError),
		Logger:         kafka.LoggerFunc(t.logInfo),
	})
	t.readers[readerKey] = reader

	go t.consume(ctx, reader, handler, fullTopic, groupID)

	t.logger.Info("subscribed to topic", zap.String("topic", fullTopic), zap.String("group_id", groupID))
	return nil
}

func (t *KafkaTransport) consume(ctx context.Context, reader *kafka.Reader, handler MessageHandler, topic, groupID string) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Error("failed to fetch message",
				zap.String("topic", topic), zap.String("group_id", groupID), zap.Error(err))
			continue
		}

		start := time.Now()
		err = handler(ctx, string(msg.Key), msg.Value)
		duration := time.Since(start).Seconds() * 1000

		if err != nil {
			t.logger.Error("message handler failed, leaving uncommitted for redelivery",
				zap.String("topic", topic),
				zap.String("group_id", groupID),
				zap.String("key", string(msg.Key)),
				zap.Float64("duration_ms", duration),
				zap.Error(err),
			)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			t.logger.Error("failed to commit message", zap.String("topic", topic), zap.Error(err))
			continue
		}
		t.logger.Debug("message processed",
			zap.String("topic", topic),
			zap.String("group_id", groupID),
			zap.String("key", string(msg.Key)),
			zap.Float64("duration_ms", duration),
		)
	}
}

// Close closes the writer and all active readers.
func (t *KafkaTransport) Close() error {
	if err := t.writer.Close(); err != nil {
		t.logger.Error("failed to close Kafka writer", zap.Error(err))
	}
	for key, reader := range t.readers {
		if err := reader.Close(); err != nil {
			t.logger.Error("failed to close Kafka reader", zap.String("reader", key), zap.Error(err))
		}
	}
	t.logger.Info("queue transport closed")
	return nil
}

// HealthCheck verifies broker connectivity.
func (t *KafkaTransport) HealthCheck(ctx context.Context) error {
	return t.testConnection(ctx)
}

func (t *KafkaTransport) testConnection(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", t.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka broker: %w", err)
	}
	defer conn.Close()

	brokers, err := conn.Brokers()
	if err != nil {
		return fmt.Errorf("failed to get broker metadata: %w", err)
	}
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers available")
	}
	return nil
}

func (t *KafkaTransport) logError(msg string, args ...interface{}) {
	t.logger.Error("kafka error", zap.String("message", fmt.Sprintf(msg, args...)))
}

func (t *KafkaTransport) logInfo(msg string, args ...interface{}) {
	t.logger.Debug("kafka info", zap.String("message", fmt.Sprintf(msg, args...)))
}
