package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/covid-tracker/internal/config"
	"github.com/couchcryptid/covid-tracker/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier publishes daily-report notifications to a Kafka topic.
// It implements pipeline.Notifier.
type Notifier struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured notify topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaNotifyTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, topic: cfg.KafkaNotifyTopic, logger: logger}
}

// Notify publishes one message keyed by the report date, so every update for
// a day lands on the same partition.
func (n *Notifier) Notify(ctx context.Context, note domain.Notification) error {
	msg, err := serializeToMessage(note)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification to %s: %w", n.topic, err)
	}
	n.logger.Debug("notification published", "topic", n.topic, "date", note.Date.String(), "run_id", note.RunID)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a Notification into a Kafka message.
func serializeToMessage(note domain.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(note)
	if err != nil {
		return kafkago.Message{}, &domain.SerializationError{Op: "encode notification", Err: err}
	}
	date := note.Date.String()
	return kafkago.Message{
		Key:   []byte(date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(note.RunID)},
			{Key: "date", Value: []byte(date)},
		},
	}, nil
}
