package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/config"
	"github.com/couchcryptid/event-risk-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces district incidence records to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured incidence topic.
// Records are keyed by district, so one district always lands on the same
// partition.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes the records in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, records []domain.DistrictIncidence) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d incidence message(s): %w", len(msgs), err)
	}
	w.logger.Debug("incidence batch written", "topic", w.writer.Topic, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a DistrictIncidence into a Kafka message.
func serializeToMessage(rec domain.DistrictIncidence) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize incidence for %s: %w", rec.District, err)
	}
	return kafkago.Message{
		Key:   []byte(rec.District.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "district", Value: []byte(rec.District.String())},
			{Key: "published_at", Value: []byte(rec.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
