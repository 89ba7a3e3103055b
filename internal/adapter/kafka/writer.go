package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/skycastle-service/internal/config"
	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// OutcomeMessage is the wire form of a daily outcome on the prediction topic.
type OutcomeMessage struct {
	RunID             string                   `json:"run_id"`
	Date              string                   `json:"date"`
	Weather           domain.WindowPrediction  `json:"weather"`
	Score             domain.HeuristicScore    `json:"score"`
	FogProbability    float64                  `json:"fog_probability"`
	CastleProbability float64                  `json:"castle_probability"`
	EventProbability  float64                  `json:"castle_event_probability"`
	Source            domain.CalibrationSource `json:"source"`
	Event             domain.EventLabel        `json:"event"`
}

// Writer produces daily outcomes to the prediction topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured prediction topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaPredictionTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishOutcome serializes and publishes one outcome keyed by its date, so
// reruns for a date land on the same partition in order.
func (w *Writer) PublishOutcome(ctx context.Context, o domain.Outcome) error {
	msg, err := serializeToMessage(o, domain.Now())
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}
	w.logger.Debug("outcome published", "date", string(msg.Key), "run_id", o.RunID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an Outcome into a Kafka message.
func serializeToMessage(o domain.Outcome, publishedAt time.Time) (kafkago.Message, error) {
	wp := domain.NewWindowPrediction(o.Prediction)
	data, err := json.Marshal(OutcomeMessage{
		RunID:             o.RunID,
		Date:              wp.Date,
		Weather:           wp,
		Score:             o.Score,
		FogProbability:    wp.FogProbability,
		CastleProbability: wp.CastleProbability,
		EventProbability:  wp.EventProbability,
		Source:            o.Prediction.Source,
		Event:             wp.Event,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize outcome: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(wp.Date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(o.RunID)},
			{Key: "event", Value: []byte(wp.Event)},
			{Key: "published_at", Value: []byte(publishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
