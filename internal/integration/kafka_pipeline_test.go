//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/skycastle-service/internal/adapter/kafka"
	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/observability"
	"github.com/couchcryptid/skycastle-service/internal/pipeline"
	"github.com/couchcryptid/skycastle-service/internal/storetest"
)

const (
	testObservationTopic = "test-observations"
	testPredictionTopic  = "test-predictions"
)

func day(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func produce(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testObservationTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func observation(t *testing.T, date string, fog, castle bool, note string) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(domain.ObservationMessage{Date: date, FogObserved: fog, CastleVisible: castle, Note: note})
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(date), Value: payload}
}

// TestKafkaReader verifies the reader maps messages and that the commit
// callback acknowledges them.
func TestKafkaReader(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testObservationTopic)

	msg := observation(t, "2024-11-02", true, true, "sea of clouds")
	produce(ctx, t, broker, msg)

	reader := kafka.NewReader(testConfig(broker, "test-reader"), discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	// The consumer group may need time to rebalance before partitions are
	// assigned, so empty batches are retried.
	var batch []domain.RawEvent
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for observation message")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("2024-11-02"), raw.Key)
	assert.Equal(t, msg.Value, raw.Value)
	assert.Equal(t, testObservationTopic, raw.Topic)
	require.NotNil(t, raw.Commit)
	require.NoError(t, raw.Commit(ctx))

	edit, err := pipeline.NewTransformer(validator.New()).Transform(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, day("2024-11-02"), edit.Date)
	assert.True(t, edit.Observed.CastleVisible)
}

// TestObservationPipelineEndToEnd runs reader, transformer and recorder
// against a real broker. The poison pill is skipped; the valid observations
// land in history without touching the predicted columns.
func TestObservationPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testObservationTopic)

	store := storetest.NewMemory()
	require.NoError(t, store.UpsertPredicted(ctx, day("2024-11-02"), storetest.Predicted(0.812, 0.64, 0.55, domain.LabelCastle)))

	produce(ctx, t, broker,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		observation(t, "2024-11-02", true, true, "sea of clouds"),
		observation(t, "2024-11-03", true, false, ""),
	)

	reader := kafka.NewReader(testConfig(broker, "test-pipeline"), discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	v := validator.New()
	metrics := observability.NewMetricsForTesting()
	p := pipeline.NewObservationPipeline(reader, pipeline.NewTransformer(v), pipeline.NewRecorder(store, v, discardLogger()),
		discardLogger(), metrics, 10)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	require.Eventually(t, func() bool {
		_, ok, err := store.Get(ctx, day("2024-11-03"))
		return err == nil && ok
	}, 60*time.Second, 200*time.Millisecond, "observation for 2024-11-03 never applied")

	pipelineCancel()
	require.NoError(t, <-errCh)

	rec, ok, err := store.Get(ctx, day("2024-11-02"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.FogObserved)
	assert.True(t, rec.CastleVisible)
	assert.Equal(t, "sea of clouds", rec.Note)
	assert.Equal(t, domain.LabelCastle, rec.Event)
	require.NotNil(t, rec.FogProbability)
	assert.InDelta(t, 0.812, *rec.FogProbability, 1e-12)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// TestOutcomeWriter publishes an outcome and reads it back from the
// prediction topic.
func TestOutcomeWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testPredictionTopic)

	writer := kafka.NewWriter(testConfig(broker, "unused"), discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	out := domain.Outcome{
		RunID: "run-42",
		Score: domain.HeuristicScore{DewPoint: 8.06, DewSpread: 1.52, FogScore: 55.9, CastleScore: 55.9},
		Prediction: domain.Prediction{
			Reading:       domain.Reading{Date: day("2024-11-02"), Temp: 9.58, Humidity: 90.25, Wind: 6.55, Cloud: 66, Rain: 0.18},
			Probabilities: domain.ProbabilityPair{Fog: 0.8123, Castle: 0.6447},
			Event:         0.5235,
			Source:        domain.SourceCalibrator,
			Label:         domain.LabelCastle,
		},
	}
	require.NoError(t, writer.PublishOutcome(ctx, out))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testPredictionTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "2024-11-02", string(msg.Key))
	assert.Equal(t, "run-42", headers["run_id"])
	assert.Equal(t, "Castle", headers["event"])
	_, err = time.Parse(time.RFC3339, headers["published_at"])
	assert.NoError(t, err, "published_at should be valid RFC3339")

	var got kafka.OutcomeMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "run-42", got.RunID)
	assert.InDelta(t, 0.812, got.FogProbability, 1e-12)
	assert.InDelta(t, 0.645, got.CastleProbability, 1e-12)
	assert.Equal(t, domain.SourceCalibrator, got.Source)
}
