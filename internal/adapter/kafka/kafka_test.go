package kafka

import (
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("2024-11-02"),
		Value:     []byte(`{"date":"2024-11-02","fog_observed":true}`),
		Topic:     "skycastle-observations",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "operator", Value: []byte("dashboard")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("2024-11-02"), raw.Key)
	assert.JSONEq(t, `{"date":"2024-11-02","fog_observed":true}`, string(raw.Value))
	assert.Equal(t, "skycastle-observations", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "dashboard", raw.Headers["operator"])
	assert.Nil(t, raw.Commit)
}

func testOutcome() domain.Outcome {
	date := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)
	return domain.Outcome{
		RunID: "run-1",
		Score: domain.HeuristicScore{DewPoint: 8.06, DewSpread: 1.52, FogScore: 55.9, CastleScore: 55.9},
		Prediction: domain.Prediction{
			Reading:       domain.Reading{Date: date, Temp: 9.576, Humidity: 90.25, Wind: 6.5, Cloud: 66, Rain: 0.18},
			Probabilities: domain.ProbabilityPair{Fog: 0.81234, Castle: 0.64471},
			Event:         0.52351,
			Source:        domain.SourceCalibrator,
			Label:         domain.LabelCastle,
		},
	}
}

func TestSerializeToMessage(t *testing.T) {
	published := time.Date(2024, 11, 1, 21, 0, 5, 0, time.FixedZone("JST", 9*3600))

	msg, err := serializeToMessage(testOutcome(), published)
	require.NoError(t, err)

	assert.Equal(t, []byte("2024-11-02"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, "event", msg.Headers[1].Key)
	assert.Equal(t, []byte("Castle"), msg.Headers[1].Value)
	assert.Equal(t, "published_at", msg.Headers[2].Key)
	assert.Equal(t, []byte("2024-11-01T12:00:05Z"), msg.Headers[2].Value)

	var got OutcomeMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "2024-11-02", got.Date)
	assert.InDelta(t, 0.812, got.FogProbability, 1e-12)
	assert.InDelta(t, 0.645, got.CastleProbability, 1e-12)
	assert.InDelta(t, 0.524, got.EventProbability, 1e-12)
	assert.Equal(t, domain.SourceCalibrator, got.Source)
	assert.Equal(t, domain.LabelCastle, got.Event)
	assert.InDelta(t, 9.58, got.Weather.Temp, 1e-12)
	assert.InDelta(t, 55.9, got.Score.FogScore, 1e-12)
}

func TestSerializeToMessage_LabelFromUnroundedValues(t *testing.T) {
	o := testOutcome()
	o.Prediction.Label = domain.LabelFogOnly

	msg, err := serializeToMessage(o, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(msg.Value), `"event":"FogOnly"`)
}
