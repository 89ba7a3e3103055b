package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/observability"
	"github.com/couchcryptid/skycastle-service/internal/pipeline"
	"github.com/couchcryptid/skycastle-service/internal/storetest"
)

type memArtifacts struct {
	window      []domain.Reading
	predictions *domain.ForecastPredictions
	err         error
}

func (a *memArtifacts) WriteWindow(r []domain.Reading) error {
	a.window = r
	return a.err
}

func (a *memArtifacts) WritePredictions(fp domain.ForecastPredictions) error {
	if a.err != nil {
		return a.err
	}
	a.predictions = &fp
	return nil
}

func reading(date string, temp float64) domain.Reading {
	return domain.Reading{Date: day(date), Temp: temp, Humidity: 92.346, Wind: 1.456, Cloud: 40, Rain: 0.004}
}

type windowFixture struct {
	weather   *stubWeather
	store     *storetest.Memory
	models    *stubModels
	artifacts *memArtifacts
	metrics   *observability.Metrics
	runner    *pipeline.WindowRunner
}

func newWindowFixture(t *testing.T) *windowFixture {
	t.Helper()
	freezeClock(t)
	f := &windowFixture{
		weather:   &stubWeather{},
		store:     storetest.NewMemory(),
		models:    newStubModels(0.3, 0.2),
		artifacts: &memArtifacts{},
		metrics:   newTestMetrics(),
	}
	f.runner = pipeline.NewWindowRunner(f.weather, f.store, f.models, f.artifacts, pipeline.Policies{}, jst, f.metrics, discardLogger())
	return f
}

func TestWindowRunner_Predict(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertPredicted(ctx, day("2024-11-01"), storetest.Predicted(0.1, 0.1, 0.01, domain.LabelNone)))
	writesBefore := f.store.PredictedWrites

	readings := []domain.Reading{
		reading("2024-11-04", 6),
		reading("2024-11-02", 8),
		reading("2024-11-03", 99),
		reading("2024-11-03", 7), // later duplicate wins
	}
	fp, err := f.runner.Predict(ctx, readings)
	require.NoError(t, err)

	require.Len(t, fp.Predictions, 3)
	assert.Equal(t, "2024-11-02", fp.Predictions[0].Date)
	assert.Equal(t, "2024-11-04", fp.Predictions[2].Date)
	assert.Equal(t, 7.0, fp.Predictions[1].Temp)
	assert.Equal(t, 92.35, fp.Predictions[0].Humidity)
	assert.Equal(t, 1.46, fp.Predictions[0].Wind)
	assert.Equal(t, 0.0, fp.Predictions[0].Rain)
	assert.Equal(t, 0.06, fp.Predictions[0].EventProbability)
	assert.Equal(t, domain.LabelNone, fp.Predictions[0].Event)

	// Last day lags from the day before it in the window.
	assert.Equal(t, 7.0, f.models.fog.last[5])
	assert.Equal(t, 1.0, f.models.fog.last[10])

	assert.Equal(t, "+09:00", fp.GeneratedAt.Format("-07:00"))
	assert.True(t, fp.GeneratedAt.Equal(runTime))
	require.NotNil(t, f.artifacts.predictions)
	assert.Equal(t, fp, *f.artifacts.predictions)

	assert.Equal(t, writesBefore, f.store.PredictedWrites, "window runs never write history")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Runs.WithLabelValues("window", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.EventLabels.WithLabelValues("None")))
}

func TestWindowRunner_Predict_FirstDayLagsFromHistory(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertPredicted(ctx, day("2024-10-31"), storetest.Predicted(0.1, 0.1, 0.01, domain.LabelNone)))

	_, err := f.runner.Predict(ctx, []domain.Reading{reading("2024-11-02", 8)})
	require.NoError(t, err)
	assert.Equal(t, 9.58, f.models.fog.last[5])
	assert.InDelta(t, 1.58, f.models.fog.last[10], 1e-9)
}

func TestWindowRunner_Predict_OverlaysHistory(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()

	// Stored label is carried verbatim.
	labelled := storetest.Predicted(0.91, 0.8, 0.7, domain.LabelCastle)
	require.NoError(t, f.store.UpsertPredicted(ctx, day("2024-11-02"), labelled))
	// Empty stored label is recomputed from the merged probabilities.
	unlabelled := domain.PredictedFields{FogProbability: domain.Float(0.66), EventProbability: domain.Float(0.2)}
	require.NoError(t, f.store.UpsertPredicted(ctx, day("2024-11-03"), unlabelled))
	// Observation-only rows do not overlay.
	require.NoError(t, f.store.UpsertObserved(ctx, day("2024-11-04"), domain.ObservedFields{CastleVisible: true}))

	fp, err := f.runner.Predict(ctx, []domain.Reading{
		reading("2024-11-02", 8), reading("2024-11-03", 7), reading("2024-11-04", 6),
	})
	require.NoError(t, err)
	p := fp.Predictions

	assert.Equal(t, domain.LabelCastle, p[0].Event)
	assert.Equal(t, 0.91, p[0].FogProbability)
	assert.Equal(t, 9.58, p[0].Temp)

	assert.Equal(t, domain.LabelFogOnly, p[1].Event)
	assert.Equal(t, 0.66, p[1].FogProbability)
	assert.Equal(t, 0.2, p[1].CastleProbability, "fresh value kept where history is NULL")
	assert.Equal(t, 7.0, p[1].Temp)

	assert.Equal(t, domain.LabelNone, p[2].Event)
	assert.Equal(t, 0.3, p[2].FogProbability)
}

func TestWindowRunner_Predict_Rejects(t *testing.T) {
	t.Run("empty window", func(t *testing.T) {
		f := newWindowFixture(t)
		_, err := f.runner.Predict(context.Background(), nil)
		var missing *domain.MissingInputError
		require.ErrorAs(t, err, &missing)
		assert.Nil(t, f.artifacts.predictions)
	})

	t.Run("window too large", func(t *testing.T) {
		f := newWindowFixture(t)
		var readings []domain.Reading
		start := day("2024-11-01")
		for i := 0; i <= domain.MaxWindowDays; i++ {
			readings = append(readings, domain.Reading{Date: start.AddDate(0, 0, i), Humidity: 90})
		}
		_, err := f.runner.Predict(context.Background(), readings)
		require.ErrorIs(t, err, domain.ErrWindowTooLarge)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Runs.WithLabelValues("window", "error")))
	})

	t.Run("models missing", func(t *testing.T) {
		f := newWindowFixture(t)
		f.models.err = &domain.MissingInputError{What: "castle model"}
		_, err := f.runner.Predict(context.Background(), []domain.Reading{reading("2024-11-02", 8)})
		var missing *domain.MissingInputError
		require.ErrorAs(t, err, &missing)
		assert.Nil(t, f.artifacts.predictions)
	})
}

func TestWindowRunner_Run(t *testing.T) {
	f := newWindowFixture(t)
	f.weather.window = []domain.Reading{reading("2024-11-02", 8), reading("2024-11-03", 7), reading("2024-11-04", 6)}

	fp, err := f.runner.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, f.artifacts.window, 2)
	assert.Len(t, fp.Predictions, 2)
}

func TestWindowRunner_Run_FetchFailure(t *testing.T) {
	f := newWindowFixture(t)
	f.weather.err = errors.New("timeout")

	_, err := f.runner.Run(context.Background(), 3)
	require.ErrorContains(t, err, "fetch window")
	assert.Nil(t, f.artifacts.window)
	assert.Nil(t, f.artifacts.predictions)
}

func TestWindowRunner_GeneratedAtUsesSiteZone(t *testing.T) {
	f := newWindowFixture(t)
	fp, err := f.runner.Predict(context.Background(), []domain.Reading{reading("2024-11-02", 8)})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 2, 6, 0, 0, 0, jst).Format(time.RFC3339), fp.GeneratedAt.Format(time.RFC3339))
}
