package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/observability"
)

// WindowArtifacts stores the forecast-window inputs and outputs.
type WindowArtifacts interface {
	WriteWindow(readings []domain.Reading) error
	WritePredictions(fp domain.ForecastPredictions) error
}

// WindowRunner predicts a multi-day forecast window. It reads history for
// lags and overlays but never writes it.
type WindowRunner struct {
	weather   domain.WeatherSource
	store     domain.HistoryStore
	models    ModelSource
	artifacts WindowArtifacts
	policies  Policies
	loc       *time.Location
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewWindowRunner creates a runner. generated_at timestamps are expressed in
// loc.
func NewWindowRunner(weather domain.WeatherSource, store domain.HistoryStore, models ModelSource, artifacts WindowArtifacts,
	policies Policies, loc *time.Location, metrics *observability.Metrics, logger *slog.Logger,
) *WindowRunner {
	return &WindowRunner{
		weather:   weather,
		store:     store,
		models:    models,
		artifacts: artifacts,
		policies:  policies,
		loc:       loc,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run fetches days of forecast readings and predicts them.
func (w *WindowRunner) Run(ctx context.Context, days int) (domain.ForecastPredictions, error) {
	readings, err := w.Fetch(ctx, days)
	if err != nil {
		w.metrics.Runs.WithLabelValues("window", "error").Inc()
		return domain.ForecastPredictions{}, err
	}
	return w.Predict(ctx, readings)
}

// Fetch downloads the window and stores it as the forecast-window artifact.
func (w *WindowRunner) Fetch(ctx context.Context, days int) ([]domain.Reading, error) {
	readings, err := w.weather.Window(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("fetch window: %w", err)
	}
	if err := w.artifacts.WriteWindow(readings); err != nil {
		return nil, fmt.Errorf("write window: %w", err)
	}
	w.logger.Info("forecast window fetched", "days", len(readings))
	return readings, nil
}

// Predict runs the models over readings and writes the predictions artifact.
func (w *WindowRunner) Predict(ctx context.Context, readings []domain.Reading) (domain.ForecastPredictions, error) {
	start := time.Now()
	fp, err := w.predict(ctx, readings)
	w.metrics.RunDuration.WithLabelValues("window").Observe(time.Since(start).Seconds())
	if err != nil {
		w.metrics.Runs.WithLabelValues("window", "error").Inc()
		w.logger.Error("window run failed", "error", err)
		return domain.ForecastPredictions{}, err
	}
	w.metrics.Runs.WithLabelValues("window", "success").Inc()
	return fp, nil
}

func (w *WindowRunner) predict(ctx context.Context, readings []domain.Reading) (domain.ForecastPredictions, error) {
	days, err := domain.NormalizeWindow(readings)
	if err != nil {
		return domain.ForecastPredictions{}, err
	}

	var lag *domain.Lag
	prev, ok, err := w.store.LatestBefore(ctx, days[0].Date)
	if err != nil {
		return domain.ForecastPredictions{}, fmt.Errorf("read previous day: %w", err)
	}
	if ok {
		l := domain.LagFromRecord(prev)
		lag = &l
	}

	days, vectors, err := domain.BuildWindowFeatures(days, lag)
	if err != nil {
		return domain.ForecastPredictions{}, err
	}

	set, err := w.models.Load(ctx)
	if err != nil {
		return domain.ForecastPredictions{}, fmt.Errorf("load models: %w", err)
	}
	predictor := w.policies.predictor(set)

	out := make([]domain.WindowPrediction, 0, len(days))
	overlaid := 0
	for i, r := range days {
		p, err := predictor.Predict(r, vectors[i])
		if err != nil {
			return domain.ForecastPredictions{}, fmt.Errorf("predict %s: %w", domain.FormatDate(r.Date), err)
		}
		w.metrics.CalibrationSource.WithLabelValues(string(p.Source)).Inc()

		wp := domain.NewWindowPrediction(p)
		rec, found, err := w.store.Get(ctx, r.Date)
		if err != nil {
			return domain.ForecastPredictions{}, fmt.Errorf("read history %s: %w", domain.FormatDate(r.Date), err)
		}
		if found && rec.HasPrediction() {
			wp = domain.OverlayHistory(wp, rec)
			overlaid++
		}
		w.metrics.EventLabels.WithLabelValues(string(wp.Event)).Inc()
		out = append(out, wp)
	}

	fp := domain.ForecastPredictions{
		GeneratedAt: domain.Now().In(w.loc),
		Predictions: out,
	}
	if err := w.artifacts.WritePredictions(fp); err != nil {
		return domain.ForecastPredictions{}, fmt.Errorf("write predictions: %w", err)
	}
	w.logger.Info("window predictions written", "days", len(out), "from_history", overlaid, "model_version", set.Version)
	return fp, nil
}
