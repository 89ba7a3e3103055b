package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/model"
	"github.com/couchcryptid/skycastle-service/internal/observability"
)

// ModelSource loads the model set used by a run.
type ModelSource interface {
	Load(ctx context.Context) (*model.Set, error)
}

// FeedWriter merges partial updates into the feed document.
type FeedWriter interface {
	MergeFeed(u domain.FeedUpdate) error
}

// Publisher announces a committed daily outcome.
type Publisher interface {
	PublishOutcome(ctx context.Context, o domain.Outcome) error
}

// Policies are the inference choices shared by daily and window runs.
type Policies struct {
	Labels  domain.LabelPolicy
	Missing domain.MissingPolicy
}

func (p Policies) predictor(set *model.Set) domain.Predictor {
	return domain.Predictor{
		Engine:     domain.NewProbabilityEngine(set.Fog, set.Castle, p.Missing),
		Calibrator: set.Calibrator,
		Classifier: domain.NewEventClassifier(p.Labels),
	}
}

// DailyRunner predicts one date and records the result.
type DailyRunner struct {
	weather   domain.WeatherSource
	store     domain.HistoryStore
	models    ModelSource
	feed      FeedWriter
	publisher Publisher
	policies  Policies
	loc       *time.Location
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewDailyRunner creates a runner. loc is the site time zone used to pick
// the default target date.
func NewDailyRunner(weather domain.WeatherSource, store domain.HistoryStore, models ModelSource, feed FeedWriter,
	policies Policies, loc *time.Location, metrics *observability.Metrics, logger *slog.Logger,
) *DailyRunner {
	return &DailyRunner{
		weather:  weather,
		store:    store,
		models:   models,
		feed:     feed,
		policies: policies,
		loc:      loc,
		metrics:  metrics,
		logger:   logger,
	}
}

// WithPublisher sets the optional outcome publisher.
func (r *DailyRunner) WithPublisher(p Publisher) *DailyRunner {
	r.publisher = p
	return r
}

// DefaultDate returns tomorrow in the site time zone.
func (r *DailyRunner) DefaultDate() time.Time {
	return domain.Day(domain.Now().In(r.loc)).AddDate(0, 0, 1)
}

// Run fetches, scores, predicts and records date. History is written only
// after every earlier step succeeded; the feed may already hold the scores
// of a failed run.
func (r *DailyRunner) Run(ctx context.Context, date time.Time) (domain.Outcome, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID, "date", domain.FormatDate(date))

	out, err := r.run(ctx, domain.Day(date), runID, logger)
	r.metrics.RunDuration.WithLabelValues("daily").Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.Runs.WithLabelValues("daily", "error").Inc()
		logger.Error("daily run failed", "error", err)
		return domain.Outcome{}, err
	}
	r.metrics.Runs.WithLabelValues("daily", "success").Inc()
	return out, nil
}

func (r *DailyRunner) run(ctx context.Context, date time.Time, runID string, logger *slog.Logger) (domain.Outcome, error) {
	reading, err := r.weather.Reading(ctx, date)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("fetch weather: %w", err)
	}
	reading.Date = date

	score, err := domain.ScoreReading(reading)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("score: %w", err)
	}
	if err := r.feed.MergeFeed(domain.FeedUpdate{Date: domain.FormatDate(date), RunID: runID, Score: &score}); err != nil {
		return domain.Outcome{}, fmt.Errorf("write scores: %w", err)
	}
	logger.Info("scored", "fog_score", score.FogScore, "castle_score", score.CastleScore, "dew_spread", score.DewSpread)

	set, err := r.models.Load(ctx)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("load models: %w", err)
	}

	var lag *domain.Lag
	prev, ok, err := r.store.LatestBefore(ctx, date)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("read previous day: %w", err)
	}
	if ok {
		l := domain.LagFromRecord(prev)
		lag = &l
	} else {
		logger.Warn("no earlier history, lag features missing")
	}

	pred, err := r.policies.predictor(set).Predict(reading, domain.BuildFeatures(reading, lag))
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("predict: %w", err)
	}
	r.metrics.CalibrationSource.WithLabelValues(string(pred.Source)).Inc()
	r.metrics.EventLabels.WithLabelValues(string(pred.Label)).Inc()
	if pred.Source == domain.SourceFallback {
		logger.Debug("calibrator failed, using fog*castle")
	}

	out := domain.Outcome{RunID: runID, Score: score, Prediction: pred}
	if err := r.feed.MergeFeed(out.FeedUpdate()); err != nil {
		return domain.Outcome{}, fmt.Errorf("write predictions: %w", err)
	}

	if err := r.store.UpsertPredicted(ctx, date, out.PredictedFields(domain.Now())); err != nil {
		return domain.Outcome{}, fmt.Errorf("record history: %w", err)
	}
	logger.Info("daily run complete",
		"fog_probability", domain.Round(pred.Probabilities.Fog, 3),
		"castle_probability", domain.Round(pred.Probabilities.Castle, 3),
		"event_probability", domain.Round(pred.Event, 3),
		"event", pred.Label,
		"source", pred.Source,
		"model_version", set.Version,
	)

	if r.publisher != nil {
		if err := r.publisher.PublishOutcome(ctx, out); err != nil {
			logger.Warn("publish outcome failed", "error", err)
		} else {
			r.metrics.PredictionsPublished.Inc()
		}
	}
	return out, nil
}
