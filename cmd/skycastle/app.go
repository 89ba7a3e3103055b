package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/skycastle-service/internal/adapter/filestore"
	"github.com/couchcryptid/skycastle-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/skycastle-service/internal/adapter/postgres"
	"github.com/couchcryptid/skycastle-service/internal/adapter/sqlite"
	"github.com/couchcryptid/skycastle-service/internal/config"
	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/model"
	"github.com/couchcryptid/skycastle-service/internal/observability"
	"github.com/couchcryptid/skycastle-service/internal/pipeline"
)

// historyBackend is what every command needs from the history store.
type historyBackend interface {
	domain.HistoryStore
	domain.HistoryEditor
	CheckReadiness(ctx context.Context) error
}

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	loc      *time.Location
	store    historyBackend
	closeDB  func()
	files    *filestore.Store
	weather  domain.WeatherSource
	models   *model.Loader
	validate *validator.Validate
	policies pipeline.Policies
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	loc := cfg.Site.Location()

	files, err := filestore.New(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		loc:      loc,
		files:    files,
		models:   model.NewLoader(cfg.ModelDir, logger),
		validate: validator.New(),
		policies: pipeline.Policies{Labels: cfg.LabelPolicy, Missing: cfg.MissingPolicy},
	}

	switch cfg.HistoryBackend {
	case config.BackendPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		a.store, a.closeDB = s, s.Close
	default:
		s, err := sqlite.Open(ctx, cfg.HistorySQLitePath, logger)
		if err != nil {
			return nil, err
		}
		a.store = s
		a.closeDB = func() {
			if err := s.Close(); err != nil {
				logger.Error("history store close error", "error", err)
			}
		}
	}

	client := openmeteo.NewClient(openmeteo.Site{
		Latitude:  cfg.Site.Latitude,
		Longitude: cfg.Site.Longitude,
		Timezone:  cfg.Site.Timezone,
	}, cfg.ForecastURL, cfg.ArchiveURL, cfg.WeatherTimeout, metrics, logger)
	source := openmeteo.NewSource(client, loc, cfg.Site.MorningStartHour, cfg.Site.MorningEndHour)
	a.weather = openmeteo.NewCachedSource(source, cfg.WeatherCacheSize, metrics)

	logger.Debug("configured",
		"history_backend", cfg.HistoryBackend,
		"data_dir", cfg.DataDir,
		"model_dir", cfg.ModelDir,
		"label_policy", cfg.LabelPolicy,
		"missing_policy", cfg.MissingPolicy,
		"kafka", cfg.KafkaEnabled(),
	)
	return a, nil
}

func (a *app) close() {
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *app) dailyRunner() *pipeline.DailyRunner {
	return pipeline.NewDailyRunner(a.weather, a.store, a.models, a.files, a.policies, a.loc, a.metrics, a.logger)
}

func (a *app) windowRunner() *pipeline.WindowRunner {
	return pipeline.NewWindowRunner(a.weather, a.store, a.models, a.files, a.policies, a.loc, a.metrics, a.logger)
}

func (a *app) recorder() *pipeline.ObservationRecorder {
	return pipeline.NewRecorder(a.store, a.validate, a.logger)
}
