package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// History backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Site describes the observation point. It is read from SKYCASTLE_* variables.
type Site struct {
	Latitude         float64 `envconfig:"LATITUDE" default:"35.98" validate:"gte=-90,lte=90"`
	Longitude        float64 `envconfig:"LONGITUDE" default:"136.49" validate:"gte=-180,lte=180"`
	Timezone         string  `envconfig:"TIMEZONE" default:"Asia/Tokyo" validate:"required,timezone"`
	MorningStartHour int     `envconfig:"MORNING_START_HOUR" default:"5" validate:"gte=0,lte=23"`
	MorningEndHour   int     `envconfig:"MORNING_END_HOUR" default:"8" validate:"gte=0,lte=23,gtefield=MorningStartHour"`
}

// Location returns the site time zone. Load has already validated it.
func (s Site) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Site Site

	DataDir           string
	ModelDir          string
	HistoryBackend    string
	HistorySQLitePath string
	DatabaseURL       string

	LabelPolicy   domain.LabelPolicy
	MissingPolicy domain.MissingPolicy

	// Open-Meteo.
	ForecastURL      string
	ArchiveURL       string
	WeatherTimeout   time.Duration
	WeatherCacheSize int

	// Kafka is optional: without brokers no observations are consumed and
	// no outcomes are published.
	KafkaBrokers          []string
	KafkaObservationTopic string
	KafkaPredictionTopic  string
	KafkaGroupID          string

	BatchSize          int
	BatchFlushInterval time.Duration
}

// KafkaEnabled reports whether any broker is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first; it never overrides
// variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	weatherTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("WEATHER_TIMEOUT", "30s"))
	if err != nil || weatherTimeout <= 0 {
		return nil, errors.New("invalid WEATHER_TIMEOUT")
	}

	labels, err := domain.ParseLabelPolicy(sharedcfg.EnvOrDefault("LABEL_POLICY", string(domain.PolicyCalibrated)))
	if err != nil {
		return nil, fmt.Errorf("LABEL_POLICY: %w", err)
	}
	missing, err := domain.ParseMissingPolicy(sharedcfg.EnvOrDefault("MISSING_FEATURE_POLICY", string(domain.MissingNative)))
	if err != nil {
		return nil, fmt.Errorf("MISSING_FEATURE_POLICY: %w", err)
	}

	var site Site
	if err := envconfig.Process("skycastle", &site); err != nil {
		return nil, fmt.Errorf("site config: %w", err)
	}
	if err := validator.New().Struct(site); err != nil {
		return nil, fmt.Errorf("site config: %w", err)
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", "data")
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Site: site,

		DataDir:           dataDir,
		ModelDir:          sharedcfg.EnvOrDefault("MODEL_DIR", "models"),
		HistoryBackend:    strings.ToLower(sharedcfg.EnvOrDefault("HISTORY_BACKEND", BackendSQLite)),
		HistorySQLitePath: sharedcfg.EnvOrDefault("HISTORY_SQLITE_PATH", dataDir+"/history.db"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),

		LabelPolicy:   labels,
		MissingPolicy: missing,

		ForecastURL:      os.Getenv("OPEN_METEO_FORECAST_URL"),
		ArchiveURL:       os.Getenv("OPEN_METEO_ARCHIVE_URL"),
		WeatherTimeout:   weatherTimeout,
		WeatherCacheSize: parseWeatherCacheSize(),

		KafkaBrokers:          sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaObservationTopic: sharedcfg.EnvOrDefault("KAFKA_OBSERVATION_TOPIC", "skycastle-observations"),
		KafkaPredictionTopic:  sharedcfg.EnvOrDefault("KAFKA_PREDICTION_TOPIC", "skycastle-predictions"),
		KafkaGroupID:          sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "skycastle"),

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	switch cfg.HistoryBackend {
	case BackendSQLite:
		if cfg.HistorySQLitePath == "" {
			return nil, errors.New("HISTORY_SQLITE_PATH is required")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("HISTORY_BACKEND is postgres but DATABASE_URL is not set")
		}
	default:
		return nil, fmt.Errorf("unknown HISTORY_BACKEND %q", cfg.HistoryBackend)
	}
	if cfg.KafkaEnabled() {
		if cfg.KafkaObservationTopic == "" {
			return nil, errors.New("KAFKA_OBSERVATION_TOPIC is required")
		}
		if cfg.KafkaPredictionTopic == "" {
			return nil, errors.New("KAFKA_PREDICTION_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseWeatherCacheSize() int {
	if s := os.Getenv("WEATHER_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 366
}
