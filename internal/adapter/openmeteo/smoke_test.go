//go:build openmeteo

package openmeteo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the public Open-Meteo APIs.
// Run with: go test -tags=openmeteo ./internal/adapter/openmeteo/ -v -count=1

func smokeSource(t *testing.T) *Source {
	t.Helper()
	loc, err := time.LoadLocation(testSite.Timezone)
	require.NoError(t, err)
	c := NewClient(testSite, "", "", 15*time.Second,
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewSource(c, loc, 5, 8)
}

func TestSmoke_Window(t *testing.T) {
	s := smokeSource(t)

	readings, err := s.Window(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, s.Today(), readings[0].Date)
	for _, r := range readings {
		assert.Greater(t, r.Humidity, 0.0)
		assert.LessOrEqual(t, r.Humidity, 100.0)
		assert.NotNil(t, r.WeatherCode)
	}
}

func TestSmoke_ArchiveReading(t *testing.T) {
	s := smokeSource(t)

	date := s.Today().AddDate(0, 0, -30)
	r, err := s.Reading(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, date, r.Date)
}

func TestSmoke_YesterdayFallsBackWhenArchiveLags(t *testing.T) {
	s := smokeSource(t)

	// The archive usually lags a few days; the forecast API covers the gap.
	_, err := s.Reading(context.Background(), s.Today().AddDate(0, 0, -1))
	require.NoError(t, err)
}
