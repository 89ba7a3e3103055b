package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreReading(t *testing.T) {
	tests := []struct {
		name    string
		reading Reading
		want    HeuristicScore
	}{
		{
			name:    "moist morning with strong wind",
			reading: Reading{Temp: 9.575, Humidity: 90.25, Wind: 6.55, Cloud: 66, Rain: 0.175},
			want:    HeuristicScore{DewPoint: 8.06, DewSpread: 1.52, FogScore: 55.9, CastleScore: 55.9},
		},
		{
			name:    "saturated calm morning",
			reading: Reading{Temp: 10, Humidity: 100, Wind: 1, Cloud: 60, Rain: 0},
			want:    HeuristicScore{DewPoint: 10, DewSpread: 0, FogScore: 100, CastleScore: 100},
		},
		{
			name:    "clear sky penalty",
			reading: Reading{Temp: 10, Humidity: 100, Wind: 1, Cloud: 20, Rain: 0},
			want:    HeuristicScore{DewPoint: 10, DewSpread: 0, FogScore: 100, CastleScore: 88},
		},
		{
			name:    "overcast penalty",
			reading: Reading{Temp: 10, Humidity: 100, Wind: 1, Cloud: 95, Rain: 0},
			want:    HeuristicScore{DewPoint: 10, DewSpread: 0, FogScore: 100, CastleScore: 96},
		},
		{
			name:    "wide spread hits both caps",
			reading: Reading{Temp: 15, Humidity: 70, Wind: 0.5, Cloud: 60, Rain: 0},
			want:    HeuristicScore{DewPoint: 9.57, DewSpread: 5.43, FogScore: 40, CastleScore: 20},
		},
		{
			name:    "light rain and breeze",
			reading: Reading{Temp: 12, Humidity: 85, Wind: 2, Cloud: 50, Rain: 1},
			want:    HeuristicScore{DewPoint: 9.56, DewSpread: 2.44, FogScore: 60.7, CastleScore: 57.1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScoreReading(tt.reading)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.DewPoint, got.DewPoint, 1e-9)
			assert.InDelta(t, tt.want.DewSpread, got.DewSpread, 1e-9)
			assert.InDelta(t, tt.want.FogScore, got.FogScore, 1e-9)
			assert.InDelta(t, tt.want.CastleScore, got.CastleScore, 1e-9)
		})
	}
}

func TestDewPoint_HumidityOutOfRange(t *testing.T) {
	for _, h := range []float64{0, -5, 100.01, math.NaN()} {
		_, err := DewPoint(10, h)
		var de *DomainError
		require.True(t, errors.As(err, &de), "humidity %v", h)
		assert.Equal(t, "humidity", de.Field)
	}

	_, err := ScoreReading(Reading{Temp: 10, Humidity: 0})
	var de *DomainError
	assert.True(t, errors.As(err, &de))
}

func TestDewPoint_NeverAboveTemperature(t *testing.T) {
	for temp := -30.0; temp <= 40; temp += 2.5 {
		for h := 1.0; h <= 100; h += 3 {
			dew, err := DewPoint(temp, h)
			require.NoError(t, err)
			assert.LessOrEqual(t, dew, temp+1e-9, "t=%v h=%v", temp, h)
		}
	}
}

func TestDewPoint_ApproachesTemperatureAtSaturation(t *testing.T) {
	for _, temp := range []float64{-10, 0, 8, 25} {
		dew, err := DewPoint(temp, 99.999)
		require.NoError(t, err)
		assert.InDelta(t, temp, dew, 0.01)

		dew, err = DewPoint(temp, 100)
		require.NoError(t, err)
		assert.InDelta(t, temp, dew, 1e-9)
	}
}

func TestScoreReading_RejectsTemperatureOutsideMagnusDomain(t *testing.T) {
	for _, temp := range []float64{-243.04, -300, 1e308, -1e308, math.Inf(1)} {
		_, err := ScoreReading(Reading{Temp: temp, Humidity: 50})
		var domainErr *DomainError
		require.ErrorAs(t, err, &domainErr, "t=%v", temp)
		assert.Equal(t, "temp", domainErr.Field)
	}
}

func TestClamp_NaNMapsToLowerBound(t *testing.T) {
	assert.Equal(t, 0.0, clamp(math.NaN(), 0, 100))
	assert.Equal(t, 100.0, clamp(math.Inf(1), 0, 100))
	assert.Equal(t, 42.5, clamp(42.5, 0, 100))
}

func TestScoreReading_StaysInRange(t *testing.T) {
	extremes := []Reading{
		{Temp: 30, Humidity: 10, Wind: 20, Cloud: 0, Rain: 50},
		{Temp: -40, Humidity: 1, Wind: 0, Cloud: 100, Rain: 0},
		{Temp: 45, Humidity: 100, Wind: 0, Cloud: 100, Rain: 500},
		{Temp: 0, Humidity: 50, Wind: 1e6, Cloud: 1e6, Rain: 1e6},
		{Temp: 5, Humidity: 100, Wind: -3, Cloud: -10, Rain: -1},
		{Temp: -243, Humidity: 50, Wind: 0, Cloud: 50, Rain: 0},
		{Temp: 1e6, Humidity: 50, Wind: 0, Cloud: 50, Rain: 0},
	}
	for _, r := range extremes {
		s, err := ScoreReading(r)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.FogScore, 0.0)
		assert.LessOrEqual(t, s.FogScore, 100.0)
		assert.GreaterOrEqual(t, s.CastleScore, 0.0)
		assert.LessOrEqual(t, s.CastleScore, 100.0)
		assert.LessOrEqual(t, s.CastleScore, s.FogScore)
	}
}
