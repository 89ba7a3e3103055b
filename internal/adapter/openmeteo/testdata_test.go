package openmeteo

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/observability"
	"github.com/stretchr/testify/require"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

var testSite = Site{Latitude: 35.98, Longitude: 136.49, Timezone: "Asia/Tokyo"}

func testClient(forecastURL, archiveURL string) *Client {
	c := NewClient(testSite, forecastURL, archiveURL, 5*time.Second,
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.sleepFn = func(time.Duration) {}
	return c
}

func ptr(v float64) *float64 { return &v }

// morning describes the values for hours 05..08 of one day. Every other hour
// carries values far away from them so averaging mistakes show up.
type morning struct {
	date  string
	temp  [4]float64
	hum   float64
	wind  float64
	cloud float64
	rain  float64
	codes [4]float64
}

func hourlyFor(withCodes bool, days ...morning) Hourly {
	var h Hourly
	for _, d := range days {
		for hour := 0; hour < 24; hour++ {
			h.Time = append(h.Time, fmt.Sprintf("%sT%02d:00", d.date, hour))
			if hour >= 5 && hour <= 8 {
				i := hour - 5
				h.Temperature = append(h.Temperature, ptr(d.temp[i]))
				h.Humidity = append(h.Humidity, ptr(d.hum))
				h.Wind = append(h.Wind, ptr(d.wind))
				h.Cloud = append(h.Cloud, ptr(d.cloud))
				h.Precipitation = append(h.Precipitation, ptr(d.rain))
				if withCodes {
					h.WeatherCode = append(h.WeatherCode, ptr(d.codes[i]))
				}
				continue
			}
			h.Temperature = append(h.Temperature, ptr(40))
			h.Humidity = append(h.Humidity, ptr(5))
			h.Wind = append(h.Wind, ptr(30))
			h.Cloud = append(h.Cloud, ptr(0))
			h.Precipitation = append(h.Precipitation, ptr(20))
			if withCodes {
				h.WeatherCode = append(h.WeatherCode, ptr(95))
			}
		}
	}
	return h
}

func writeHourly(t *testing.T, w http.ResponseWriter, h Hourly) {
	t.Helper()
	w.Header().Set(headerContentType, contentTypeJSON)
	require.NoError(t, json.NewEncoder(w).Encode(response{Hourly: h}))
}

var foggyMorning = morning{
	date:  "2024-11-02",
	temp:  [4]float64{8, 9, 10, 11},
	hum:   95,
	wind:  1.2,
	cloud: 60,
	rain:  0,
	codes: [4]float64{45, 45, 3, 3},
}
