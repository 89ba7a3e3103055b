// Package openmeteo fetches hourly weather from the Open-Meteo forecast and
// archive APIs and reduces it to morning readings.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/observability"
)

const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"

	hourlyVariables     = "temperature_2m,relativehumidity_2m,windspeed_10m,cloudcover,precipitation"
	hourlyWithCondition = hourlyVariables + ",weathercode"
)

// Endpoint selects the Open-Meteo API.
type Endpoint string

const (
	Forecast Endpoint = "forecast"
	Archive  Endpoint = "archive"
)

// Site is the observation point.
type Site struct {
	Latitude  float64
	Longitude float64
	Timezone  string
}

// RetryPolicy configures retries on 429 and 5xx responses.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the retry settings used in production.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second}
}

// Client calls the Open-Meteo APIs through a circuit breaker.
type Client struct {
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	forecastURL string
	archiveURL  string
	site        Site
	retry       RetryPolicy
	sleepFn     func(time.Duration)
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates a client. Empty URLs select the public endpoints.
func NewClient(site Site, forecastURL, archiveURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if forecastURL == "" {
		forecastURL = DefaultForecastURL
	}
	if archiveURL == "" {
		archiveURL = DefaultArchiveURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        "open-meteo",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		forecastURL: forecastURL,
		archiveURL:  archiveURL,
		site:        site,
		retry:       DefaultRetryPolicy(),
		sleepFn:     time.Sleep,
		metrics:     metrics,
		logger:      logger,
	}
}

// Hourly fetches hourly rows for the inclusive date range. An archive request
// answered with 400 (data not published yet) is retried on the forecast API.
func (c *Client) Hourly(ctx context.Context, start, end time.Time, endpoint Endpoint, withCondition bool) (Hourly, error) {
	vars := hourlyVariables
	if withCondition {
		vars = hourlyWithCondition
	}
	params := url.Values{
		"latitude":   {strconv.FormatFloat(c.site.Latitude, 'f', -1, 64)},
		"longitude":  {strconv.FormatFloat(c.site.Longitude, 'f', -1, 64)},
		"hourly":     {vars},
		"start_date": {domain.FormatDate(start)},
		"end_date":   {domain.FormatDate(end)},
		"timezone":   {c.site.Timezone},
	}

	if endpoint == Archive {
		h, status, err := c.doRequest(ctx, Archive, c.archiveURL+"?"+params.Encode())
		if status != http.StatusBadRequest {
			return h, err
		}
		c.metrics.WeatherRequests.WithLabelValues(string(Archive), "fallback").Inc()
		c.logger.Info("archive not available yet, falling back to forecast",
			"start", domain.FormatDate(start), "end", domain.FormatDate(end))
	}

	h, _, err := c.doRequest(ctx, Forecast, c.forecastURL+"?"+params.Encode())
	return h, err
}

func (c *Client) doRequest(ctx context.Context, endpoint Endpoint, fullURL string) (Hourly, int, error) {
	start := time.Now()
	resp, err := c.do(ctx, fullURL)
	c.metrics.WeatherAPIDuration.WithLabelValues(string(endpoint)).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues(string(endpoint), "error").Inc()
		return Hourly{}, 0, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if !(endpoint == Archive && resp.StatusCode == http.StatusBadRequest) {
			c.metrics.WeatherRequests.WithLabelValues(string(endpoint), "error").Inc()
		}
		return Hourly{}, resp.StatusCode, fmt.Errorf("open-meteo %s error: status %d: %s", endpoint, resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.WeatherRequests.WithLabelValues(string(endpoint), "error").Inc()
		return Hourly{}, resp.StatusCode, &domain.MalformedRecordError{Source: "open-meteo", Record: string(endpoint), Err: err}
	}
	c.metrics.WeatherRequests.WithLabelValues(string(endpoint), "success").Inc()
	return payload.Hourly, resp.StatusCode, nil
}

// do executes a GET through the breaker, retrying 429 and 5xx responses.
// Other statuses are returned to the caller unchanged.
func (c *Client) do(ctx context.Context, fullURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				r.Body.Close()
				return nil, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
			break
		}
		if attempt < c.retry.MaxRetries {
			c.sleepFn(c.backoff(attempt))
		}
	}
	return nil, lastErr
}

func (c *Client) backoff(attempt int) time.Duration {
	wait := time.Duration(float64(c.retry.MinWait) * math.Pow(2, float64(attempt)))
	if wait > c.retry.MaxWait {
		return c.retry.MaxWait
	}
	return wait
}

// Open-Meteo API response types.

type response struct {
	Hourly Hourly `json:"hourly"`
}

// Hourly is the column-oriented hourly block of an Open-Meteo response.
// Values may be null for hours the model has not produced.
type Hourly struct {
	Time          []string   `json:"time"`
	Temperature   []*float64 `json:"temperature_2m"`
	Humidity      []*float64 `json:"relativehumidity_2m"`
	Wind          []*float64 `json:"windspeed_10m"`
	Cloud         []*float64 `json:"cloudcover"`
	Precipitation []*float64 `json:"precipitation"`
	WeatherCode   []*float64 `json:"weathercode,omitempty"`
}
