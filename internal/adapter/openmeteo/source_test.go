package openmeteo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jst = time.FixedZone("JST", 9*60*60)

// freezeClock pins the domain clock to 06:30 JST on 2024-11-10.
func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 11, 10, 6, 30, 0, 0, jst)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

type fakeAPI struct {
	forecast *httptest.Server
	archive  *httptest.Server

	forecastCalls atomic.Int32
	archiveCalls  atomic.Int32
	lastQuery     atomic.Value
}

func newFakeAPI(t *testing.T, days ...morning) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	api.forecast = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.forecastCalls.Add(1)
		api.lastQuery.Store(r.URL.Query())
		writeHourly(t, w, hourlyFor(r.URL.Query().Get("hourly") == hourlyWithCondition, days...))
	}))
	api.archive = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.archiveCalls.Add(1)
		api.lastQuery.Store(r.URL.Query())
		writeHourly(t, w, hourlyFor(false, days...))
	}))
	t.Cleanup(api.forecast.Close)
	t.Cleanup(api.archive.Close)
	return api
}

func (a *fakeAPI) source() *Source {
	return NewSource(testClient(a.forecast.URL, a.archive.URL), jst, 5, 8)
}

func TestSource_Today(t *testing.T) {
	freezeClock(t)
	s := NewSource(testClient("", ""), jst, 5, 8)
	assert.Equal(t, time.Date(2024, 11, 10, 0, 0, 0, 0, time.UTC), s.Today())
}

func TestSource_Reading_PastDateUsesArchive(t *testing.T) {
	freezeClock(t)
	api := newFakeAPI(t, foggyMorning)

	r, err := api.source().Reading(context.Background(), nov2)
	require.NoError(t, err)
	assert.Equal(t, nov2, r.Date)
	assert.InDelta(t, 9.5, r.Temp, 1e-9)
	assert.Equal(t, int32(1), api.archiveCalls.Load())
	assert.Equal(t, int32(0), api.forecastCalls.Load())
}

func TestSource_Reading_TodayUsesForecast(t *testing.T) {
	freezeClock(t)
	m := foggyMorning
	m.date = "2024-11-10"
	api := newFakeAPI(t, m)

	_, err := api.source().Reading(context.Background(), time.Date(2024, 11, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int32(0), api.archiveCalls.Load())
	assert.Equal(t, int32(1), api.forecastCalls.Load())
}

func TestSource_Reading_DateMissingFromResponse(t *testing.T) {
	freezeClock(t)
	api := newFakeAPI(t, foggyMorning)

	_, err := api.source().Reading(context.Background(), nov2.AddDate(0, 0, 1))
	var missing *domain.MissingInputError
	require.ErrorAs(t, err, &missing)
}

func TestSource_Window(t *testing.T) {
	freezeClock(t)
	d1, d2, d3 := foggyMorning, foggyMorning, foggyMorning
	d1.date, d2.date, d3.date = "2024-11-10", "2024-11-11", "2024-11-12"
	api := newFakeAPI(t, d1, d2, d3)

	readings, err := api.source().Window(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, "2024-11-12", domain.FormatDate(readings[2].Date))
	require.NotNil(t, readings[0].WeatherCode)
	assert.Equal(t, 3, *readings[0].WeatherCode)

	q := api.lastQuery.Load().(url.Values)
	assert.Equal(t, "2024-11-10", q.Get("start_date"))
	assert.Equal(t, "2024-11-12", q.Get("end_date"))
}

func TestSource_Window_TruncatesExtraDays(t *testing.T) {
	freezeClock(t)
	d1, d2 := foggyMorning, foggyMorning
	d1.date, d2.date = "2024-11-10", "2024-11-11"
	api := newFakeAPI(t, d1, d2)

	readings, err := api.source().Window(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, readings, 1)
}

func TestSource_Window_RejectsOutOfRangeDays(t *testing.T) {
	s := NewSource(testClient("", ""), jst, 5, 8)
	for _, days := range []int{0, -1, domain.MaxWindowDays + 1} {
		_, err := s.Window(context.Background(), days)
		assert.Error(t, err, "days=%d", days)
	}
}

func TestCachedSource_ArchiveReadingsCached(t *testing.T) {
	freezeClock(t)
	api := newFakeAPI(t, foggyMorning)
	src := api.source()
	metrics := src.client.metrics
	cached := NewCachedSource(src, 10, metrics)

	r1, err := cached.Reading(context.Background(), nov2)
	require.NoError(t, err)
	r2, err := cached.Reading(context.Background(), nov2)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, int32(1), api.archiveCalls.Load(), "should only call the archive once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WeatherCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WeatherCache.WithLabelValues("miss")))
}

func TestCachedSource_TodayNotCached(t *testing.T) {
	freezeClock(t)
	m := foggyMorning
	m.date = "2024-11-10"
	api := newFakeAPI(t, m)
	src := api.source()
	cached := NewCachedSource(src, 10, src.client.metrics)

	today := time.Date(2024, 11, 10, 0, 0, 0, 0, time.UTC)
	_, err := cached.Reading(context.Background(), today)
	require.NoError(t, err)
	_, err = cached.Reading(context.Background(), today)
	require.NoError(t, err)

	assert.Equal(t, int32(2), api.forecastCalls.Load())
}

func TestCachedSource_ErrorsNotCached(t *testing.T) {
	freezeClock(t)
	api := newFakeAPI(t, foggyMorning)
	src := api.source()
	cached := NewCachedSource(src, 10, src.client.metrics)

	missingDay := nov2.AddDate(0, 0, -1)
	_, err := cached.Reading(context.Background(), missingDay)
	require.Error(t, err)
	_, err = cached.Reading(context.Background(), missingDay)
	require.Error(t, err)

	assert.Equal(t, int32(2), api.archiveCalls.Load())
}
