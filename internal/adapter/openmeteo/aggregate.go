package openmeteo

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// hourLayout is the local timestamp format Open-Meteo uses when a timezone is
// requested, e.g. "2024-11-02T05:00".
const hourLayout = "2006-01-02T15:04"

// MorningAverages groups hourly rows by local date and averages the hours in
// [startHour, endHour]. Dates without any such hour are skipped. The weather
// code is the most frequent code of those hours, the smallest on ties.
func MorningAverages(h Hourly, startHour, endHour int) ([]domain.Reading, error) {
	if err := h.checkLengths(); err != nil {
		return nil, err
	}

	byDate := make(map[time.Time][]int)
	for i, ts := range h.Time {
		t, err := time.Parse(hourLayout, ts)
		if err != nil {
			continue
		}
		if t.Hour() < startHour || t.Hour() > endHour {
			continue
		}
		d := domain.Day(t)
		byDate[d] = append(byDate[d], i)
	}
	if len(byDate) == 0 {
		return nil, &domain.MissingInputError{What: fmt.Sprintf("hourly data between %02d:00 and %02d:00", startHour, endHour)}
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]domain.Reading, 0, len(dates))
	for _, d := range dates {
		r, err := h.average(d, byDate[d])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (h Hourly) average(d time.Time, idx []int) (domain.Reading, error) {
	r := domain.Reading{Date: d}
	series := []struct {
		name string
		vals []*float64
		dst  *float64
	}{
		{"temperature_2m", h.Temperature, &r.Temp},
		{"relativehumidity_2m", h.Humidity, &r.Humidity},
		{"windspeed_10m", h.Wind, &r.Wind},
		{"cloudcover", h.Cloud, &r.Cloud},
		{"precipitation", h.Precipitation, &r.Rain},
	}
	for _, s := range series {
		m, err := mean(s.vals, idx)
		if err != nil {
			return domain.Reading{}, &domain.MalformedRecordError{Source: "open-meteo", Record: domain.FormatDate(d), Field: s.name, Err: err}
		}
		*s.dst = m
	}

	if len(h.WeatherCode) > 0 {
		code, ok := modeCode(h.WeatherCode, idx)
		if ok {
			r.WeatherCode = &code
		}
	}
	return r, nil
}

func (h Hourly) checkLengths() error {
	n := len(h.Time)
	cols := map[string]int{
		"temperature_2m":      len(h.Temperature),
		"relativehumidity_2m": len(h.Humidity),
		"windspeed_10m":       len(h.Wind),
		"cloudcover":          len(h.Cloud),
		"precipitation":       len(h.Precipitation),
	}
	if len(h.WeatherCode) > 0 {
		cols["weathercode"] = len(h.WeatherCode)
	}
	for name, l := range cols {
		if l != n {
			return &domain.MalformedRecordError{
				Source: "open-meteo", Record: "hourly", Field: name,
				Err: fmt.Errorf("%d values for %d timestamps", l, n),
			}
		}
	}
	return nil
}

func mean(vals []*float64, idx []int) (float64, error) {
	var sum float64
	for _, i := range idx {
		if vals[i] == nil {
			return 0, errors.New("null value")
		}
		sum += *vals[i]
	}
	return sum / float64(len(idx)), nil
}

func modeCode(vals []*float64, idx []int) (int, bool) {
	counts := make(map[int]int)
	for _, i := range idx {
		if vals[i] == nil || math.IsNaN(*vals[i]) {
			continue
		}
		counts[int(*vals[i])]++
	}
	best, bestN := 0, 0
	for code, n := range counts {
		if n > bestN || (n == bestN && code < best) {
			best, bestN = code, n
		}
	}
	return best, bestN > 0
}
