package domain

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the calendar-date format used in every artifact and table.
const DateLayout = "2006-01-02"

// Reading is the morning-averaged weather for one calendar day.
type Reading struct {
	Date        time.Time
	Temp        float64
	Humidity    float64
	Wind        float64
	Cloud       float64
	Rain        float64
	WeatherCode *int
}

// Day truncates t to its calendar date, expressed as UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Round rounds v to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Rounded returns the reading with every weather value rounded to 2 decimals,
// the precision used for the forecast window artifacts.
func (r Reading) Rounded() Reading {
	r.Temp = Round(r.Temp, 2)
	r.Humidity = Round(r.Humidity, 2)
	r.Wind = Round(r.Wind, 2)
	r.Cloud = Round(r.Cloud, 2)
	r.Rain = Round(r.Rain, 2)
	return r
}
