package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// MaxWindowDays is the longest forecast window the provider serves.
const MaxWindowDays = 16

// FeatureCount is the length of every FeatureVector.
const FeatureCount = 11

// FeatureNames is the fixed classifier input order. Artifacts must declare
// exactly this order.
var FeatureNames = [FeatureCount]string{
	"temp",
	"humidity",
	"wind",
	"cloud",
	"rain",
	"prev_temp",
	"prev_humidity",
	"prev_wind",
	"prev_cloud",
	"prev_rain",
	"temp_prev_diff",
}

// FeatureVector is the classifier input for one date. Missing lag values are
// NaN and are never replaced with a default here.
type FeatureVector struct {
	Date   time.Time
	values [FeatureCount]float64
}

// Values returns a copy of the vector in FeatureNames order.
func (v FeatureVector) Values() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v.values[:])
	return out
}

// Value returns the named feature and whether the name is known.
func (v FeatureVector) Value(name string) (float64, bool) {
	for i, n := range FeatureNames {
		if n == name {
			return v.values[i], true
		}
	}
	return 0, false
}

// Missing returns the names of the features that have no value.
func (v FeatureVector) Missing() []string {
	var out []string
	for i, x := range v.values {
		if math.IsNaN(x) {
			out = append(out, FeatureNames[i])
		}
	}
	return out
}

// HasMissing reports whether any feature is missing.
func (v FeatureVector) HasMissing() bool {
	for _, x := range v.values {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// Lag is the previous-day weather snapshot. Nil fields are unknown.
type Lag struct {
	Temp     *float64
	Humidity *float64
	Wind     *float64
	Cloud    *float64
	Rain     *float64
}

// LagFromRecord takes the weather snapshot of a stored history row.
func LagFromRecord(r HistoryRecord) Lag {
	return Lag{Temp: r.Temp, Humidity: r.Humidity, Wind: r.Wind, Cloud: r.Cloud, Rain: r.Rain}
}

// LagFromReading takes the weather of a fresh reading.
func LagFromReading(r Reading) Lag {
	return Lag{
		Temp:     Float(r.Temp),
		Humidity: Float(r.Humidity),
		Wind:     Float(r.Wind),
		Cloud:    Float(r.Cloud),
		Rain:     Float(r.Rain),
	}
}

// BuildFeatures builds the vector for one reading. prev is nil when no earlier
// record exists, in which case every lag feature is missing.
func BuildFeatures(r Reading, prev *Lag) FeatureVector {
	var lag Lag
	if prev != nil {
		lag = *prev
	}
	prevTemp := orNaN(lag.Temp)

	return FeatureVector{
		Date: Day(r.Date),
		values: [FeatureCount]float64{
			r.Temp,
			r.Humidity,
			r.Wind,
			r.Cloud,
			r.Rain,
			prevTemp,
			orNaN(lag.Humidity),
			orNaN(lag.Wind),
			orNaN(lag.Cloud),
			orNaN(lag.Rain),
			prevTemp - r.Temp,
		},
	}
}

// BuildWindowFeatures normalizes the window and builds one vector per day.
// The first day lags from prev; every later day lags from the day before it.
func BuildWindowFeatures(readings []Reading, prev *Lag) ([]Reading, []FeatureVector, error) {
	days, err := NormalizeWindow(readings)
	if err != nil {
		return nil, nil, err
	}
	out := make([]FeatureVector, len(days))
	lag := prev
	for i, r := range days {
		out[i] = BuildFeatures(r, lag)
		l := LagFromReading(r)
		lag = &l
	}
	return days, out, nil
}

// NormalizeWindow sorts readings by date and keeps the last reading supplied
// for each date. It rejects empty windows and windows longer than
// MaxWindowDays.
func NormalizeWindow(readings []Reading) ([]Reading, error) {
	if len(readings) == 0 {
		return nil, &MissingInputError{What: "forecast window has no days"}
	}

	byDay := make(map[time.Time]Reading, len(readings))
	for _, r := range readings {
		r.Date = Day(r.Date)
		byDay[r.Date] = r
	}
	if len(byDay) > MaxWindowDays {
		return nil, fmt.Errorf("%w: got %d", ErrWindowTooLarge, len(byDay))
	}

	out := make([]Reading, 0, len(byDay))
	for _, r := range byDay {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
