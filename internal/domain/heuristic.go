package domain

import "math"

// Magnus coefficients over water, valid roughly from -45 °C to 60 °C.
const (
	magnusA = 17.625
	magnusB = 243.04
)

// HeuristicScore is the rule-based fog assessment of a single reading.
type HeuristicScore struct {
	DewPoint    float64 `json:"dew_point"`
	DewSpread   float64 `json:"dew_spread"`
	FogScore    float64 `json:"fog_score"`
	CastleScore float64 `json:"castle_score"`
}

// DewPoint returns the Magnus dew point in °C. Humidity must lie in (0, 100]
// and the temperature must stay above the formula's pole at -243.04 °C.
func DewPoint(temp, humidity float64) (float64, error) {
	if !(humidity > 0 && humidity <= 100) {
		return 0, &DomainError{Field: "humidity", Value: humidity, Reason: "must be in (0, 100]"}
	}
	if !(magnusB+temp > 0) || math.IsInf(temp, 0) {
		return 0, &DomainError{Field: "temp", Value: temp, Reason: "must be above -243.04"}
	}
	alpha := math.Log(humidity/100) + magnusA*temp/(magnusB+temp)
	dew := magnusB * alpha / (magnusA - alpha)
	if math.IsNaN(dew) || math.IsInf(dew, 0) {
		return 0, &DomainError{Field: "temp", Value: temp, Reason: "dew point is not finite"}
	}
	return dew, nil
}

// ScoreReading computes the rounded heuristic score: dew values to 2 decimals,
// scores to 1 decimal.
func ScoreReading(r Reading) (HeuristicScore, error) {
	dew, err := DewPoint(r.Temp, r.Humidity)
	if err != nil {
		return HeuristicScore{}, err
	}
	spread := r.Temp - dew
	fog := fogScore(spread, r.Wind, r.Rain)
	castle := castleScore(fog, spread, r.Cloud)

	return HeuristicScore{
		DewPoint:    Round(dew, 2),
		DewSpread:   Round(spread, 2),
		FogScore:    Round(fog, 1),
		CastleScore: Round(castle, 1),
	}, nil
}

func fogScore(spread, wind, rain float64) float64 {
	score := 100.0
	score -= clamp(spread*12, 0, 60)
	score -= clamp(math.Max(wind-1.5, 0)*10, 0, 25)
	score -= clamp(rain*5, 0, 10)
	return clamp(score, 0, 100)
}

func castleScore(fog, spread, cloud float64) float64 {
	score := fog
	switch {
	case cloud < 40:
		score -= (40 - cloud) * 0.6
	case cloud > 90:
		score -= (cloud - 90) * 0.8
	}
	score -= clamp(math.Max(spread-2, 0)*8, 0, 20)
	return clamp(score, 0, 100)
}

// clamp maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
