package domain

import (
	"time"
)

// Prediction is the full model outcome for one date, before rounding.
type Prediction struct {
	Reading       Reading
	Probabilities ProbabilityPair
	Event         float64
	Source        CalibrationSource
	Label         EventLabel
}

// Predictor runs the model chain: probabilities, calibration and labeling.
type Predictor struct {
	Engine     *ProbabilityEngine
	Calibrator Calibrator
	Classifier EventClassifier
}

// Predict evaluates one feature vector built from r.
func (p Predictor) Predict(r Reading, v FeatureVector) (Prediction, error) {
	pair, err := p.Engine.Predict(v)
	if err != nil {
		return Prediction{}, err
	}
	event, source := p.Calibrator.EventProbability(pair)
	return Prediction{
		Reading:       r,
		Probabilities: pair,
		Event:         event,
		Source:        source,
		Label:         p.Classifier.Classify(pair, event),
	}, nil
}

// WindowPrediction is one day of the forecast-window output artifact.
type WindowPrediction struct {
	Date              string     `json:"date"`
	Temp              float64    `json:"temp"`
	Humidity          float64    `json:"humidity"`
	Wind              float64    `json:"wind"`
	Cloud             float64    `json:"cloud"`
	Rain              float64    `json:"rain"`
	WeatherCode       *int       `json:"weathercode"`
	FogProbability    float64    `json:"fog_probability"`
	CastleProbability float64    `json:"castle_probability"`
	EventProbability  float64    `json:"castle_event_probability"`
	Event             EventLabel `json:"event"`
}

// ForecastPredictions is the forecast-window output artifact.
type ForecastPredictions struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Predictions []WindowPrediction `json:"predictions"`
}

// NewWindowPrediction rounds a prediction for publication: weather to 2
// decimals, probabilities to 3. The label is taken from the unrounded values.
func NewWindowPrediction(p Prediction) WindowPrediction {
	r := p.Reading.Rounded()
	return WindowPrediction{
		Date:              FormatDate(r.Date),
		Temp:              r.Temp,
		Humidity:          r.Humidity,
		Wind:              r.Wind,
		Cloud:             r.Cloud,
		Rain:              r.Rain,
		WeatherCode:       r.WeatherCode,
		FogProbability:    Round(p.Probabilities.Fog, 3),
		CastleProbability: Round(p.Probabilities.Castle, 3),
		EventProbability:  Round(p.Event, 3),
		Event:             p.Label,
	}
}

// OverlayHistory replaces fresh window values with what the history table
// already holds for the same date. Each stored number wins over the fresh one;
// a NULL keeps the fresh value. A stored label is kept verbatim, otherwise the
// label is recomputed from the merged probabilities with the calibrated policy.
// Rows without any predicted data leave wp unchanged.
func OverlayHistory(wp WindowPrediction, rec HistoryRecord) WindowPrediction {
	if !rec.HasPrediction() {
		return wp
	}

	fog := pick(rec.FogProbability, wp.FogProbability)
	event := pick(rec.EventProbability, wp.EventProbability)

	wp.Temp = Round(pick(rec.Temp, wp.Temp), 2)
	wp.Humidity = Round(pick(rec.Humidity, wp.Humidity), 2)
	wp.Wind = Round(pick(rec.Wind, wp.Wind), 2)
	wp.Cloud = Round(pick(rec.Cloud, wp.Cloud), 2)
	wp.Rain = Round(pick(rec.Rain, wp.Rain), 2)
	wp.FogProbability = Round(fog, 3)
	wp.CastleProbability = Round(pick(rec.CastleProbability, wp.CastleProbability), 3)
	wp.EventProbability = Round(event, 3)

	if rec.Event != "" {
		wp.Event = rec.Event
	} else {
		wp.Event = CalibratedLabel(fog, event)
	}
	return wp
}

func pick(stored *float64, fresh float64) float64 {
	if stored == nil {
		return fresh
	}
	return *stored
}
