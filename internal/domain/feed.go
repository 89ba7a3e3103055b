package domain

import "time"

// FeedUpdate is a partial update of the feed document. Only non-nil fields
// are written; keys written by other producers are preserved.
type FeedUpdate struct {
	Date              string
	RunID             string
	Score             *HeuristicScore
	FogProbability    *float64
	CastleProbability *float64
	EventProbability  *float64
	Event             EventLabel
}

// Fields flattens the update into feed keys.
func (u FeedUpdate) Fields() map[string]any {
	out := map[string]any{"date": u.Date}
	if u.RunID != "" {
		out["run_id"] = u.RunID
	}
	if u.Score != nil {
		out["dew_point"] = u.Score.DewPoint
		out["dew_spread"] = u.Score.DewSpread
		out["fog_score"] = u.Score.FogScore
		out["castle_score"] = u.Score.CastleScore
	}
	if u.FogProbability != nil {
		out["fog_probability"] = *u.FogProbability
	}
	if u.CastleProbability != nil {
		out["castle_probability"] = *u.CastleProbability
	}
	if u.EventProbability != nil {
		out["castle_event_probability"] = *u.EventProbability
	}
	if u.Event != "" {
		out["event"] = string(u.Event)
	}
	return out
}

// PredictionKeys are the feed keys owned by the predict stage. They are
// cleared when the feed moves to a new date so stale probabilities never sit
// next to fresh scores.
var PredictionKeys = []string{"fog_probability", "castle_probability", "castle_event_probability", "event"}

// ScoreKeys are the feed keys owned by the scoring stage.
var ScoreKeys = []string{"dew_point", "dew_spread", "fog_score", "castle_score"}

// Outcome is the complete result of one daily run, as published to
// downstream consumers.
type Outcome struct {
	RunID      string
	Score      HeuristicScore
	Prediction Prediction
}

// FeedUpdate returns the prediction part of the outcome as a feed update,
// probabilities rounded to 3 decimals.
func (o Outcome) FeedUpdate() FeedUpdate {
	p := o.Prediction
	return FeedUpdate{
		Date:              FormatDate(p.Reading.Date),
		RunID:             o.RunID,
		FogProbability:    Float(Round(p.Probabilities.Fog, 3)),
		CastleProbability: Float(Round(p.Probabilities.Castle, 3)),
		EventProbability:  Float(Round(p.Event, 3)),
		Event:             p.Label,
	}
}

// PredictedFields returns the history column group written by the run.
func (o Outcome) PredictedFields(updatedAt time.Time) PredictedFields {
	r := o.Prediction.Reading.Rounded()
	u := o.FeedUpdate()
	return PredictedFields{
		Temp:              Float(r.Temp),
		Humidity:          Float(r.Humidity),
		Wind:              Float(r.Wind),
		Cloud:             Float(r.Cloud),
		Rain:              Float(r.Rain),
		FogProbability:    u.FogProbability,
		CastleProbability: u.CastleProbability,
		EventProbability:  u.EventProbability,
		FogScore:          Float(o.Score.FogScore),
		CastleScore:       Float(o.Score.CastleScore),
		DewPoint:          Float(o.Score.DewPoint),
		DewSpread:         Float(o.Score.DewSpread),
		Event:             o.Prediction.Label,
		UpdatedAt:         updatedAt,
	}
}
