package domain

import (
	"context"
	"time"
)

// PredictedFields is the column group owned by pipeline runs. Nil pointers are
// stored as NULL.
type PredictedFields struct {
	Temp              *float64
	Humidity          *float64
	Wind              *float64
	Cloud             *float64
	Rain              *float64
	FogProbability    *float64
	CastleProbability *float64
	EventProbability  *float64
	FogScore          *float64
	CastleScore       *float64
	DewPoint          *float64
	DewSpread         *float64
	Event             EventLabel
	UpdatedAt         time.Time
}

// ObservedFields is the column group owned by operators.
type ObservedFields struct {
	FogObserved   bool   `json:"fog_observed"`
	CastleVisible bool   `json:"castle_visible"`
	Note          string `json:"note" validate:"max=2000"`
}

// HistoryRecord is one row of the date-keyed history table.
type HistoryRecord struct {
	Date time.Time
	PredictedFields
	ObservedFields
}

// HasWeather reports whether any weather snapshot value is stored.
func (r HistoryRecord) HasWeather() bool {
	return r.Temp != nil || r.Humidity != nil || r.Wind != nil || r.Cloud != nil || r.Rain != nil
}

// HasPrediction reports whether the row carries any weather or model output.
func (r HistoryRecord) HasPrediction() bool {
	return r.HasWeather() || r.FogProbability != nil || r.CastleProbability != nil || r.EventProbability != nil
}

// HistoryStore persists HistoryRecords keyed by date. Each upsert is atomic
// and touches only its own column group; new rows get zero values for the
// other group (observed: false, false, "").
type HistoryStore interface {
	Get(ctx context.Context, date time.Time) (HistoryRecord, bool, error)
	// LatestBefore returns the latest record strictly earlier than date that
	// carries at least one weather value.
	LatestBefore(ctx context.Context, date time.Time) (HistoryRecord, bool, error)
	UpsertPredicted(ctx context.Context, date time.Time, f PredictedFields) error
	UpsertObserved(ctx context.Context, date time.Time, f ObservedFields) error
	// List returns every record in ascending date order.
	List(ctx context.Context) ([]HistoryRecord, error)
}

// HistoryEditor is implemented by stores that support bulk edits. Replace
// writes whole records (both groups) in one transaction.
type HistoryEditor interface {
	Replace(ctx context.Context, records []HistoryRecord) error
	Delete(ctx context.Context, dates []time.Time) error
}

// Float returns a pointer to v. Convenience for building field groups.
func Float(v float64) *float64 {
	return &v
}
