package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingFeatures is returned when a feature vector with missing values
	// reaches a classifier that cannot handle them.
	ErrMissingFeatures = errors.New("feature vector has missing values")

	// ErrWindowTooLarge is returned for forecast windows longer than MaxWindowDays.
	ErrWindowTooLarge = fmt.Errorf("forecast window exceeds %d days", MaxWindowDays)

	// ErrInvalidProbability is returned when a classifier output is NaN or
	// outside [0, 1].
	ErrInvalidProbability = errors.New("probability outside [0, 1]")
)

// MissingInputError reports a required input that is absent: no weather
// readings for a date, a classifier artifact that does not exist, an empty
// forecast window.
type MissingInputError struct {
	What string
}

func (e *MissingInputError) Error() string {
	return "missing input: " + e.What
}

// DomainError reports a value outside the domain of a formula.
type DomainError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.Field, e.Value, e.Reason)
}

// MalformedRecordError reports a stored or received record that cannot be
// parsed. Record identifies the row (usually a date or line number).
type MalformedRecordError struct {
	Source string
	Record string
	Field  string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s record %s: %v", e.Source, e.Record, e.Err)
	}
	return fmt.Sprintf("malformed %s record %s: field %s: %v", e.Source, e.Record, e.Field, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}
