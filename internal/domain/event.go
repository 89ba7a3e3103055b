package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RawEvent represents an unprocessed message from the observation topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ObservationMessage is the wire form of an operator observation.
type ObservationMessage struct {
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	FogObserved   bool   `json:"fog_observed"`
	CastleVisible bool   `json:"castle_visible"`
	Note          string `json:"note" validate:"max=2000"`
}

// ObservationEdit is a parsed observation ready to apply to history.
type ObservationEdit struct {
	Date     time.Time
	Observed ObservedFields
}

// ParseObservationMessage decodes a message value. Structural validation of
// the decoded fields is left to the caller.
func ParseObservationMessage(raw RawEvent) (ObservationMessage, error) {
	var msg ObservationMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		return ObservationMessage{}, &MalformedRecordError{
			Source: "observation",
			Record: fmt.Sprintf("%s/%d@%d", raw.Topic, raw.Partition, raw.Offset),
			Err:    err,
		}
	}
	return msg, nil
}

// Edit converts a validated message into an ObservationEdit.
func (m ObservationMessage) Edit() (ObservationEdit, error) {
	date, err := ParseDate(m.Date)
	if err != nil {
		return ObservationEdit{}, &MalformedRecordError{Source: "observation", Record: m.Date, Field: "date", Err: err}
	}
	return ObservationEdit{
		Date: date,
		Observed: ObservedFields{
			FogObserved:   m.FogObserved,
			CastleVisible: m.CastleVisible,
			Note:          m.Note,
		},
	}, nil
}
