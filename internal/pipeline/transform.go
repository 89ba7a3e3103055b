package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// ObservationTransformer implements Transformer: it decodes and validates an
// observation message.
type ObservationTransformer struct {
	validate *validator.Validate
}

// NewTransformer creates an ObservationTransformer.
func NewTransformer(validate *validator.Validate) *ObservationTransformer {
	return &ObservationTransformer{validate: validate}
}

func (t *ObservationTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.ObservationEdit, error) {
	msg, err := domain.ParseObservationMessage(raw)
	if err != nil {
		return domain.ObservationEdit{}, err
	}
	if err := t.validate.Struct(msg); err != nil {
		return domain.ObservationEdit{}, &domain.MalformedRecordError{
			Source: "observation",
			Record: fmt.Sprintf("%s/%d@%d", raw.Topic, raw.Partition, raw.Offset),
			Err:    err,
		}
	}
	return msg.Edit()
}

// ObservationRecorder writes the observed column group of history. It is the
// loader of the observation pipeline and the backend of manual edits.
type ObservationRecorder struct {
	store    domain.HistoryStore
	validate *validator.Validate
	logger   *slog.Logger
}

// NewRecorder creates an ObservationRecorder.
func NewRecorder(store domain.HistoryStore, validate *validator.Validate, logger *slog.Logger) *ObservationRecorder {
	return &ObservationRecorder{store: store, validate: validate, logger: logger}
}

// Record applies one manual observation. The predicted group of the row, if
// any, is left untouched.
func (r *ObservationRecorder) Record(ctx context.Context, date time.Time, obs domain.ObservedFields) error {
	if err := r.validate.Struct(obs); err != nil {
		return &domain.MalformedRecordError{Source: "observation", Record: domain.FormatDate(date), Err: err}
	}
	if err := r.store.UpsertObserved(ctx, date, obs); err != nil {
		return err
	}
	r.logger.Info("observation recorded",
		"date", domain.FormatDate(date),
		"fog_observed", obs.FogObserved,
		"castle_visible", obs.CastleVisible,
	)
	return nil
}

// LoadBatch applies edits in order. Later edits for the same date win.
func (r *ObservationRecorder) LoadBatch(ctx context.Context, edits []domain.ObservationEdit) error {
	for _, e := range edits {
		if err := r.store.UpsertObserved(ctx, e.Date, e.Observed); err != nil {
			return err
		}
	}
	return nil
}
