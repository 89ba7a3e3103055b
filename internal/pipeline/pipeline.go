// Package pipeline wires the domain model to its collaborators: the daily
// prediction run, the forecast-window run and the observation consumer.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/observability"
)

// BatchExtractor reads up to batchSize raw observation messages.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw message into an observation edit.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.ObservationEdit, error)
}

// BatchLoader applies observation edits to history.
type BatchLoader interface {
	LoadBatch(ctx context.Context, edits []domain.ObservationEdit) error
}

const (
	initialRetryDelay = 200 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

// ObservationPipeline applies operator observations arriving on the message
// bus. Each batch is reduced to one edit per date before it reaches history.
type ObservationPipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// NewObservationPipeline creates the consumer loop with the given stages.
func NewObservationPipeline(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *ObservationPipeline {
	return &ObservationPipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once a batch has been applied.
func (p *ObservationPipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("observation pipeline has not applied any messages yet")
	}
	return nil
}

// Run consumes batches until the context is cancelled. Extract and load
// failures are retried with a delay that doubles up to maxRetryDelay.
func (p *ObservationPipeline) Run(ctx context.Context) error {
	p.logger.Info("observation pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	delay := retryDelay{next: initialRetryDelay}
	for ctx.Err() == nil {
		if err := p.step(ctx); err != nil {
			delay.wait(ctx)
			continue
		}
		delay.reset()
	}
	p.logger.Info("observation pipeline stopping", "reason", ctx.Err())
	return nil
}

// step extracts one batch and applies it. A non-nil error asks Run to retry
// after a delay; nothing from a failed load is committed.
func (p *ObservationPipeline) step(ctx context.Context) error {
	start := time.Now()

	raws, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("extract batch failed", "error", err)
		}
		return err
	}
	if len(raws) == 0 {
		return nil
	}
	p.metrics.MessagesConsumed.Add(float64(len(raws)))
	p.metrics.BatchSize.Observe(float64(len(raws)))

	batch := p.collect(ctx, raws)
	if len(batch.edits) == 0 {
		return nil
	}

	if err := p.loader.LoadBatch(ctx, batch.edits); err != nil {
		p.logger.Error("apply observations failed", "error", err, "dates", len(batch.edits))
		return err
	}
	p.metrics.ObservationsApplied.Add(float64(len(batch.edits)))
	for _, raw := range batch.applied {
		p.commit(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return nil
}

// observationBatch holds one edit per date, in first-seen date order, and the
// messages whose offsets are committed once the edits are applied.
type observationBatch struct {
	edits   []domain.ObservationEdit
	applied []domain.RawEvent
}

// collect transforms the raw messages and folds edits for the same date so
// that the latest message wins. Invalid messages are committed and dropped.
func (p *ObservationPipeline) collect(ctx context.Context, raws []domain.RawEvent) observationBatch {
	batch := observationBatch{
		edits:   make([]domain.ObservationEdit, 0, len(raws)),
		applied: make([]domain.RawEvent, 0, len(raws)),
	}
	byDate := make(map[string]int, len(raws))

	for _, raw := range raws {
		edit, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("invalid observation, skipping message",
				"error", err, "topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
			p.metrics.TransformErrors.Inc()
			p.commit(ctx, raw)
			continue
		}

		key := domain.FormatDate(edit.Date)
		if i, seen := byDate[key]; seen {
			p.logger.Debug("observation superseded within batch", "date", key, "offset", raw.Offset)
			batch.edits[i] = edit
		} else {
			byDate[key] = len(batch.edits)
			batch.edits = append(batch.edits, edit)
		}
		batch.applied = append(batch.applied, raw)
	}
	return batch
}

func (p *ObservationPipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// retryDelay is the doubling wait between failed batches.
type retryDelay struct {
	next time.Duration
}

func (d *retryDelay) reset() { d.next = initialRetryDelay }

// wait sleeps for the current delay, or until the context ends, and doubles
// the next one.
func (d *retryDelay) wait(ctx context.Context) {
	timer := time.NewTimer(d.next)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	d.next = min(d.next*2, maxRetryDelay)
}
