package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// Memory is an in-process HistoryStore and HistoryEditor for tests of the
// packages above the storage layer. Setting Err makes every mutating call
// fail with it.
type Memory struct {
	mu      sync.Mutex
	records map[time.Time]domain.HistoryRecord
	Err     error

	PredictedWrites int
	ObservedWrites  int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{records: make(map[time.Time]domain.HistoryRecord)}
}

func (m *Memory) Get(_ context.Context, date time.Time) (domain.HistoryRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[domain.Day(date)]
	return rec, ok, nil
}

func (m *Memory) LatestBefore(_ context.Context, date time.Time) (domain.HistoryRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		best  domain.HistoryRecord
		found bool
	)
	for d, rec := range m.records {
		if !d.Before(domain.Day(date)) || !rec.HasWeather() {
			continue
		}
		if !found || d.After(best.Date) {
			best, found = rec, true
		}
	}
	return best, found, nil
}

func (m *Memory) UpsertPredicted(_ context.Context, date time.Time, f domain.PredictedFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	d := domain.Day(date)
	rec := m.records[d]
	rec.Date = d
	rec.PredictedFields = f
	m.records[d] = rec
	m.PredictedWrites++
	return nil
}

func (m *Memory) UpsertObserved(_ context.Context, date time.Time, f domain.ObservedFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	d := domain.Day(date)
	rec := m.records[d]
	rec.Date = d
	rec.ObservedFields = f
	m.records[d] = rec
	m.ObservedWrites++
	return nil
}

func (m *Memory) List(_ context.Context) ([]domain.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.HistoryRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) Replace(_ context.Context, records []domain.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, rec := range records {
		rec.Date = domain.Day(rec.Date)
		m.records[rec.Date] = rec
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, dates []time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, d := range dates {
		delete(m.records, domain.Day(d))
	}
	return nil
}
