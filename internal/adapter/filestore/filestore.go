// Package filestore reads and writes the JSON artifacts shared with the
// dashboard: the daily feed, the raw forecast window and the window
// predictions. Every write goes to a temp file in the same directory and is
// renamed into place, so readers never see a half-written document.
package filestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

const (
	FeedFile        = "feed.json"
	WindowFile      = "forecast_window.json"
	PredictionsFile = "forecast_predictions.json"
)

// Store owns the artifact files under one data directory.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// New creates the data directory if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the full path of an artifact file.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

// MergeFeed applies a partial update to feed.json. Keys the update does not
// carry are preserved, including keys written by other producers. When the
// update moves the feed to a different date the prediction keys of the old
// date are dropped.
func (s *Store) MergeFeed(u domain.FeedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed, err := s.readFeed()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if feed == nil {
		feed = make(map[string]any)
	}

	if prev, ok := feed["date"].(string); ok && prev != u.Date {
		for _, k := range domain.PredictionKeys {
			delete(feed, k)
		}
		s.logger.Debug("feed moved to a new date", "from", prev, "to", u.Date)
	}
	for k, v := range u.Fields() {
		feed[k] = v
	}
	return s.writeJSON(FeedFile, feed)
}

// Feed returns the current feed document. A missing file is a
// MissingInputError.
func (s *Store) Feed() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed, err := s.readFeed()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.MissingInputError{What: FeedFile}
	}
	return feed, err
}

func (s *Store) readFeed() (map[string]any, error) {
	data, err := os.ReadFile(s.Path(FeedFile))
	if err != nil {
		return nil, err
	}
	var feed map[string]any
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, &domain.MalformedRecordError{Source: FeedFile, Err: err}
	}
	return feed, nil
}

// WriteWindow stores the raw morning readings of a forecast window.
func (s *Store) WriteWindow(readings []domain.Reading) error {
	entries := make([]windowEntry, len(readings))
	for i, r := range readings {
		entries[i] = newWindowEntry(r.Rounded())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(WindowFile, entries)
}

// ReadWindow loads forecast_window.json from the data directory.
func (s *Store) ReadWindow() ([]domain.Reading, error) {
	return ReadWindowFile(s.Path(WindowFile))
}

// WritePredictions stores the forecast-window predictions.
func (s *Store) WritePredictions(fp domain.ForecastPredictions) error {
	if fp.Predictions == nil {
		fp.Predictions = []domain.WindowPrediction{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(PredictionsFile, fp)
}

// Predictions loads forecast_predictions.json.
func (s *Store) Predictions() (domain.ForecastPredictions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fp domain.ForecastPredictions
	data, err := os.ReadFile(s.Path(PredictionsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return fp, &domain.MissingInputError{What: PredictionsFile}
	}
	if err != nil {
		return fp, err
	}
	if err := json.Unmarshal(data, &fp); err != nil {
		return fp, &domain.MalformedRecordError{Source: PredictionsFile, Err: err}
	}
	return fp, nil
}

func (s *Store) writeJSON(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
