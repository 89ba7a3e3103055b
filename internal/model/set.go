package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// Set is a loaded model set ready for inference.
type Set struct {
	Version    string
	Fog        domain.Classifier
	Castle     domain.Classifier
	Calibrator domain.Calibrator
}

// Loader loads model sets from a directory.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// NewLoader creates a loader for dir.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	return &Loader{dir: dir, logger: logger}
}

// Load reads the manifest and the three artifacts concurrently. The fog and
// castle classifiers are required. A calibrator that is absent or unreadable
// leaves the set without one; the event probability then falls back to the
// product of the two raw probabilities.
func (l *Loader) Load(ctx context.Context) (*Set, error) {
	m, err := LoadManifest(l.dir)
	if err != nil {
		return nil, err
	}

	set := &Set{Version: m.Version, Calibrator: domain.NoCalibrator()}
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := loadClassifier(m.resolve(l.dir, m.Fog.Path))
		if err != nil {
			return fmt.Errorf("fog model: %w", err)
		}
		set.Fog = c
		return nil
	})
	g.Go(func() error {
		c, err := loadClassifier(m.resolve(l.dir, m.Castle.Path))
		if err != nil {
			return fmt.Errorf("castle model: %w", err)
		}
		set.Castle = c
		return nil
	})
	if m.Calibrator != nil {
		path := m.resolve(l.dir, m.Calibrator.Path)
		g.Go(func() error {
			cal, err := loadCalibrator(path)
			var missing *domain.MissingInputError
			switch {
			case errors.As(err, &missing):
				l.logger.Debug("no event calibrator, using fog*castle", "path", path)
			case err != nil:
				l.logger.Warn("event calibrator unusable, using fog*castle", "path", path, "error", err)
			default:
				set.Calibrator = cal
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

func loadClassifier(path string) (domain.Classifier, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	if err := a.CheckFeatureOrder(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c, err := a.Classifier()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func loadCalibrator(path string) (domain.Calibrator, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return domain.Calibrator{}, err
	}
	c, err := a.Classifier()
	if err != nil {
		return domain.Calibrator{}, fmt.Errorf("%s: %w", path, err)
	}
	return domain.NewCalibrator(c, a.FeatureNames)
}
