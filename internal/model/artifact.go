package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// Kind names the model family stored in an artifact.
type Kind string

const (
	KindLogistic     Kind = "logistic"
	KindTreeEnsemble Kind = "tree_ensemble"
)

// Artifact is the on-disk form of a classifier or calibrator. Files may be
// plain JSON or compressed with gzip (.gz) or zstd (.zst).
type Artifact struct {
	Kind         Kind          `json:"kind"`
	FeatureNames []string      `json:"feature_names"`
	Logistic     *Logistic     `json:"logistic,omitempty"`
	Trees        *TreeEnsemble `json:"trees,omitempty"`
}

// Classifier validates the artifact's model against its feature list and
// returns it.
func (a *Artifact) Classifier() (domain.Classifier, error) {
	n := len(a.FeatureNames)
	switch a.Kind {
	case KindLogistic:
		if a.Logistic == nil {
			return nil, errors.New("logistic artifact has no logistic section")
		}
		if err := a.Logistic.validate(n); err != nil {
			return nil, err
		}
		return a.Logistic, nil
	case KindTreeEnsemble:
		if a.Trees == nil {
			return nil, errors.New("tree_ensemble artifact has no trees section")
		}
		if err := a.Trees.validate(n); err != nil {
			return nil, err
		}
		return a.Trees, nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", a.Kind)
	}
}

// CheckFeatureOrder verifies that a classifier artifact declares exactly the
// FeatureVector order.
func (a *Artifact) CheckFeatureOrder() error {
	if !slices.Equal(a.FeatureNames, domain.FeatureNames[:]) {
		return fmt.Errorf("feature_names %v do not match %v", a.FeatureNames, domain.FeatureNames)
	}
	return nil
}

// ReadArtifact decodes an uncompressed artifact.
func ReadArtifact(r io.Reader) (*Artifact, error) {
	var a Artifact
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}

// LoadArtifact reads the artifact at path. A missing file is reported as a
// domain.MissingInputError.
func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.MissingInputError{What: "model artifact " + path}
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd reader %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip reader %s: %w", path, err)
		}
		defer gr.Close()
		r = gr
	}

	a, err := ReadArtifact(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// WriteArtifact writes a to path, compressing by extension.
func WriteArtifact(path string, a *Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer f.Close()

	var w io.WriteCloser
	switch {
	case strings.HasSuffix(path, ".zst"):
		w, err = zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
	case strings.HasSuffix(path, ".gz"):
		w = gzip.NewWriter(f)
	}
	if w == nil {
		_, err = f.Write(data)
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}
