package domain

import (
	"fmt"
	"math"
)

// Classifier is an opaque binary classifier returning the positive-class
// probability for one feature row.
type Classifier interface {
	Predict(features []float64) (float64, error)
}

// MissingAware is implemented by classifiers that know whether they accept
// NaN inputs.
type MissingAware interface {
	HandlesMissing() bool
}

// MissingPolicy decides what happens to feature vectors with missing values.
type MissingPolicy string

const (
	// MissingNative passes NaN through to classifiers that declare they
	// handle it and rejects the vector for any other classifier.
	MissingNative MissingPolicy = "native"
	// MissingReject rejects every vector with a missing value.
	MissingReject MissingPolicy = "reject"
)

// ParseMissingPolicy validates a configured policy name.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch p := MissingPolicy(s); p {
	case MissingNative, MissingReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown missing-feature policy %q", s)
	}
}

// ProbabilityPair holds the raw fog and castle probabilities for one date.
type ProbabilityPair struct {
	Fog    float64
	Castle float64
}

// ProbabilityEngine runs the fog and castle classifiers on a feature vector.
type ProbabilityEngine struct {
	fog    Classifier
	castle Classifier
	policy MissingPolicy
}

// NewProbabilityEngine creates an engine. An empty policy means MissingNative.
func NewProbabilityEngine(fog, castle Classifier, policy MissingPolicy) *ProbabilityEngine {
	if policy == "" {
		policy = MissingNative
	}
	return &ProbabilityEngine{fog: fog, castle: castle, policy: policy}
}

// Predict returns the probability pair for v.
func (e *ProbabilityEngine) Predict(v FeatureVector) (ProbabilityPair, error) {
	x := v.Values()
	fog, err := e.run("fog", e.fog, v, x)
	if err != nil {
		return ProbabilityPair{}, err
	}
	castle, err := e.run("castle", e.castle, v, x)
	if err != nil {
		return ProbabilityPair{}, err
	}
	return ProbabilityPair{Fog: fog, Castle: castle}, nil
}

func (e *ProbabilityEngine) run(name string, c Classifier, v FeatureVector, x []float64) (float64, error) {
	if v.HasMissing() && !e.acceptsMissing(c) {
		return 0, fmt.Errorf("%s classifier on %s: %w: %v", name, FormatDate(v.Date), ErrMissingFeatures, v.Missing())
	}
	p, err := c.Predict(x)
	if err != nil {
		return 0, fmt.Errorf("%s classifier on %s: %w", name, FormatDate(v.Date), err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%s classifier on %s: %w: %v", name, FormatDate(v.Date), ErrInvalidProbability, p)
	}
	return p, nil
}

func (e *ProbabilityEngine) acceptsMissing(c Classifier) bool {
	if e.policy == MissingReject {
		return false
	}
	m, ok := c.(MissingAware)
	return ok && m.HandlesMissing()
}
