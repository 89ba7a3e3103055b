package domain

import (
	"fmt"
	"math"
)

// Calibrator input names, in the order the inputs are built.
const (
	CalibrationFog     = "fog_probability"
	CalibrationCastle  = "castle_probability"
	CalibrationProduct = "fog_castle_product"
)

// CalibrationFeatureNames lists the calibrator inputs in canonical order.
var CalibrationFeatureNames = []string{CalibrationFog, CalibrationCastle, CalibrationProduct}

// CalibrationSource records where an event probability came from.
type CalibrationSource string

const (
	SourceCalibrator CalibrationSource = "calibrator"
	SourceProduct    CalibrationSource = "product"
	SourceFallback   CalibrationSource = "fallback"
)

// Calibrator fuses fog and castle probabilities into one event probability.
// The zero value is the absent calibrator.
type Calibrator struct {
	present bool
	model   Classifier
	order   []int // order[i] = index into canonical inputs for artifact column i
}

// NoCalibrator returns the absent calibrator; every event probability is the
// product fog*castle.
func NoCalibrator() Calibrator {
	return Calibrator{}
}

// NewCalibrator wraps a calibration model whose inputs are named by
// featureNames, which must be a permutation of CalibrationFeatureNames.
func NewCalibrator(model Classifier, featureNames []string) (Calibrator, error) {
	if model == nil {
		return Calibrator{}, &MissingInputError{What: "calibration model"}
	}
	order, err := calibrationOrder(featureNames)
	if err != nil {
		return Calibrator{}, err
	}
	return Calibrator{present: true, model: model, order: order}, nil
}

// Present reports whether a calibration model is loaded.
func (c Calibrator) Present() bool {
	return c.present
}

// EventProbability returns the joint event probability for p. Model errors
// and out-of-range outputs fall back to the product.
func (c Calibrator) EventProbability(p ProbabilityPair) (float64, CalibrationSource) {
	product := p.Fog * p.Castle
	if !c.present {
		return product, SourceProduct
	}

	canonical := [3]float64{p.Fog, p.Castle, product}
	x := make([]float64, len(c.order))
	for i, idx := range c.order {
		x[i] = canonical[idx]
	}
	v, err := c.model.Predict(x)
	if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
		return product, SourceFallback
	}
	return v, SourceCalibrator
}

func calibrationOrder(names []string) ([]int, error) {
	if len(names) != len(CalibrationFeatureNames) {
		return nil, fmt.Errorf("calibrator feature_names %v: want a permutation of %v", names, CalibrationFeatureNames)
	}
	seen := make(map[string]bool, len(names))
	order := make([]int, len(names))
	for i, n := range names {
		idx := -1
		for j, c := range CalibrationFeatureNames {
			if c == n {
				idx = j
			}
		}
		if idx < 0 || seen[n] {
			return nil, fmt.Errorf("calibrator feature_names %v: want a permutation of %v", names, CalibrationFeatureNames)
		}
		seen[n] = true
		order[i] = idx
	}
	return order, nil
}
