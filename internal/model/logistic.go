package model

import (
	"fmt"
	"math"
)

// Logistic is a fitted logistic-regression classifier.
type Logistic struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	// Impute holds per-feature training means used in place of NaN inputs.
	// A model without it cannot score incomplete rows.
	Impute []float64 `json:"impute,omitempty"`
}

// Predict returns sigmoid(intercept + coefficients·x).
func (l *Logistic) Predict(x []float64) (float64, error) {
	if len(x) != len(l.Coefficients) {
		return 0, fmt.Errorf("logistic: got %d features, want %d", len(x), len(l.Coefficients))
	}
	z := l.Intercept
	for i, v := range x {
		if math.IsNaN(v) {
			if !l.HandlesMissing() {
				return 0, fmt.Errorf("logistic: feature %d is missing and no imputation is stored", i)
			}
			v = l.Impute[i]
		}
		z += l.Coefficients[i] * v
	}
	return sigmoid(z), nil
}

// HandlesMissing reports whether imputation values are available.
func (l *Logistic) HandlesMissing() bool {
	return len(l.Impute) == len(l.Coefficients) && len(l.Impute) > 0
}

func (l *Logistic) validate(n int) error {
	if len(l.Coefficients) != n {
		return fmt.Errorf("logistic: %d coefficients for %d features", len(l.Coefficients), n)
	}
	if len(l.Impute) != 0 && len(l.Impute) != n {
		return fmt.Errorf("logistic: %d impute values for %d features", len(l.Impute), n)
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
