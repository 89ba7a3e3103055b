package model

import (
	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// DemoArtifacts returns a small hand-tuned model set for local runs and
// tests. The numbers encode the usual fog physics (high humidity, calm air,
// overnight cooling) and are not trained on any data.
func DemoArtifacts() (fog, castle, calibrator *Artifact) {
	names := domain.FeatureNames[:]

	fog = &Artifact{
		Kind:         KindLogistic,
		FeatureNames: append([]string(nil), names...),
		Logistic: &Logistic{
			Intercept: -12,
			//                temp   hum   wind  cloud   rain  ptemp phum  pwind pcloud prain diff
			Coefficients: []float64{-0.05, 0.13, -0.6, -0.005, -0.4, 0, 0.02, 0, 0, 0, 0.25},
			Impute:       []float64{12, 80, 1.8, 55, 0.3, 12, 80, 1.8, 55, 0.3, 0},
		},
	}

	castle = &Artifact{
		Kind:         KindTreeEnsemble,
		FeatureNames: append([]string(nil), names...),
		Trees: &TreeEnsemble{
			BaseScore: -1.5,
			Trees: []Tree{
				{Nodes: []Node{
					{Feature: 1, Threshold: 92, Left: 1, Right: 2, DefaultLeft: true},
					{Leaf: true, Value: -1.2},
					{Feature: 2, Threshold: 2, Left: 3, Right: 4, DefaultLeft: false},
					{Leaf: true, Value: 1.4},
					{Leaf: true, Value: -0.3},
				}},
				{Nodes: []Node{
					{Feature: 3, Threshold: 40, Left: 1, Right: 2, DefaultLeft: true},
					{Leaf: true, Value: -0.4},
					{Feature: 10, Threshold: 1, Left: 3, Right: 4, DefaultLeft: true},
					{Leaf: true, Value: 0.2},
					{Leaf: true, Value: 0.9},
				}},
			},
		},
	}

	calibrator = &Artifact{
		Kind:         KindLogistic,
		FeatureNames: []string{domain.CalibrationFog, domain.CalibrationCastle, domain.CalibrationProduct},
		Logistic: &Logistic{
			Intercept:    -3,
			Coefficients: []float64{1.5, 1.0, 4.0},
		},
	}
	return fog, castle, calibrator
}
