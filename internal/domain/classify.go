package domain

import "fmt"

// EventLabel is the categorical outcome for a date.
type EventLabel string

const (
	LabelCastle  EventLabel = "Castle"
	LabelFogOnly EventLabel = "FogOnly"
	LabelNone    EventLabel = "None"
)

// Valid reports whether l is one of the three known labels.
func (l EventLabel) Valid() bool {
	switch l {
	case LabelCastle, LabelFogOnly, LabelNone:
		return true
	}
	return false
}

// LabelPolicy selects the thresholds used by EventClassifier.
type LabelPolicy string

const (
	// PolicyCalibrated decides on the event probability. Default.
	PolicyCalibrated LabelPolicy = "calibrated"
	// PolicyLegacy decides on the raw pair and ignores the event probability.
	PolicyLegacy LabelPolicy = "legacy"
)

// ParseLabelPolicy validates a configured policy name.
func ParseLabelPolicy(s string) (LabelPolicy, error) {
	switch p := LabelPolicy(s); p {
	case PolicyCalibrated, PolicyLegacy:
		return p, nil
	default:
		return "", fmt.Errorf("unknown label policy %q", s)
	}
}

// EventClassifier maps probabilities to an EventLabel under one policy.
type EventClassifier struct {
	policy LabelPolicy
}

// NewEventClassifier creates a classifier. An empty policy means PolicyCalibrated.
func NewEventClassifier(policy LabelPolicy) EventClassifier {
	if policy == "" {
		policy = PolicyCalibrated
	}
	return EventClassifier{policy: policy}
}

// Policy returns the active policy.
func (c EventClassifier) Policy() LabelPolicy {
	return c.policy
}

// Classify labels one date.
func (c EventClassifier) Classify(p ProbabilityPair, event float64) EventLabel {
	if c.policy == PolicyLegacy {
		return legacyLabel(p)
	}
	return CalibratedLabel(p.Fog, event)
}

// CalibratedLabel is the calibrated policy: Castle at event >= 0.5, else
// FogOnly at fog >= 0.5.
func CalibratedLabel(fog, event float64) EventLabel {
	switch {
	case event >= 0.5:
		return LabelCastle
	case fog >= 0.5:
		return LabelFogOnly
	default:
		return LabelNone
	}
}

func legacyLabel(p ProbabilityPair) EventLabel {
	switch {
	case p.Fog >= 0.7 && p.Castle >= 0.6:
		return LabelCastle
	case p.Fog >= 0.5:
		return LabelFogOnly
	default:
		return LabelNone
	}
}
