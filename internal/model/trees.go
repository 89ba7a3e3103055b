package model

import (
	"errors"
	"fmt"
	"math"
)

// Node is one node of a binary decision tree. Leaves carry Value; split nodes
// send x[Feature] <= Threshold left. NaN follows DefaultLeft.
type Node struct {
	Leaf        bool    `json:"leaf,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Feature     int     `json:"feature,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
	Left        int     `json:"left,omitempty"`
	Right       int     `json:"right,omitempty"`
	DefaultLeft bool    `json:"default_left,omitempty"`
}

// Tree is a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// TreeEnsemble is a gradient-boosted tree classifier. The probability is
// sigmoid(BaseScore + sum of leaf values).
type TreeEnsemble struct {
	BaseScore float64 `json:"base_score"`
	Trees     []Tree  `json:"trees"`
}

// Predict walks every tree and returns the positive-class probability.
func (e *TreeEnsemble) Predict(x []float64) (float64, error) {
	raw := e.BaseScore
	for i, t := range e.Trees {
		v, err := t.eval(x)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		raw += v
	}
	return sigmoid(raw), nil
}

// HandlesMissing is always true; every split carries a default direction.
func (e *TreeEnsemble) HandlesMissing() bool {
	return true
}

func (t Tree) eval(x []float64) (float64, error) {
	i := 0
	// a valid tree reaches a leaf in at most len(Nodes) steps
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value, nil
		}
		if n.Feature >= len(x) {
			return 0, fmt.Errorf("split on feature %d, row has %d", n.Feature, len(x))
		}
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.DefaultLeft {
				i = n.Left
			} else {
				i = n.Right
			}
		case v <= n.Threshold:
			i = n.Left
		default:
			i = n.Right
		}
	}
	return 0, errors.New("tree does not terminate")
}

func (e *TreeEnsemble) validate(n int) error {
	if len(e.Trees) == 0 {
		return errors.New("tree ensemble has no trees")
	}
	for ti, t := range e.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, node := range t.Nodes {
			if node.Leaf {
				continue
			}
			if node.Feature < 0 || node.Feature >= n {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, node.Feature)
			}
			if node.Left <= ni || node.Left >= len(t.Nodes) || node.Right <= ni || node.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d: children must point forward inside the tree", ti, ni)
			}
		}
	}
	return nil
}
