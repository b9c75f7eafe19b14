// Package scorer computes Weighted Product Model utilities.
//
// For normalized values v_i in [0,1] and weights w_i summing to one the
// utility is prod(v_i ^ w_i). It is accumulated as sum(w_i * ln v_i) and
// exponentiated once, so many small factors do not underflow. Values are
// lifted affinely onto [floor, 1] before the logarithm, so a single zero
// cannot erase a candidate and any value above zero still scores higher.
package scorer

import (
	"math"

	selerrors "github.com/edgeandnode/candidate-selection/internal/errors"
)

// DefaultFloor is the factor a criterion contributes for a normalized value
// of zero.
const DefaultFloor = 1e-6

// NormalizeWeights rescales raw weights to sum to one. Every weight must be a
// finite non-negative number and at least one must be positive.
func NormalizeWeights(raw []float64) ([]float64, error) {
	if len(raw) == 0 {
		return nil, selerrors.NewInvalidWeights("no weights given")
	}
	var sum float64
	for i, w := range raw {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, selerrors.NewInvalidWeights("weight %d is %v", i, w)
		}
		sum += w
	}
	if sum <= 0 {
		return nil, selerrors.NewInvalidWeights("all weights are zero")
	}
	out := make([]float64, len(raw))
	for i, w := range raw {
		out[i] = w / sum
	}
	return out, nil
}

// Contribution is one criterion's share of a utility, kept for diagnostics.
type Contribution struct {
	Criterion string  `json:"criterion"`
	Value     float64 `json:"value"`
	Weight    float64 `json:"weight"`
	// LogTerm is weight * ln(floor + (1-floor)*value).
	LogTerm float64 `json:"log_term"`
	// Floored is set when the lifted value is dominated by the floor.
	Floored bool `json:"floored,omitempty"`
}

// Result is the outcome of scoring one candidate.
type Result struct {
	Utility       float64        `json:"utility"`
	LogUtility    float64        `json:"log_utility"`
	Contributions []Contribution `json:"contributions,omitempty"`
}

// Scorer holds normalized weights for a fixed, ordered set of criteria.
type Scorer struct {
	names   []string
	weights []float64
	floor   float64
}

// New builds a scorer. names and weights are parallel slices. A floor of zero
// selects DefaultFloor.
func New(names []string, weights []float64, floor float64) (*Scorer, error) {
	if len(names) != len(weights) {
		return nil, selerrors.NewInvalidConfig("%d criteria but %d weights", len(names), len(weights))
	}
	if floor == 0 {
		floor = DefaultFloor
	}
	if math.IsNaN(floor) || floor <= 0 || floor >= 1 {
		return nil, selerrors.NewInvalidConfig("score floor %v must be in (0, 1)", floor)
	}
	normalized, err := NormalizeWeights(weights)
	if err != nil {
		return nil, err
	}
	return &Scorer{
		names:   append([]string(nil), names...),
		weights: normalized,
		floor:   floor,
	}, nil
}

// Weights returns the normalized weights in criterion order.
func (s *Scorer) Weights() []float64 {
	return append([]float64(nil), s.weights...)
}

// Floor returns the value floor.
func (s *Scorer) Floor() float64 { return s.floor }

// lift maps v from [0,1] onto [floor,1]. It is strictly increasing, maps 0 to
// the floor and 1 to exactly 1.
func (s *Scorer) lift(v float64) float64 {
	switch {
	case v >= 1:
		return 1
	case v <= 0:
		return s.floor
	}
	return s.floor + (1-s.floor)*v
}

// Score combines normalized values, one per criterion in construction order.
// Values outside [0,1] are clamped; NaN is rejected.
func (s *Scorer) Score(values []float64) (Result, error) {
	if len(values) != len(s.weights) {
		return Result{}, selerrors.New(selerrors.KindInvalidCriterionValue, "expected %d values, got %d", len(s.weights), len(values))
	}

	contributions := make([]Contribution, len(values))
	var logU float64
	for i, v := range values {
		if math.IsNaN(v) {
			return Result{}, selerrors.NewInvalidValue("", s.names[i], "normalized value is NaN")
		}
		c := Contribution{Criterion: s.names[i], Value: v, Weight: s.weights[i]}
		c.Floored = v < s.floor
		if s.weights[i] > 0 {
			c.LogTerm = s.weights[i] * math.Log(s.lift(v))
		}
		logU += c.LogTerm
		contributions[i] = c
	}

	return Result{
		Utility:       math.Exp(logU),
		LogUtility:    logU,
		Contributions: contributions,
	}, nil
}
