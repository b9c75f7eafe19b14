package config

import (
	"math"

	selerrors "github.com/edgeandnode/candidate-selection/internal/errors"
	"github.com/edgeandnode/candidate-selection/internal/selection/criteria"
	"github.com/edgeandnode/candidate-selection/internal/selection/policy"
	"github.com/edgeandnode/candidate-selection/internal/selection/scorer"
)

// Validate fails fast on anything the engine could not run with. Weight
// problems are reported as InvalidWeights, everything else as InvalidConfig.
func (c Config) Validate() error {
	built, err := criteria.Build(c.Criteria)
	if err != nil {
		return err
	}
	weights := make([]float64, len(built))
	for i, cr := range built {
		weights[i] = cr.Weight()
	}
	if _, err := scorer.NormalizeWeights(weights); err != nil {
		return err
	}

	if math.IsNaN(c.DecayFactor) || c.DecayFactor <= 0 || c.DecayFactor > 1 {
		return selerrors.NewInvalidConfig("decay_factor %v must be in (0, 1]", c.DecayFactor)
	}
	if err := c.Decay.Validate(); err != nil {
		return selerrors.NewInvalidConfig("decay: %v", err)
	}
	if err := c.PolicyConfig().Validate(); err != nil {
		return err
	}
	if c.SelectionK < 1 {
		return selerrors.NewInvalidConfig("selection_k %d must be at least 1", c.SelectionK)
	}
	if _, err := ParseMultiPickPolicy(string(c.MultiPick)); err != nil {
		return selerrors.NewInvalidConfig("%v", err)
	}
	if c.ScoreFloor != 0 && (math.IsNaN(c.ScoreFloor) || c.ScoreFloor < 0 || c.ScoreFloor >= 1) {
		return selerrors.NewInvalidConfig("score_floor %v must be in (0, 1)", c.ScoreFloor)
	}
	if c.ExplorationMode == policy.Softmax && c.Temperature > 0 {
		floor := c.ScoreFloor
		if floor == 0 {
			floor = scorer.DefaultFloor
		}
		if minT := policy.MinTemperature(floor); c.Temperature < minT {
			return selerrors.NewInvalidConfig("temperature %v below %.4g, the lowest that keeps floor-scored candidates selectable", c.Temperature, minT)
		}
	}
	if err := c.Priors.Validate(); err != nil {
		return selerrors.NewInvalidConfig("priors: %v", err)
	}
	if _, err := ParseInvalidCandidatePolicy(string(c.InvalidCandidates)); err != nil {
		return selerrors.NewInvalidConfig("%v", err)
	}
	if c.CircuitBreaker.FailureThreshold < 0 || c.CircuitBreaker.SuccessThreshold < 0 || c.CircuitBreaker.Timeout < 0 {
		return selerrors.NewInvalidConfig("circuit_breaker thresholds and timeout must not be negative")
	}
	if c.Ledger.Size < 0 || c.Ledger.TTL < 0 {
		return selerrors.NewInvalidConfig("ledger size and ttl must not be negative")
	}
	if err := c.Observability.Validate(); err != nil {
		return selerrors.NewInvalidConfig("observability: %v", err)
	}
	return nil
}
