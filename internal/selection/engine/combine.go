package engine

import (
	"github.com/edgeandnode/candidate-selection/internal/logging"
	"github.com/edgeandnode/candidate-selection/internal/selection/criteria"
	"github.com/edgeandnode/candidate-selection/internal/selection/policy"
	"github.com/edgeandnode/candidate-selection/internal/selection/stats"
)

// keepImproving walks choices in selection order and drops every pick after
// the first that does not raise the combined utility of the picks kept
// before it.
func (e *Engine) keepImproving(logger logging.Logger, choices []policy.Choice, scored []ScoredCandidate, byID map[string]int, ranges []criteria.Range) []policy.Choice {
	if len(choices) < 2 {
		return choices
	}
	kept := []policy.Choice{choices[0]}
	members := []ScoredCandidate{scored[byID[choices[0].ID]]}
	best := e.combinedUtility(members, ranges)

	for _, c := range choices[1:] {
		trial := append(members[:len(members):len(members)], scored[byID[c.ID]])
		u := e.combinedUtility(trial, ranges)
		if u <= best {
			logger.Debug("dropping pick %s: combined utility %.6g does not improve on %.6g", c.ID, u, best)
			continue
		}
		members, best = trial, u
		kept = append(kept, c)
	}
	return kept
}

// combinedUtility scores a set of candidates queried in parallel as if it
// were one candidate. Success rate and latency come from the expected value
// of the set; attributes are averaged, weighted by the chance that each
// member's response is the one used.
func (e *Engine) combinedUtility(members []ScoredCandidate, ranges []criteria.Range) float64 {
	snaps := make([]stats.Snapshot, len(members))
	for i, m := range members {
		snaps[i] = m.Stats
	}
	probs := stats.ExpectedValueProbabilities(snaps)
	var total float64
	for _, p := range probs {
		total += p
	}

	values := make([]float64, len(e.criteria))
	for j, cr := range e.criteria {
		var raw float64
		switch cr.Source() {
		case criteria.FromSuccessRate:
			raw = stats.ExpectedSuccessRate(probs)
		case criteria.FromLatency:
			if total > 0 {
				raw = durationMillis(stats.ExpectedLatency(snaps, probs))
			} else {
				raw = slowestMillis(snaps)
			}
		default:
			raw = weightedAttribute(members, cr.Name(), probs, total)
		}
		values[j] = cr.Normalize(raw, ranges[j])
	}
	res, err := e.scorer.Score(values)
	if err != nil {
		return 0
	}
	return res.Utility
}

// slowestMillis stands in for the latency of a set none of whose members is
// expected to succeed.
func slowestMillis(snaps []stats.Snapshot) float64 {
	var slowest float64
	for _, s := range snaps {
		slowest = max(slowest, durationMillis(s.ResponseLatency()))
	}
	return slowest
}

func weightedAttribute(members []ScoredCandidate, name string, probs []float64, total float64) float64 {
	var sum float64
	if total <= 0 {
		for _, m := range members {
			sum += m.Raw[name]
		}
		return sum / float64(len(members))
	}
	for i, m := range members {
		sum += probs[i] * m.Raw[name]
	}
	return sum / total
}
