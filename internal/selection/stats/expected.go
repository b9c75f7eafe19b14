package stats

import (
	"math"
	"sort"
	"time"
)

// ExpectedValueProbabilities returns, for candidates queried in parallel where
// only the first successful response is used, the probability that each
// candidate's response is the one used. Candidates are ranked by the latency
// of their successful responses; a candidate wins when it succeeds and every
// faster one failed.
//
// With latencies [50, 20, 200]ms and success rates [0.99, 0.5, 0.8] the result
// is [0.495, 0.5, 0.004].
func ExpectedValueProbabilities(snaps []Snapshot) []float64 {
	order := make([]int, len(snaps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return snaps[order[a]].ResponseLatency() < snaps[order[b]].ResponseLatency()
	})

	probs := make([]float64, len(snaps))
	allFailed := 1.0
	for _, i := range order {
		p := snaps[i].SuccessRate
		probs[i] = allFailed * p
		allFailed *= 1 - p
	}
	return probs
}

// ExpectedSuccessRate is the probability that at least one candidate succeeds.
func ExpectedSuccessRate(probs []float64) float64 {
	var sum float64
	for _, p := range probs {
		sum += p
	}
	return math.Min(sum, 1)
}

// ExpectedLatency combines successful-response latencies weighted by probs as
// (Σ p/l)^-1, which keeps the result from shrinking toward zero when success
// rates are low.
func ExpectedLatency(snaps []Snapshot, probs []float64) time.Duration {
	var inv float64
	for i, s := range snaps {
		if probs[i] <= 0 {
			continue
		}
		ms := millis(s.ResponseLatency())
		if ms <= 0 {
			return 0
		}
		inv += probs[i] / ms
	}
	if inv <= 0 {
		return 0
	}
	return fromMillis(1 / inv)
}
