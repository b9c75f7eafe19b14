package stats

import (
	"math"
	"time"
)

type outcome struct {
	success bool
	latency time.Duration
}

// windowEstimator keeps the last size outcomes in a ring buffer.
type windowEstimator struct {
	ring  []outcome
	count int // filled slots
	idx   int // next write index
}

func newWindowEstimator(size int) *windowEstimator {
	return &windowEstimator{ring: make([]outcome, size)}
}

func (w *windowEstimator) Observe(_ time.Time, success bool, latency time.Duration) {
	w.ring[w.idx] = outcome{success: success, latency: latency}
	w.idx = (w.idx + 1) % len(w.ring)
	if w.count < len(w.ring) {
		w.count++
	}
}

func (w *windowEstimator) Estimate(time.Time) Estimate {
	if w.count == 0 {
		return Estimate{}
	}

	var successes, sum, sq, successSum float64
	for _, o := range w.ring[:w.count] {
		ms := millis(o.latency)
		if o.success {
			successes++
			successSum += ms
		}
		sum += ms
		sq += ms * ms
	}
	n := float64(w.count)
	mean := sum / n
	est := Estimate{
		SuccessRate:   successes / n,
		Weight:        n,
		Latency:       fromMillis(mean),
		LatencyStdDev: fromMillis(math.Sqrt(math.Max(sq/n-mean*mean, 0))),
	}
	if successes > 0 {
		est.SuccessLatency = fromMillis(successSum / successes)
	}
	return est
}
