package stats

import (
	"math"
	"time"
)

// ewmaEstimator decays its counters by (1-lambda) on every observation. The
// latency mean and variance use alpha = 1/weight, so early samples are not
// biased toward zero and alpha converges to lambda.
type ewmaEstimator struct {
	lambda    float64
	weight    float64
	successes float64
	mean      float64 // ms
	variance  float64 // ms^2

	successWeight float64
	successMean   float64 // ms
}

func newEWMAEstimator(lambda float64) *ewmaEstimator {
	return &ewmaEstimator{lambda: lambda}
}

func (e *ewmaEstimator) Observe(_ time.Time, success bool, latency time.Duration) {
	retain := 1 - e.lambda
	e.weight = e.weight*retain + 1
	e.successes *= retain
	e.successWeight *= retain

	x := millis(latency)
	if success {
		e.successes++
		e.successWeight++
		e.successMean += (x - e.successMean) / e.successWeight
	}

	alpha := 1 / e.weight
	diff := x - e.mean
	incr := alpha * diff
	e.mean += incr
	e.variance = (1 - alpha) * (e.variance + diff*incr)
}

func (e *ewmaEstimator) Estimate(time.Time) Estimate {
	if e.weight == 0 {
		return Estimate{}
	}
	est := Estimate{
		SuccessRate:   e.successes / e.weight,
		Weight:        e.weight,
		Latency:       fromMillis(e.mean),
		LatencyStdDev: fromMillis(math.Sqrt(math.Max(e.variance, 0))),
	}
	if e.successWeight > 0 {
		est.SuccessLatency = fromMillis(e.successMean)
	}
	return est
}
