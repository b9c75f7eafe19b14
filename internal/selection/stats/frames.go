package stats

import (
	"math"
	"time"
)

type frame struct {
	successes  float64
	failures   float64
	latencySum float64 // ms
	latencySq  float64 // ms^2
	// successLatency sums latencies of successful outcomes only.
	successLatency float64 // ms
}

func (f *frame) scale(retain float64) {
	f.successes *= retain
	f.failures *= retain
	f.latencySum *= retain
	f.latencySq *= retain
	f.successLatency *= retain
}

func (f *frame) total() float64 { return f.successes + f.failures }

// frameEstimator blends a fast and a slow frame. Each frame keeps
// (1-hz)^seconds of its mass as time passes; decay is applied lazily on the
// next access rather than by a ticker.
type frameEstimator struct {
	fastRetain float64
	slowRetain float64
	fastBias   float64

	fast, slow frame
	last       time.Time
}

func newFrameEstimator(fastHz, slowHz, fastBias float64) *frameEstimator {
	return &frameEstimator{
		fastRetain: 1 - fastHz,
		slowRetain: 1 - slowHz,
		fastBias:   fastBias,
	}
}

func (f *frameEstimator) decayTo(now time.Time) {
	if f.last.IsZero() {
		f.last = now
		return
	}
	elapsed := now.Sub(f.last).Seconds()
	if elapsed <= 0 {
		return
	}
	f.fast.scale(math.Pow(f.fastRetain, elapsed))
	f.slow.scale(math.Pow(f.slowRetain, elapsed))
	f.last = now
}

func (f *frameEstimator) Observe(now time.Time, success bool, latency time.Duration) {
	f.decayTo(now)
	x := millis(latency)
	for _, fr := range []*frame{&f.fast, &f.slow} {
		if success {
			fr.successes++
			fr.successLatency += x
		} else {
			fr.failures++
		}
		fr.latencySum += x
		fr.latencySq += x * x
	}
}

func (f *frameEstimator) Estimate(now time.Time) Estimate {
	f.decayTo(now)
	if f.slow.total() <= 0 {
		return Estimate{}
	}

	rate := func(fr frame) float64 {
		if fr.total() <= 0 {
			return 0
		}
		return fr.successes / fr.total()
	}
	mean := func(fr frame) float64 {
		if fr.total() <= 0 {
			return 0
		}
		return fr.latencySum / fr.total()
	}
	variance := func(fr frame) float64 {
		if fr.total() <= 0 {
			return 0
		}
		m := fr.latencySum / fr.total()
		return math.Max(fr.latencySq/fr.total()-m*m, 0)
	}

	// The fast frame decays to nothing when a candidate goes quiet; fall back
	// to the slow frame alone instead of blending in an empty one.
	bias := f.fastBias
	if f.fast.total() < 1e-9 {
		bias = 0
	}
	blend := func(fast, slow float64) float64 { return fast*bias + slow*(1-bias) }

	est := Estimate{
		SuccessRate:   blend(rate(f.fast), rate(f.slow)),
		Weight:        f.slow.total(),
		Latency:       fromMillis(blend(mean(f.fast), mean(f.slow))),
		LatencyStdDev: fromMillis(math.Sqrt(blend(variance(f.fast), variance(f.slow)))),
	}
	if f.slow.successes > 1e-9 {
		slowMean := f.slow.successLatency / f.slow.successes
		successBias := bias
		if f.fast.successes < 1e-9 {
			successBias = 0
		}
		fastMean := 0.0
		if successBias > 0 {
			fastMean = f.fast.successLatency / f.fast.successes
		}
		est.SuccessLatency = fromMillis(fastMean*successBias + slowMean*(1-successBias))
	}
	return est
}
