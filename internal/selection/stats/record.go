package stats

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Priors are reported for candidates with no observations and blended into
// the success rate of lightly observed ones.
type Priors struct {
	SuccessRate float64 `yaml:"success_rate" mapstructure:"success_rate"`
	// Latency of zero means "use the median of observed candidates".
	Latency time.Duration `yaml:"latency" mapstructure:"latency"`
	// Weight is the number of pseudo-observations the prior success rate is
	// worth. Zero disables smoothing once a candidate has data.
	Weight float64 `yaml:"weight" mapstructure:"weight"`
}

// DefaultPriors is optimistic: unseen candidates look fully reliable so they
// get explored.
func DefaultPriors() Priors {
	return Priors{SuccessRate: 1.0, Latency: 0, Weight: 1.0}
}

// Validate checks the prior values are usable.
func (p Priors) Validate() error {
	if math.IsNaN(p.SuccessRate) || p.SuccessRate < 0 || p.SuccessRate > 1 {
		return fmt.Errorf("prior success rate %v must be in [0, 1]", p.SuccessRate)
	}
	if p.Latency < 0 {
		return fmt.Errorf("prior latency %v must not be negative", p.Latency)
	}
	if math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) || p.Weight < 0 {
		return fmt.Errorf("prior weight %v must be a non-negative number", p.Weight)
	}
	return nil
}

// Snapshot is a read-only copy of a candidate's statistics.
type Snapshot struct {
	ID            string
	SuccessRate   float64
	Latency       time.Duration
	LatencyStdDev time.Duration
	Samples       uint64
	// Weight is the decayed effective sample count.
	Weight     float64
	LastUpdate time.Time
	// LatencyFromPrior is set when Latency did not come from observations.
	LatencyFromPrior bool
	// SuccessLatency is the mean latency of successful outcomes. Zero means
	// none were observed; ResponseLatency then falls back to Latency.
	SuccessLatency time.Duration
}

// ResponseLatency is how long a successful response from this candidate is
// expected to take.
func (s Snapshot) ResponseLatency() time.Duration {
	if s.SuccessLatency > 0 {
		return s.SuccessLatency
	}
	return s.Latency
}

// Record holds one candidate's estimator. Each record has its own lock, so
// updates to different candidates never contend.
type Record struct {
	id string

	mu         sync.Mutex
	est        Estimator
	samples    uint64
	lastUpdate time.Time
}

func newRecord(id string, est Estimator) *Record {
	return &Record{id: id, est: est}
}

// ID returns the candidate identifier.
func (r *Record) ID() string { return r.id }

// Observe folds one outcome into the record. Negative latencies count as zero.
func (r *Record) Observe(now time.Time, success bool, latency time.Duration) {
	if latency < 0 {
		latency = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.est.Observe(now, success, latency)
	r.samples++
	r.lastUpdate = now
}

// Snapshot returns the record's current estimate smoothed toward priors.
func (r *Record) Snapshot(now time.Time, priors Priors) Snapshot {
	r.mu.Lock()
	est := r.est.Estimate(now)
	samples := r.samples
	last := r.lastUpdate
	r.mu.Unlock()

	snap := Snapshot{
		ID:         r.id,
		Samples:    samples,
		Weight:     est.Weight,
		LastUpdate: last,
	}
	if samples == 0 || est.Weight <= 0 {
		snap.SuccessRate = priors.SuccessRate
		snap.Latency = priors.Latency
		snap.LatencyFromPrior = true
		return snap
	}

	snap.SuccessRate = (est.SuccessRate*est.Weight + priors.SuccessRate*priors.Weight) / (est.Weight + priors.Weight)
	snap.SuccessRate = math.Min(math.Max(snap.SuccessRate, 0), 1)
	snap.Latency = est.Latency
	snap.LatencyStdDev = est.LatencyStdDev
	snap.SuccessLatency = est.SuccessLatency
	return snap
}
