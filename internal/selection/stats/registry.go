package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Registry maps candidate ids to records. Lookups and inserts go through a
// sync.Map so selection never takes a pool-wide lock.
type Registry struct {
	records sync.Map // string -> *Record
	size    atomic.Int64

	factory Factory
	priors  Priors
	now     func() time.Time
}

// NewRegistry creates an empty registry. A nil clock uses time.Now.
func NewRegistry(factory Factory, priors Priors, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{factory: factory, priors: priors, now: now}
}

// Priors returns the priors snapshots are smoothed toward.
func (r *Registry) Priors() Priors { return r.priors }

// GetOrCreate returns the record for id, creating it on first sight.
func (r *Registry) GetOrCreate(id string) (rec *Record, created bool) {
	if v, ok := r.records.Load(id); ok {
		return v.(*Record), false
	}
	v, loaded := r.records.LoadOrStore(id, newRecord(id, r.factory()))
	if !loaded {
		r.size.Add(1)
	}
	return v.(*Record), !loaded
}

// Lookup returns the record for id without creating one.
func (r *Registry) Lookup(id string) (*Record, bool) {
	v, ok := r.records.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Record), true
}

// Observe records an outcome for id, creating the record if needed.
func (r *Registry) Observe(id string, success bool, latency time.Duration) (created bool) {
	rec, created := r.GetOrCreate(id)
	rec.Observe(r.now(), success, latency)
	return created
}

// Snapshot returns the statistics for id. Unknown ids report the priors.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	rec, ok := r.Lookup(id)
	if !ok {
		return Snapshot{
			ID:               id,
			SuccessRate:      r.priors.SuccessRate,
			Latency:          r.priors.Latency,
			LatencyFromPrior: true,
		}, false
	}
	return rec.Snapshot(r.now(), r.priors), true
}

// Forget drops the record for id. The registry never calls this itself.
func (r *Registry) Forget(id string) bool {
	if _, loaded := r.records.LoadAndDelete(id); loaded {
		r.size.Add(-1)
		return true
	}
	return false
}

// IDs returns every tracked id in sorted order.
func (r *Registry) IDs() []string {
	var ids []string
	r.records.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked candidates.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

// MedianLatency returns the median latency across snapshots that carry
// observed latency. ok is false when none do.
func MedianLatency(snaps []Snapshot) (time.Duration, bool) {
	observed := make([]time.Duration, 0, len(snaps))
	for _, s := range snaps {
		if !s.LatencyFromPrior {
			observed = append(observed, s.Latency)
		}
	}
	if len(observed) == 0 {
		return 0, false
	}
	sort.Slice(observed, func(i, j int) bool { return observed[i] < observed[j] })
	mid := len(observed) / 2
	if len(observed)%2 == 1 {
		return observed[mid], true
	}
	return (observed[mid-1] + observed[mid]) / 2, true
}
