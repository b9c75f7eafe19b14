// Package engine is the entry point the gateway talks to: it scores a
// snapshot of candidates, picks some of them and ingests the outcomes of the
// requests sent to them.
package engine

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/edgeandnode/candidate-selection/internal/config"
	selerrors "github.com/edgeandnode/candidate-selection/internal/errors"
	"github.com/edgeandnode/candidate-selection/internal/logging"
	"github.com/edgeandnode/candidate-selection/internal/observability"
	"github.com/edgeandnode/candidate-selection/internal/selection/criteria"
	"github.com/edgeandnode/candidate-selection/internal/selection/ledger"
	"github.com/edgeandnode/candidate-selection/internal/selection/policy"
	"github.com/edgeandnode/candidate-selection/internal/selection/scorer"
	"github.com/edgeandnode/candidate-selection/internal/selection/stats"
)

// Candidate is one selectable backend with the raw attribute values the
// caller observed for it this round. Attributes are keyed by criterion name
// and only read for criteria whose source is "attribute".
type Candidate struct {
	ID         string
	Attributes map[string]float64
}

// Skip reasons reported in SelectionResult.Skipped.
const (
	SkipEmptyID      = "empty_id"
	SkipDuplicate    = "duplicate"
	SkipInvalidValue = "invalid_value"
	SkipCircuitOpen  = "circuit_open"
)

// Skip is a candidate left out of a round.
type Skip struct {
	ID     string
	Reason string
	Err    error
}

// ScoredCandidate is a candidate that made it through validation, with the
// inputs and result of its utility computation.
type ScoredCandidate struct {
	ID            string
	Utility       float64
	Raw           map[string]float64
	Contributions []scorer.Contribution
	Stats         stats.Snapshot
}

// Selected is one chosen candidate, in selection order.
type Selected struct {
	ID          string
	Utility     float64
	Probability float64
}

// Expected describes the combined outcome of sending a request to every
// selected candidate and using the first successful response.
type Expected struct {
	SuccessRate float64
	Latency     time.Duration
}

// SelectionResult is the outcome of one selection round.
type SelectionResult struct {
	// ID correlates later outcome reports with this round.
	ID       string
	Mode     policy.Mode
	Selected []Selected
	Scored   []ScoredCandidate
	Skipped  []Skip
	Expected Expected
}

// IDs returns the selected candidate ids in selection order.
func (r *SelectionResult) IDs() []string {
	ids := make([]string, len(r.Selected))
	for i, s := range r.Selected {
		ids[i] = s.ID
	}
	return ids
}

// Option configures optional collaborators.
type Option func(*options)

type options struct {
	logger      logging.Logger
	metrics     *observability.MetricsCollector
	poolMetrics *observability.PoolMetrics
	tracer      trace.Tracer
	now         func() time.Time
	rnd         policy.Rand
}

// WithLogger sets the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records selection and outcome metrics.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithPoolMetrics records registry size and breaker activity.
func WithPoolMetrics(metrics *observability.PoolMetrics) Option {
	return func(o *options) { o.poolMetrics = metrics }
}

// WithTracer traces selections and outcome reports.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithClock replaces time.Now for decay, breakers and the ledger.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRand replaces the exploration RNG. It overrides the configured seed.
func WithRand(rnd policy.Rand) Option {
	return func(o *options) { o.rnd = rnd }
}

// Engine scores and selects candidates. All methods are safe for concurrent
// use; per-candidate state is guarded per record, never pool-wide.
type Engine struct {
	cfg      config.Config
	criteria []*criteria.Criterion
	scorer   *scorer.Scorer
	policy   *policy.Policy
	registry *stats.Registry
	ledger   *ledger.Ledger
	breakers *selerrors.CircuitBreakerManager

	logger      logging.Logger
	metrics     *observability.MetricsCollector
	poolMetrics *observability.PoolMetrics
	tracer      trace.Tracer
	now         func() time.Time
}

// New validates cfg and builds an engine. Configuration problems are
// reported here and never at selection time.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if logging.IsNil(o.logger) {
		o.logger = logging.NewComponentLogger("selection")
	}
	if o.tracer == nil {
		o.tracer = observability.NoopTracer()
	}
	if o.rnd == nil {
		if cfg.Seed != 0 {
			o.rnd = policy.NewSeededRand(cfg.Seed)
		} else {
			o.rnd = policy.GlobalRand()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	built, err := criteria.Build(cfg.Criteria)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(built))
	weights := make([]float64, len(built))
	for i, cr := range built {
		names[i] = cr.Name()
		weights[i] = cr.Weight()
	}
	sc, err := scorer.New(names, weights, cfg.ScoreFloor)
	if err != nil {
		return nil, err
	}
	pol, err := policy.New(cfg.PolicyConfig(), o.rnd)
	if err != nil {
		return nil, err
	}
	factory, err := stats.NewFactory(cfg.Decay, cfg.DecayFactor)
	if err != nil {
		return nil, selerrors.NewInvalidConfig("decay: %v", err)
	}
	led, err := ledger.New(cfg.Ledger, o.now)
	if err != nil {
		return nil, selerrors.NewInvalidConfig("ledger: %v", err)
	}

	e := &Engine{
		cfg:         cfg,
		criteria:    built,
		scorer:      sc,
		policy:      pol,
		registry:    stats.NewRegistry(factory, cfg.Priors, o.now),
		ledger:      led,
		logger:      o.logger,
		metrics:     o.metrics,
		poolMetrics: o.poolMetrics,
		tracer:      o.tracer,
		now:         o.now,
	}

	if cfg.CircuitBreaker.Enabled {
		e.breakers = selerrors.NewCircuitBreakerManagerWithClock(selerrors.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
			Timeout:          cfg.CircuitBreaker.Timeout,
			OnStateChange: func(from, to selerrors.CircuitState, name string) {
				e.poolMetrics.RecordTransition(from.String(), to.String())
			},
		}, o.now, o.logger)
	}

	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Config { return e.cfg }

// Mode returns the effective selection mode.
func (e *Engine) Mode() policy.Mode { return e.policy.Mode() }

// Weights returns the normalized criterion weights keyed by criterion name.
func (e *Engine) Weights() map[string]float64 {
	weights := e.scorer.Weights()
	out := make(map[string]float64, len(weights))
	for i, cr := range e.criteria {
		out[cr.Name()] = weights[i]
	}
	return out
}

// Snapshot returns the current statistics for id. Unknown ids report the
// priors and known is false.
func (e *Engine) Snapshot(id string) (snap stats.Snapshot, known bool) {
	return e.registry.Snapshot(id)
}

// Candidates returns every candidate id with a stats record, sorted.
func (e *Engine) Candidates() []string {
	return e.registry.IDs()
}

// Forget drops the stats and breaker state for id. The engine never forgets
// candidates on its own; callers prune ids that left the pool.
func (e *Engine) Forget(id string) bool {
	if e.breakers != nil {
		e.breakers.Remove(id)
	}
	removed := e.registry.Forget(id)
	if removed {
		e.poolMetrics.SetTracked(e.registry.Len())
	}
	return removed
}

// BreakerState returns the breaker state for id. ok is false when breakers
// are disabled or id has none yet.
func (e *Engine) BreakerState(id string) (state selerrors.CircuitState, ok bool) {
	if e.breakers == nil {
		return selerrors.StateClosed, false
	}
	cb, ok := e.breakers.Lookup(id)
	if !ok {
		return selerrors.StateClosed, false
	}
	return cb.State(), true
}

// Breakers returns the state of every candidate breaker, sorted by id. It is
// empty when breakers are disabled.
func (e *Engine) Breakers() []selerrors.CircuitBreakerMetrics {
	if e.breakers == nil {
		return nil
	}
	return e.breakers.GetMetrics()
}

// ResetBreakers closes every candidate breaker, e.g. after the caller has
// confirmed an outage is over.
func (e *Engine) ResetBreakers() {
	if e.breakers != nil {
		e.breakers.ResetAll()
	}
}

// Selection returns the ledger entry for a recent selection id.
func (e *Engine) Selection(id string) (ledger.Entry, bool) {
	return e.ledger.Get(id)
}
