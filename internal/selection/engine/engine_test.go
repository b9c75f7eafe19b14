package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/errgroup"

	"github.com/edgeandnode/candidate-selection/internal/config"
	selerrors "github.com/edgeandnode/candidate-selection/internal/errors"
	"github.com/edgeandnode/candidate-selection/internal/logging"
	"github.com/edgeandnode/candidate-selection/internal/observability"
	"github.com/edgeandnode/candidate-selection/internal/selection/criteria"
	"github.com/edgeandnode/candidate-selection/internal/selection/policy"
	"github.com/edgeandnode/candidate-selection/internal/selection/stats"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func qualityCriteria() []criteria.Config {
	return []criteria.Config{{
		Name:          "quality",
		Weight:        1,
		Normalization: criteria.Normalization{Method: criteria.Threshold, Min: 0, Max: 1},
	}}
}

func newTestEngine(t *testing.T, mutate func(*config.Config), opts ...Option) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.ExplorationMode = policy.BestOf
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]Option{WithLogger(logging.Nop())}, opts...)
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	return e
}

func quality(id string, q float64) Candidate {
	return Candidate{ID: id, Attributes: map[string]float64{"quality": q}}
}

func TestNewFailsFastOnBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Criteria[0].Weight = 0
	cfg.Criteria[1].Weight = 0
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, selerrors.IsInvalidWeights(err))

	cfg = config.Default()
	cfg.SelectionK = 0
	_, err = New(cfg)
	assert.True(t, selerrors.IsInvalidConfig(err))
}

func TestHigherSuccessRateBeatsLowerLatency(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.Criteria = []criteria.Config{
			{Name: "success_rate", Weight: 2, Normalization: criteria.Normalization{Method: criteria.MinMax}},
			{Name: "latency", Direction: criteria.Minimize, Weight: 1, Normalization: criteria.Normalization{Method: criteria.MinMax}},
		}
	})

	candidates := []Candidate{
		{ID: "A", Attributes: map[string]float64{"success_rate": 0.99, "latency": 100}},
		{ID: "B", Attributes: map[string]float64{"success_rate": 0.5, "latency": 50}},
	}
	res, err := e.SelectK(context.Background(), candidates, 1)
	require.NoError(t, err)

	require.Len(t, res.Selected, 1)
	assert.Equal(t, "A", res.Selected[0].ID)
	require.Len(t, res.Scored, 2)
	assert.Greater(t, res.Scored[0].Utility, res.Scored[1].Utility)
	assert.Greater(t, res.Scored[1].Utility, 0.0)
	assert.Equal(t, policy.BestOf, res.Mode)
}

func TestEmptyPool(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.SelectK(context.Background(), nil, 1)
	require.Error(t, err)
	assert.True(t, selerrors.IsEmptyPool(err))
}

func TestBestOfIsDeterministic(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) { c.Criteria = qualityCriteria() })
	pool := []Candidate{quality("c", 0.5), quality("b", 0.8), quality("a", 0.8), quality("d", 0.1)}

	first, err := e.SelectK(context.Background(), pool, 3)
	require.NoError(t, err)
	second, err := e.SelectK(context.Background(), pool, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, first.IDs())
	assert.Equal(t, first.IDs(), second.IDs())
	assert.NotEqual(t, first.ID, second.ID)
}

func TestKLargerThanPoolReturnsAll(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) { c.Criteria = qualityCriteria() })
	res, err := e.SelectK(context.Background(), []Candidate{quality("a", 0.2), quality("b", 0.9)}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, res.IDs())

	res, err = e.SelectK(context.Background(), []Candidate{quality("a", 0.2), quality("b", 0.9)}, 0)
	require.NoError(t, err)
	assert.Len(t, res.Selected, 1)
}

func TestUnseenCandidateGetsPrior(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) { c.Priors.SuccessRate = 0.8 })

	snap, known := e.Snapshot("fresh")
	assert.False(t, known)
	assert.InDelta(t, 0.8, snap.SuccessRate, 1e-12)

	res, err := e.SelectK(context.Background(), []Candidate{{ID: "fresh"}}, 1)
	require.NoError(t, err)
	require.Len(t, res.Scored, 1)
	assert.InDelta(t, 0.8, res.Scored[0].Stats.SuccessRate, 1e-12)
	assert.Zero(t, res.Scored[0].Stats.Samples)
	assert.Greater(t, res.Scored[0].Utility, 0.0)

	// the selection attempt created the record
	assert.Equal(t, []string{"fresh"}, e.Candidates())
}

func TestLatencyPriorFallsBackToPoolMedian(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.ReportOutcome(ctx, "a", true, 100*time.Millisecond))
	require.NoError(t, e.ReportOutcome(ctx, "b", true, 300*time.Millisecond))

	res, err := e.SelectK(ctx, []Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}}, 3)
	require.NoError(t, err)

	byID := map[string]ScoredCandidate{}
	for _, s := range res.Scored {
		byID[s.ID] = s
	}
	assert.Equal(t, 200*time.Millisecond, byID["c"].Stats.Latency)
	assert.True(t, byID["c"].Stats.LatencyFromPrior)
	assert.InDelta(t, 200, byID["c"].Raw["latency"], 1e-9)
}

func TestConfiguredLatencyPriorWins(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) { c.Priors.Latency = 750 * time.Millisecond })
	ctx := context.Background()
	require.NoError(t, e.ReportOutcome(ctx, "a", true, 100*time.Millisecond))

	res, err := e.SelectK(ctx, []Candidate{{ID: "a"}, {ID: "b"}}, 2)
	require.NoError(t, err)
	for _, s := range res.Scored {
		if s.ID == "b" {
			assert.Equal(t, 750*time.Millisecond, s.Stats.Latency)
		}
	}
}

func TestInvalidCandidatesAreSkipped(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) { c.Criteria = qualityCriteria() })
	pool := []Candidate{
		quality("nan", math.NaN()),
		quality("neg", -1),
		{ID: "missing"},
		quality("ok", 0.4),
		quality("ok", 0.9),
		{ID: ""},
	}

	res, err := e.SelectK(context.Background(), pool, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res.IDs())
	assert.InDelta(t, 0.4, res.Selected[0].Utility, 1e-5)

	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[s.ID] = s.Reason
	}
	assert.Equal(t, SkipInvalidValue, reasons["nan"])
	assert.Equal(t, SkipInvalidValue, reasons["neg"])
	assert.Equal(t, SkipInvalidValue, reasons["missing"])
	assert.Equal(t, SkipDuplicate, reasons["ok"])
	assert.Equal(t, SkipEmptyID, reasons[""])
}

func TestInvalidCandidateFailsRoundWhenConfigured(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.Criteria = qualityCriteria()
		c.InvalidCandidates = config.InvalidFail
	})
	_, err := e.SelectK(context.Background(), []Candidate{quality("a", 0.5), quality("b", math.Inf(1))}, 1)
	require.Error(t, err)
	assert.True(t, selerrors.IsInvalidValue(err))

	var selErr *selerrors.SelectionError
	require.ErrorAs(t, err, &selErr)
	assert.Equal(t, "b", selErr.Candidate)
	assert.Equal(t, "quality", selErr.Criterion)
}

func TestAllSkippedIsEmptyPool(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) { c.Criteria = qualityCriteria() })
	_, err := e.SelectK(context.Background(), []Candidate{quality("a", math.NaN())}, 1)
	assert.True(t, selerrors.IsEmptyPool(err))
}

func TestFeedbackConvergesToSuccess(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.Priors = stats.Priors{SuccessRate: 0.5, Weight: 0}
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, e.ReportOutcome(ctx, "a", false, 50*time.Millisecond))
	}
	snap, _ := e.Snapshot("a")
	assert.Less(t, snap.SuccessRate, 0.01)

	observations := 0
	for snap.SuccessRate < 0.99 {
		require.Less(t, observations, 100, "success rate did not converge")
		require.NoError(t, e.ReportOutcome(ctx, "a", true, 50*time.Millisecond))
		observations++
		snap, _ = e.Snapshot("a")
	}
	assert.Equal(t, uint64(10+observations), snap.Samples)
}

func TestSoftmaxFrequencyMatchesProbability(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.Criteria = qualityCriteria()
		c.ExplorationMode = policy.Softmax
		c.Temperature = 1
	}, WithRand(policy.NewSeededRand(7)))

	pool := []Candidate{quality("a", 0.9), quality("b", 0.5), quality("c", 0.2)}
	ctx := context.Background()

	const trials = 20000
	counts := map[string]int{}
	var scored []policy.Scored
	for i := 0; i < trials; i++ {
		res, err := e.SelectK(ctx, pool, 1)
		require.NoError(t, err)
		counts[res.Selected[0].ID]++
		if scored == nil {
			for _, s := range res.Scored {
				scored = append(scored, policy.Scored{ID: s.ID, Utility: s.Utility})
			}
		}
	}

	probs := policy.Probabilities(scored, 1)
	for i, s := range scored {
		freq := float64(counts[s.ID]) / trials
		assert.InDelta(t, probs[i], freq, 0.02, "candidate %s", s.ID)
		assert.Positive(t, counts[s.ID])
	}
}

func TestExpectedValueOfMultiSelection(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.Criteria = qualityCriteria()
		c.Priors = stats.Priors{SuccessRate: 1, Weight: 0}
	})
	ctx := context.Background()
	require.NoError(t, e.ReportOutcome(ctx, "a", true, 50*time.Millisecond))
	require.NoError(t, e.ReportOutcome(ctx, "b", false, 20*time.Millisecond))

	res, err := e.SelectK(ctx, []Candidate{quality("a", 0.7), quality("b", 0.7)}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.IDs())
	assert.InDelta(t, 1.0, res.Expected.SuccessRate, 1e-9)
	assert.InDelta(t, float64(50*time.Millisecond), float64(res.Expected.Latency), float64(time.Microsecond))
}

func TestStrictFeedback(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.Criteria = qualityCriteria()
		c.StrictFeedback = true
	})
	ctx := context.Background()

	err := e.ReportOutcome(ctx, "ghost", true, time.Millisecond)
	require.Error(t, err)
	assert.True(t, selerrors.IsUnknownCandidate(err))
	assert.Empty(t, e.Candidates())

	res, err := e.SelectK(ctx, []Candidate{quality("a", 0.9), quality("b", 0.1)}, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, res.IDs())

	require.NoError(t, e.ReportOutcome(ctx, "b", true, time.Millisecond))

	err = e.ReportSelectionOutcome(ctx, res.ID, "b", true, time.Millisecond)
	assert.True(t, selerrors.IsUnknownCandidate(err))
	err = e.ReportSelectionOutcome(ctx, "no-such-selection", "a", true, time.Millisecond)
	assert.True(t, selerrors.IsUnknownCandidate(err))

	require.NoError(t, e.ReportSelectionOutcome(ctx, res.ID, "a", true, 20*time.Millisecond))
	entry, ok := e.Selection(res.ID)
	require.True(t, ok)
	assert.Equal(t, 1, entry.Reported["a"])

	snap, known := e.Snapshot("a")
	assert.True(t, known)
	assert.Equal(t, uint64(1), snap.Samples)
}

func TestLenientSelectionOutcomeStillRecords(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.ReportSelectionOutcome(context.Background(), "unknown", "a", false, time.Millisecond))
	snap, known := e.Snapshot("a")
	assert.True(t, known)
	assert.Equal(t, uint64(1), snap.Samples)
}

func TestReportOutcomeRejectsBadInput(t *testing.T) {
	e := newTestEngine(t, nil)
	err := e.ReportOutcome(context.Background(), "a", true, -time.Second)
	assert.True(t, selerrors.IsInvalidValue(err))
	err = e.ReportOutcome(context.Background(), "", true, time.Second)
	assert.True(t, selerrors.IsUnknownCandidate(err))
	assert.Empty(t, e.Candidates())
}

func TestForget(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.ReportOutcome(context.Background(), "a", true, time.Millisecond))
	assert.True(t, e.Forget("a"))
	assert.False(t, e.Forget("a"))
	_, known := e.Snapshot("a")
	assert.False(t, known)
}

func gaugeOrCounter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if !labelsMatch(m.GetLabel(), labels) {
				continue
			}
			if family.GetType() == dto.MetricType_GAUGE {
				return m.GetGauge().GetValue()
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, p := range pairs {
			if p.GetName() == k && p.GetValue() == v {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestCircuitBreakerGate(t *testing.T) {
	clock := newFakeClock()
	reg := prometheus.NewRegistry()
	e := newTestEngine(t, func(c *config.Config) {
		c.Criteria = qualityCriteria()
		c.CircuitBreaker = config.BreakerConfig{Enabled: true, FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}
	}, WithClock(clock.Now), WithPoolMetrics(observability.NewPoolMetricsWithRegisterer(reg)))
	ctx := context.Background()
	pool := []Candidate{quality("a", 0.9), quality("b", 0.1)}

	require.NoError(t, e.ReportOutcome(ctx, "a", false, time.Millisecond))
	state, ok := e.BreakerState("a")
	require.True(t, ok)
	assert.Equal(t, selerrors.StateOpen, state)

	res, err := e.SelectK(ctx, pool, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.IDs())
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipCircuitOpen, res.Skipped[0].Reason)

	// every breaker open: the gate steps aside
	require.NoError(t, e.ReportOutcome(ctx, "b", false, time.Millisecond))
	res, err = e.SelectK(ctx, pool, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.IDs())

	clock.Advance(time.Minute)
	res, err = e.SelectK(ctx, pool, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.IDs())
	state, _ = e.BreakerState("a")
	assert.Equal(t, selerrors.StateHalfOpen, state)

	require.NoError(t, e.ReportOutcome(ctx, "a", true, time.Millisecond))
	state, _ = e.BreakerState("a")
	assert.Equal(t, selerrors.StateClosed, state)

	assert.Equal(t, 2.0, gaugeOrCounter(t, reg, "candsel_pool_tracked_candidates", nil))
	assert.Equal(t, 1.0, gaugeOrCounter(t, reg, "candsel_pool_breaker_exclusions_total", map[string]string{"candidate": "a"}))
	assert.Equal(t, 2.0, gaugeOrCounter(t, reg, "candsel_pool_breaker_transitions_total", map[string]string{"from": "closed", "to": "open"}))

	breakers := e.Breakers()
	require.Len(t, breakers, 2)
	assert.Equal(t, "a", breakers[0].Name)
	assert.Equal(t, "b", breakers[1].Name)
	assert.NotEqual(t, selerrors.StateClosed, breakers[1].State)

	e.ResetBreakers()
	for _, b := range e.Breakers() {
		assert.Equal(t, selerrors.StateClosed, b.State, b.Name)
	}
}

func TestBreakersDisabledByDefault(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.ReportOutcome(context.Background(), "a", false, time.Millisecond))
	_, ok := e.BreakerState("a")
	assert.False(t, ok)
	assert.Empty(t, e.Breakers())
	e.ResetBreakers()
}

func TestConcurrentSelectAndReport(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.ExplorationMode = policy.Softmax
		c.SelectionK = 2
	}, WithRand(policy.NewSeededRand(1)))

	pool := make([]Candidate, 8)
	for i := range pool {
		pool[i] = Candidate{ID: fmt.Sprintf("node-%d", i)}
	}

	const workers, rounds = 8, 200
	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for r := 0; r < rounds; r++ {
				res, err := e.Select(ctx, pool)
				if err != nil {
					return err
				}
				for i, id := range res.IDs() {
					if err := e.ReportSelectionOutcome(ctx, res.ID, id, i == 0, time.Duration(10+r)*time.Millisecond); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var total uint64
	for _, id := range e.Candidates() {
		snap, known := e.Snapshot(id)
		require.True(t, known)
		assert.GreaterOrEqual(t, snap.SuccessRate, 0.0)
		assert.LessOrEqual(t, snap.SuccessRate, 1.0)
		total += snap.Samples
	}
	assert.Equal(t, uint64(workers*rounds*2), total)
	assert.Len(t, e.Candidates(), len(pool))
}

func TestMetricsAndTracing(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewMetricsCollectorWithRegistry(observability.MetricsConfig{Enabled: true}, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = collector.Shutdown(context.Background()) })

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	e := newTestEngine(t, func(c *config.Config) { c.Criteria = qualityCriteria() },
		WithMetrics(collector), WithTracer(provider.Tracer("test")))
	ctx := context.Background()

	res, err := e.SelectK(ctx, []Candidate{quality("a", 0.5), quality("b", math.NaN())}, 1)
	require.NoError(t, err)
	require.NoError(t, e.ReportSelectionOutcome(ctx, res.ID, "a", true, 5*time.Millisecond))
	_, err = e.SelectK(ctx, nil, 1)
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	totals := map[string]float64{}
	for _, family := range families {
		if family.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range family.GetMetric() {
			for prefix := range map[string]struct{}{
				"candsel_selection_requests": {},
				"candsel_selection_skipped":  {},
				"candsel_outcome_reports":    {},
			} {
				if strings.HasPrefix(family.GetName(), prefix) {
					totals[prefix] += m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 2.0, totals["candsel_selection_requests"])
	assert.Equal(t, 1.0, totals["candsel_selection_skipped"])
	assert.Equal(t, 1.0, totals["candsel_outcome_reports"])

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, observability.SpanSelect, spans[0].Name())
	assert.Equal(t, observability.SpanReportOutcome, spans[1].Name())
	for _, kv := range spans[1].Attributes() {
		if string(kv.Key) == observability.AttrSelectionID {
			assert.Equal(t, res.ID, kv.Value.AsString())
		}
	}
	assert.Equal(t, "Error", spans[2].Status().Code.String())
}

func TestWeights(t *testing.T) {
	e := newTestEngine(t, nil)
	w := e.Weights()
	assert.InDelta(t, 2.0/3, w["success_rate"], 1e-12)
	assert.InDelta(t, 1.0/3, w["latency"], 1e-12)
}

func TestMultiPickImproveDropsPicksThatAddNothing(t *testing.T) {
	newEngine := func(multi config.MultiPickPolicy) *Engine {
		e := newTestEngine(t, func(c *config.Config) {
			c.Decay.Strategy = stats.Window
			c.Priors = stats.Priors{SuccessRate: 1, Weight: 0}
			c.SelectionK = 3
			c.MultiPick = multi
		})
		ctx := context.Background()
		require.NoError(t, e.ReportOutcome(ctx, "a", true, 50*time.Millisecond))
		require.NoError(t, e.ReportOutcome(ctx, "a", false, 50*time.Millisecond))
		for i := 0; i < 10; i++ {
			require.NoError(t, e.ReportOutcome(ctx, "b", i != 0, 100*time.Millisecond))
		}
		// "dead" never succeeds, so it can never be the response that is used.
		require.NoError(t, e.ReportOutcome(ctx, "dead", false, 20*time.Millisecond))
		require.NoError(t, e.ReportOutcome(ctx, "dead", false, 20*time.Millisecond))
		return e
	}
	pool := []Candidate{{ID: "a"}, {ID: "b"}, {ID: "dead"}}

	filled, err := newEngine(config.MultiPickFill).Select(context.Background(), pool)
	require.NoError(t, err)
	assert.Len(t, filled.Selected, 3)

	e := newEngine(config.MultiPickImprove)
	res, err := e.Select(context.Background(), pool)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, res.IDs())
	assert.InDelta(t, 0.95, res.Expected.SuccessRate, 1e-9)
	assert.InDelta(t, filled.Expected.SuccessRate, res.Expected.SuccessRate, 1e-12)

	entry, ok := e.Selection(res.ID)
	require.True(t, ok)
	assert.Len(t, entry.Picks, 2)
}

func TestCombinedUtilityRewardsRedundancy(t *testing.T) {
	e := newTestEngine(t, nil)
	ranges := make([]criteria.Range, len(e.criteria))
	a := ScoredCandidate{ID: "a", Stats: stats.Snapshot{SuccessRate: 0.5, Latency: 50 * time.Millisecond}}
	b := ScoredCandidate{ID: "b", Stats: stats.Snapshot{SuccessRate: 0.9, Latency: 100 * time.Millisecond}}
	dead := ScoredCandidate{ID: "dead", Stats: stats.Snapshot{SuccessRate: 0, Latency: 20 * time.Millisecond}}

	alone := e.combinedUtility([]ScoredCandidate{a}, ranges)
	pair := e.combinedUtility([]ScoredCandidate{a, b}, ranges)
	assert.Greater(t, pair, alone)
	assert.Equal(t, pair, e.combinedUtility([]ScoredCandidate{a, b, dead}, ranges))
	assert.Positive(t, e.combinedUtility([]ScoredCandidate{dead}, ranges))
}
