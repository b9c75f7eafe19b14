package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgeandnode/candidate-selection/internal/async"
	selerrors "github.com/edgeandnode/candidate-selection/internal/errors"
	"github.com/edgeandnode/candidate-selection/internal/logging"
	"github.com/edgeandnode/candidate-selection/internal/selection/engine"
)

// Dispatch says how a round uses the candidates it selected.
type Dispatch string

const (
	// DispatchParallel sends the request to every selected candidate and
	// keeps the fastest success.
	DispatchParallel Dispatch = "parallel"
	// DispatchFallback tries selected candidates one after another until
	// one succeeds.
	DispatchFallback Dispatch = "fallback"
)

// ParseDispatch parses a dispatch name. Empty means parallel.
func ParseDispatch(s string) (Dispatch, error) {
	switch s {
	case "", string(DispatchParallel):
		return DispatchParallel, nil
	case string(DispatchFallback):
		return DispatchFallback, nil
	default:
		return "", fmt.Errorf("unknown dispatch mode %q", s)
	}
}

// Config controls a simulation run.
type Config struct {
	Rounds   int
	Workers  int
	K        int
	Dispatch Dispatch
	// Seed makes outcomes reproducible per worker. Selection randomness is
	// governed by the engine.
	Seed uint64
	// LatencyJitter is the standard deviation of the log-normal factor
	// applied to each profile latency.
	LatencyJitter float64
	// Retry paces fallback attempts. Zero BaseDelay retries immediately.
	Retry selerrors.RetryConfig
}

// DefaultConfig returns a small single-pick run.
func DefaultConfig() Config {
	return Config{
		Rounds:        1000,
		Workers:       4,
		K:             1,
		Dispatch:      DispatchParallel,
		Seed:          1,
		LatencyJitter: 0.25,
	}
}

// CandidateReport summarises one candidate over a run.
type CandidateReport struct {
	ID         string
	Selections int
	Successes  int
	Share      float64
	// Estimated* are the engine's view after the run.
	EstimatedSuccessRate float64
	EstimatedLatency     time.Duration
}

// Report summarises a run.
type Report struct {
	Rounds      int
	Successes   int
	SuccessRate float64
	MeanLatency time.Duration
	Duration    time.Duration
	Candidates  []CandidateReport
}

// Simulator drives an engine with synthetic outcomes.
type Simulator struct {
	engine   *engine.Engine
	profiles map[string]Profile
	pool     []engine.Candidate
	logger   logging.Logger
}

// New builds a simulator over profiles.
func New(eng *engine.Engine, profiles []Profile, logger logging.Logger) (*Simulator, error) {
	if eng == nil {
		return nil, errors.New("simulator: engine is required")
	}
	if len(profiles) == 0 {
		return nil, errors.New("simulator: no profiles")
	}
	s := &Simulator{
		engine:   eng,
		profiles: make(map[string]Profile, len(profiles)),
		pool:     make([]engine.Candidate, 0, len(profiles)),
		logger:   logging.OrNop(logger),
	}
	for _, p := range profiles {
		s.profiles[p.ID] = p
		s.pool = append(s.pool, p.Candidate())
	}
	return s, nil
}

type tally struct {
	rounds     int
	successes  int
	latencySum time.Duration
	latencyN   int
	selections map[string]int
	wins       map[string]int
}

func newTally() *tally {
	return &tally{selections: make(map[string]int), wins: make(map[string]int)}
}

// Run executes cfg.Rounds selection rounds across cfg.Workers goroutines.
func (s *Simulator) Run(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.Rounds <= 0 {
		return nil, fmt.Errorf("simulator: rounds %d must be positive", cfg.Rounds)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.K <= 0 {
		cfg.K = 1
	}
	dispatch, err := ParseDispatch(string(cfg.Dispatch))
	if err != nil {
		return nil, err
	}
	cfg.Dispatch = dispatch

	started := time.Now()
	tallies := make([]*tally, cfg.Workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		rounds := cfg.Rounds / cfg.Workers
		if w < cfg.Rounds%cfg.Workers {
			rounds++
		}
		t := newTally()
		tallies[w] = t
		rnd := rand.New(rand.NewPCG(cfg.Seed, uint64(w)+1))
		g.Go(async.Guard(s.logger, fmt.Sprintf("simulator worker %d", w), func() error {
			for i := 0; i < rounds; i++ {
				if err := s.round(ctx, cfg, rnd, t); err != nil {
					return err
				}
			}
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := s.merge(tallies)
	report.Duration = time.Since(started)
	s.logger.Info("simulated %d rounds: success rate %.3f, mean latency %v",
		report.Rounds, report.SuccessRate, report.MeanLatency)
	return report, nil
}

func (s *Simulator) round(ctx context.Context, cfg Config, rnd *rand.Rand, t *tally) error {
	res, err := s.engine.SelectK(ctx, s.pool, cfg.K)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	t.rounds++
	for _, sel := range res.Selected {
		t.selections[sel.ID]++
	}

	switch cfg.Dispatch {
	case DispatchFallback:
		return s.fallback(ctx, cfg, rnd, res, t)
	default:
		return s.parallel(ctx, cfg, rnd, res, t)
	}
}

func (s *Simulator) parallel(ctx context.Context, cfg Config, rnd *rand.Rand, res *engine.SelectionResult, t *tally) error {
	best := time.Duration(-1)
	for _, sel := range res.Selected {
		ok, latency := s.outcome(sel.ID, cfg.LatencyJitter, rnd)
		if err := s.engine.ReportSelectionOutcome(ctx, res.ID, sel.ID, ok, latency); err != nil {
			return fmt.Errorf("report %s: %w", sel.ID, err)
		}
		if ok {
			t.wins[sel.ID]++
			if best < 0 || latency < best {
				best = latency
			}
		}
	}
	if best >= 0 {
		t.successes++
		t.latencySum += best
		t.latencyN++
	}
	return nil
}

func (s *Simulator) fallback(ctx context.Context, cfg Config, rnd *rand.Rand, res *engine.SelectionResult, t *tally) error {
	retry := cfg.Retry
	retry.MaxAttempts = len(res.Selected) - 1

	var elapsed time.Duration
	_, err := selerrors.Retry(ctx, retry, func(ctx context.Context, attempt int) error {
		id := res.Selected[attempt].ID
		ok, latency := s.outcome(id, cfg.LatencyJitter, rnd)
		elapsed += latency
		if err := s.engine.ReportSelectionOutcome(ctx, res.ID, id, ok, latency); err != nil {
			return fmt.Errorf("report %s: %w", id, err)
		}
		if !ok {
			return selerrors.Transient(fmt.Errorf("candidate %s failed", id))
		}
		t.wins[id]++
		return nil
	}, s.logger)

	switch {
	case err == nil:
		t.successes++
		t.latencySum += elapsed
		t.latencyN++
		return nil
	case selerrors.IsTransient(err):
		return nil
	default:
		return err
	}
}

// outcome draws a success flag and a latency for id.
func (s *Simulator) outcome(id string, jitter float64, rnd *rand.Rand) (bool, time.Duration) {
	p := s.profiles[id]
	ok := rnd.Float64() < p.SuccessRate
	latency := p.Latency
	if jitter > 0 {
		latency = time.Duration(float64(latency) * math.Exp(rnd.NormFloat64()*jitter))
	}
	return ok, latency
}

func (s *Simulator) merge(tallies []*tally) *Report {
	report := &Report{}
	selections := make(map[string]int)
	wins := make(map[string]int)
	var latencySum time.Duration
	var latencyN int
	for _, t := range tallies {
		report.Rounds += t.rounds
		report.Successes += t.successes
		latencySum += t.latencySum
		latencyN += t.latencyN
		for id, n := range t.selections {
			selections[id] += n
		}
		for id, n := range t.wins {
			wins[id] += n
		}
	}
	if report.Rounds > 0 {
		report.SuccessRate = float64(report.Successes) / float64(report.Rounds)
	}
	if latencyN > 0 {
		report.MeanLatency = latencySum / time.Duration(latencyN)
	}

	var totalSelections int
	for _, n := range selections {
		totalSelections += n
	}
	for id := range s.profiles {
		snap, _ := s.engine.Snapshot(id)
		cr := CandidateReport{
			ID:                   id,
			Selections:           selections[id],
			Successes:            wins[id],
			EstimatedSuccessRate: snap.SuccessRate,
			EstimatedLatency:     snap.Latency,
		}
		if totalSelections > 0 {
			cr.Share = float64(cr.Selections) / float64(totalSelections)
		}
		report.Candidates = append(report.Candidates, cr)
	}
	sort.Slice(report.Candidates, func(i, j int) bool {
		a, b := report.Candidates[i], report.Candidates[j]
		if a.Selections != b.Selections {
			return a.Selections > b.Selections
		}
		return a.ID < b.ID
	})
	return report
}

// Warmup feeds every profile n outcomes matching its success rate and mean
// latency, spread evenly, so a scoring round starts from informed stats.
func Warmup(ctx context.Context, eng *engine.Engine, profiles []Profile, n int) error {
	for _, p := range profiles {
		var acc float64
		for i := 0; i < n; i++ {
			acc += p.SuccessRate
			ok := acc >= 1
			if ok {
				acc--
			}
			if err := eng.ReportOutcome(ctx, p.ID, ok, p.Latency); err != nil {
				return fmt.Errorf("warmup %s: %w", p.ID, err)
			}
		}
	}
	return nil
}
