package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/edgeandnode/candidate-selection/internal/config"
	selerrors "github.com/edgeandnode/candidate-selection/internal/errors"
	"github.com/edgeandnode/candidate-selection/internal/logging"
	"github.com/edgeandnode/candidate-selection/internal/observability"
	"github.com/edgeandnode/candidate-selection/internal/selection/criteria"
	"github.com/edgeandnode/candidate-selection/internal/selection/ledger"
	"github.com/edgeandnode/candidate-selection/internal/selection/policy"
	"github.com/edgeandnode/candidate-selection/internal/selection/stats"
)

// Select runs one round with the configured selection_k.
func (e *Engine) Select(ctx context.Context, candidates []Candidate) (*SelectionResult, error) {
	return e.SelectK(ctx, candidates, e.cfg.SelectionK)
}

// SelectK scores candidates and picks up to k of them. k below one is
// treated as one; k above the number of eligible candidates returns them all.
//
// Candidates with unusable attribute values are skipped or fail the round
// depending on invalid_candidates. An empty or fully skipped pool fails with
// EmptyPool. No state other than lazily created stats records is touched.
func (e *Engine) SelectK(ctx context.Context, candidates []Candidate, k int) (*SelectionResult, error) {
	start := time.Now()
	if k < 1 {
		k = 1
	}
	mode := e.policy.Mode()

	selectionID := ledger.NewID()
	ctx = observability.ContextWithSelectionID(ctx, selectionID)
	ctx, span := observability.StartSpan(ctx, e.tracer, observability.SpanSelect,
		observability.SelectAttrs(string(mode), len(candidates), k)...)
	defer span.End()
	logger := logging.FromContext(ctx, e.logger)

	result, err := e.selectRound(logger, selectionID, mode, candidates, k)
	status := "ok"
	if err != nil {
		status = selerrors.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(observability.ErrorAttrs(err)...)
	}

	var chosen map[string]float64
	if result != nil {
		chosen = make(map[string]float64, len(result.Selected))
		for _, s := range result.Selected {
			chosen[s.ID] = s.Utility
		}
		span.SetAttributes(
			attribute.Int(observability.AttrSelectedCount, len(result.Selected)),
			attribute.Int(observability.AttrSkippedCount, len(result.Skipped)),
		)
		e.recordSkips(ctx, result.Skipped)
	}
	e.metrics.RecordSelection(ctx, string(mode), status, time.Since(start), chosen)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) selectRound(logger logging.Logger, selectionID string, mode policy.Mode, candidates []Candidate, k int) (*SelectionResult, error) {
	if len(candidates) == 0 {
		return nil, selerrors.NewEmptyPool(errors.New("no candidates supplied"))
	}

	result := &SelectionResult{ID: selectionID, Mode: mode}

	pool := e.dedupe(logger, candidates, result)
	pool = e.gate(logger, pool, result)
	snaps := e.snapshots(pool)

	scored, ranges, err := e.score(logger, pool, snaps, result)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return result, selerrors.NewEmptyPool(errors.New("every candidate was skipped"))
	}
	result.Scored = scored

	input := make([]policy.Scored, len(scored))
	byID := make(map[string]int, len(scored))
	for i, s := range scored {
		input[i] = policy.Scored{ID: s.ID, Utility: s.Utility}
		byID[s.ID] = i
	}
	choices, err := e.policy.Select(input, k)
	if err != nil {
		return result, err
	}
	if e.cfg.MultiPick == config.MultiPickImprove {
		choices = e.keepImproving(logger, choices, scored, byID, ranges)
	}

	picks := make([]ledger.Pick, len(choices))
	chosenSnaps := make([]stats.Snapshot, len(choices))
	result.Selected = make([]Selected, len(choices))
	for i, c := range choices {
		result.Selected[i] = Selected{ID: c.ID, Utility: c.Utility, Probability: c.Probability}
		picks[i] = ledger.Pick{ID: c.ID, Utility: c.Utility}
		chosenSnaps[i] = scored[byID[c.ID]].Stats
	}
	probs := stats.ExpectedValueProbabilities(chosenSnaps)
	result.Expected = Expected{
		SuccessRate: stats.ExpectedSuccessRate(probs),
		Latency:     stats.ExpectedLatency(chosenSnaps, probs),
	}

	e.ledger.Record(selectionID, string(mode), picks)
	logger.Debug("selected %v from %d candidates (mode=%s k=%d skipped=%d)",
		result.IDs(), len(candidates), mode, k, len(result.Skipped))
	return result, nil
}

// dedupe drops empty and repeated ids, keeping the first occurrence, and
// creates stats records for ids seen for the first time.
func (e *Engine) dedupe(logger logging.Logger, candidates []Candidate, result *SelectionResult) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	pool := make([]Candidate, 0, len(candidates))
	created := false
	for _, c := range candidates {
		if c.ID == "" {
			result.Skipped = append(result.Skipped, Skip{Reason: SkipEmptyID})
			logger.Warn("skipping candidate with empty id")
			continue
		}
		if _, dup := seen[c.ID]; dup {
			result.Skipped = append(result.Skipped, Skip{ID: c.ID, Reason: SkipDuplicate})
			logger.Warn("duplicate candidate %s, keeping first occurrence", c.ID)
			continue
		}
		seen[c.ID] = struct{}{}
		pool = append(pool, c)
		if _, isNew := e.registry.GetOrCreate(c.ID); isNew {
			created = true
		}
	}
	if created {
		e.poolMetrics.SetTracked(e.registry.Len())
	}
	return pool
}

// gate drops candidates whose breaker is open. When every candidate is open
// the gate is bypassed so the round still has something to choose from.
func (e *Engine) gate(logger logging.Logger, pool []Candidate, result *SelectionResult) []Candidate {
	if e.breakers == nil || len(pool) == 0 {
		return pool
	}
	open := make([]Skip, 0)
	allowed := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if err := e.breakers.Get(c.ID).Allow(); err != nil {
			open = append(open, Skip{ID: c.ID, Reason: SkipCircuitOpen, Err: err})
			continue
		}
		allowed = append(allowed, c)
	}
	if len(allowed) == 0 {
		logger.Warn("all %d candidates have open circuits, ignoring breakers for this round", len(pool))
		return pool
	}
	for _, s := range open {
		logger.Debug("excluding %s: %v", s.ID, s.Err)
		e.poolMetrics.RecordExclusion(s.ID)
	}
	result.Skipped = append(result.Skipped, open...)
	return allowed
}

// snapshots reads each candidate's stats. When no latency prior is
// configured, candidates without observed latency get the round's median.
func (e *Engine) snapshots(pool []Candidate) []stats.Snapshot {
	snaps := make([]stats.Snapshot, len(pool))
	for i, c := range pool {
		snaps[i], _ = e.registry.Snapshot(c.ID)
	}
	if e.registry.Priors().Latency > 0 {
		return snaps
	}
	median, ok := stats.MedianLatency(snaps)
	if !ok {
		return snaps
	}
	for i := range snaps {
		if snaps[i].LatencyFromPrior {
			snaps[i].Latency = median
		}
	}
	return snaps
}

func (e *Engine) score(logger logging.Logger, pool []Candidate, snaps []stats.Snapshot, result *SelectionResult) ([]ScoredCandidate, []criteria.Range, error) {
	type row struct {
		idx int
		raw []float64
	}
	rows := make([]row, 0, len(pool))
	for i, c := range pool {
		raw, err := e.rawValues(c, snaps[i])
		if err != nil {
			if e.cfg.InvalidCandidates == config.InvalidFail {
				return nil, nil, err
			}
			logger.Warn("skipping candidate %s: %v", c.ID, err)
			result.Skipped = append(result.Skipped, Skip{ID: c.ID, Reason: SkipInvalidValue, Err: err})
			continue
		}
		rows = append(rows, row{idx: i, raw: raw})
	}

	ranges := make([]criteria.Range, len(e.criteria))
	for j, cr := range e.criteria {
		if !cr.NeedsRange() {
			continue
		}
		for _, r := range rows {
			ranges[j].Include(r.raw[j])
		}
	}

	scored := make([]ScoredCandidate, 0, len(rows))
	values := make([]float64, len(e.criteria))
	for _, r := range rows {
		c := pool[r.idx]
		rawByName := make(map[string]float64, len(e.criteria))
		for j, cr := range e.criteria {
			values[j] = cr.Normalize(r.raw[j], ranges[j])
			rawByName[cr.Name()] = r.raw[j]
		}
		res, err := e.scorer.Score(values)
		if err != nil {
			if e.cfg.InvalidCandidates == config.InvalidFail {
				return nil, nil, err
			}
			logger.Warn("skipping candidate %s: %v", c.ID, err)
			result.Skipped = append(result.Skipped, Skip{ID: c.ID, Reason: SkipInvalidValue, Err: err})
			continue
		}
		scored = append(scored, ScoredCandidate{
			ID:            c.ID,
			Utility:       res.Utility,
			Raw:           rawByName,
			Contributions: res.Contributions,
			Stats:         snaps[r.idx],
		})
	}
	return scored, ranges, nil
}

// rawValues resolves one raw value per criterion from the candidate's
// attributes or its statistics.
func (e *Engine) rawValues(c Candidate, snap stats.Snapshot) ([]float64, error) {
	raw := make([]float64, len(e.criteria))
	for j, cr := range e.criteria {
		var v float64
		switch cr.Source() {
		case criteria.FromSuccessRate:
			v = snap.SuccessRate
		case criteria.FromLatency:
			v = durationMillis(snap.Latency)
		default:
			attr, ok := c.Attributes[cr.Name()]
			if !ok {
				return nil, selerrors.NewInvalidValue(c.ID, cr.Name(), "attribute missing")
			}
			v = attr
		}
		if err := cr.Check(c.ID, v); err != nil {
			return nil, err
		}
		raw[j] = v
	}
	return raw, nil
}

func (e *Engine) recordSkips(ctx context.Context, skipped []Skip) {
	if len(skipped) == 0 {
		return
	}
	counts := make(map[string]int, 4)
	for _, s := range skipped {
		counts[s.Reason]++
	}
	for reason, n := range counts {
		e.metrics.RecordSkipped(ctx, reason, n)
	}
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
