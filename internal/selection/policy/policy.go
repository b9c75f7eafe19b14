// Package policy turns scored candidates into an ordered selection.
package policy

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	selerrors "github.com/edgeandnode/candidate-selection/internal/errors"
)

// Mode selects how candidates are chosen from their utilities.
type Mode string

const (
	// BestOf picks the top-k by utility, ties broken by ascending id.
	BestOf Mode = "best-of"
	// Softmax samples without replacement with probability proportional to
	// utility^(1/temperature).
	Softmax Mode = "softmax"
	// EpsilonGreedy fills each slot with the best remaining candidate, or with
	// probability epsilon a uniformly random one.
	EpsilonGreedy Mode = "epsilon-greedy"
)

// ParseMode parses a mode name. Empty means best-of.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best-of", "best_of", "bestof", "best":
		return BestOf, nil
	case "softmax", "weighted-random", "weighted_random":
		return Softmax, nil
	case "epsilon-greedy", "epsilon_greedy", "egreedy":
		return EpsilonGreedy, nil
	default:
		return "", fmt.Errorf("unknown exploration mode %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Config tunes a Policy.
type Config struct {
	Mode        Mode
	Temperature float64
	Epsilon     float64
	// MinScoreCutoff drops candidates whose utility is below this fraction of
	// the round's best utility. Zero disables the cutoff.
	MinScoreCutoff float64
}

// Validate checks the knobs for the configured mode.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return selerrors.NewInvalidConfig("%v", err)
	}
	if math.IsNaN(c.Temperature) || c.Temperature < 0 {
		return selerrors.NewInvalidConfig("temperature %v must not be negative", c.Temperature)
	}
	if math.IsNaN(c.Epsilon) || c.Epsilon < 0 || c.Epsilon > 1 {
		return selerrors.NewInvalidConfig("epsilon %v must be in [0, 1]", c.Epsilon)
	}
	if math.IsNaN(c.MinScoreCutoff) || c.MinScoreCutoff < 0 || c.MinScoreCutoff > 1 {
		return selerrors.NewInvalidConfig("min score cutoff %v must be in [0, 1]", c.MinScoreCutoff)
	}
	return nil
}

// Scored is a candidate id with its utility.
type Scored struct {
	ID      string
	Utility float64
}

// Choice is one selected candidate.
type Choice struct {
	ID      string
	Utility float64
	// Probability is the chance this candidate had of filling its slot. It is
	// 1 for deterministic picks.
	Probability float64
}

// Policy chooses candidates. It is safe for concurrent use when its Rand is.
type Policy struct {
	cfg Config
	rnd Rand
}

// New validates cfg. A nil rnd uses the process-wide generator.
func New(cfg Config, rnd Rand) (*Policy, error) {
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, selerrors.NewInvalidConfig("%v", err)
	}
	cfg.Mode = mode
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rnd == nil {
		rnd = GlobalRand()
	}
	return &Policy{cfg: cfg, rnd: rnd}, nil
}

// Mode returns the effective mode.
func (p *Policy) Mode() Mode {
	if p.cfg.Mode == Softmax && p.cfg.Temperature <= 0 {
		return BestOf
	}
	return p.cfg.Mode
}

// Select returns up to k choices in selection order. k larger than the pool
// returns every eligible candidate. The input slice is not modified.
func (p *Policy) Select(scored []Scored, k int) ([]Choice, error) {
	if len(scored) == 0 {
		return nil, selerrors.NewEmptyPool(nil)
	}
	if k < 1 {
		k = 1
	}

	pool := p.applyCutoff(scored)
	if k > len(pool) {
		k = len(pool)
	}

	switch p.Mode() {
	case Softmax:
		return p.sampleSoftmax(pool, k), nil
	case EpsilonGreedy:
		return p.epsilonGreedy(pool, k), nil
	default:
		return bestOf(pool, k), nil
	}
}

func (p *Policy) applyCutoff(scored []Scored) []Scored {
	pool := slices.Clone(scored)
	if p.cfg.MinScoreCutoff <= 0 {
		return pool
	}
	best := maxUtility(pool)
	threshold := best * p.cfg.MinScoreCutoff
	kept := pool[:0]
	for _, s := range pool {
		if s.Utility >= threshold {
			kept = append(kept, s)
		}
	}
	return kept
}

func maxUtility(scored []Scored) float64 {
	best := math.Inf(-1)
	for _, s := range scored {
		if s.Utility > best {
			best = s.Utility
		}
	}
	return best
}

// Rank sorts by utility descending, then id ascending.
func Rank(scored []Scored) []Scored {
	out := slices.Clone(scored)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Utility != out[j].Utility {
			return out[i].Utility > out[j].Utility
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func bestOf(pool []Scored, k int) []Choice {
	ranked := Rank(pool)
	out := make([]Choice, 0, k)
	for _, s := range ranked[:k] {
		out = append(out, Choice{ID: s.ID, Utility: s.Utility, Probability: 1})
	}
	return out
}

// minLogWeight is ln of the smallest positive float64.
var minLogWeight = math.Log(math.SmallestNonzeroFloat64)

// MinTemperature is the lowest softmax temperature at which a candidate whose
// utility is floor times the best one still gets a representable weight.
func MinTemperature(floor float64) float64 {
	if math.IsNaN(floor) || floor <= 0 || floor >= 1 {
		return 0
	}
	return math.Log(floor) / minLogWeight
}

// SoftmaxWeights returns utility^(1/temperature) for each candidate, scaled so
// the best candidate has weight one. A positive utility never gets a zero
// weight.
func SoftmaxWeights(scored []Scored, temperature float64) []float64 {
	weights := make([]float64, len(scored))
	best := maxUtility(scored)
	if best <= 0 || temperature <= 0 {
		return weights
	}
	logBest := math.Log(best)
	for i, s := range scored {
		if s.Utility <= 0 {
			continue
		}
		w := math.Exp((math.Log(s.Utility) - logBest) / temperature)
		if w == 0 {
			w = math.SmallestNonzeroFloat64
		}
		weights[i] = w
	}
	return weights
}

// Probabilities returns the single-draw selection probability of each
// candidate under softmax sampling.
func Probabilities(scored []Scored, temperature float64) []float64 {
	weights := SoftmaxWeights(scored, temperature)
	var total float64
	for _, w := range weights {
		total += w
	}
	if total > 0 {
		for i := range weights {
			weights[i] /= total
		}
	}
	return weights
}

// sampleSoftmax draws k candidates without replacement. Each draw removes the
// winner by swapping it with the last live entry. Candidates with zero
// utility are appended in rank order once nothing else is left.
func (p *Policy) sampleSoftmax(pool []Scored, k int) []Choice {
	weights := SoftmaxWeights(pool, p.cfg.Temperature)
	candidates := slices.Clone(pool)

	out := make([]Choice, 0, k)
	remaining := len(candidates)
	for len(out) < k && remaining > 0 {
		var total float64
		for _, w := range weights[:remaining] {
			total += w
		}
		if total <= 0 {
			for _, c := range bestOf(candidates[:remaining], k-len(out)) {
				c.Probability = 0
				out = append(out, c)
			}
			break
		}

		r := p.rnd.Float64() * total
		var sum float64
		picked := remaining - 1
		for i := 0; i < remaining; i++ {
			sum += weights[i]
			if r < sum {
				picked = i
				break
			}
		}

		out = append(out, Choice{
			ID:          candidates[picked].ID,
			Utility:     candidates[picked].Utility,
			Probability: weights[picked] / total,
		})

		remaining--
		candidates[picked] = candidates[remaining]
		weights[picked] = weights[remaining]
	}
	return out
}

func (p *Policy) epsilonGreedy(pool []Scored, k int) []Choice {
	ranked := Rank(pool)
	out := make([]Choice, 0, k)
	for len(out) < k && len(ranked) > 0 {
		idx := 0
		prob := 1 - p.cfg.Epsilon + p.cfg.Epsilon/float64(len(ranked))
		if p.cfg.Epsilon > 0 && p.rnd.Float64() < p.cfg.Epsilon {
			idx = p.rnd.IntN(len(ranked))
			if idx != 0 {
				prob = p.cfg.Epsilon / float64(len(ranked))
			}
		}
		s := ranked[idx]
		out = append(out, Choice{ID: s.ID, Utility: s.Utility, Probability: prob})
		ranked = slices.Delete(ranked, idx, idx+1)
	}
	return out
}
