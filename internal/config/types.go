// Package config loads and validates selection engine configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/edgeandnode/candidate-selection/internal/observability"
	"github.com/edgeandnode/candidate-selection/internal/selection/criteria"
	"github.com/edgeandnode/candidate-selection/internal/selection/ledger"
	"github.com/edgeandnode/candidate-selection/internal/selection/policy"
	"github.com/edgeandnode/candidate-selection/internal/selection/stats"
)

// InvalidCandidatePolicy says what happens to a candidate with an unusable
// attribute value.
type InvalidCandidatePolicy string

const (
	// InvalidSkip excludes the candidate from the round and logs it.
	InvalidSkip InvalidCandidatePolicy = "skip"
	// InvalidFail aborts the round with InvalidCriterionValue.
	InvalidFail InvalidCandidatePolicy = "fail"
)

// ParseInvalidCandidatePolicy parses skip|fail. Empty means skip.
func ParseInvalidCandidatePolicy(s string) (InvalidCandidatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip", "exclude":
		return InvalidSkip, nil
	case "fail", "abort":
		return InvalidFail, nil
	default:
		return "", fmt.Errorf("unknown invalid candidate policy %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *InvalidCandidatePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseInvalidCandidatePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MultiPickPolicy says how picks after the first are accepted when
// selection_k is above one.
type MultiPickPolicy string

const (
	// MultiPickFill keeps every pick the policy returns, up to selection_k.
	MultiPickFill MultiPickPolicy = "fill"
	// MultiPickImprove keeps a later pick only if it raises the combined
	// utility of the picks kept so far.
	MultiPickImprove MultiPickPolicy = "improve"
)

// ParseMultiPickPolicy parses fill|improve. Empty means fill.
func ParseMultiPickPolicy(s string) (MultiPickPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fill", "all":
		return MultiPickFill, nil
	case "improve", "grow-only", "grow_only":
		return MultiPickImprove, nil
	default:
		return "", fmt.Errorf("unknown multi pick policy %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *MultiPickPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseMultiPickPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// BreakerConfig configures the per-candidate availability gate.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold" mapstructure:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Config is the full engine configuration.
type Config struct {
	Criteria []criteria.Config `yaml:"criteria" mapstructure:"criteria"`

	// DecayFactor is the EWMA lambda; larger values forget faster.
	DecayFactor float64           `yaml:"decay_factor" mapstructure:"decay_factor"`
	Decay       stats.DecayConfig `yaml:"decay" mapstructure:"decay"`

	ExplorationMode    policy.Mode     `yaml:"exploration_mode" mapstructure:"exploration_mode"`
	Temperature        float64         `yaml:"temperature" mapstructure:"temperature"`
	ExplorationEpsilon float64         `yaml:"exploration_epsilon" mapstructure:"exploration_epsilon"`
	MinScoreCutoff     float64         `yaml:"min_score_cutoff" mapstructure:"min_score_cutoff"`
	SelectionK         int             `yaml:"selection_k" mapstructure:"selection_k"`
	MultiPick          MultiPickPolicy `yaml:"multi_pick" mapstructure:"multi_pick"`
	ScoreFloor         float64         `yaml:"score_floor" mapstructure:"score_floor"`

	Priors            stats.Priors           `yaml:"priors" mapstructure:"priors"`
	StrictFeedback    bool                   `yaml:"strict_feedback" mapstructure:"strict_feedback"`
	InvalidCandidates InvalidCandidatePolicy `yaml:"invalid_candidates" mapstructure:"invalid_candidates"`
	// Seed fixes the exploration RNG when non-zero.
	Seed uint64 `yaml:"seed" mapstructure:"seed"`

	CircuitBreaker BreakerConfig        `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	Ledger         ledger.Config        `yaml:"ledger" mapstructure:"ledger"`
	Observability  observability.Config `yaml:"observability" mapstructure:"observability"`
}

// PolicyConfig extracts the selection policy knobs.
func (c Config) PolicyConfig() policy.Config {
	return policy.Config{
		Mode:           c.ExplorationMode,
		Temperature:    c.Temperature,
		Epsilon:        c.ExplorationEpsilon,
		MinScoreCutoff: c.MinScoreCutoff,
	}
}

// CriterionNames returns criterion names in configured order.
func (c Config) CriterionNames() []string {
	names := make([]string, len(c.Criteria))
	for i, cr := range c.Criteria {
		names[i] = cr.Name
	}
	return names
}
