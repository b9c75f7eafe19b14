// Package criteria defines the quality dimensions a candidate is scored on and
// the enumerated normalization strategies that map raw values into [0,1].
package criteria

import (
	"fmt"
	"math"
	"strings"

	selerrors "github.com/edgeandnode/candidate-selection/internal/errors"
)

// ---------------------------------------------------------------------------
// Direction
// ---------------------------------------------------------------------------

// Direction says whether larger raw values are better or worse.
type Direction string

const (
	Maximize Direction = "maximize"
	Minimize Direction = "minimize"
)

// ParseDirection accepts "maximize"/"max"/"higher" and "minimize"/"min"/"lower".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "maximize", "max", "higher":
		return Maximize, nil
	case "minimize", "min", "lower":
		return Minimize, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ---------------------------------------------------------------------------
// Source
// ---------------------------------------------------------------------------

// Source says where a criterion's raw value comes from.
type Source string

const (
	// FromAttribute reads the value the caller attached to the candidate.
	FromAttribute Source = "attribute"
	// FromSuccessRate reads the candidate's estimated success rate.
	FromSuccessRate Source = "success_rate"
	// FromLatency reads the candidate's estimated latency in milliseconds.
	FromLatency Source = "latency"
)

// ParseSource parses a source name. Empty means attribute.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "attribute":
		return FromAttribute, nil
	case "success_rate", "success-rate":
		return FromSuccessRate, nil
	case "latency", "latency_ms":
		return FromLatency, nil
	default:
		return "", fmt.Errorf("unknown criterion source %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(text []byte) error {
	parsed, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config is the declarative form of a criterion.
type Config struct {
	Name          string        `yaml:"name" mapstructure:"name"`
	Source        Source        `yaml:"source,omitempty" mapstructure:"source"`
	Direction     Direction     `yaml:"direction" mapstructure:"direction"`
	Weight        float64       `yaml:"weight" mapstructure:"weight"`
	Normalization Normalization `yaml:"normalization" mapstructure:"normalization"`
	AllowNegative bool          `yaml:"allow_negative,omitempty" mapstructure:"allow_negative"`
}

func (c *Config) defaults() {
	if s, err := ParseSource(string(c.Source)); err == nil {
		c.Source = s
	}
	if d, err := ParseDirection(string(c.Direction)); err == nil {
		c.Direction = d
	}
	c.Normalization.defaults()
}

// Validate checks a criterion definition in isolation. Weight sums are
// checked by the scorer.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return selerrors.NewInvalidConfig("criterion name is required")
	}
	if _, err := ParseSource(string(c.Source)); err != nil {
		return selerrors.NewInvalidConfig("criterion %s: %v", c.Name, err)
	}
	if _, err := ParseDirection(string(c.Direction)); err != nil {
		return selerrors.NewInvalidConfig("criterion %s: %v", c.Name, err)
	}
	if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) || c.Weight < 0 {
		return selerrors.NewInvalidWeights("criterion %s: weight %v must be a non-negative number", c.Name, c.Weight)
	}
	if err := c.Normalization.Validate(); err != nil {
		return selerrors.NewInvalidConfig("criterion %s: %v", c.Name, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Criterion
// ---------------------------------------------------------------------------

// Criterion is a validated criterion ready to normalize values.
type Criterion struct {
	cfg Config
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Criterion, error) {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Criterion{cfg: cfg}, nil
}

// Build constructs every criterion in order and rejects duplicate names.
func Build(cfgs []Config) ([]*Criterion, error) {
	if len(cfgs) == 0 {
		return nil, selerrors.NewInvalidConfig("at least one criterion is required")
	}
	seen := make(map[string]struct{}, len(cfgs))
	out := make([]*Criterion, 0, len(cfgs))
	for _, cfg := range cfgs {
		c, err := New(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[c.Name()]; dup {
			return nil, selerrors.NewInvalidConfig("duplicate criterion %q", c.Name())
		}
		seen[c.Name()] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func (c *Criterion) Name() string         { return c.cfg.Name }
func (c *Criterion) Source() Source       { return c.cfg.Source }
func (c *Criterion) Direction() Direction { return c.cfg.Direction }
func (c *Criterion) Weight() float64      { return c.cfg.Weight }
func (c *Criterion) Method() Method       { return c.cfg.Normalization.Method }
func (c *Criterion) Config() Config       { return c.cfg }
func (c *Criterion) NeedsRange() bool     { return c.cfg.Normalization.Method == MinMax }
func (c *Criterion) AllowsNegative() bool { return c.cfg.AllowNegative }
func (c *Criterion) String() string {
	return fmt.Sprintf("%s(%s,%s)", c.cfg.Name, c.cfg.Direction, c.cfg.Normalization.Method)
}

// Check rejects raw values that cannot be normalized.
func (c *Criterion) Check(candidate string, raw float64) error {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return selerrors.NewInvalidValue(candidate, c.cfg.Name, "value %v is not finite", raw)
	}
	if raw < 0 && !c.cfg.AllowNegative {
		return selerrors.NewInvalidValue(candidate, c.cfg.Name, "negative value %v not allowed", raw)
	}
	return nil
}

// Normalize maps raw into [0,1] where 1 is best. rng is only consulted by
// min-max normalization and should span the values of the current round.
func (c *Criterion) Normalize(raw float64, rng Range) float64 {
	u, degenerate := c.cfg.Normalization.increasing(raw, rng)
	if degenerate {
		return 1
	}
	if c.cfg.Direction == Minimize {
		u = 1 - u
	}
	return clamp01(u)
}

// ---------------------------------------------------------------------------
// Range
// ---------------------------------------------------------------------------

// Range is the observed span of one criterion's values in a round.
type Range struct {
	Min float64
	Max float64
	set bool
}

// Include widens the range to cover v.
func (r *Range) Include(v float64) {
	if !r.set {
		r.Min, r.Max, r.set = v, v, true
		return
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// RangeOf returns the span of values.
func RangeOf(values ...float64) Range {
	var r Range
	for _, v := range values {
		r.Include(v)
	}
	return r
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
