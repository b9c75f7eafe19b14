// Package stats keeps per-candidate running statistics: a decayed success
// rate and a latency summary, behind one lock per candidate.
package stats

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Strategy names a decay strategy for aging observations.
type Strategy string

const (
	// EWMA decays counters by a fixed factor per observation.
	EWMA Strategy = "ewma"
	// Frames keeps fast and slow frames that decay with wall-clock time.
	Frames Strategy = "frames"
	// Window keeps the last N outcomes verbatim.
	Window Strategy = "window"
)

// ParseStrategy parses a strategy name. Empty means EWMA.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ewma":
		return EWMA, nil
	case "frames", "time":
		return Frames, nil
	case "window", "ring":
		return Window, nil
	default:
		return "", fmt.Errorf("unknown decay strategy %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DecayConfig selects and tunes the decay strategy.
type DecayConfig struct {
	Strategy    Strategy `yaml:"strategy" mapstructure:"strategy"`
	WindowSize  int      `yaml:"window_size" mapstructure:"window_size"`
	FastDecayHz float64  `yaml:"fast_decay_hz" mapstructure:"fast_decay_hz"`
	SlowDecayHz float64  `yaml:"slow_decay_hz" mapstructure:"slow_decay_hz"`
	FastBias    float64  `yaml:"fast_bias" mapstructure:"fast_bias"`
}

// Defaults for the frames and window strategies.
const (
	DefaultWindowSize  = 100
	DefaultFastDecayHz = 0.05
	DefaultSlowDecayHz = 0.001
	DefaultFastBias    = 0.8
)

// DefaultDecayConfig returns the EWMA strategy with frame and window defaults
// filled in for when the strategy is switched.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		Strategy:    EWMA,
		WindowSize:  DefaultWindowSize,
		FastDecayHz: DefaultFastDecayHz,
		SlowDecayHz: DefaultSlowDecayHz,
		FastBias:    DefaultFastBias,
	}
}

func (c *DecayConfig) defaults() {
	if s, err := ParseStrategy(string(c.Strategy)); err == nil {
		c.Strategy = s
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.FastDecayHz == 0 {
		c.FastDecayHz = DefaultFastDecayHz
	}
	if c.SlowDecayHz == 0 {
		c.SlowDecayHz = DefaultSlowDecayHz
	}
	if c.FastBias == 0 {
		c.FastBias = DefaultFastBias
	}
}

// Validate rejects strategies or parameters the estimators cannot run with.
func (c DecayConfig) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.WindowSize < 0 {
		return fmt.Errorf("window size %d must not be negative", c.WindowSize)
	}
	for name, hz := range map[string]float64{"fast_decay_hz": c.FastDecayHz, "slow_decay_hz": c.SlowDecayHz} {
		if math.IsNaN(hz) || hz < 0 || hz >= 1 {
			return fmt.Errorf("%s %v must be in [0, 1)", name, hz)
		}
	}
	if math.IsNaN(c.FastBias) || c.FastBias < 0 || c.FastBias > 1 {
		return fmt.Errorf("fast bias %v must be in [0, 1]", c.FastBias)
	}
	return nil
}

// Estimate is the raw output of an estimator, before prior smoothing.
type Estimate struct {
	// SuccessRate is meaningful only when Weight > 0.
	SuccessRate float64
	// Weight is the effective (decayed) number of observations.
	Weight        float64
	Latency       time.Duration
	LatencyStdDev time.Duration
	// SuccessLatency is the mean latency of successful outcomes, zero when
	// none were seen.
	SuccessLatency time.Duration
}

// Estimator aggregates outcomes for one candidate. Implementations are not
// safe for concurrent use; Record serializes access.
type Estimator interface {
	Observe(now time.Time, success bool, latency time.Duration)
	Estimate(now time.Time) Estimate
}

// Factory creates a fresh estimator for a new candidate.
type Factory func() Estimator

// NewFactory returns a factory for the configured strategy. lambda is the
// EWMA decay factor in (0,1].
func NewFactory(cfg DecayConfig, lambda float64) (Factory, error) {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case Frames:
		return func() Estimator { return newFrameEstimator(cfg.FastDecayHz, cfg.SlowDecayHz, cfg.FastBias) }, nil
	case Window:
		return func() Estimator { return newWindowEstimator(cfg.WindowSize) }, nil
	default:
		if math.IsNaN(lambda) || lambda <= 0 || lambda > 1 {
			return nil, fmt.Errorf("decay factor %v must be in (0, 1]", lambda)
		}
		return func() Estimator { return newEWMAEstimator(lambda) }, nil
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMillis(ms float64) time.Duration {
	if ms <= 0 || math.IsNaN(ms) {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}
