package criteria

import (
	"fmt"
	"math"
	"strings"
)

// Method is one of the enumerated normalization strategies.
type Method string

const (
	// MinMax scales against the range observed in the current round.
	MinMax Method = "minmax"
	// Threshold scales linearly between fixed Min and Max bounds.
	Threshold Method = "threshold"
	// Power raises a value already in [0,1] to Exponent.
	Power Method = "power"
	// Sigmoid is a logistic curve around Midpoint with width Scale, shifted so
	// that zero maps to zero.
	Sigmoid Method = "sigmoid"
	// Saturating approaches 1 as 1-e^(-Rate*x).
	Saturating Method = "saturating"
	// Budget is the golden-ratio fee curve over a fraction of a budget.
	Budget Method = "budget"
)

// Golden ratio conjugate used by the budget curve. v(0)=1 and v(1)=0.
const budgetS = 0.6180339887498949

// Defaults for the sigmoid curve, tuned for latencies in milliseconds.
const (
	DefaultSigmoidMidpoint = 400.0
	DefaultSigmoidScale    = 300.0
)

// ParseMethod parses a normalization method name. Empty means minmax.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "minmax", "min-max", "min_max":
		return MinMax, nil
	case "threshold", "fixed":
		return Threshold, nil
	case "power":
		return Power, nil
	case "sigmoid", "logistic":
		return Sigmoid, nil
	case "saturating":
		return Saturating, nil
	case "budget", "fee":
		return Budget, nil
	default:
		return "", fmt.Errorf("unknown normalization method %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Normalization holds the method and whichever parameters it reads.
type Normalization struct {
	Method   Method  `yaml:"method" mapstructure:"method"`
	Min      float64 `yaml:"min,omitempty" mapstructure:"min"`
	Max      float64 `yaml:"max,omitempty" mapstructure:"max"`
	Exponent float64 `yaml:"exponent,omitempty" mapstructure:"exponent"`
	Midpoint float64 `yaml:"midpoint,omitempty" mapstructure:"midpoint"`
	Scale    float64 `yaml:"scale,omitempty" mapstructure:"scale"`
	Rate     float64 `yaml:"rate,omitempty" mapstructure:"rate"`
}

func (n *Normalization) defaults() {
	if m, err := ParseMethod(string(n.Method)); err == nil {
		n.Method = m
	}
	switch n.Method {
	case Power:
		if n.Exponent == 0 {
			n.Exponent = 1
		}
	case Sigmoid:
		if n.Midpoint == 0 {
			n.Midpoint = DefaultSigmoidMidpoint
		}
		if n.Scale == 0 {
			n.Scale = DefaultSigmoidScale
		}
	case Saturating:
		if n.Rate == 0 {
			n.Rate = 1
		}
	}
}

// Validate checks the parameters the method depends on.
func (n Normalization) Validate() error {
	method, err := ParseMethod(string(n.Method))
	if err != nil {
		return err
	}
	for name, v := range map[string]float64{
		"min": n.Min, "max": n.Max, "exponent": n.Exponent,
		"midpoint": n.Midpoint, "scale": n.Scale, "rate": n.Rate,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
	}
	switch method {
	case Threshold:
		if n.Max <= n.Min {
			return fmt.Errorf("threshold max %v must exceed min %v", n.Max, n.Min)
		}
	case Power:
		if n.Exponent <= 0 {
			return fmt.Errorf("power exponent %v must be positive", n.Exponent)
		}
	case Sigmoid:
		if n.Scale <= 0 {
			return fmt.Errorf("sigmoid scale %v must be positive", n.Scale)
		}
	case Saturating:
		if n.Rate <= 0 {
			return fmt.Errorf("saturating rate %v must be positive", n.Rate)
		}
	}
	return nil
}

// increasing returns the higher-is-better score of x. degenerate is true when
// a min-max range has no width.
func (n Normalization) increasing(x float64, rng Range) (u float64, degenerate bool) {
	switch n.Method {
	case Threshold:
		return clamp01((x - n.Min) / (n.Max - n.Min)), false
	case Power:
		return math.Pow(clamp01(x), n.Exponent), false
	case Sigmoid:
		// 1 - (1+e^(-m/s)) / (1+e^((x-m)/s)); zero at x=0, tends to 1.
		num := 1 + math.Exp(-n.Midpoint/n.Scale)
		den := 1 + math.Exp((x-n.Midpoint)/n.Scale)
		return clamp01(1 - num/den), false
	case Saturating:
		return clamp01(1 - math.Exp(-n.Rate*x)), false
	case Budget:
		v := 1/(clamp01(x)+budgetS) - budgetS
		return clamp01(1 - v), false
	default:
		width := rng.Max - rng.Min
		if !rng.set || width <= 0 || math.Abs(width) < 1e-12*math.Max(1, math.Abs(rng.Max)) {
			return 1, true
		}
		return clamp01((x - rng.Min) / width), false
	}
}
