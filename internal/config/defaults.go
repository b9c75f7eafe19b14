package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/edgeandnode/candidate-selection/internal/observability"
	"github.com/edgeandnode/candidate-selection/internal/selection/criteria"
	"github.com/edgeandnode/candidate-selection/internal/selection/ledger"
	"github.com/edgeandnode/candidate-selection/internal/selection/policy"
	"github.com/edgeandnode/candidate-selection/internal/selection/scorer"
	"github.com/edgeandnode/candidate-selection/internal/selection/stats"
)

const (
	DefaultDecayFactor        = 0.1
	DefaultTemperature        = 1.0
	DefaultExplorationEpsilon = 0.1
	DefaultSelectionK         = 1
)

// DefaultCriteria scores on observed success rate and latency.
func DefaultCriteria() []criteria.Config {
	return []criteria.Config{
		{
			Name:          "success_rate",
			Source:        criteria.FromSuccessRate,
			Direction:     criteria.Maximize,
			Weight:        2,
			Normalization: criteria.Normalization{Method: criteria.Threshold, Min: 0, Max: 1},
		},
		{
			Name:      "latency",
			Source:    criteria.FromLatency,
			Direction: criteria.Minimize,
			Weight:    1,
			Normalization: criteria.Normalization{
				Method:   criteria.Sigmoid,
				Midpoint: criteria.DefaultSigmoidMidpoint,
				Scale:    criteria.DefaultSigmoidScale,
			},
		},
	}
}

// Default returns a complete, valid configuration.
func Default() Config {
	breaker := BreakerConfig{
		Enabled:          false,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
	return Config{
		Criteria:           DefaultCriteria(),
		DecayFactor:        DefaultDecayFactor,
		Decay:              stats.DefaultDecayConfig(),
		ExplorationMode:    policy.Softmax,
		Temperature:        DefaultTemperature,
		ExplorationEpsilon: DefaultExplorationEpsilon,
		MinScoreCutoff:     0,
		SelectionK:         DefaultSelectionK,
		MultiPick:          MultiPickFill,
		ScoreFloor:         scorer.DefaultFloor,
		Priors:             stats.DefaultPriors(),
		StrictFeedback:     false,
		InvalidCandidates:  InvalidSkip,
		CircuitBreaker:     breaker,
		Ledger:             ledger.DefaultConfig(),
		Observability:      observability.DefaultConfig(),
	}
}

// setDefaults registers every scalar key so environment overrides resolve
// even when the file omits them.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("decay_factor", d.DecayFactor)
	v.SetDefault("decay.strategy", string(d.Decay.Strategy))
	v.SetDefault("decay.window_size", d.Decay.WindowSize)
	v.SetDefault("decay.fast_decay_hz", d.Decay.FastDecayHz)
	v.SetDefault("decay.slow_decay_hz", d.Decay.SlowDecayHz)
	v.SetDefault("decay.fast_bias", d.Decay.FastBias)

	v.SetDefault("exploration_mode", string(d.ExplorationMode))
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("exploration_epsilon", d.ExplorationEpsilon)
	v.SetDefault("min_score_cutoff", d.MinScoreCutoff)
	v.SetDefault("selection_k", d.SelectionK)
	v.SetDefault("multi_pick", string(d.MultiPick))
	v.SetDefault("score_floor", d.ScoreFloor)

	v.SetDefault("priors.success_rate", d.Priors.SuccessRate)
	v.SetDefault("priors.latency", d.Priors.Latency.String())
	v.SetDefault("priors.weight", d.Priors.Weight)
	v.SetDefault("strict_feedback", d.StrictFeedback)
	v.SetDefault("invalid_candidates", string(d.InvalidCandidates))
	v.SetDefault("seed", d.Seed)

	v.SetDefault("circuit_breaker.enabled", d.CircuitBreaker.Enabled)
	v.SetDefault("circuit_breaker.failure_threshold", d.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.success_threshold", d.CircuitBreaker.SuccessThreshold)
	v.SetDefault("circuit_breaker.timeout", d.CircuitBreaker.Timeout.String())

	v.SetDefault("ledger.size", d.Ledger.Size)
	v.SetDefault("ledger.ttl", d.Ledger.TTL.String())

	o := d.Observability
	v.SetDefault("observability.logging.level", o.Logging.Level)
	v.SetDefault("observability.logging.format", o.Logging.Format)
	v.SetDefault("observability.metrics.enabled", o.Metrics.Enabled)
	v.SetDefault("observability.metrics.prometheus_port", o.Metrics.PrometheusPort)
	v.SetDefault("observability.tracing.enabled", o.Tracing.Enabled)
	v.SetDefault("observability.tracing.exporter", o.Tracing.Exporter)
	v.SetDefault("observability.tracing.otlp_endpoint", o.Tracing.OTLPEndpoint)
	v.SetDefault("observability.tracing.zipkin_endpoint", o.Tracing.ZipkinEndpoint)
	v.SetDefault("observability.tracing.sample_rate", o.Tracing.SampleRate)
	v.SetDefault("observability.tracing.service_name", o.Tracing.ServiceName)
	v.SetDefault("observability.tracing.service_version", o.Tracing.ServiceVersion)
}
