package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/edgeandnode/candidate-selection/internal/config"
	"github.com/edgeandnode/candidate-selection/internal/logging"
	"github.com/edgeandnode/candidate-selection/internal/observability"
	"github.com/edgeandnode/candidate-selection/internal/selection/engine"
)

type rootOptions struct {
	configPath string
	logLevel   string
	mode       string
	k          int
	multiPick  string
	seed       uint64
	noColor    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "selectctl",
		Short:         "Score and simulate candidate selection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			color.NoColor = opts.noColor || !isTerminal(cmd.OutOrStdout())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (env CANDSEL_* overrides apply)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVarP(&opts.mode, "mode", "m", "", "Exploration mode: best-of, softmax, epsilon-greedy")
	flags.IntVarP(&opts.k, "k", "k", 0, "Candidates to select per round")
	flags.StringVar(&opts.multiPick, "multi-pick", "", "How picks after the first are kept: fill or improve")
	flags.Uint64Var(&opts.seed, "seed", 0, "Seed for the exploration RNG (0 = random)")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable coloured output")

	rootCmd.AddCommand(newScoreCommand(opts))
	rootCmd.AddCommand(newSimulateCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))
	return rootCmd
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// loadConfig resolves configuration with command-line flags taking
// precedence over the file and environment.
func loadConfig(opts *rootOptions) (config.Config, error) {
	overrides := map[string]any{}
	if opts.logLevel != "" {
		overrides["observability.logging.level"] = opts.logLevel
	}
	if opts.mode != "" {
		overrides["exploration_mode"] = opts.mode
	}
	if opts.k > 0 {
		overrides["selection_k"] = opts.k
	}
	if opts.multiPick != "" {
		overrides["multi_pick"] = opts.multiPick
	}
	if opts.seed != 0 {
		overrides["seed"] = opts.seed
	}
	return config.Load(config.WithConfigPath(opts.configPath), config.WithOverrides(overrides))
}

// runtime is an engine with its observability wired up.
type runtime struct {
	cfg     config.Config
	engine  *engine.Engine
	logger  logging.Logger
	metrics *observability.MetricsCollector
	tracing *observability.TracerProvider
}

func newRuntime(cfg config.Config, logOutput io.Writer) (*runtime, error) {
	obsLogger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: logOutput,
	})
	logging.SetDefault(obsLogger)
	logger := logging.NewComponentLogger("selectctl")

	metrics, err := observability.NewMetricsCollector(cfg.Observability.Metrics)
	if err != nil {
		return nil, err
	}
	tracing, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		_ = metrics.Shutdown(context.Background())
		return nil, err
	}

	opts := []engine.Option{
		engine.WithLogger(logging.NewComponentLogger("selection")),
		engine.WithMetrics(metrics),
		engine.WithTracer(tracing.Tracer()),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, engine.WithPoolMetrics(observability.NewPoolMetrics()))
	}
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		_ = metrics.Shutdown(context.Background())
		_ = tracing.Shutdown(context.Background())
		return nil, err
	}

	return &runtime{cfg: cfg, engine: eng, logger: logger, metrics: metrics, tracing: tracing}, nil
}

func (r *runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(r.metrics.Shutdown(ctx), r.tracing.Shutdown(ctx))
}
