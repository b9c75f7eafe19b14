package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	selerrors "github.com/edgeandnode/candidate-selection/internal/errors"
	"github.com/edgeandnode/candidate-selection/internal/simulator"
)

type simulateOptions struct {
	rounds   int
	workers  int
	dispatch string
	jitter   float64
	simSeed  uint64
}

func newSimulateCommand(root *rootOptions) *cobra.Command {
	defaults := simulator.DefaultConfig()
	opts := &simulateOptions{
		rounds:   defaults.Rounds,
		workers:  defaults.Workers,
		dispatch: string(defaults.Dispatch),
		jitter:   defaults.LatencyJitter,
		simSeed:  defaults.Seed,
	}

	cmd := &cobra.Command{
		Use:   "simulate <candidates.csv>",
		Short: "Replay synthetic traffic against a candidate pool",
		Long: `Runs repeated selection rounds against candidates described as CSV,
drawing each outcome from the candidate's success rate and latency and feeding
it back into the engine. Prints how traffic was shared once the run ends.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := readProfiles(cmd, args[0])
			if err != nil {
				return err
			}
			dispatch, err := simulator.ParseDispatch(opts.dispatch)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			sim, err := simulator.New(rt.engine, profiles, rt.logger)
			if err != nil {
				return err
			}
			simCfg := simulator.DefaultConfig()
			simCfg.Rounds = opts.rounds
			simCfg.Workers = opts.workers
			simCfg.K = cfg.SelectionK
			simCfg.Dispatch = dispatch
			simCfg.LatencyJitter = opts.jitter
			simCfg.Seed = opts.simSeed

			report, err := sim.Run(cmd.Context(), simCfg)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			printBreakers(cmd, rt.engine.Breakers())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.rounds, "rounds", "n", opts.rounds, "Selection rounds to run")
	flags.IntVarP(&opts.workers, "workers", "w", opts.workers, "Concurrent workers")
	flags.StringVar(&opts.dispatch, "dispatch", opts.dispatch, "How selected candidates are used: parallel or fallback")
	flags.Float64Var(&opts.jitter, "jitter", opts.jitter, "Log-normal latency jitter (0 disables)")
	flags.Uint64Var(&opts.simSeed, "outcome-seed", opts.simSeed, "Seed for simulated outcomes")
	return cmd
}

func printReport(cmd *cobra.Command, report *simulator.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d rounds in %v: success %s, mean latency %s\n",
		bold("simulated"), report.Rounds, report.Duration.Round(time.Millisecond), colorRate(report.SuccessRate), formatLatency(report.MeanLatency))

	table := newTable(out, "id", "selected", "share", "successes", "est. success", "est. latency")
	for _, c := range report.Candidates {
		table.Append([]string{
			c.ID,
			strconv.Itoa(c.Selections),
			formatPercent(c.Share),
			strconv.Itoa(c.Successes),
			colorRate(c.EstimatedSuccessRate),
			formatLatency(c.EstimatedLatency),
		})
	}
	table.Render()
}

func printBreakers(cmd *cobra.Command, breakers []selerrors.CircuitBreakerMetrics) {
	if len(breakers) == 0 {
		return
	}
	table := newTable(cmd.OutOrStdout(), "breaker", "state", "failures", "last change")
	for _, b := range breakers {
		state := b.State.String()
		switch b.State {
		case selerrors.StateOpen:
			state = red(state)
		case selerrors.StateHalfOpen:
			state = yellow(state)
		default:
			state = green(state)
		}
		changed := "-"
		if !b.LastStateChange.IsZero() {
			changed = b.LastStateChange.Format(time.TimeOnly)
		}
		table.Append([]string{b.Name, state, strconv.Itoa(b.FailureCount), changed})
	}
	table.Render()
}
