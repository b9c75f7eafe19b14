package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeandnode/candidate-selection/internal/selection/engine"
	"github.com/edgeandnode/candidate-selection/internal/simulator"
)

func newScoreCommand(root *rootOptions) *cobra.Command {
	var warmup int

	cmd := &cobra.Command{
		Use:   "score <candidates.csv>",
		Short: "Score one selection round and show each candidate's utility",
		Long: `Reads candidates as CSV (id,success_rate,latency_ms,<attributes...>),
primes their statistics with --warmup synthetic outcomes and prints the
utility breakdown of a single selection round. Use "-" to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := readProfiles(cmd, args[0])
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

			ctx := cmd.Context()
			if err := simulator.Warmup(ctx, rt.engine, profiles, warmup); err != nil {
				return err
			}
			candidates := make([]engine.Candidate, 0, len(profiles))
			for _, p := range profiles {
				candidates = append(candidates, p.Candidate())
			}
			res, err := rt.engine.Select(ctx, candidates)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s  %s %s  %s %d\n",
				bold("selection"), gray(res.ID), bold("mode"), cyan(string(res.Mode)), bold("k"), cfg.SelectionK)

			selected := make(map[string]int, len(res.Selected))
			for i, s := range res.Selected {
				selected[s.ID] = i + 1
			}
			names := cfg.CriterionNames()
			header := append([]string{"rank", "id", "utility", "success", "latency"}, names...)
			table := newTable(out, header...)
			for _, s := range res.Scored {
				rank := ""
				if r, ok := selected[s.ID]; ok {
					rank = green(fmt.Sprintf("#%d", r))
				}
				row := []string{rank, s.ID, formatFloat(s.Utility), colorRate(s.Stats.SuccessRate), formatLatency(s.Stats.Latency)}
				for _, c := range s.Contributions {
					cell := formatFloat(c.Value)
					if c.Floored {
						cell = red(cell)
					}
					row = append(row, cell)
				}
				table.Append(row)
			}
			table.Render()

			for _, sk := range res.Skipped {
				reason := sk.Reason
				if sk.Err != nil {
					reason += ": " + sk.Err.Error()
				}
				fmt.Fprintf(out, "%s %s %s\n", yellow("skipped"), sk.ID, gray(reason))
			}
			if len(res.Selected) > 1 {
				fmt.Fprintf(out, "expected success %s, expected latency %s\n",
					colorRate(res.Expected.SuccessRate), formatLatency(res.Expected.Latency))
			}
			fmt.Fprintf(out, "selected: %s\n", strings.Join(res.IDs(), ", "))
			return nil
		},
	}

	cmd.Flags().IntVar(&warmup, "warmup", 20, "Synthetic outcomes per candidate before scoring")
	return cmd
}

func readProfiles(cmd *cobra.Command, path string) ([]simulator.Profile, error) {
	if path == "-" {
		return simulator.ParseProfiles(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candidates: %w", err)
	}
	defer f.Close()
	return simulator.ParseProfiles(f)
}
