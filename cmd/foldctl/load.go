package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/foldboard/internal/loadgen"
)

func newLoadCmd(opts *rootOptions) *cobra.Command {
	var cfg loadgen.Config
	cmd := &cobra.Command{
		Use:   "load <session>",
		Short: "Submit synthetic designs and check the resulting leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Session = args[0]
			c, err := opts.client()
			if err != nil {
				return err
			}
			stats, err := loadgen.Run(cmd.Context(), c, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %d: accepted %d, duplicate %d, rejected %d, failed %d in %s\n",
				stats.Submitted, stats.Accepted, stats.Duplicate, stats.Rejected, stats.Failed, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&cfg.Submissions, "submissions", 100, "Number of submissions")
	f.IntVar(&cfg.Participants, "participants", 20, "Number of participants")
	f.IntVar(&cfg.PerProblem, "per-problem", 1, "Sequences per problem")
	f.IntVar(&cfg.Workers, "workers", 8, "Concurrent submitters")
	f.Float64Var(&cfg.Replays, "replays", 0.1, "Fraction of submissions sent twice")
	f.IntVar(&cfg.MinLength, "min-length", 40, "Shortest monomer design")
	f.IntVar(&cfg.MaxLength, "max-length", 120, "Longest monomer design")
	f.DurationVar(&cfg.Wait, "wait", 0, "Wait this long, then verify the leaderboard")
	f.StringVar(&cfg.Output, "output", "", "Write generated events to this file")
	return cmd
}
