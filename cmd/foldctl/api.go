package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/internal/client"
	"github.com/okian/foldboard/internal/domain/model"
)

func newReevaluateCmd(opts *rootOptions) *cobra.Command {
	var req service.ReevaluateRequest
	cmd := &cobra.Command{
		Use:   "reevaluate",
		Short: "Score a submission again and republish it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.SubmissionID == "" && req.Token == "" {
				return errors.New("one of --submission or --token is required")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			rep, err := c.Reevaluate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVar(&req.SubmissionID, "submission", "", "Submission id")
	cmd.Flags().StringVar(&req.Token, "token", "", "Result token")
	cmd.Flags().StringVar(&req.ProblemID, "problem", "", "Only this problem")
	cmd.MarkFlagsMutuallyExclusive("submission", "token")
	return cmd
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		in          service.Intake
		participant string
		pairs       []string
	)
	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Send an intake event",
		Example: "  foldctl submit --participant alice --seq problem_1=MKTLLILAVVAAALA --seq problem_1=GSHMKTAYIAKQRQ",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seqs, err := parseSequences(pairs)
			if err != nil {
				return err
			}
			in.ParticipantID = participant
			in.Sequences = seqs
			c, err := opts.client()
			if err != nil {
				return err
			}
			r, err := c.Submit(cmd.Context(), in)
			switch {
			case errors.Is(err, client.ErrDuplicate):
				fmt.Fprintln(cmd.ErrOrStderr(), "already submitted")
			case err != nil:
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().StringVar(&participant, "participant", "", "Participant id")
	cmd.Flags().StringVar(&in.SubmissionID, "id", "", "Submission id, generated by the server when empty")
	cmd.Flags().StringVar(&in.Contact, "contact", "", "Contact address")
	cmd.Flags().StringArrayVar(&pairs, "seq", nil, "problem_id=SEQUENCE, repeatable")
	_ = cmd.MarkFlagRequired("participant")
	_ = cmd.MarkFlagRequired("seq")
	return cmd
}

// parseSequences groups repeated problem=sequence flags by problem.
func parseSequences(pairs []string) (map[string]any, error) {
	grouped := map[string][]any{}
	for _, p := range pairs {
		id, seq, ok := strings.Cut(p, "=")
		id, seq = strings.TrimSpace(id), strings.TrimSpace(seq)
		if !ok || id == "" || seq == "" {
			return nil, fmt.Errorf("--seq %q: want problem_id=SEQUENCE", p)
		}
		grouped[id] = append(grouped[id], seq)
	}
	out := make(map[string]any, len(grouped))
	for id, seqs := range grouped {
		out[id] = seqs
	}
	return out, nil
}

func newLeaderboardCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "leaderboard <session>",
		Short: "Print a session leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			lb, err := c.Leaderboard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), lb)
			}
			return printLeaderboard(cmd.OutOrStdout(), lb)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw leaderboard document")
	return cmd
}

func printLeaderboard(w io.Writer, lb model.Leaderboard) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\n\nRANK\tPARTICIPANT\tSCORE\tPROBLEMS\n", lb.Name)
	for _, e := range lb.Overall {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%d\n", e.Rank, e.Participant, e.Score, e.Problems)
	}
	for _, p := range lb.Problems {
		fmt.Fprintf(tw, "\n%s (%s)\nRANK\tPARTICIPANT\tVALUE\tZ\n", p.Name, p.Metric)
		for _, e := range p.Entries {
			fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.3f\n", e.Rank, e.Participant, e.Value, e.ZScore)
		}
	}
	return tw.Flush()
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print job counts by state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			st, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range model.AllJobStates {
				fmt.Fprintf(tw, "%s\t%d\n", s, st.Jobs[s])
			}
			fmt.Fprintf(tw, "total\t%d\nsubmit queue\t%d\n", st.Total, st.SubmitQueue)
			return tw.Flush()
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
