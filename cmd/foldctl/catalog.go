package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/foldboard/internal/bootstrap"
	"github.com/okian/foldboard/internal/catalog"
	"github.com/okian/foldboard/internal/domain/model"
)

// openCatalog opens the configured catalog with the store attached, so edits
// that would orphan submissions are refused.
func openCatalog(cmd *cobra.Command) (*catalog.Catalog, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := bootstrap.OpenStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	c, err := bootstrap.OpenCatalog(cfg, store)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return c, closeStore, nil
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage competition sessions",
	}

	put := &cobra.Command{
		Use:   "put <key> <name>",
		Short: "Create or rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer done()
			s, err := c.PutSession(args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}

	activate := &cobra.Command{
		Use:   "activate <key>",
		Short: "Make a session the one accepting submissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editSession(cmd, args[0], (*catalog.Catalog).Activate)
		},
	}

	archive := &cobra.Command{
		Use:   "archive <key>",
		Short: "Stop a session from accepting submissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editSession(cmd, args[0], (*catalog.Catalog).Archive)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print all sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, done, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer done()
			return printJSON(cmd.OutOrStdout(), c.Sessions())
		},
	}

	cmd.AddCommand(put, activate, archive, list)
	return cmd
}

func editSession(cmd *cobra.Command, key string, edit func(*catalog.Catalog, string) error) error {
	c, done, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer done()
	if err := edit(c, key); err != nil {
		return err
	}
	s, _ := c.Session(key)
	return printJSON(cmd.OutOrStdout(), s)
}

func newProblemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "problem",
		Short: "Manage design problems",
	}

	var (
		reg     catalog.Registration
		pdb     string
		typ     string
		msa     string
		lengths string
	)
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a problem from a reference PDB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg.Type = model.ProblemType(typ)
			reg.MSAMode = model.MSAMode(msa)
			bl, err := parseLengths(lengths)
			if err != nil {
				return err
			}
			reg.ExpectedBinderLength = bl

			f, err := os.Open(pdb)
			if err != nil {
				return err
			}
			defer f.Close()

			c, done, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer done()
			p, err := c.Register(reg, f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	register.Flags().StringVar(&reg.Name, "name", "", "Problem name")
	register.Flags().StringVar(&reg.Description, "description", "", "Problem description")
	register.Flags().StringVar(&typ, "type", string(model.ProblemMonomer), "monomer or binder")
	register.Flags().StringVar(&reg.Session, "session", "", "Session key")
	register.Flags().StringVar(&pdb, "pdb", "", "Reference structure in PDB format")
	register.Flags().StringVar(&reg.PrimaryMetric, "primary-metric", "", "Ranking metric, defaults by problem type")
	register.Flags().StringVar(&msa, "msa-mode", string(model.MSANone), "none, search or precomputed")
	register.Flags().StringVar(&reg.TargetSequence, "target-sequence", "", "Target chain sequence for binder problems")
	register.Flags().StringVar(&reg.TargetMSAFile, "target-msa", "", "Precomputed target MSA file")
	register.Flags().StringVar(&lengths, "binder-length", "", "Allowed binder length as MIN-MAX")
	_ = register.MarkFlagRequired("name")
	_ = register.MarkFlagRequired("session")
	_ = register.MarkFlagRequired("pdb")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print all problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, done, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer done()
			return printJSON(cmd.OutOrStdout(), c.Problems())
		},
	}

	cmd.AddCommand(register, list)
	return cmd
}

// parseLengths reads "MIN-MAX".
func parseLengths(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return nil, fmt.Errorf("--binder-length %q: want MIN-MAX", s)
	}
	out := make([]int, 0, 2)
	for _, part := range []string{lo, hi} {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("--binder-length %q: %w", s, err)
		}
		out = append(out, n)
	}
	return out, nil
}
