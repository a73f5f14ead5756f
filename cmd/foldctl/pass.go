package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/internal/bootstrap"
	"github.com/okian/foldboard/pkg/logger"
)

func newPassCmd(opts *rootOptions) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:       "pass <submit|poll|evaluate|publish|all>",
		Short:     "Run orchestration passes once",
		Long:      "Run one pass, or all of them in order. With --local the passes run in this process against the configured store, for cron style deployments.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: append([]string{"all"}, service.Passes...),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := []string{args[0]}
			if args[0] == "all" {
				names = service.Passes
			}
			run, cleanup, err := passRunner(cmd, opts, local)
			if err != nil {
				return err
			}
			defer cleanup()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, name := range names {
				rep, err := run(name)
				if err != nil {
					return fmt.Errorf("pass %s: %w", name, err)
				}
				if err := enc.Encode(rep); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Run in process from configuration instead of through the API")
	return cmd
}

func passRunner(cmd *cobra.Command, opts *rootOptions, local bool) (func(string) (service.Report, error), func(), error) {
	ctx := cmd.Context()
	if !local {
		c, err := opts.client()
		if err != nil {
			return nil, nil, err
		}
		return func(name string) (service.Report, error) { return c.RunPass(ctx, name) }, func() {}, nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	rt, err := bootstrap.Build(ctx, cfg, logger.Named("foldctl"))
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = rt.Close() }
	return func(name string) (service.Report, error) { return rt.Service.RunPass(ctx, name) }, cleanup, nil
}
