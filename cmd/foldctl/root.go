package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/foldboard/internal/client"
	"github.com/okian/foldboard/internal/config"
)

type rootOptions struct {
	url     string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "foldctl",
		Short:        "Administer a foldboard orchestrator",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.url, "url", "http://localhost:9080", "Base URL of the foldboard API")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP request timeout")

	cmd.AddCommand(
		newPassCmd(opts),
		newReevaluateCmd(opts),
		newSubmitCmd(opts),
		newLeaderboardCmd(opts),
		newStatsCmd(opts),
		newLoadCmd(opts),
		newSessionCmd(),
		newProblemCmd(),
	)
	return cmd
}

func (o *rootOptions) client() (*client.Client, error) {
	return client.New(o.url, client.WithTimeout(o.timeout))
}

// loadConfig reads the same layered configuration as the server.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Context())
}
