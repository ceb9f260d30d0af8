package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8070"

// cli carries the state shared by every subcommand
type cli struct {
	server  string
	timeout time.Duration
	json    bool
	api     *apiClient
}

// newRootCmd creates the root restrictctl command with all subcommands attached.
func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "restrictctl",
		Short:         "Inspect and drive the background restriction controller",
		Long:          "restrictctl talks to a bgrestrict daemon over HTTP.\nThe server defaults to $BGRESTRICT_URL, then " + defaultServer + ".",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.api = newAPIClient(c.server, c.timeout)
		},
	}

	server := os.Getenv("BGRESTRICT_URL")
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVar(&c.server, "server", server, "daemon base URL")
	cmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Second, "request timeout")
	cmd.PersistentFlags().BoolVar(&c.json, "json", false, "print raw JSON")

	cmd.AddCommand(
		newLevelsCmd(c),
		newLevelCmd(c),
		newRefreshCmd(c),
		newDumpCmd(c),
		newHistoryCmd(c),
		newBucketCmd(c),
		newRestrictCmd(c),
		newHibernateCmd(c),
		newInstallCmd(c),
		newUninstallCmd(c),
		newPropertiesCmd(c),
		newEscalationsCmd(c),
		newWatchCmd(c),
	)
	return cmd
}
