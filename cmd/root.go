package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meshrouter",
	Short: "Flooding and link-state routing over an abstract mesh",
	Long: `meshrouter runs a single node of a small routing testbed.
Each node speaks either flooding or link-state routing (LSR) over a
declared static topology, reachable via ZeroMQ pub/sub or, for local
experimentation, an in-process simulated network.`,
}

// Execute runs the root command (its subcommands register themselves in
// their own init functions), exiting with status 1 on error. Called once
// by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "node", Title: "Node Commands"})
}
