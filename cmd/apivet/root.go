package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for apivet.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apivet",
		Short: "Endpoint verification tool for deployed REST backends",
		Long: `apivet verifies that a deployed REST backend matches its declared surface.

It logs in as an admin, probes every declared endpoint, classifies each as
accessible or missing, fires concurrent requests at race-sensitive routes,
and optionally inspects database state directly.

Runs are saved to a local history so deployments can be compared over time.
Credentials are read from the environment (or a .env file), never from the
suite file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewProbeCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewDBCheckCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
