// Command fpmasctl is an operator CLI for an fpmas cluster: inspect
// breakpoints captured by a run, and validate a cluster config file
// before launching one.
package main

import (
	"fmt"
	"os"

	"github.com/fpmas-go/fpmas/internal/buildinfo"
	"github.com/fpmas-go/fpmas/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "fpmasctl",
		Short:   "fpmas cluster operator CLI",
		Version: buildinfo.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.AddCommand(versionCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(breakpointCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fpmasctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "fpmasctl %s (%s)\n", buildinfo.Version, buildinfo.Commit)
			return nil
		},
	}
}
