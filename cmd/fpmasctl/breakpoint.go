package main

import (
	"fmt"

	"github.com/fpmas-go/fpmas/breakpoint"

	"github.com/spf13/cobra"
)

func breakpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breakpoint",
		Short: "Inspect breakpoints captured by a run",
	}
	cmd.AddCommand(breakpointInspectCmd())
	return cmd
}

func breakpointInspectCmd() *cobra.Command {
	var store string
	var run string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the breakpoints recorded for a run, across every rank and step",
		RunE: func(cmd *cobra.Command, args []string) error {
			if store == "" {
				return fmt.Errorf("--store is required")
			}
			if run == "" {
				return fmt.Errorf("--run is required")
			}

			s, err := breakpoint.OpenStore(store)
			if err != nil {
				return err
			}
			defer s.Close()

			summaries, err := s.Inspect(cmd.Context(), run)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no breakpoints recorded for run %q\n", run)
				return nil
			}
			for _, sum := range summaries {
				fmt.Fprintf(cmd.OutOrStdout(), "rank=%d step=%d nodes=%d edges=%d\n",
					sum.Rank, sum.Step, sum.NodeCount, sum.EdgeCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&store, "store", "", "Path to the breakpoint SQLite store")
	cmd.Flags().StringVar(&run, "run", "", "Run id to inspect")
	return cmd
}
