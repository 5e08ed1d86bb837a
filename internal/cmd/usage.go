package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faultlens/faultlens/internal/observability"
	"github.com/faultlens/faultlens/internal/output"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show analysis service usage in the current window",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("format")
		format, err := output.ParseFormat(raw)
		if err != nil {
			return err
		}

		rt, err := newRuntime(cmd.Context(), runtimeOptions{noRun: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		rendered, err := output.FormatUsage(format, rt.limiter.Snapshot(cmd.Context()))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), rendered) // nolint:errcheck // best-effort console output
		return nil
	},
}

var usageResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new usage window",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context(), runtimeOptions{noRun: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.limiter.Reset(cmd.Context()); err != nil {
			return fmt.Errorf("reset usage: %w", err)
		}
		observability.CLILogger.Info("Usage window reset")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageResetCmd)

	usageCmd.Flags().String("format", "text", "Output format: text, table, json")
}
