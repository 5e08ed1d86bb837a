package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/observability"
	"github.com/faultlens/faultlens/internal/output"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Inspect and train the knowledge base",
}

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known error signatures",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := knowledgeFormat(cmd)
		if err != nil {
			return err
		}

		rt, err := newRuntime(cmd.Context(), runtimeOptions{noRun: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		rendered, err := output.FormatKnowledge(format, rt.knowledge.Entries(cmd.Context()))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), rendered) // nolint:errcheck // best-effort console output
		return nil
	},
}

var knowledgeFindCmd = &cobra.Command{
	Use:   "find <text>",
	Short: "Look up the explanation for an error text",
	Long:  "Print the explanation of the first known signature contained in the text (case-insensitive).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context(), runtimeOptions{noRun: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		explanation, ok := rt.knowledge.Find(cmd.Context(), args[0])
		if !ok {
			return errors.New("no matching knowledge entry")
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), explanation) // nolint:errcheck // best-effort console output
		return nil
	},
}

var knowledgeTrainCmd = &cobra.Command{
	Use:   "train <signature> <explanation>",
	Short: "Record an explanation for an error signature",
	Long: `Record an explanation manually. Existing signatures (case-insensitive)
are left unchanged.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		signature := strings.TrimSpace(args[0])
		explanation := strings.TrimSpace(args[1])
		if signature == "" || explanation == "" {
			return errors.New("signature and explanation are required")
		}

		rt, err := newRuntime(cmd.Context(), runtimeOptions{noRun: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.knowledge.Record(cmd.Context(), signature, explanation); err != nil {
			var failure *core.Failure
			if errors.As(err, &failure) && failure.Kind == core.FailurePersistence {
				observability.CLILogger.Warn("Knowledge entry was not persisted",
					zap.String("signature", signature),
					zap.Error(err))
				return nil
			}
			return err
		}

		observability.CLILogger.Info("Knowledge entry recorded", zap.String("signature", signature))
		return nil
	},
}

func knowledgeFormat(cmd *cobra.Command) (output.Format, error) {
	raw, _ := cmd.Flags().GetString("format")
	return output.ParseFormat(raw)
}

func init() {
	rootCmd.AddCommand(knowledgeCmd)
	knowledgeCmd.AddCommand(knowledgeListCmd)
	knowledgeCmd.AddCommand(knowledgeFindCmd)
	knowledgeCmd.AddCommand(knowledgeTrainCmd)

	knowledgeListCmd.Flags().String("format", "table", "Output format: text, table, json")
}
