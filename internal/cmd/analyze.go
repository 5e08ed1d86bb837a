package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/metrics"
	"github.com/faultlens/faultlens/internal/observability"
	"github.com/faultlens/faultlens/internal/output"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Analyze source files, logs or diagnostics",
	Long: `Analyze each file and explain the errors found.

Source files get one preliminary analysis of their numbered source. Files
with a configured command are then run, and every distinct error line in the
output gets its own execution analysis. Log files (.log, .logs, .txt) and
diagnostics JSON are analyzed without running anything.

Examples:
  faultlens analyze app.js
  faultlens analyze --no-run main.py
  faultlens analyze build.log --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

var explainCmd = &cobra.Command{
	Use:   "explain <text|->",
	Short: "Explain a single error message",
	Long: `Explain one error message or log excerpt. Pass "-" to read it from stdin.

Execution-mode answers from the analysis service are added to the knowledge
base; static-mode answers are not.`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(explainCmd)

	analyzeCmd.Flags().String("format", "text", "Output format: text, table, json, markdown")
	analyzeCmd.Flags().Bool("no-run", false, "Skip running target files")

	explainCmd.Flags().String("format", "text", "Output format: text, json")
	explainCmd.Flags().String("mode", string(core.ModeExecution), "Analysis mode: static or execution")
	explainCmd.Flags().Int("line", 0, "Error line (1-based)")
	explainCmd.Flags().Int("column", 0, "Error column (1-based)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	formatRaw, _ := cmd.Flags().GetString("format")
	noRun, _ := cmd.Flags().GetBool("no-run")

	format, err := output.ParseFormat(formatRaw)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	text := &output.TextFormatter{Verbose: verbose}

	opts := runtimeOptions{noRun: noRun}
	if format == output.FormatText {
		opts.sink = func(analysis *core.Analysis) {
			_, _ = fmt.Fprint(out, text.FormatAnalysis(analysis)) // nolint:errcheck // best-effort console output
		}
	}

	rt, err := newRuntime(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	reports := make([]*core.Report, 0, len(args))
	var readErr error
	for _, path := range args {
		started := time.Now()
		report, err := rt.pipeline.Run(cmd.Context(), path)
		if err != nil {
			observability.CLILogger.Error("Failed to read target file",
				zap.String("path", path),
				zap.Error(err))
			readErr = err
			continue
		}
		metrics.RecordReport(report, time.Since(started))
		reports = append(reports, report)

		if format == output.FormatText && report.Success {
			_, _ = fmt.Fprintln(out, "\n"+output.SuccessLine) // nolint:errcheck // best-effort console output
		}
	}

	if format != output.FormatText {
		rendered, err := output.FormatReports(format, reports)
		if err != nil {
			return err
		}
		if rendered != "" {
			_, _ = fmt.Fprintln(out, rendered) // nolint:errcheck // best-effort console output
		}
	}

	if readErr != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "One or more target files could not be read", readErr)
	}
	return nil
}

func runExplain(cmd *cobra.Command, args []string) error {
	formatRaw, _ := cmd.Flags().GetString("format")
	modeRaw, _ := cmd.Flags().GetString("mode")
	line, _ := cmd.Flags().GetInt("line")
	column, _ := cmd.Flags().GetInt("column")

	format, err := output.ParseFormat(formatRaw)
	if err != nil {
		return err
	}
	mode, err := parseMode(modeRaw)
	if err != nil {
		return err
	}

	input := args[0]
	if input == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		input = string(data)
	}
	if strings.TrimSpace(input) == "" {
		return errors.New("nothing to explain")
	}

	req := core.AnalysisRequest{Context: input, Mode: mode}
	if line > 0 {
		if column <= 0 {
			column = 1
		}
		req.Location = &core.Location{Line: line, Column: column}
	}

	rt, err := newRuntime(cmd.Context(), runtimeOptions{noRun: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	analysis := rt.analyzer.HandleAnalysis(cmd.Context(), req)
	metrics.RecordAnalysis(analysis)

	out := cmd.OutOrStdout()
	if format == output.FormatJSON {
		data, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, string(data)) // nolint:errcheck // best-effort console output
		return nil
	}

	text := &output.TextFormatter{Verbose: verbose}
	_, _ = fmt.Fprint(out, strings.TrimLeft(text.FormatAnalysis(analysis), "\n")) // nolint:errcheck // best-effort console output
	return nil
}

func parseMode(raw string) (core.AnalysisMode, error) {
	switch core.AnalysisMode(strings.ToLower(strings.TrimSpace(raw))) {
	case core.ModeStatic:
		return core.ModeStatic, nil
	case core.ModeExecution, "":
		return core.ModeExecution, nil
	default:
		return "", fmt.Errorf("unsupported mode %q (want static or execution)", raw)
	}
}
