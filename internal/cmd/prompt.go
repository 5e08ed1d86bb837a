package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/faultlens/faultlens/internal/ailink/prompt"
	"github.com/faultlens/faultlens/internal/config"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Manage analysis prompts",
}

var promptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available prompts (embedded plus ailink.prompts_dir)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}

		registry, err := prompt.RegistryWithOverrides(cfg.AILink.PromptsDir)
		if err != nil {
			return err
		}

		prompts := registry.List()
		if len(prompts) == 0 {
			fmt.Println("No prompts found.")
			return nil
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(writer, "SLUG\tVERSION\tSOURCE\tDESCRIPTION") // nolint:errcheck // tabwriter buffers; errors surface at Flush
		for _, p := range prompts {
			if p == nil {
				continue
			}
			marker := p.Source
			if p.Config.Slug == cfg.Analysis.PromptSlug {
				marker += " (active)"
			}
			_, _ = fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", p.Config.Slug, p.Config.Version, marker, p.Config.Description) // nolint:errcheck // tabwriter buffers
		}
		return writer.Flush()
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.AddCommand(promptListCmd)
}
