package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/ailink"
	"github.com/faultlens/faultlens/internal/ailink/prompt"
	"github.com/faultlens/faultlens/internal/config"
	"github.com/faultlens/faultlens/internal/core/store"
	"github.com/faultlens/faultlens/internal/observability"
)

var (
	doctorRole  string
	doctorModel string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, store and provider setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := observability.CLILogger
		problems := 0

		rt, err := newRuntime(ctx, runtimeOptions{noRun: true})
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration could not be loaded", err)
		}
		defer rt.Close()

		if rt.configErr != nil {
			problems++
			logger.Warn("Config invalid, defaults in use", zap.Error(rt.configErr))
		} else {
			logger.Info("Config loaded", zap.String("file", configFileLabel()))
		}

		if rt.store == nil {
			problems++
			logger.Warn("Store unavailable, knowledge and usage are not persisted",
				zap.String("path", rt.cfg.Store.Path))
		} else if err := rt.store.CheckHealth(ctx); err != nil {
			problems++
			logger.Warn("Store unhealthy", zap.Error(err))
		} else {
			logger.Info("Store ready",
				zap.String("driver", rt.store.Driver()),
				zap.Int("knowledge_entries", len(rt.knowledge.Entries(ctx))))
			if applied, err := rt.store.AppliedVersion(ctx); err != nil || applied < store.SchemaVersion() {
				problems++
				logger.Warn("Store schema is behind",
					zap.Int("applied", applied),
					zap.Int("expected", store.SchemaVersion()),
					zap.Error(err))
			}
		}

		slug := strings.TrimSpace(rt.cfg.Analysis.PromptSlug)
		if slug == "" {
			slug = prompt.DefaultSlug
		}
		if prompts, err := prompt.RegistryWithOverrides(rt.cfg.AILink.PromptsDir); err != nil {
			problems++
			logger.Warn("Prompts failed to load", zap.Error(err))
		} else if _, err := prompts.Get(slug); err != nil {
			problems++
			logger.Warn("Analysis prompt not found",
				zap.String("slug", slug),
				zap.Error(err))
		} else {
			logger.Info("Prompts loaded", zap.Int("count", len(prompts.List())))
		}

		snapshot := rt.limiter.Snapshot(ctx)
		logger.Info("Usage window",
			zap.String("budget", snapshot.Label),
			zap.Int("used", snapshot.Count),
			zap.Int("remaining", snapshot.Remaining))

		if !rt.explainer.Configured() {
			problems++
			logger.Warn(fmt.Sprintf("No analysis provider configured; set %s_API_KEY or GROQ_API_KEY, or configure ailink.providers", config.EnvPrefix))
		} else if err := reportResolution(rt.cfg, doctorRole, doctorModel); err != nil {
			problems++
			logger.Warn("Provider resolution failed", zap.Error(err))
		}

		if problems > 0 {
			logger.Warn(fmt.Sprintf("%d problem(s) found; analyses will degrade until they are fixed", problems))
			return nil
		}
		logger.Info("All checks passed")
		return nil
	},
}

func reportResolution(cfg *config.Config, role, model string) error {
	logger := observability.CLILogger

	prompts, err := prompt.RegistryWithOverrides(cfg.AILink.PromptsDir)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	slug := strings.TrimSpace(cfg.Analysis.PromptSlug)
	if slug == "" {
		slug = prompt.DefaultSlug
	}
	promptDef, err := prompts.Get(slug)
	if err != nil {
		return fmt.Errorf("prompt not found: %w", err)
	}

	role = strings.TrimSpace(role)
	if role == "" {
		role = strings.TrimSpace(cfg.Analysis.Role)
	}
	if role == "" {
		role = ailink.DefaultRole
	}
	if strings.TrimSpace(model) == "" {
		model = cfg.Analysis.Model
	}

	resolved, err := ailink.NewRegistry(cfg.AILink).Resolve(role, promptDef, model)
	if err != nil {
		return err
	}

	logger.Info("Provider resolution",
		zap.String("role", role),
		zap.String("prompt", slug),
		zap.String("source", describeResolution(cfg, role)),
		zap.String("provider_id", resolved.ProviderID),
		zap.String("ai_provider", resolved.Provider.AIProvider),
		zap.String("base_url", resolved.BaseURL),
		zap.String("model", resolved.Model),
		zap.String("model_source", modelSource(resolved.Provider, promptDef, model)),
		zap.String("credential", resolved.Credential.Label))

	if strings.TrimSpace(resolved.Credential.APIKey) == "" {
		return fmt.Errorf("selected credential of provider %s has no API key", resolved.ProviderID)
	}
	return nil
}

func describeResolution(cfg *config.Config, role string) string {
	if target := strings.TrimSpace(cfg.AILink.Routing[role]); target != "" {
		return "routing -> " + target
	}

	enabled := 0
	for _, providerCfg := range cfg.AILink.Providers {
		if !providerCfg.Enabled {
			continue
		}
		enabled++
		for _, r := range providerCfg.Roles {
			if strings.EqualFold(strings.TrimSpace(r), role) {
				return "roles"
			}
		}
	}

	if strings.TrimSpace(cfg.AILink.DefaultProvider) != "" {
		return "default_provider"
	}
	if enabled == 1 {
		return "only_enabled_provider"
	}
	return "unknown"
}

func modelSource(providerCfg ailink.ProviderInstanceConfig, promptDef *prompt.Prompt, override string) string {
	switch {
	case strings.TrimSpace(override) != "":
		return "override"
	case len(ailink.PreferredModels(promptDef)) > 0:
		return "prompt_preferred_models"
	case strings.TrimSpace(providerCfg.Models["default"]) != "":
		return "provider.models.default"
	default:
		return "unknown"
	}
}

func configFileLabel() string {
	if file := viper.ConfigFileUsed(); file != "" {
		return file
	}
	return "(none, defaults and environment)"
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().StringVar(&doctorRole, "role", "", "Role to resolve (defaults to analysis.role)")
	doctorCmd.Flags().StringVar(&doctorModel, "model", "", "Model override (defaults to analysis.model)")
}
