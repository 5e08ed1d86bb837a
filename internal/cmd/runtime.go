package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/ailink"
	"github.com/faultlens/faultlens/internal/ailink/prompt"
	"github.com/faultlens/faultlens/internal/config"
	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/core/engine"
	"github.com/faultlens/faultlens/internal/core/runner"
	"github.com/faultlens/faultlens/internal/core/store"
	"github.com/faultlens/faultlens/internal/observability"
)

// appRuntime wires the analysis engine from configuration.
type appRuntime struct {
	cfg       *config.Config
	store     *store.Store
	knowledge *engine.KnowledgeBase
	limiter   *engine.UsageLimiter
	analyzer  *engine.Analyzer
	explainer *swappableExplainer
	pipeline  *engine.Pipeline

	// configErr is set when the user configuration could not be decoded
	// and built-in defaults were used instead.
	configErr error
}

type runtimeOptions struct {
	// strictConfig fails instead of falling back to defaults.
	strictConfig bool
	// noRun disables execution of target files.
	noRun bool
	// sink receives each analysis as soon as it completes.
	sink func(*core.Analysis)
}

func newRuntime(ctx context.Context, opts runtimeOptions) (*appRuntime, error) {
	logger := observability.Logger()
	rt := &appRuntime{}

	cfg, err := config.Load(ctx)
	if err != nil {
		if opts.strictConfig {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger.Warn("Config could not be loaded, using defaults", zap.Error(err))
		rt.configErr = err

		defaults := viper.New()
		config.SetDefaults(defaults)
		cfg, err = config.LoadFrom(ctx, defaults)
		if err != nil {
			return nil, fmt.Errorf("load default config: %w", err)
		}
	}
	rt.cfg = cfg

	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Warn("Store unavailable, knowledge and usage are kept in memory",
			zap.String("failure_kind", string(core.FailurePersistence)),
			zap.Error(err))
	} else {
		rt.store = db
	}

	rt.knowledge = &engine.KnowledgeBase{Logger: logger}
	rt.limiter = &engine.UsageLimiter{
		Limit:  cfg.Analysis.UsageLimit,
		Window: cfg.Analysis.UsageWindow,
		Logger: logger,
	}
	if rt.store != nil {
		rt.knowledge.Store = rt.store
		rt.limiter.Store = rt.store
	}

	rt.analyzer = &engine.Analyzer{
		Knowledge:  rt.knowledge,
		Limiter:    rt.limiter,
		Logger:     logger,
		MaxWords:   cfg.Analysis.ExplanationWords,
		LimitLabel: engine.FormatLimitLabel(cfg.Analysis.UsageLimit, cfg.Analysis.UsageWindow),
	}
	rt.explainer = &swappableExplainer{}
	rt.analyzer.Explainer = rt.explainer
	explainer, err := buildExplainer(cfg)
	if err != nil {
		logger.Warn("Analysis service unavailable",
			zap.String("failure_kind", string(core.FailureConfiguration)),
			zap.Error(err))
	} else {
		rt.explainer.Set(explainer)
	}

	rt.pipeline = &engine.Pipeline{
		Handler:             rt.analyzer,
		Logger:              logger,
		Commands:            cfg.Runner.CommandTable(),
		Sink:                opts.sink,
		LogHeadLines:        cfg.Analysis.LogHeadLines,
		LogSnippetChars:     cfg.Analysis.LogSnippetChars,
		MaxSubsequentErrors: cfg.Analysis.MaxSubsequentErrors,
		SourcePreviewChars:  cfg.Analysis.SourcePreviewChars,
	}
	if cfg.Runner.Enabled && !opts.noRun {
		rt.pipeline.Runner = &runner.Exec{
			Timeout:        cfg.Runner.Timeout,
			MaxOutputBytes: int64(cfg.Runner.MaxOutputBytes),
			Logger:         logger,
		}
	}

	return rt, nil
}

// buildExplainer returns nil without error when no provider is configured;
// every analysis then degrades with a configuration failure.
func buildExplainer(cfg *config.Config) (*ailink.Service, error) {
	if !cfg.AILink.HasEnabledProvider() {
		return nil, nil
	}

	prompts, err := prompt.RegistryWithOverrides(cfg.AILink.PromptsDir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	return &ailink.Service{
		Providers:  ailink.NewRegistry(cfg.AILink),
		Prompts:    prompts,
		PromptSlug: cfg.Analysis.PromptSlug,
		Role:       cfg.Analysis.Role,
		Model:      cfg.Analysis.Model,
		Timeout:    cfg.Analysis.ServiceTimeout,
	}, nil
}

// swappableExplainer lets a config reload replace the provider service
// while requests are in flight.
type swappableExplainer struct {
	mu    sync.RWMutex
	inner *ailink.Service
}

func (s *swappableExplainer) Explain(ctx context.Context, req core.ExplainRequest) (string, error) {
	s.mu.RLock()
	inner := s.inner
	s.mu.RUnlock()
	if inner == nil {
		return "", core.NewFailure(core.FailureConfiguration, "no analysis service configured", nil)
	}
	return inner.Explain(ctx, req)
}

// Set replaces the service; nil disables explanations.
func (s *swappableExplainer) Set(service *ailink.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner = service
}

// Configured reports whether a service is installed.
func (s *swappableExplainer) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inner != nil
}

func (rt *appRuntime) Close() {
	if rt == nil || rt.store == nil {
		return
	}
	if err := rt.store.Close(); err != nil {
		observability.Logger().Warn("Store close failed", zap.Error(err))
	}
}
