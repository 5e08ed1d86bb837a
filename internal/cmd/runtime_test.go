package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultlens/faultlens/internal/ailink"
	"github.com/faultlens/faultlens/internal/ailink/prompt"
	"github.com/faultlens/faultlens/internal/config"
	"github.com/faultlens/faultlens/internal/core"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv(config.EnvPrefix+"_API_KEY", "")
	t.Setenv(config.EnvPrefix+"_DB_PATH", ":memory:")
}

func TestNewRuntimeWithoutProviderDegrades(t *testing.T) {
	isolateEnv(t)

	rt, err := newRuntime(context.Background(), runtimeOptions{noRun: true})
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	require.False(t, rt.explainer.Configured())
	require.Nil(t, rt.pipeline.Runner)

	analysis := rt.analyzer.HandleAnalysis(context.Background(), core.AnalysisRequest{
		Context: "TypeError: x is not a function",
		Mode:    core.ModeExecution,
	})
	require.Equal(t, core.SourceDegraded, analysis.Source)
	require.NotNil(t, analysis.Failure)
	require.Equal(t, core.FailureConfiguration, analysis.Failure.Kind)
	require.Empty(t, rt.knowledge.Entries(context.Background()))
}

func TestNewRuntimeConvenienceKeyConfiguresProvider(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")

	rt, err := newRuntime(context.Background(), runtimeOptions{})
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	require.True(t, rt.explainer.Configured())
	require.NotNil(t, rt.pipeline.Runner)
	require.Equal(t, "100/15min", rt.analyzer.LimitLabel)
}

func TestSwappableExplainer(t *testing.T) {
	var s swappableExplainer

	_, err := s.Explain(context.Background(), core.ExplainRequest{})
	var failure *core.Failure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, core.FailureConfiguration, failure.Kind)

	s.Set(&ailink.Service{})
	require.True(t, s.Configured())
	s.Set(nil)
	require.False(t, s.Configured())
}

func TestParseMode(t *testing.T) {
	mode, err := parseMode("Static")
	require.NoError(t, err)
	require.Equal(t, core.ModeStatic, mode)

	mode, err = parseMode("")
	require.NoError(t, err)
	require.Equal(t, core.ModeExecution, mode)

	_, err = parseMode("later")
	require.Error(t, err)
}

func TestDescribeResolution(t *testing.T) {
	cfg := &config.Config{AILink: ailink.Config{
		Providers: map[string]ailink.ProviderInstanceConfig{
			"groq":  {Enabled: true},
			"local": {Enabled: true, Roles: []string{"explain"}},
		},
		Routing: map[string]string{"review": "groq"},
	}}

	require.Equal(t, "routing -> groq", describeResolution(cfg, "review"))
	require.Equal(t, "roles", describeResolution(cfg, "explain"))
	require.Equal(t, "unknown", describeResolution(cfg, "other"))

	cfg.AILink.DefaultProvider = "groq"
	require.Equal(t, "default_provider", describeResolution(cfg, "other"))
}

func TestModelSource(t *testing.T) {
	provider := ailink.ProviderInstanceConfig{Models: map[string]string{"default": "m"}}
	withHints := &prompt.Prompt{Config: prompt.Config{ProviderHints: map[string]any{"preferred_models": []any{"p"}}}}

	require.Equal(t, "override", modelSource(provider, withHints, "x"))
	require.Equal(t, "prompt_preferred_models", modelSource(provider, withHints, ""))
	require.Equal(t, "provider.models.default", modelSource(provider, &prompt.Prompt{}, ""))
	require.Equal(t, "unknown", modelSource(ailink.ProviderInstanceConfig{}, nil, ""))
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"analyze", "explain", "knowledge", "usage", "serve", "doctor", "prompt", "version"} {
		require.True(t, names[want], "missing command %s", want)
	}
}

func TestAnalysisInfoDescribesRuntime(t *testing.T) {
	isolateEnv(t)

	rt, err := newRuntime(context.Background(), runtimeOptions{noRun: true})
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	info := rt.analysisInfo()
	assert.Equal(t, prompt.DefaultSlug, info.PromptSlug)
	assert.Equal(t, "100/15min", info.UsageLimit)
	assert.False(t, info.ServiceConfigured)
	assert.False(t, info.RunnerEnabled)
	assert.NotEmpty(t, info.KnowledgeBackend)
}
