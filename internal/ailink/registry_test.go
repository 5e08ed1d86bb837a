package ailink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/faultlens/faultlens/internal/ailink/driver/openai"
	"github.com/faultlens/faultlens/internal/ailink/prompt"
)

func TestResolveModelUsesOverrideFirst(t *testing.T) {
	providerCfg := ProviderInstanceConfig{Models: map[string]string{"default": "m-default"}}

	model, err := resolveModel(providerCfg, nil, "override-model")
	require.NoError(t, err)
	require.Equal(t, "override-model", model)
}

func TestResolveModelFallsBackToPromptPreferredModels(t *testing.T) {
	providerCfg := ProviderInstanceConfig{}
	promptDef := &prompt.Prompt{Config: prompt.Config{ProviderHints: map[string]any{"preferred_models": []any{"prompt-model"}}}}

	model, err := resolveModel(providerCfg, promptDef, "")
	require.NoError(t, err)
	require.Equal(t, "prompt-model", model)
}

func TestResolveModelRequiresDefault(t *testing.T) {
	_, err := resolveModel(ProviderInstanceConfig{}, nil, "")
	require.Error(t, err)
}

func TestResolveGroqProviderUsesCompatibleEndpoint(t *testing.T) {
	reg := NewRegistry(Config{
		Providers: map[string]ProviderInstanceConfig{
			"groq": {
				Enabled:     true,
				AIProvider:  "groq",
				Models:      map[string]string{"default": "llama-3.3-70b-versatile"},
				Credentials: []CredentialConfig{{Enabled: true, APIKey: "k"}},
			},
		},
	})

	resolved, err := reg.Resolve("explain", nil, "")
	require.NoError(t, err)
	require.Equal(t, "groq", resolved.ProviderID)
	require.Equal(t, GroqBaseURL, resolved.BaseURL)
	require.Equal(t, "llama-3.3-70b-versatile", resolved.Model)

	client, ok := resolved.Driver.(*openai.Client)
	require.True(t, ok)
	require.Equal(t, "groq", client.Name())
}

func TestResolveRoutesByRole(t *testing.T) {
	reg := NewRegistry(Config{
		Routing: map[string]string{"explain": "primary"},
		Providers: map[string]ProviderInstanceConfig{
			"primary": {
				Enabled:     true,
				AIProvider:  "openai",
				Models:      map[string]string{"default": "gpt"},
				Credentials: []CredentialConfig{{Enabled: true, APIKey: "k"}},
			},
			"secondary": {
				Enabled:     true,
				AIProvider:  "groq",
				Models:      map[string]string{"default": "llama"},
				Credentials: []CredentialConfig{{Enabled: true, APIKey: "k"}},
			},
		},
	})

	resolved, err := reg.Resolve("explain", nil, "")
	require.NoError(t, err)
	require.Equal(t, "primary", resolved.ProviderID)

	_, err = reg.Resolve("other", nil, "")
	require.Error(t, err)
}

func TestResolveRejectsUnknownProviderType(t *testing.T) {
	reg := NewRegistry(Config{
		Providers: map[string]ProviderInstanceConfig{
			"x": {Enabled: true, AIProvider: "carrier-pigeon", Credentials: []CredentialConfig{{Enabled: true, APIKey: "k"}}},
		},
	})
	_, err := reg.Resolve("explain", nil, "m")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported ai_provider")
}

func TestSelectCredentialRoundRobin(t *testing.T) {
	cfg := ProviderInstanceConfig{
		SelectionPolicy: "round_robin",
		Credentials: []CredentialConfig{
			{Enabled: true, Label: "a", APIKey: "ka", Priority: 1},
			{Enabled: true, Label: "b", APIKey: "kb", Priority: 1},
			{Enabled: true, Label: "low", APIKey: "kl"},
		},
	}
	reg := NewRegistry(Config{})
	next := func(group string, n int) int { return reg.rrIndex(group, n) }

	first, _, err := selectCredential(cfg, next)
	require.NoError(t, err)
	second, _, err := selectCredential(cfg, next)
	require.NoError(t, err)
	require.Equal(t, "a", first.Label)
	require.Equal(t, "b", second.Label)
}

func TestResolveReportsMissingProvider(t *testing.T) {
	_, err := NewRegistry(Config{}).Resolve("explain", nil, "m")
	require.True(t, errors.Is(err, ErrNoProvider))

	_, err = NewRegistry(Config{
		DefaultProvider: "gone",
		Providers: map[string]ProviderInstanceConfig{
			"groq": {Enabled: true, AIProvider: "groq", Credentials: []CredentialConfig{{APIKey: "k"}}},
		},
	}).Resolve("explain", nil, "m")
	require.True(t, errors.Is(err, ErrNoProvider))
	require.Contains(t, err.Error(), `"gone"`)
}

func TestResolvePicksRoleMemberInSortedOrder(t *testing.T) {
	provider := func(model string) ProviderInstanceConfig {
		return ProviderInstanceConfig{
			Enabled:     true,
			AIProvider:  "openai",
			Roles:       []string{"explain"},
			Models:      map[string]string{"default": model},
			Credentials: []CredentialConfig{{Enabled: true, APIKey: "k"}},
		}
	}
	reg := NewRegistry(Config{Providers: map[string]ProviderInstanceConfig{
		"zeta":  provider("z"),
		"alpha": provider("a"),
	}})

	for i := 0; i < 5; i++ {
		resolved, err := reg.Resolve("EXPLAIN", nil, "")
		require.NoError(t, err)
		require.Equal(t, "alpha", resolved.ProviderID)
	}
}

func TestResolveMissingModel(t *testing.T) {
	reg := NewRegistry(Config{Providers: map[string]ProviderInstanceConfig{
		"groq": {Enabled: true, AIProvider: "groq", Credentials: []CredentialConfig{{APIKey: "k"}}},
	}})
	_, err := reg.Resolve("explain", nil, "")
	require.True(t, errors.Is(err, ErrNoModel))
}

func TestResolveCachesDriverPerCredential(t *testing.T) {
	reg := NewRegistry(Config{Providers: map[string]ProviderInstanceConfig{
		"groq": {
			Enabled:     true,
			AIProvider:  "groq",
			Models:      map[string]string{"default": "llama"},
			Credentials: []CredentialConfig{{Enabled: true, Label: "ci", APIKey: "k"}},
		},
	}})

	first, err := reg.Resolve("explain", nil, "")
	require.NoError(t, err)
	second, err := reg.Resolve("explain", nil, "")
	require.NoError(t, err)
	require.Same(t, first.Driver, second.Driver)
}
