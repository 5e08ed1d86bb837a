package ailink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/faultlens/faultlens/internal/ailink/prompt"
	"github.com/faultlens/faultlens/internal/core"
)

type capturedRequest struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestService(t *testing.T, baseURL, apiKey string) *Service {
	t.Helper()
	reg, err := prompt.DefaultRegistry()
	require.NoError(t, err)

	providers := NewRegistry(Config{
		Providers: map[string]ProviderInstanceConfig{
			"groq": {
				Enabled:     true,
				AIProvider:  "groq",
				BaseURL:     baseURL,
				Models:      map[string]string{"default": "llama-3.3-70b-versatile"},
				Credentials: []CredentialConfig{{Enabled: true, APIKey: apiKey}},
			},
		},
	})
	return &Service{Providers: providers, Prompts: reg}
}

func TestServiceExplainRendersPrompt(t *testing.T) {
	var captured capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  - . Error: TypeError  "},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	svc := newTestService(t, server.URL, "key")
	text, err := svc.Explain(context.Background(), core.ExplainRequest{
		Mode:           core.ModeExecution,
		Stage:          "Execution",
		LocationClause: "Location: Line 3, Col 7",
		Context:        "TypeError: x is undefined {{stage}}",
		MaxWords:       20,
	})
	require.NoError(t, err)
	require.Equal(t, "- . Error: TypeError", text)

	require.Equal(t, "llama-3.3-70b-versatile", captured.Model)
	require.NotNil(t, captured.Temperature)
	require.InDelta(t, 0.3, *captured.Temperature, 1e-9)
	require.Len(t, captured.Messages, 2)
	require.Contains(t, captured.Messages[0].Content, "senior mentor")

	user := captured.Messages[1].Content
	require.Contains(t, user, "Stage: Execution")
	require.Contains(t, user, "Location: Line 3, Col 7")
	require.Contains(t, user, "Analyze: TypeError: x is undefined {{stage}}")
	require.Contains(t, user, "under 20 WORDS")
}

func TestServiceExplainMissingKeyIsConfigurationFailure(t *testing.T) {
	svc := newTestService(t, "http://127.0.0.1:1", "")
	_, err := svc.Explain(context.Background(), core.ExplainRequest{Mode: core.ModeStatic, Context: "x"})

	var failure *core.Failure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, core.FailureConfiguration, failure.Kind)
}

func TestServiceExplainProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer server.Close()

	svc := newTestService(t, server.URL, "key")
	_, err := svc.Explain(context.Background(), core.ExplainRequest{Mode: core.ModeStatic, Context: "x"})

	var failure *core.Failure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, core.FailureService, failure.Kind)
	require.Equal(t, "provider unavailable", failure.Message)
}

func TestServiceExplainWithoutRegistry(t *testing.T) {
	var svc *Service
	_, err := svc.Explain(context.Background(), core.ExplainRequest{})
	require.Error(t, err)
}

func TestRenderPromptLeavesPlaceholdersInsideContext(t *testing.T) {
	def := &prompt.Prompt{Config: prompt.Config{Slug: "t", SystemTemplate: "sys", UserTemplate: "{{stage}}|{{context}}"}}
	_, user, err := renderPrompt(def, core.ExplainRequest{Stage: "Preliminary", Context: "{{stage}}"})
	require.NoError(t, err)
	require.Equal(t, "Preliminary|{{stage}}", user)
}
