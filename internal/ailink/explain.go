package ailink

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/faultlens/faultlens/internal/ailink/driver"
	"github.com/faultlens/faultlens/internal/ailink/prompt"
	"github.com/faultlens/faultlens/internal/core"
)

const (
	// DefaultRole routes explanation calls when no role is configured.
	DefaultRole    = "explain"
	defaultTimeout = 60 * time.Second
	maxTimeout     = 5 * time.Minute
)

// Service renders the explanation prompt and sends it to a role-selected
// provider. It implements the engine explainer.
type Service struct {
	Providers *Registry
	Prompts   prompt.Registry

	PromptSlug  string
	Role        string
	Model       string
	Temperature *float64
	Timeout     time.Duration
}

// Explain returns the provider's explanation for req. Errors are returned
// as *core.Failure values.
func (s *Service) Explain(ctx context.Context, req core.ExplainRequest) (string, error) {
	if s == nil || s.Providers == nil {
		return "", ClassifyError(&configError{msg: "ailink provider registry not configured"})
	}
	if s.Prompts == nil {
		return "", ClassifyError(&configError{msg: "ailink prompt registry not configured"})
	}
	if ctx == nil {
		ctx = context.Background()
	}

	slug := strings.TrimSpace(s.PromptSlug)
	if slug == "" {
		slug = prompt.DefaultSlug
	}
	promptDef, err := s.Prompts.Get(slug)
	if err != nil {
		return "", ClassifyError(&configError{msg: "load prompt", err: err})
	}

	systemPrompt, userPrompt, err := renderPrompt(promptDef, req)
	if err != nil {
		return "", ClassifyError(&configError{msg: "render prompt", err: err})
	}

	role := strings.TrimSpace(s.Role)
	if role == "" {
		role = DefaultRole
	}
	resolved, err := s.Providers.Resolve(role, promptDef, s.Model)
	if err != nil {
		return "", ClassifyError(&configError{msg: "resolve provider", err: err})
	}
	if strings.TrimSpace(resolved.Credential.APIKey) == "" {
		return "", ClassifyError(&configError{msg: "missing API key for provider " + resolved.ProviderID})
	}

	driverReq := &driver.Request{
		Model: resolved.Model,
		Messages: []driver.Message{
			{Role: driver.RoleSystem, Text: systemPrompt},
			{Role: driver.RoleUser, Text: userPrompt},
		},
		Temperature: s.temperature(promptDef, resolved.Provider),
		MaxTokens:   promptDef.Config.MaxTokens,
		PromptSlug:  promptDef.Config.Slug,
		Metadata:    map[string]string{"mode": string(req.Mode)},
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	resp, err := resolved.Driver.Complete(ctx, driverReq)
	if err != nil {
		return "", ClassifyError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", core.NewFailure(core.FailureService, "empty response content", nil)
	}
	return text, nil
}

func (s *Service) temperature(def *prompt.Prompt, provider ProviderInstanceConfig) *float64 {
	switch {
	case s.Temperature != nil:
		return s.Temperature
	case provider.Temperature != nil:
		return provider.Temperature
	case def != nil:
		return def.Config.Temperature
	default:
		return nil
	}
}

func (s *Service) timeout() time.Duration {
	duration := s.Timeout
	if duration <= 0 && s.Providers != nil {
		duration = s.Providers.cfg.DefaultTimeout
	}
	if duration <= 0 {
		duration = defaultTimeout
	}
	if duration > maxTimeout {
		duration = maxTimeout
	}
	return duration
}

// renderPrompt fills both templates. An empty user template sends the
// analyzed context alone.
func renderPrompt(def *prompt.Prompt, req core.ExplainRequest) (string, string, error) {
	if def == nil {
		return "", "", errors.New("prompt is required")
	}

	vars := map[string]string{
		prompt.VarStage:    req.Stage,
		prompt.VarLocation: req.LocationClause,
		prompt.VarMode:     string(req.Mode),
		prompt.VarContext:  req.Context,
	}
	if req.MaxWords > 0 {
		vars[prompt.VarMaxWords] = strconv.Itoa(req.MaxWords)
	}
	if req.Mode == core.ModeExecution {
		vars[prompt.VarExecution] = "true"
	}

	system := prompt.Render(def.Config.SystemTemplate, vars)
	if strings.TrimSpace(system) == "" {
		return "", "", errors.New("system prompt is required")
	}
	userTemplate := def.Config.UserTemplate
	if userTemplate == "" {
		userTemplate = "{{" + prompt.VarContext + "}}"
	}
	return system, prompt.Render(userTemplate, vars), nil
}
