package ailink

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/faultlens/faultlens/internal/ailink/driver"
	"github.com/faultlens/faultlens/internal/ailink/driver/openai"
	"github.com/faultlens/faultlens/internal/ailink/prompt"
)

// GroqBaseURL is the OpenAI-compatible endpoint used for "groq" providers
// without an explicit base_url.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// Resolution errors. All of them classify as configuration failures.
var (
	ErrNoProvider   = errors.New("no analysis provider available")
	ErrNoCredential = errors.New("no credentials configured")
	ErrNoModel      = errors.New("model not configured")
)

// Registry resolves the provider instance, credential and model for a role.
// Drivers are cached per provider and credential.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	drivers map[string]driver.Driver
	rr      map[string]int
}

// ResolvedProvider is the driver and model selected for one call.
type ResolvedProvider struct {
	ProviderID string
	Provider   ProviderInstanceConfig
	Credential CredentialConfig
	Driver     driver.Driver
	Model      string
	BaseURL    string
}

// NewRegistry returns a registry over cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Resolve picks the provider for role and the model for promptDef.
// modelOverride wins over prompt hints and the provider default.
func (r *Registry) Resolve(role string, promptDef *prompt.Prompt, modelOverride string) (*ResolvedProvider, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: registry not configured", ErrNoProvider)
	}

	providerID, providerCfg, err := r.providerFor(strings.TrimSpace(role))
	if err != nil {
		return nil, err
	}

	cred, credKey, err := selectCredential(providerCfg, func(group string, n int) int {
		return r.rrIndex(providerID+":"+group, n)
	})
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}

	model, err := resolveModel(providerCfg, promptDef, modelOverride)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}

	drv, err := r.cachedDriver(providerID, providerCfg, cred, credKey)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSpace(providerCfg.BaseURL)
	if client, ok := drv.(*openai.Client); ok {
		baseURL = strings.TrimSpace(client.BaseURL)
	}

	return &ResolvedProvider{
		ProviderID: providerID,
		Provider:   providerCfg,
		Credential: cred,
		Driver:     drv,
		Model:      model,
		BaseURL:    baseURL,
	}, nil
}

// enabledIDs returns the enabled provider ids in sorted order.
func (r *Registry) enabledIDs() []string {
	ids := make([]string, 0, len(r.cfg.Providers))
	for id, providerCfg := range r.cfg.Providers {
		if providerCfg.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// lookup returns an enabled provider by id; source names the setting that chose it.
func (r *Registry) lookup(id, source string) (string, ProviderInstanceConfig, error) {
	providerCfg, ok := r.cfg.Providers[id]
	if !ok {
		return "", ProviderInstanceConfig{}, fmt.Errorf("%w: %s provider %q not configured", ErrNoProvider, source, id)
	}
	if !providerCfg.Enabled {
		return "", ProviderInstanceConfig{}, fmt.Errorf("%w: %s provider %q is disabled", ErrNoProvider, source, id)
	}
	return id, providerCfg, nil
}

// providerFor applies routing, then role membership, then the default
// provider, then the only enabled provider.
func (r *Registry) providerFor(role string) (string, ProviderInstanceConfig, error) {
	if role != "" {
		if target := strings.TrimSpace(r.cfg.Routing[role]); target != "" {
			return r.lookup(target, "routed")
		}
	}

	enabled := r.enabledIDs()
	if role != "" {
		for _, id := range enabled {
			if hasRole(r.cfg.Providers[id].Roles, role) {
				return id, r.cfg.Providers[id], nil
			}
		}
	}

	if id := strings.TrimSpace(r.cfg.DefaultProvider); id != "" {
		return r.lookup(id, "default")
	}

	switch len(enabled) {
	case 0:
		return "", ProviderInstanceConfig{}, fmt.Errorf("%w: no enabled providers configured", ErrNoProvider)
	case 1:
		return enabled[0], r.cfg.Providers[enabled[0]], nil
	default:
		return "", ProviderInstanceConfig{}, fmt.Errorf("%w: %d providers enabled and none routed for role %q",
			ErrNoProvider, len(enabled), role)
	}
}

func credentialKey(cred CredentialConfig, fallback string) string {
	if label := strings.TrimSpace(cred.Label); label != "" {
		return label
	}
	return fallback
}

// selectCredential picks among usable credentials of the highest priority.
// When none carries a key the first entry is returned so the caller can
// report the missing key by provider.
func selectCredential(cfg ProviderInstanceConfig, rrNext func(group string, n int) int) (CredentialConfig, string, error) {
	if len(cfg.Credentials) == 0 {
		return CredentialConfig{}, "", ErrNoCredential
	}

	var usable []CredentialConfig
	for _, cred := range cfg.Credentials {
		// Unlabeled entries come from the environment convenience key and
		// carry no explicit enabled flag.
		if !cred.Enabled && strings.TrimSpace(cred.Label) != "" {
			continue
		}
		if strings.TrimSpace(cred.APIKey) != "" {
			usable = append(usable, cred)
		}
	}
	if len(usable) == 0 {
		return cfg.Credentials[0], credentialKey(cfg.Credentials[0], "0"), nil
	}

	if label := strings.TrimSpace(cfg.DefaultCredential); label != "" {
		for _, cred := range usable {
			if strings.EqualFold(strings.TrimSpace(cred.Label), label) {
				return cred, credentialKey(cred, label), nil
			}
		}
	}

	highest := usable[0].Priority
	for _, cred := range usable[1:] {
		highest = max(highest, cred.Priority)
	}
	var group []CredentialConfig
	for _, cred := range usable {
		if cred.Priority == highest {
			group = append(group, cred)
		}
	}

	groupKey := "p" + strconv.Itoa(highest)
	idx := 0
	if strings.EqualFold(strings.TrimSpace(cfg.SelectionPolicy), "round_robin") && rrNext != nil {
		idx = rrNext(groupKey, len(group))
	}
	return group[idx], credentialKey(group[idx], groupKey), nil
}

func (r *Registry) cachedDriver(providerID string, providerCfg ProviderInstanceConfig, cred CredentialConfig, credKey string) (driver.Driver, error) {
	key := providerID
	if credKey != "" {
		key += ":" + credKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if drv, ok := r.drivers[key]; ok {
		return drv, nil
	}

	drv, err := newDriver(providerID, providerCfg, cred, r.cfg)
	if err != nil {
		return nil, err
	}
	if r.drivers == nil {
		r.drivers = map[string]driver.Driver{}
	}
	r.drivers[key] = drv
	return drv, nil
}

func newDriver(providerID string, providerCfg ProviderInstanceConfig, cred CredentialConfig, cfg Config) (driver.Driver, error) {
	providerType := strings.ToLower(strings.TrimSpace(providerCfg.AIProvider))
	switch providerType {
	case "openai", "groq":
		baseURL := strings.TrimSpace(providerCfg.BaseURL)
		if providerType == "groq" && baseURL == "" {
			baseURL = GroqBaseURL
		}
		client := openai.NewClient(baseURL, cred.APIKey)
		client.Provider = providerType
		client.Timeout = cfg.DefaultTimeout
		return client, nil
	case "":
		return nil, fmt.Errorf("unsupported ai_provider %q for provider %q", "(unset)", providerID)
	default:
		return nil, fmt.Errorf("unsupported ai_provider %q for provider %q", providerType, providerID)
	}
}

// resolveModel prefers the override, then the prompt's first preferred model,
// then the provider's "default" model.
func resolveModel(providerCfg ProviderInstanceConfig, promptDef *prompt.Prompt, override string) (string, error) {
	if model := strings.TrimSpace(override); model != "" {
		return model, nil
	}
	for _, model := range PreferredModels(promptDef) {
		if model = strings.TrimSpace(model); model != "" {
			return model, nil
		}
	}
	if model := strings.TrimSpace(providerCfg.Models["default"]); model != "" {
		return model, nil
	}
	return "", ErrNoModel
}

// PreferredModels returns the prompt's provider_hints.preferred_models.
func PreferredModels(promptDef *prompt.Prompt) []string {
	if promptDef == nil {
		return nil
	}

	switch typed := promptDef.Config.ProviderHints["preferred_models"].(type) {
	case []string:
		return typed
	case []any:
		models := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				models = append(models, s)
			}
		}
		return models
	case string:
		if strings.TrimSpace(typed) != "" {
			return []string{typed}
		}
	}
	return nil
}

func (r *Registry) rrIndex(key string, n int) int {
	if r == nil || n <= 1 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rr == nil {
		r.rr = map[string]int{}
	}
	idx := r.rr[key] % n
	r.rr[key]++
	return idx
}

func hasRole(roles []string, role string) bool {
	for _, candidate := range roles {
		if strings.EqualFold(strings.TrimSpace(candidate), role) {
			return true
		}
	}
	return false
}
