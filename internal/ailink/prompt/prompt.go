// Package prompt loads the templates used to ask a provider for an error
// explanation. Built-in prompts are embedded; a directory of overrides can
// replace them by slug.
package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// Variables supplied when an explanation prompt is rendered.
const (
	VarContext   = "context"
	VarStage     = "stage"
	VarLocation  = "location"
	VarMaxWords  = "max_words"
	VarMode      = "mode"
	VarExecution = "execution"
)

var knownVariables = map[string]bool{
	VarContext: true, VarStage: true, VarLocation: true,
	VarMaxWords: true, VarMode: true, VarExecution: true,
}

// Config describes a prompt definition loaded from YAML frontmatter.
type Config struct {
	Slug           string         `yaml:"slug" json:"slug"`
	Name           string         `yaml:"name,omitempty" json:"name,omitempty"`
	Description    string         `yaml:"description,omitempty" json:"description,omitempty"`
	Version        string         `yaml:"version,omitempty" json:"version,omitempty"`
	Input          InputSpec      `yaml:"input,omitempty" json:"input,omitempty"`
	SystemTemplate string         `yaml:"system_template,omitempty" json:"system_template,omitempty"`
	UserTemplate   string         `yaml:"user_template,omitempty" json:"user_template,omitempty"`
	Temperature    *float64       `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens      *int           `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	ProviderHints  map[string]any `yaml:"provider_hints,omitempty" json:"provider_hints,omitempty"`
}

// InputSpec lists the variables a prompt depends on.
type InputSpec struct {
	RequiredVariables []string `yaml:"required_variables,omitempty" json:"required_variables,omitempty"`
	OptionalVariables []string `yaml:"optional_variables,omitempty" json:"optional_variables,omitempty"`
}

// Prompt is a validated definition and the file it came from.
type Prompt struct {
	Config Config
	Source string
}

// references reports whether either template uses name as a placeholder
// or a condition.
func (c Config) references(name string) bool {
	for _, tmpl := range []string{c.SystemTemplate, c.UserTemplate} {
		for _, used := range Parse(tmpl).Variables() {
			if used == name {
				return true
			}
		}
	}
	return false
}

// checkVariables rejects unknown variables and required ones the templates never use.
func (c Config) checkVariables() error {
	for _, name := range append(append([]string{}, c.Input.RequiredVariables...), c.Input.OptionalVariables...) {
		if !knownVariables[name] {
			return fmt.Errorf("unknown variable %q", name)
		}
	}
	for _, name := range c.Input.RequiredVariables {
		if !c.references(name) {
			return fmt.Errorf("required variable %q is not used by any template", name)
		}
	}
	return nil
}

// Registry provides access to prompt definitions.
type Registry interface {
	Get(slug string) (*Prompt, error)
	List() []*Prompt
}

// InMemoryRegistry stores prompts by slug.
type InMemoryRegistry struct {
	prompts map[string]*Prompt
}

func slugOf(p *Prompt) (string, error) {
	slug := strings.TrimSpace(p.Config.Slug)
	if slug == "" {
		return "", fmt.Errorf("prompt %s missing slug", p.Source)
	}
	return slug, nil
}

// NewRegistry builds a registry, rejecting duplicate slugs.
func NewRegistry(prompts []*Prompt) (*InMemoryRegistry, error) {
	reg := &InMemoryRegistry{prompts: make(map[string]*Prompt, len(prompts))}
	for _, p := range prompts {
		if p == nil {
			continue
		}
		slug, err := slugOf(p)
		if err != nil {
			return nil, err
		}
		if _, ok := reg.prompts[slug]; ok {
			return nil, fmt.Errorf("duplicate prompt slug: %s", slug)
		}
		reg.prompts[slug] = p
	}
	return reg, nil
}

// Override replaces or adds prompts by slug. Later prompts win.
func (r *InMemoryRegistry) Override(prompts []*Prompt) error {
	if r == nil {
		return fmt.Errorf("prompt registry not configured")
	}
	if r.prompts == nil {
		r.prompts = make(map[string]*Prompt, len(prompts))
	}
	for _, p := range prompts {
		if p == nil {
			continue
		}
		slug, err := slugOf(p)
		if err != nil {
			return err
		}
		r.prompts[slug] = p
	}
	return nil
}

// Get returns the prompt for the slug.
func (r *InMemoryRegistry) Get(slug string) (*Prompt, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry not configured")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, fmt.Errorf("prompt slug is required")
	}
	p, ok := r.prompts[slug]
	if !ok {
		return nil, fmt.Errorf("prompt %q not found", slug)
	}
	return p, nil
}

// List returns prompts sorted by slug.
func (r *InMemoryRegistry) List() []*Prompt {
	if r == nil {
		return nil
	}
	result := make([]*Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Config.Slug < result[j].Config.Slug
	})
	return result
}
