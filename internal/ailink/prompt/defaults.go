package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

// DefaultSlug names the built-in error explanation prompt.
const DefaultSlug = "error-explain"

//go:embed prompts/*.md
var builtinFS embed.FS

// LoadDefaults loads the embedded prompt set.
func LoadDefaults() ([]*Prompt, error) {
	names, err := fs.Glob(builtinFS, "prompts/*.md")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts: %w", err)
	}
	results := make([]*Prompt, 0, len(names))
	for _, name := range names {
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read embedded prompt %s: %w", name, err)
		}
		p, err := Load(name, data)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, nil
}

// DefaultRegistry builds a registry from embedded prompts.
func DefaultRegistry() (*InMemoryRegistry, error) {
	prompts, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	return NewRegistry(prompts)
}

// RegistryWithOverrides layers prompts from dir over the embedded set.
// An empty dir returns the embedded set unchanged.
func RegistryWithOverrides(dir string) (*InMemoryRegistry, error) {
	reg, err := DefaultRegistry()
	if err != nil || strings.TrimSpace(dir) == "" {
		return reg, err
	}
	overrides, err := LoadFromDir(dir)
	if err != nil {
		return nil, err
	}
	if err := reg.Override(overrides); err != nil {
		return nil, err
	}
	return reg, nil
}
