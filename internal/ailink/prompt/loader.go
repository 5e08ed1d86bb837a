package prompt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"
	"gopkg.in/yaml.v3"
)

//go:embed prompt.schema.json
var promptSchema []byte

var frontmatterFence = []byte("---")

var compileValidator = sync.OnceValues(func() (*schema.Validator, error) {
	v, err := schema.NewValidator(promptSchema)
	if err != nil {
		return nil, fmt.Errorf("compile prompt schema: %w", err)
	}
	return v, nil
})

// Load parses a prompt from Markdown with YAML frontmatter, or from plain
// YAML. A Markdown body becomes the system template when none is set.
func Load(source string, data []byte) (*Prompt, error) {
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}
	if strings.TrimSpace(cfg.SystemTemplate) == "" {
		return nil, fmt.Errorf("prompt %s missing system_template", source)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate prompt %s: %w", source, err)
	}
	return &Prompt{Config: cfg, Source: source}, nil
}

// LoadFromDir reads every *.md prompt in dir, in name order.
func LoadFromDir(dir string) ([]*Prompt, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scan prompts: %w", err)
	}
	sort.Strings(paths)

	results := make([]*Prompt, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path) // #nosec G304 -- prompt directory is chosen by the user
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", path, err)
		}
		p, err := Load(path, data)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, nil
}

func parse(data []byte) (Config, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Config{}, errors.New("empty prompt")
	}

	var cfg Config
	front, body, fenced := splitFrontmatter(trimmed)
	if !fenced {
		if err := yaml.Unmarshal(trimmed, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid yaml: %w", err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(front, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if strings.TrimSpace(cfg.SystemTemplate) == "" {
		cfg.SystemTemplate = strings.TrimSpace(string(body))
	}
	return cfg, nil
}

// splitFrontmatter separates a leading "---" fenced block from the body.
func splitFrontmatter(data []byte) ([]byte, []byte, bool) {
	first, rest, _ := bytes.Cut(data, []byte("\n"))
	if !bytes.Equal(bytes.TrimSpace(first), frontmatterFence) {
		return nil, nil, false
	}

	var front [][]byte
	for len(rest) > 0 {
		var line []byte
		line, rest, _ = bytes.Cut(rest, []byte("\n"))
		if bytes.Equal(bytes.TrimSpace(line), frontmatterFence) {
			return bytes.Join(front, []byte("\n")), rest, true
		}
		front = append(front, line)
	}
	// Unterminated fence: everything after it is frontmatter.
	return bytes.Join(front, []byte("\n")), nil, true
}

func validate(cfg Config) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	v, err := compileValidator()
	if err != nil {
		return err
	}
	diagnostics, err := v.ValidateJSON(payload)
	if err != nil {
		return err
	}
	if len(diagnostics) > 0 {
		return fmt.Errorf("schema validation failed: %s", diagnostics[0].Message)
	}
	return cfg.checkVariables()
}
