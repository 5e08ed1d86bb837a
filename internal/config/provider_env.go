package config

import (
	"strconv"
	"strings"
)

// Provider instances can be declared entirely from the environment:
//
//	FAULTLENS_AILINK_PROVIDERS_<ID>_<FIELD>=value
//	FAULTLENS_AILINK_ROUTING_<ROLE>=<provider-id>
//
// <ID> may contain underscores; it ends at the first recognized field word
// and is lower-cased with dashes ("OPENAI_MAIN" becomes "openai-main").

// providerFieldWords start a field name inside a provider variable.
var providerFieldWords = map[string]bool{
	"ENABLED": true, "AI": true, "BASE": true, "MODELS": true,
	"CREDENTIALS": true, "SELECTION": true, "DEFAULT": true, "TEMPERATURE": true,
}

// providerScalars maps a joined field name to its config key and parser.
var providerScalars = map[string]struct {
	key   string
	parse func(string) (any, bool)
}{
	"ENABLED":            {"enabled", parseBool},
	"TEMPERATURE":        {"temperature", parseFloat},
	"AI_PROVIDER":        {"ai_provider", lowerString},
	"DEFAULT_CREDENTIAL": {"default_credential", plainString},
	"SELECTION_POLICY":   {"selection_policy", lowerString},
	"BASE_URL":           {"base_url", plainString},
}

// applyProviderEnv folds provider and routing variables from environ into
// overrides. Empty values are ignored.
func applyProviderEnv(environ []string, prefix string, overrides map[string]any) {
	for _, item := range environ {
		key, value, ok := strings.Cut(item, "=")
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		if rest, found := strings.CutPrefix(key, prefix+"PROVIDERS_"); found {
			setProviderField(overrides, rest, value)
		} else if rest, found := strings.CutPrefix(key, prefix+"ROUTING_"); found {
			setRoute(overrides, rest, value)
		}
	}
}

func setRoute(overrides map[string]any, rawRole, providerID string) {
	role := toSlug(strings.Split(rawRole, "_"))
	if role == "" {
		return
	}
	routing := ensureMap(ensureMap(overrides, "ailink"), "routing")
	routing[role] = providerID
}

func setProviderField(overrides map[string]any, raw, value string) {
	words := strings.Split(strings.TrimSpace(raw), "_")
	split := -1
	for i, w := range words {
		if providerFieldWords[w] {
			split = i
			break
		}
	}
	if split <= 0 {
		return
	}
	id, field := toSlug(words[:split]), words[split:]
	if id == "" {
		return
	}
	provider := ensureMap(ensureMap(ensureMap(overrides, "ailink"), "providers"), id)

	if scalar, ok := providerScalars[strings.Join(field, "_")]; ok {
		if parsed, ok := scalar.parse(value); ok {
			provider[scalar.key] = parsed
		}
		return
	}

	switch {
	case field[0] == "MODELS" && len(field) >= 2:
		models := ensureMap(provider, "models")
		models[strings.ToLower(strings.Join(field[1:], "_"))] = value
	case field[0] == "CREDENTIALS" && len(field) >= 3:
		idx, err := strconv.Atoi(field[1])
		if err != nil || idx < 0 {
			return
		}
		setCredentialField(ensureListItem(provider, "credentials", idx),
			strings.ToLower(strings.Join(field[2:], "_")), value)
	}
}

func setCredentialField(cred map[string]any, name, value string) {
	switch name {
	case "priority":
		if n, err := strconv.Atoi(value); err == nil {
			cred[name] = n
			return
		}
		cred[name] = value
	case "enabled":
		cred[name], _ = parseBool(value)
	default:
		cred[name] = value
	}
}

func parseBool(v string) (any, bool) { return strings.EqualFold(v, "true"), true }

func lowerString(v string) (any, bool) { return strings.ToLower(v), true }

func plainString(v string) (any, bool) { return v, true }

func parseFloat(v string) (any, bool) {
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if typed, ok := parent[key].(map[string]any); ok {
		return typed
	}
	next := map[string]any{}
	parent[key] = next
	return next
}

// ensureListItem grows parent[key] to hold idx and returns the map at idx.
func ensureListItem(parent map[string]any, key string, idx int) map[string]any {
	list, _ := parent[key].([]any)
	for len(list) <= idx {
		list = append(list, map[string]any{})
	}
	parent[key] = list
	item, ok := list[idx].(map[string]any)
	if !ok {
		item = map[string]any{}
		list[idx] = item
	}
	return item
}

func toSlug(words []string) string {
	clean := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			clean = append(clean, w)
		}
	}
	return strings.Join(clean, "-")
}
