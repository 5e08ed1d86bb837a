// Package config provides centralized configuration management for faultlens.
// Settings are read through viper (defaults, config file, automatic env) and
// decoded into Config with go-viper/mapstructure. Named environment
// variables and runtime overrides are layered on top.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/faultlens/faultlens/internal/ailink"
)

const (
	// AppName names config, data and cache directories.
	AppName = "faultlens"
	// EnvPrefix prefixes every environment variable the app reads.
	EnvPrefix = "FAULTLENS"

	// ConvenienceProvider is the provider synthesized from an API key alone.
	ConvenienceProvider      = "groq"
	convenienceModel         = "llama-3.3-70b-versatile"
	convenienceTemperature   = 0.3
	convenienceKeyEnv        = "GROQ_API_KEY"
	convenienceAppKeyEnvName = "API_KEY"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec maps one environment variable onto a config path.
type EnvVarSpec = gfconfig.EnvVarSpec

const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

type setting struct {
	key   string
	value any
}

var defaultSettings = []setting{
	{"server.host", "localhost"},
	{"server.port", 8080},
	{"server.read_timeout", "30s"},
	{"server.write_timeout", "5m"},
	{"server.idle_timeout", "120s"},
	{"server.shutdown_timeout", "10s"},

	{"store.driver", "libsql"},
	{"store.url", ""},
	{"store.auth_token", ""},

	{"ailink.default_timeout", "60s"},

	{"analysis.usage_limit", 100},
	{"analysis.usage_window", "15m"},
	{"analysis.explanation_words", 20},
	{"analysis.log_head_lines", 5},
	{"analysis.log_snippet_chars", 500},
	{"analysis.max_subsequent_errors", 3},
	{"analysis.source_preview_chars", 1000},
	{"analysis.prompt_slug", "error-explain"},
	{"analysis.role", "explain"},
	{"analysis.service_timeout", "60s"},

	{"runner.enabled", true},
	{"runner.timeout", "2m"},
	{"runner.max_output_bytes", 1 << 20},

	{"logging.level", "info"},

	{"metrics.enabled", true},
	{"metrics.port", 9090},

	{"health.enabled", true},
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	for _, s := range defaultSettings {
		v.SetDefault(s.key, s.value)
	}
	v.SetDefault("store.path", DefaultStorePath())
}

// Durations bind as strings; the decode hook converts them.
func getEnvSpecs() []EnvVarSpec {
	return []EnvVarSpec{
		envString("HOST", "server.host"),
		envInt("PORT", "server.port"),
		envString("READ_TIMEOUT", "server.read_timeout"),
		envString("WRITE_TIMEOUT", "server.write_timeout"),
		envString("SHUTDOWN_TIMEOUT", "server.shutdown_timeout"),

		envString("LOG_LEVEL", "logging.level"),

		envString("DB_DRIVER", "store.driver"),
		envString("DB_PATH", "store.path"),
		envString("DB_URL", "store.url"),
		envString("DB_AUTH_TOKEN", "store.auth_token"),

		envString("AILINK_DEFAULT_PROVIDER", "ailink.default_provider"),
		envString("AILINK_DEFAULT_TIMEOUT", "ailink.default_timeout"),
		envString("AILINK_PROMPTS_DIR", "ailink.prompts_dir"),

		envInt("USAGE_LIMIT", "analysis.usage_limit"),
		envString("USAGE_WINDOW", "analysis.usage_window"),
		envInt("EXPLANATION_WORDS", "analysis.explanation_words"),
		envString("MODEL", "analysis.model"),
		envString("SERVICE_TIMEOUT", "analysis.service_timeout"),

		envBool("RUNNER_ENABLED", "runner.enabled"),
		envString("RUNNER_TIMEOUT", "runner.timeout"),
		envInt("RUNNER_MAX_OUTPUT_BYTES", "runner.max_output_bytes"),

		envBool("METRICS_ENABLED", "metrics.enabled"),
		envInt("METRICS_PORT", "metrics.port"),

		envBool("HEALTH_ENABLED", "health.enabled"),
	}
}

func envSpec(suffix, path string) EnvVarSpec {
	return EnvVarSpec{Name: EnvPrefix + "_" + suffix, Path: strings.Split(path, ".")}
}

func envString(suffix, path string) EnvVarSpec {
	spec := envSpec(suffix, path)
	spec.Type = EnvString
	return spec
}

func envInt(suffix, path string) EnvVarSpec {
	spec := envSpec(suffix, path)
	spec.Type = EnvInt
	return spec
}

func envBool(suffix, path string) EnvVarSpec {
	spec := envSpec(suffix, path)
	spec.Type = EnvBool
	return spec
}

// Load decodes the global viper settings into Config. Safe to call again
// on reload.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadFrom(ctx, viper.GetViper(), runtimeOverrides...)
}

// LoadFrom decodes settings from v. Precedence, lowest first: defaults,
// config file, automatic env, named env vars, runtime overrides.
func LoadFrom(_ context.Context, v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if envOverrides == nil {
		envOverrides = map[string]any{}
	}
	applyProviderEnv(os.Environ(), EnvPrefix+"_AILINK_", envOverrides)

	merged := v.AllSettings()
	mergeSettings(merged, envOverrides)
	for _, overrides := range runtimeOverrides {
		mergeSettings(merged, overrides)
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	applyConvenienceProvider(cfg)

	setConfig(cfg)
	return cfg, nil
}

func decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// applyConvenienceProvider turns a bare API key into a groq provider when
// no enabled provider is configured. FAULTLENS_API_KEY wins over
// GROQ_API_KEY.
func applyConvenienceProvider(cfg *Config) {
	if cfg == nil || cfg.AILink.HasEnabledProvider() {
		return
	}
	key := firstEnv(EnvPrefix+"_"+convenienceAppKeyEnvName, convenienceKeyEnv)
	if key == "" {
		return
	}

	temperature := convenienceTemperature
	if cfg.AILink.Providers == nil {
		cfg.AILink.Providers = map[string]ailink.ProviderInstanceConfig{}
	}
	cfg.AILink.Providers[ConvenienceProvider] = ailink.ProviderInstanceConfig{
		Enabled:     true,
		AIProvider:  ConvenienceProvider,
		Models:      map[string]string{"default": convenienceModel},
		Temperature: &temperature,
		Credentials: []ailink.CredentialConfig{{Enabled: true, Label: "env", APIKey: key}},
	}
	if strings.TrimSpace(cfg.AILink.DefaultProvider) == "" {
		cfg.AILink.DefaultProvider = ConvenienceProvider
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	return ""
}

// mergeSettings deep-merges src into dst. Nested maps merge key by key;
// every other value in src replaces the one in dst.
func mergeSettings(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		if !srcIsMap {
			dst[key] = value
			continue
		}
		dstMap, dstIsMap := dst[key].(map[string]any)
		if !dstIsMap {
			dstMap = map[string]any{}
			dst[key] = dstMap
		}
		mergeSettings(dstMap, srcMap)
	}
}
