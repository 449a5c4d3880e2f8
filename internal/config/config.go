package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// envPrefix is prepended to every environment variable name below.
const envPrefix = "CAPSULE_"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Generators.
const (
	GeneratorProxy  = "proxy"
	GeneratorOpenAI = "openai"
)

// Config holds application configuration.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `json:"addr,omitempty" env:"ADDR"`

	// CacheTTLSeconds is how long a cached answer or record stays usable.
	CacheTTLSeconds int `json:"cache_ttl_seconds,omitempty" env:"CACHE_TTL_SECONDS"`

	// StoreBackend selects the persistent store: "sqlite", "redis" or "memory".
	StoreBackend string `json:"store_backend,omitempty" env:"STORE_BACKEND"`

	// RedisAddr is used when StoreBackend is "redis".
	RedisAddr string `json:"redis_addr,omitempty" env:"REDIS_ADDR"`

	// Generator selects the text generation client: "proxy" or "openai".
	Generator string `json:"generator,omitempty" env:"GENERATOR"`

	// ProxyURL is the endpoint the proxy generator posts prompts to.
	ProxyURL string `json:"proxy_url,omitempty" env:"PROXY_URL"`

	// OpenAIBaseURL overrides the OpenAI API base URL (for compatible services).
	OpenAIBaseURL string `json:"openai_base_url,omitempty" env:"OPENAI_BASE_URL"`

	// OpenAIAPIKey is read from the environment only and never from config files.
	OpenAIAPIKey string `json:"-" env:"OPENAI_API_KEY"`

	OpenAIModel       string  `json:"openai_model,omitempty" env:"OPENAI_MODEL"`
	OpenAIMaxTokens   int     `json:"openai_max_tokens,omitempty" env:"OPENAI_MAX_TOKENS"`
	OpenAITemperature float64 `json:"openai_temperature,omitempty" env:"OPENAI_TEMPERATURE"`

	// GenerationTimeoutSeconds bounds a single generation request.
	GenerationTimeoutSeconds int `json:"generation_timeout_seconds,omitempty" env:"GENERATION_TIMEOUT_SECONDS"`

	// BackendURL is the base URL of the subscription backend.
	// Empty disables access checks and the admin dashboard.
	BackendURL string `json:"backend_url,omitempty" env:"BACKEND_URL"`

	// PaletteLimit is the default number of swatches returned by the palette operation.
	PaletteLimit int `json:"palette_limit,omitempty" env:"PALETTE_LIMIT"`

	// LogLevel is a zap level name; LogFormat is "console" or "json".
	LogLevel  string `json:"log_level,omitempty" env:"LOG_LEVEL"`
	LogFormat string `json:"log_format,omitempty" env:"LOG_FORMAT"`

	// DBMaxOpenConns limits the maximum number of open SQLite connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" env:"DB_MAX_OPEN_CONNS"`

	// DBMaxIdleConns limits the maximum number of idle SQLite connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" env:"DB_MAX_IDLE_CONNS"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty" env:"DISABLED_TOOLS" envSeparator:","`

	// DisabledTypes is a list of tool type names to disable entirely.
	// Known types: "suggest", "market".
	DisabledTypes []string `json:"disabled_types,omitempty" env:"DISABLED_TYPES" envSeparator:","`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:                     "127.0.0.1:8787",
		CacheTTLSeconds:          300,
		StoreBackend:             BackendSQLite,
		RedisAddr:                "localhost:6379",
		Generator:                GeneratorProxy,
		ProxyURL:                 "http://127.0.0.1:8787/api/openai",
		OpenAIModel:              "gpt-4o",
		OpenAIMaxTokens:          1000,
		OpenAITemperature:        0.7,
		GenerationTimeoutSeconds: 60,
		PaletteLimit:             4,
		LogLevel:                 "info",
		LogFormat:                "console",
	}
}

// CacheTTL returns the cache expiration window.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// GenerationTimeout returns the per-request generation deadline.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache_ttl_seconds must be positive, got %d", c.CacheTTLSeconds)
	}
	if !slices.Contains([]string{BackendSQLite, BackendRedis, BackendMemory}, c.StoreBackend) {
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	if !slices.Contains([]string{GeneratorProxy, GeneratorOpenAI}, c.Generator) {
		return fmt.Errorf("unknown generator %q", c.Generator)
	}
	if c.PaletteLimit < 0 {
		return fmt.Errorf("palette_limit must not be negative, got %d", c.PaletteLimit)
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.capsule.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.capsule) and repo (.capsule) directories.
// Repo config is found by walking upward from startDir to find the nearest .capsule/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .capsule/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".capsule", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv loads the given .env files (missing files are skipped) and overlays
// CAPSULE_* environment variables on cfg.
func ApplyEnv(cfg *Config, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return applyEnv(cfg, env.Options{Prefix: envPrefix})
}

// ApplyEnvFrom overlays variables from environ instead of the process environment.
func ApplyEnvFrom(cfg *Config, environ map[string]string) (*Config, error) {
	return applyEnv(cfg, env.Options{Prefix: envPrefix, Environment: environ})
}

func applyEnv(cfg *Config, opts env.Options) (*Config, error) {
	overlay := &Config{}
	if err := env.ParseWithOptions(overlay, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return Merge(cfg, overlay), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	return &Config{
		Addr:                     pick(overlay.Addr, base.Addr),
		CacheTTLSeconds:          pick(overlay.CacheTTLSeconds, base.CacheTTLSeconds),
		StoreBackend:             pick(overlay.StoreBackend, base.StoreBackend),
		RedisAddr:                pick(overlay.RedisAddr, base.RedisAddr),
		Generator:                pick(overlay.Generator, base.Generator),
		ProxyURL:                 pick(overlay.ProxyURL, base.ProxyURL),
		OpenAIBaseURL:            pick(overlay.OpenAIBaseURL, base.OpenAIBaseURL),
		OpenAIAPIKey:             pick(overlay.OpenAIAPIKey, base.OpenAIAPIKey),
		OpenAIModel:              pick(overlay.OpenAIModel, base.OpenAIModel),
		OpenAIMaxTokens:          pick(overlay.OpenAIMaxTokens, base.OpenAIMaxTokens),
		OpenAITemperature:        pick(overlay.OpenAITemperature, base.OpenAITemperature),
		GenerationTimeoutSeconds: pick(overlay.GenerationTimeoutSeconds, base.GenerationTimeoutSeconds),
		BackendURL:               pick(overlay.BackendURL, base.BackendURL),
		PaletteLimit:             pick(overlay.PaletteLimit, base.PaletteLimit),
		LogLevel:                 pick(overlay.LogLevel, base.LogLevel),
		LogFormat:                pick(overlay.LogFormat, base.LogFormat),
		DBMaxOpenConns:           pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:           pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		DisabledTools:            mergeStringSlice(base.DisabledTools, overlay.DisabledTools),
		DisabledTypes:            mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes),
	}
}

// pick returns overlay unless it is the zero value.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range slices.Concat(a, b) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
