package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Errorf("CacheTTL() = %v, want 5m", cfg.CacheTTL())
	}
	if cfg.PaletteLimit != 4 {
		t.Errorf("PaletteLimit = %d, want 4", cfg.PaletteLimit)
	}
	if cfg.StoreBackend != BackendSQLite || cfg.Generator != GeneratorProxy {
		t.Errorf("backend/generator = %q/%q", cfg.StoreBackend, cfg.Generator)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"cache_ttl_seconds": 60, "store_backend": "redis", "openai_api_key": "ignored"}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheTTLSeconds != 60 {
		t.Errorf("CacheTTLSeconds = %d, want 60", cfg.CacheTTLSeconds)
	}
	if cfg.StoreBackend != BackendRedis {
		t.Errorf("StoreBackend = %q, want redis", cfg.StoreBackend)
	}
	if cfg.OpenAIAPIKey != "" {
		t.Error("API key must not be read from config files")
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Errorf("OpenAIModel = %q, want default", cfg.OpenAIModel)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"palette_limit": 6, "disabled_tools": ["suggest_generate"]}`)
	writeConfig(t, filepath.Join(repoRoot, ".capsule"), `{"palette_limit": 3, "disabled_tools": ["market_analysis"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.PaletteLimit != 3 {
		t.Errorf("PaletteLimit = %d, want 3 (repo override)", cfg.PaletteLimit)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v, want 2 merged entries", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.CacheTTLSeconds != 300 {
		t.Errorf("CacheTTLSeconds = %d, want 300", cfg.CacheTTLSeconds)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, ".capsule"), `{"backend_url": "http://backend.test"}`)

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(t.TempDir(), subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.BackendURL != "http://backend.test" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{CacheTTLSeconds: 300, DBMaxOpenConns: 5, OpenAITemperature: 0.7}
	overlay := &Config{CacheTTLSeconds: 30}

	result := Merge(base, overlay)

	if result.CacheTTLSeconds != 30 {
		t.Errorf("CacheTTLSeconds = %d, want 30 (overlay)", result.CacheTTLSeconds)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.OpenAITemperature != 0.7 {
		t.Errorf("OpenAITemperature = %v, want 0.7", result.OpenAITemperature)
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTypes: []string{"market", " suggest "}}
	overlay := &Config{DisabledTypes: []string{"suggest", ""}}

	result := Merge(base, overlay)

	if len(result.DisabledTypes) != 2 {
		t.Errorf("DisabledTypes = %v, want [market suggest]", result.DisabledTypes)
	}
}

func TestApplyEnvFrom(t *testing.T) {
	cfg, err := ApplyEnvFrom(DefaultConfig(), map[string]string{
		"CAPSULE_OPENAI_API_KEY":    "sk-test",
		"CAPSULE_GENERATOR":         "openai",
		"CAPSULE_CACHE_TTL_SECONDS": "120",
		"CAPSULE_DISABLED_TOOLS":    "suggest_generate,market_analysis",
		"OPENAI_MODEL":              "not-prefixed",
	})
	if err != nil {
		t.Fatalf("ApplyEnvFrom() error = %v", err)
	}

	if cfg.OpenAIAPIKey != "sk-test" {
		t.Errorf("OpenAIAPIKey = %q", cfg.OpenAIAPIKey)
	}
	if cfg.Generator != GeneratorOpenAI {
		t.Errorf("Generator = %q", cfg.Generator)
	}
	if cfg.CacheTTL() != 2*time.Minute {
		t.Errorf("CacheTTL() = %v", cfg.CacheTTL())
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Errorf("OpenAIModel = %q, unprefixed variables must be ignored", cfg.OpenAIModel)
	}
}

func TestApplyEnvFrom_InvalidNumber(t *testing.T) {
	_, err := ApplyEnvFrom(DefaultConfig(), map[string]string{"CAPSULE_PALETTE_LIMIT": "many"})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"memory backend", func(c *Config) { c.StoreBackend = BackendMemory }, false},
		{"unknown backend", func(c *Config) { c.StoreBackend = "postgres" }, true},
		{"unknown generator", func(c *Config) { c.Generator = "local" }, true},
		{"zero ttl", func(c *Config) { c.CacheTTLSeconds = 0 }, true},
		{"negative palette", func(c *Config) { c.PaletteLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
