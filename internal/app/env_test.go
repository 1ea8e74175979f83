package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvFiles_LoadsKeyValues(t *testing.T) {
	t.Setenv("FOO", "")
	t.Setenv("BAR", "")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "\n# sample dotenv file\nFOO=alpha\nBAR=\"beta\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	if err := LoadEnvFiles(envPath); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("FOO"); got != "alpha" {
		t.Fatalf("FOO=%q, want alpha", got)
	}
	if got := os.Getenv("BAR"); got != "beta" {
		t.Fatalf("BAR=%q, want beta", got)
	}
}

// Later files override earlier ones.
func TestLoadEnvFiles_OverrideOrder(t *testing.T) {
	t.Setenv("K", "")
	dir := t.TempDir()
	a := filepath.Join(dir, ".env.a")
	b := filepath.Join(dir, ".env.b")
	if err := os.WriteFile(a, []byte("K=first\n"), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte("K=second\n"), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if err := LoadEnvFiles(a, filepath.Join(dir, "missing.env"), b); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("K"); got != "second" {
		t.Fatalf("override order failed: got %q, want second", got)
	}
}

func TestApplyEnvToConfig_FillsOnlyUnset(t *testing.T) {
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("LLM_BASE_URL", "http://llm.local/v1")
	t.Setenv("LANGUAGE", "fi")
	t.Setenv("LAYER_TIMEOUT", "15s")
	t.Setenv("CACHE_MAX_COUNT", "50")
	t.Setenv("LLM_CACHE_ONLY", "yes")

	cfg := Config{LLMModel: "flag-model"}
	ApplyEnvToConfig(&cfg)
	if cfg.LLMModel != "flag-model" {
		t.Fatalf("explicit value overwritten: %q", cfg.LLMModel)
	}
	if cfg.LLMBaseURL != "http://llm.local/v1" || cfg.LanguageHint != "fi" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.LayerTimeout != 15*time.Second || cfg.CacheMaxCount != 50 || !cfg.LLMCacheOnly {
		t.Fatalf("typed env not applied: %+v", cfg)
	}
}

func TestApplyEnvOverrides_BeatsFileValues(t *testing.T) {
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("METRICS_BACKEND", "sqlite")
	t.Setenv("VERBOSE", "false")

	cfg := Config{LLMModel: "file-model", MetricsBackend: "file", Verbose: true}
	ApplyEnvOverrides(&cfg)
	if cfg.LLMModel != "env-model" || cfg.MetricsBackend != "sqlite" {
		t.Fatalf("env must override: %+v", cfg)
	}
	if cfg.Verbose {
		t.Fatalf("falsey env should clear bool")
	}
}
