package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by ApplyEnvToConfig and ApplyEnvOverrides.
const (
	envLLMBaseURL     = "LLM_BASE_URL"
	envLLMModel       = "LLM_MODEL"
	envLLMAPIKey      = "LLM_API_KEY"
	envLayerTimeout   = "LAYER_TIMEOUT"
	envLanguage       = "LANGUAGE"
	envCacheDir       = "CACHE_DIR"
	envCacheMaxAge    = "CACHE_MAX_AGE"
	envCacheMaxCount  = "CACHE_MAX_COUNT"
	envMetricsBackend = "METRICS_BACKEND"
	envMetricsPath    = "METRICS_PATH"
	envServeAddr      = "CHALAMANDRA_ADDR"
	envUserAgent      = "FETCH_UA"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&cfg.LLMBaseURL, envLLMBaseURL)
	fill(&cfg.LLMModel, envLLMModel)
	fill(&cfg.LLMAPIKey, envLLMAPIKey)
	fill(&cfg.LanguageHint, envLanguage)
	fill(&cfg.CacheDir, envCacheDir)
	fill(&cfg.MetricsBackend, envMetricsBackend)
	fill(&cfg.MetricsPath, envMetricsPath)
	fill(&cfg.ServeAddr, envServeAddr)
	fill(&cfg.UserAgent, envUserAgent)

	if cfg.LayerTimeout == 0 {
		cfg.LayerTimeout = envDuration(envLayerTimeout)
	}
	if cfg.CacheMaxAge == 0 {
		cfg.CacheMaxAge = envDuration(envCacheMaxAge)
	}
	if cfg.CacheMaxCount == 0 {
		cfg.CacheMaxCount = envInt(envCacheMaxCount)
	}

	setBool := func(dst *bool, key string) {
		if *dst {
			return
		}
		if v, ok := envBool(key); ok && v {
			*dst = true
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setBool(&cfg.LLMCacheOnly, "LLM_CACHE_ONLY")
}

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. It runs after the config file so env beats file while flags, applied
// last by the CLI, stay highest.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.LLMBaseURL, envLLMBaseURL)
	override(&cfg.LLMModel, envLLMModel)
	override(&cfg.LLMAPIKey, envLLMAPIKey)
	override(&cfg.LanguageHint, envLanguage)
	override(&cfg.CacheDir, envCacheDir)
	override(&cfg.MetricsBackend, envMetricsBackend)
	override(&cfg.MetricsPath, envMetricsPath)
	override(&cfg.ServeAddr, envServeAddr)
	override(&cfg.UserAgent, envUserAgent)

	if d := envDuration(envLayerTimeout); d > 0 {
		cfg.LayerTimeout = d
	}
	if d := envDuration(envCacheMaxAge); d > 0 {
		cfg.CacheMaxAge = d
	}
	if n := envInt(envCacheMaxCount); n > 0 {
		cfg.CacheMaxCount = n
	}

	setBool := func(dst *bool, key string) {
		if v, ok := envBool(key); ok {
			*dst = v
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setBool(&cfg.LLMCacheOnly, "LLM_CACHE_ONLY")
}

func envDuration(key string) time.Duration {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return 0
}

func envInt(key string) int {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func envBool(key string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
