package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/chalamandra/internal/ai"
)

const (
	DefaultCacheDir      = ".chalamandra-cache"
	DefaultMetricsFile   = ".chalamandra/metrics.json"
	DefaultMetricsDB     = ".chalamandra/metrics.db"
	DefaultServeAddr     = "127.0.0.1:8787"
	DefaultUserAgent     = "chalamandra/1.0 (+https://github.com/hyperifyio/chalamandra)"
	DefaultFetchTimeout  = 20 * time.Second
	DefaultExtractor     = "heuristic"
	DefaultMetricsKind   = "file"
	defaultFetchAttempts = 2
)

// Config holds runtime configuration for the application.
type Config struct {
	// Input is an HTML file path; "-" reads stdin.
	InputPath string
	// URL is fetched when InputPath is empty, and recorded as the page URL otherwise.
	URL string

	// Outputs
	// OutputDir receives the dated JSON export; empty skips it.
	OutputDir     string
	OutputPDFPath string
	Copy          bool

	// Modes
	ExtractOnly bool
	ShowMetrics bool
	ServeAddr   string
	Serve       bool
	// AllowedOrigins configures CORS for the service.
	AllowedOrigins []string

	Extractor    string
	MaxChars     int
	UserAgent    string
	FetchTimeout time.Duration

	// LLM
	LLMBaseURL     string
	LLMModel       string
	LLMAPIKey      string
	LLMTemperature float64
	LayerTimeout   time.Duration
	// LayerOptions overrides the default per-layer prompt options.
	LayerOptions      map[ai.Layer]ai.Options
	StrategicMaxChars int

	LanguageHint          string
	DisableLanguageDetect bool

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheMaxCount    int
	CacheClear       bool
	CacheStrictPerms bool
	LLMCacheOnly     bool

	// Metrics persistence. An empty MetricsPath resolves per backend.
	MetricsBackend string
	MetricsPath    string

	Verbose bool
}

// DefaultConfig returns the values the CLI uses when nothing else is set.
func DefaultConfig() Config {
	return Config{
		ServeAddr:      DefaultServeAddr,
		Extractor:      DefaultExtractor,
		UserAgent:      DefaultUserAgent,
		FetchTimeout:   DefaultFetchTimeout,
		CacheDir:       DefaultCacheDir,
		MetricsBackend: DefaultMetricsKind,
	}
}

// ValidateConfig reports every problem in cfg at once.
func ValidateConfig(cfg Config) error {
	var errs []error
	if !cfg.Serve && !cfg.ShowMetrics && strings.TrimSpace(cfg.InputPath) == "" && strings.TrimSpace(cfg.URL) == "" {
		errs = append(errs, errors.New("either -input or -url is required"))
	}
	switch strings.ToLower(cfg.Extractor) {
	case "", "heuristic", "readability":
	default:
		errs = append(errs, fmt.Errorf("unknown extractor %q (want heuristic or readability)", cfg.Extractor))
	}
	switch strings.ToLower(cfg.MetricsBackend) {
	case "", "file", "sqlite", "memory", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown metrics backend %q (want file, sqlite, memory or none)", cfg.MetricsBackend))
	}
	if cfg.LayerTimeout < 0 || cfg.FetchTimeout < 0 || cfg.CacheMaxAge < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		errs = append(errs, fmt.Errorf("llm temperature %.2f out of range [0,2]", cfg.LLMTemperature))
	}
	if cfg.MaxChars < 0 || cfg.CacheMaxCount < 0 || cfg.StrategicMaxChars < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	for l := range cfg.LayerOptions {
		if !l.Valid() {
			errs = append(errs, fmt.Errorf("unknown analysis layer %q (want strategic, emotional or relational)", l))
		}
	}
	if cfg.Serve && strings.TrimSpace(cfg.ServeAddr) == "" {
		errs = append(errs, errors.New("serve address is empty"))
	}
	return errors.Join(errs...)
}

// MetricsPathFor returns the default store location for a metrics backend.
func MetricsPathFor(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "sqlite":
		return DefaultMetricsDB
	case "file":
		return DefaultMetricsFile
	}
	return ""
}
