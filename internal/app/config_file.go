package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/chalamandra/internal/ai"
)

// Duration reads "60s" style strings from both YAML and JSON. A bare JSON
// number is taken as nanoseconds, matching time.Duration's own encoding.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("duration %s: want a string like \"30s\" or integer nanoseconds", b)
	}
	*d = Duration(n)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v time.Duration
	if err := node.Decode(&v); err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// FileConfig is the single-file configuration schema. Sections map to the
// dotted flag names. Durations are written as "30s" in either format.
type FileConfig struct {
	Input     string `yaml:"input" json:"input"`
	URL       string `yaml:"url" json:"url"`
	Extractor string `yaml:"extractor" json:"extractor"`
	MaxChars  int    `yaml:"maxChars" json:"maxChars"`
	Language  string `yaml:"language" json:"language"`
	Verbose   bool   `yaml:"verbose" json:"verbose"`

	Out struct {
		Dir string `yaml:"dir" json:"dir"`
		PDF string `yaml:"pdf" json:"pdf"`
	} `yaml:"out" json:"out"`

	LLM struct {
		BaseURL      string   `yaml:"base" json:"base"`
		Model        string   `yaml:"model" json:"model"`
		APIKey       string   `yaml:"key" json:"key"`
		Temperature  float64  `yaml:"temperature" json:"temperature"`
		LayerTimeout Duration `yaml:"layerTimeout" json:"layerTimeout"`
		// Layers overrides prompt options per layer name.
		Layers            map[string]ai.Options `yaml:"layers" json:"layers"`
		StrategicMaxChars int                   `yaml:"strategicMaxChars" json:"strategicMaxChars"`
	} `yaml:"llm" json:"llm"`

	Fetch struct {
		UserAgent string   `yaml:"ua" json:"ua"`
		Timeout   Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"fetch" json:"fetch"`

	Cache struct {
		Dir         string   `yaml:"dir" json:"dir"`
		MaxAge      Duration `yaml:"maxAge" json:"maxAge"`
		MaxCount    int      `yaml:"maxCount" json:"maxCount"`
		Clear       bool     `yaml:"clear" json:"clear"`
		StrictPerms bool     `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Metrics struct {
		Backend string `yaml:"backend" json:"backend"`
		Path    string `yaml:"path" json:"path"`
	} `yaml:"metrics" json:"metrics"`

	Serve struct {
		Addr           string   `yaml:"addr" json:"addr"`
		AllowedOrigins []string `yaml:"allowedOrigins" json:"allowedOrigins"`
	} `yaml:"serve" json:"serve"`
}

// LoadConfigFile reads YAML or JSON into FileConfig. Unknown extensions are
// tried as YAML first.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig fills fields of cfg that are still zero or at their
// DefaultConfig value, so explicit flags keep precedence.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	def := DefaultConfig()
	setStr := func(dst *string, v, dflt string) {
		if v != "" && (*dst == "" || *dst == dflt) {
			*dst = v
		}
	}
	setDur := func(dst *time.Duration, v Duration, dflt time.Duration) {
		if v > 0 && (*dst == 0 || *dst == dflt) {
			*dst = time.Duration(v)
		}
	}
	setBool := func(dst *bool, v bool) {
		if v {
			*dst = true
		}
	}

	setStr(&cfg.InputPath, fc.Input, "")
	setStr(&cfg.URL, fc.URL, "")
	setStr(&cfg.Extractor, fc.Extractor, def.Extractor)
	if cfg.MaxChars == 0 && fc.MaxChars > 0 {
		cfg.MaxChars = fc.MaxChars
	}
	setStr(&cfg.LanguageHint, fc.Language, "")
	setBool(&cfg.Verbose, fc.Verbose)

	setStr(&cfg.OutputDir, fc.Out.Dir, "")
	setStr(&cfg.OutputPDFPath, fc.Out.PDF, "")

	setStr(&cfg.LLMBaseURL, fc.LLM.BaseURL, "")
	setStr(&cfg.LLMModel, fc.LLM.Model, "")
	setStr(&cfg.LLMAPIKey, fc.LLM.APIKey, "")
	if cfg.LLMTemperature == 0 && fc.LLM.Temperature > 0 {
		cfg.LLMTemperature = fc.LLM.Temperature
	}
	setDur(&cfg.LayerTimeout, fc.LLM.LayerTimeout, 0)
	if cfg.StrategicMaxChars == 0 && fc.LLM.StrategicMaxChars > 0 {
		cfg.StrategicMaxChars = fc.LLM.StrategicMaxChars
	}
	for name, o := range fc.LLM.Layers {
		l := ai.Layer(strings.ToLower(strings.TrimSpace(name)))
		if cfg.LayerOptions == nil {
			cfg.LayerOptions = make(map[ai.Layer]ai.Options)
		}
		if _, set := cfg.LayerOptions[l]; set {
			continue
		}
		cfg.LayerOptions[l] = ai.DefaultOptions()[l].Merge(o)
	}

	setStr(&cfg.UserAgent, fc.Fetch.UserAgent, def.UserAgent)
	setDur(&cfg.FetchTimeout, fc.Fetch.Timeout, def.FetchTimeout)

	setStr(&cfg.CacheDir, fc.Cache.Dir, def.CacheDir)
	setDur(&cfg.CacheMaxAge, fc.Cache.MaxAge, 0)
	if cfg.CacheMaxCount == 0 && fc.Cache.MaxCount > 0 {
		cfg.CacheMaxCount = fc.Cache.MaxCount
	}
	setBool(&cfg.CacheClear, fc.Cache.Clear)
	setBool(&cfg.CacheStrictPerms, fc.Cache.StrictPerms)

	setStr(&cfg.MetricsBackend, fc.Metrics.Backend, def.MetricsBackend)
	setStr(&cfg.MetricsPath, fc.Metrics.Path, "")

	setStr(&cfg.ServeAddr, fc.Serve.Addr, def.ServeAddr)
	if len(cfg.AllowedOrigins) == 0 && len(fc.Serve.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = append([]string(nil), fc.Serve.AllowedOrigins...)
	}
}
