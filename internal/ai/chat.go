package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/chalamandra/internal/cache"
	"github.com/hyperifyio/chalamandra/internal/llm"
	"github.com/hyperifyio/chalamandra/internal/textutil"
)

const (
	// DefaultStrategicMaxChars bounds the content embedded in the strategic prompt.
	DefaultStrategicMaxChars = 4000
	// DefaultMaxChars bounds the payload of the other layers.
	DefaultMaxChars = 15000
)

var (
	// ErrNotConfigured is returned when no client or model is set.
	ErrNotConfigured = errors.New("analyzer not configured")
	// ErrEmptyResponse is returned when the backend produced no content.
	ErrEmptyResponse = errors.New("empty response")
	// ErrCacheMiss is returned in cache-only mode when nothing is cached.
	ErrCacheMiss = errors.New("no cached response")
)

// Options are the per-layer knobs passed to the backend alongside the text.
type Options struct {
	Tone        string `yaml:"tone" json:"tone"`
	Perspective string `yaml:"perspective" json:"perspective"`
	Focus       string `yaml:"focus" json:"focus"`
	Format      string `yaml:"format" json:"format"`
}

// Merge returns o with every non-empty field of over applied on top.
func (o Options) Merge(over Options) Options {
	if over.Tone != "" {
		o.Tone = over.Tone
	}
	if over.Perspective != "" {
		o.Perspective = over.Perspective
	}
	if over.Focus != "" {
		o.Focus = over.Focus
	}
	if over.Format != "" {
		o.Format = over.Format
	}
	return o
}

// DefaultOptions returns the option set each layer uses unless overridden.
func DefaultOptions() map[Layer]Options {
	return map[Layer]Options{
		Strategic: {
			Focus:  "power dynamics,hidden agendas,negotiation leverage,opportunities,risks",
			Format: "structured_json",
		},
		Emotional: {
			Tone:        "analytical",
			Perspective: "emotional_intelligence_analysis",
			Focus:       "emotional_subtext",
		},
		Relational: {
			Format: "relational_dynamics",
			Focus:  "social_cues,trust_indicators,connection_points",
		},
	}
}

// ChatAnalyzer implements Analyzer over an OpenAI-compatible chat model.
type ChatAnalyzer struct {
	Client llm.Client
	Model  string
	Cache  *cache.LLMCache
	// Options overrides DefaultOptions per layer.
	Options map[Layer]Options
	// StrategicMaxChars and MaxChars bound the content sent per call.
	StrategicMaxChars int
	MaxChars          int
	Temperature       float32
	// CacheOnly serves from cache and fails with ErrCacheMiss otherwise.
	CacheOnly bool
}

func (c *ChatAnalyzer) AnalyzeStrategic(ctx context.Context, text string) (Result, error) {
	limit := c.StrategicMaxChars
	if limit <= 0 {
		limit = DefaultStrategicMaxChars
	}
	res, err := c.run(ctx, Strategic, strategicSystem, buildStrategicPrompt(truncate(text, limit), c.options(Strategic), LanguageFrom(ctx)))
	if err != nil {
		return res, err
	}
	if obj, ok := parseJSONObject(res.Text); ok {
		res.Structured = obj
	}
	return res, nil
}

func (c *ChatAnalyzer) AnalyzeEmotional(ctx context.Context, text string) (Result, error) {
	user := buildOptionPrompt("Rewrite the following text as an analysis of its emotional subtext.", truncate(text, c.maxChars()), c.options(Emotional), LanguageFrom(ctx))
	return c.run(ctx, Emotional, emotionalSystem, user)
}

func (c *ChatAnalyzer) AnalyzeRelational(ctx context.Context, text string) (Result, error) {
	user := buildOptionPrompt("Summarize the relational dynamics of the following text.", truncate(text, c.maxChars()), c.options(Relational), LanguageFrom(ctx))
	return c.run(ctx, Relational, relationalSystem, user)
}

func (c *ChatAnalyzer) run(ctx context.Context, layer Layer, system, user string) (Result, error) {
	if c == nil || c.Client == nil || strings.TrimSpace(c.Model) == "" {
		return Result{Layer: layer}, ErrNotConfigured
	}
	key := cache.KeyFrom(c.Model, string(layer), system+"\n\n"+user)
	if c.Cache != nil {
		var cached Result
		if c.Cache.GetJSON(ctx, key, &cached) && strings.TrimSpace(cached.Text) != "" {
			cached.Cached = true
			return cached, nil
		}
	}
	if c.CacheOnly {
		return Result{Layer: layer}, ErrCacheMiss
	}

	req := openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.Temperature,
		N:           1,
	}
	resp, err := c.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Result{Layer: layer}, fmt.Errorf("%s layer: %w", layer, err)
	}
	out := llm.FirstContent(resp)
	if out == "" {
		return Result{Layer: layer}, fmt.Errorf("%s layer: %w", layer, ErrEmptyResponse)
	}
	res := Result{Layer: layer, Text: out, Model: c.Model}
	if c.Cache != nil {
		if err := c.Cache.SaveJSON(ctx, key, res); err != nil {
			log.Debug().Err(err).Str("layer", string(layer)).Msg("cache save failed")
		}
	}
	return res, nil
}

func (c *ChatAnalyzer) options(l Layer) Options {
	if o, ok := c.Options[l]; ok {
		return o
	}
	return DefaultOptions()[l]
}

func (c *ChatAnalyzer) maxChars() int {
	if c.MaxChars > 0 {
		return c.MaxChars
	}
	return DefaultMaxChars
}

func truncate(s string, max int) string {
	out, _ := textutil.Truncate(s, max)
	return out
}

// parseJSONObject accepts a bare JSON object or one wrapped in a Markdown
// code fence.
func parseJSONObject(raw string) (map[string]any, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
