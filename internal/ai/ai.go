// Package ai exposes the three analysis layers as a small capability
// interface so callers never depend on a concrete model backend.
package ai

import (
	"context"
	"fmt"
)

// Layer names one analysis pass.
type Layer string

const (
	Strategic  Layer = "strategic"
	Emotional  Layer = "emotional"
	Relational Layer = "relational"
)

// Layers lists every layer in report order.
var Layers = []Layer{Strategic, Emotional, Relational}

// Valid reports whether l is one of Layers.
func (l Layer) Valid() bool {
	for _, known := range Layers {
		if l == known {
			return true
		}
	}
	return false
}

// Result is the successful outcome of one layer call. Structured is set when
// the backend answered with a JSON object.
type Result struct {
	Layer      Layer          `json:"layer"`
	Text       string         `json:"text"`
	Structured map[string]any `json:"structured,omitempty"`
	Model      string         `json:"model,omitempty"`
	Cached     bool           `json:"cached,omitempty"`
}

// Analyzer is the external analysis capability. Each call fails
// independently of the others.
type Analyzer interface {
	AnalyzeStrategic(ctx context.Context, text string) (Result, error)
	AnalyzeEmotional(ctx context.Context, text string) (Result, error)
	AnalyzeRelational(ctx context.Context, text string) (Result, error)
}

// Invoke dispatches to the Analyzer method for l.
func (l Layer) Invoke(ctx context.Context, a Analyzer, text string) (Result, error) {
	switch l {
	case Strategic:
		return a.AnalyzeStrategic(ctx, text)
	case Emotional:
		return a.AnalyzeEmotional(ctx, text)
	case Relational:
		return a.AnalyzeRelational(ctx, text)
	}
	return Result{}, fmt.Errorf("unknown layer %q", string(l))
}

type languageKey struct{}

// WithLanguage attaches a BCP 47 language hint that layer prompts honour.
func WithLanguage(ctx context.Context, tag string) context.Context {
	if tag == "" {
		return ctx
	}
	return context.WithValue(ctx, languageKey{}, tag)
}

// LanguageFrom returns the hint set by WithLanguage, or "".
func LanguageFrom(ctx context.Context) string {
	s, _ := ctx.Value(languageKey{}).(string)
	return s
}
