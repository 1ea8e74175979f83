// Package analysis sequences content through the three analysis layers and
// aggregates their outcomes into a Report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/chalamandra/internal/ai"
	"github.com/hyperifyio/chalamandra/internal/textutil"
)

const (
	// DefaultMinContentChars is the shortest content worth analyzing.
	DefaultMinContentChars = 100
	// DefaultPreviewChars is the length of Report.ContentPreview before the ellipsis.
	DefaultPreviewChars = 200
	// DefaultLayerTimeout bounds every layer call.
	DefaultLayerTimeout = 60 * time.Second
)

// ErrInsufficientContent is returned when content is absent or shorter than
// the minimum. No layer is invoked in that case.
var ErrInsufficientContent = errors.New("not enough content to analyze")

// LayerResult holds either the layer's output or an error marker.
type LayerResult struct {
	Output *ai.Result `json:"output,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// OK reports whether the layer call was fulfilled.
func (r LayerResult) OK() bool { return r.Output != nil && r.Error == "" }

// Layers groups the per-layer outcomes in report order.
type Layers struct {
	Strategic  LayerResult `json:"strategic"`
	Emotional  LayerResult `json:"emotional"`
	Relational LayerResult `json:"relational"`
}

// Get returns the outcome for l.
func (l Layers) Get(layer ai.Layer) LayerResult {
	switch layer {
	case ai.Strategic:
		return l.Strategic
	case ai.Emotional:
		return l.Emotional
	case ai.Relational:
		return l.Relational
	}
	return LayerResult{Error: "unknown layer"}
}

func (l *Layers) set(layer ai.Layer, r LayerResult) {
	switch layer {
	case ai.Strategic:
		l.Strategic = r
	case ai.Emotional:
		l.Emotional = r
	case ai.Relational:
		l.Relational = r
	}
}

// Fulfilled counts layers that returned a result.
func (l Layers) Fulfilled() int {
	n := 0
	for _, layer := range ai.Layers {
		if l.Get(layer).OK() {
			n++
		}
	}
	return n
}

// Report is the aggregate of one analysis run.
type Report struct {
	ID             string    `json:"id"`
	Timestamp      string    `json:"timestamp"`
	URL            string    `json:"url,omitempty"`
	Title          string    `json:"title,omitempty"`
	Language       string    `json:"language,omitempty"`
	ContentPreview string    `json:"contentPreview"`
	ContentLength  int       `json:"contentLength"`
	Layers         Layers    `json:"layers"`
	Resonance      float64   `json:"resonance"`
	StartedAt      time.Time `json:"startedAt"`
	ElapsedMs      int64     `json:"elapsedMs"`
}

// Input is the content handed to the orchestrator plus page metadata.
type Input struct {
	Content  string
	URL      string
	Title    string
	Language string
}

// Orchestrator fans content out to the analysis layers.
type Orchestrator struct {
	Analyzer ai.Analyzer
	// LayerTimeout bounds each layer call. Zero means DefaultLayerTimeout.
	LayerTimeout    time.Duration
	MinContentChars int
	PreviewChars    int
	// Now is used for timestamps; tests pin it.
	Now func() time.Time
}

// Analyze rejects short content, then runs every layer concurrently and waits
// for all of them. A failing or timed-out layer is recorded on its own slot
// and never affects the others.
func (o *Orchestrator) Analyze(ctx context.Context, in Input) (Report, error) {
	minChars := o.MinContentChars
	if minChars <= 0 {
		minChars = DefaultMinContentChars
	}
	length := utf8.RuneCountInString(in.Content)
	if length < minChars {
		return Report{}, fmt.Errorf("%w: %d characters, need %d", ErrInsufficientContent, length, minChars)
	}
	if o.Analyzer == nil {
		return Report{}, ai.ErrNotConfigured
	}

	start := o.now()
	if in.Language != "" {
		ctx = ai.WithLanguage(ctx, in.Language)
	}

	results := make([]LayerResult, len(ai.Layers))
	var g errgroup.Group
	for i, layer := range ai.Layers {
		g.Go(func() error {
			results[i] = o.runLayer(ctx, layer, in.Content)
			return nil
		})
	}
	_ = g.Wait()

	var layers Layers
	for i, layer := range ai.Layers {
		layers.set(layer, results[i])
	}
	end := o.now()
	rep := Report{
		ID:             uuid.NewString(),
		Timestamp:      end.UTC().Format(time.RFC3339Nano),
		URL:            in.URL,
		Title:          in.Title,
		Language:       in.Language,
		ContentPreview: Preview(in.Content, o.previewChars()),
		ContentLength:  length,
		Layers:         layers,
		Resonance:      Resonance(layers.Fulfilled(), len(ai.Layers)),
		StartedAt:      start.UTC(),
		ElapsedMs:      end.Sub(start).Milliseconds(),
	}
	log.Debug().Str("id", rep.ID).Int("fulfilled", layers.Fulfilled()).Float64("resonance", rep.Resonance).Int64("elapsed_ms", rep.ElapsedMs).Msg("analysis complete")
	return rep, nil
}

// runLayer calls one layer under its own deadline. It stops waiting when the
// deadline passes even if the analyzer ignores cancellation.
func (o *Orchestrator) runLayer(ctx context.Context, layer ai.Layer, content string) LayerResult {
	timeout := o.LayerTimeout
	if timeout <= 0 {
		timeout = DefaultLayerTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res ai.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%s layer panicked: %v", layer, r)}
			}
		}()
		res, err := layer.Invoke(lctx, o.Analyzer, content)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-lctx.Done():
		out = outcome{err: fmt.Errorf("%s layer: %w", layer, lctx.Err())}
	}
	if out.err != nil {
		log.Warn().Err(out.err).Str("layer", string(layer)).Msg("layer failed")
		return LayerResult{Error: out.err.Error()}
	}
	res := out.res
	res.Layer = layer
	return LayerResult{Output: &res}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) previewChars() int {
	if o.PreviewChars > 0 {
		return o.PreviewChars
	}
	return DefaultPreviewChars
}

// Resonance is the fraction of fulfilled layer calls.
func Resonance(fulfilled, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(fulfilled) / float64(total)
}

// Preview returns the first n code points of s followed by "...".
func Preview(s string, n int) string {
	out, _ := textutil.Truncate(s, n)
	return out + "..."
}

// ResonanceLabel maps a resonance score to its display label.
func ResonanceLabel(resonance float64) string {
	switch {
	case resonance >= 0.8:
		return "Excellent Match"
	case resonance >= 0.6:
		return "Good Match"
	case resonance >= 0.4:
		return "Moderate Match"
	default:
		return "Low Match"
	}
}
