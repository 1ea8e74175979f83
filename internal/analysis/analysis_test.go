package analysis

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/chalamandra/internal/ai"
)

// stubAnalyzer answers each layer through an optional hook.
type stubAnalyzer struct {
	strategic, emotional, relational func(ctx context.Context, text string) (ai.Result, error)
	calls                            atomic.Int32
}

func ok(text string) func(context.Context, string) (ai.Result, error) {
	return func(context.Context, string) (ai.Result, error) { return ai.Result{Text: text}, nil }
}

func fail(msg string) func(context.Context, string) (ai.Result, error) {
	return func(context.Context, string) (ai.Result, error) { return ai.Result{}, errors.New(msg) }
}

func (s *stubAnalyzer) call(ctx context.Context, fn func(context.Context, string) (ai.Result, error), text string) (ai.Result, error) {
	s.calls.Add(1)
	if fn == nil {
		return ai.Result{Text: "default"}, nil
	}
	return fn(ctx, text)
}

func (s *stubAnalyzer) AnalyzeStrategic(ctx context.Context, text string) (ai.Result, error) {
	return s.call(ctx, s.strategic, text)
}

func (s *stubAnalyzer) AnalyzeEmotional(ctx context.Context, text string) (ai.Result, error) {
	return s.call(ctx, s.emotional, text)
}

func (s *stubAnalyzer) AnalyzeRelational(ctx context.Context, text string) (ai.Result, error) {
	return s.call(ctx, s.relational, text)
}

var longContent = strings.Repeat("The committee weighed each offer carefully. ", 10)

func TestAnalyze_RejectsShortContent(t *testing.T) {
	stub := &stubAnalyzer{}
	o := &Orchestrator{Analyzer: stub}
	_, err := o.Analyze(context.Background(), Input{Content: strings.Repeat("x", 50)})
	if !errors.Is(err, ErrInsufficientContent) {
		t.Fatalf("expected ErrInsufficientContent, got %v", err)
	}
	if _, err := o.Analyze(context.Background(), Input{}); !errors.Is(err, ErrInsufficientContent) {
		t.Fatalf("empty content must be insufficient, got %v", err)
	}
	if stub.calls.Load() != 0 {
		t.Fatalf("no layer may run for insufficient content, got %d calls", stub.calls.Load())
	}
}

func TestAnalyze_ExactlyMinimumIsAccepted(t *testing.T) {
	o := &Orchestrator{Analyzer: &stubAnalyzer{}}
	if _, err := o.Analyze(context.Background(), Input{Content: strings.Repeat("y", DefaultMinContentChars)}); err != nil {
		t.Fatalf("100 characters must be accepted: %v", err)
	}
}

func TestAnalyze_StrategicFailureIsIsolated(t *testing.T) {
	stub := &stubAnalyzer{strategic: fail("quota exceeded"), emotional: ok("feelings"), relational: ok("ties")}
	o := &Orchestrator{Analyzer: stub}
	rep, err := o.Analyze(context.Background(), Input{Content: longContent, URL: "https://example.com/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Resonance != 2.0/3.0 {
		t.Fatalf("resonance = %v, want 2/3", rep.Resonance)
	}
	if rep.Layers.Strategic.OK() || !strings.Contains(rep.Layers.Strategic.Error, "quota exceeded") {
		t.Fatalf("strategic layer should carry the error: %+v", rep.Layers.Strategic)
	}
	if rep.Layers.Emotional.Output == nil || rep.Layers.Emotional.Output.Text != "feelings" {
		t.Fatalf("emotional layer missing: %+v", rep.Layers.Emotional)
	}
	if rep.Layers.Relational.Output == nil || rep.Layers.Relational.Output.Layer != ai.Relational {
		t.Fatalf("relational layer missing or untagged: %+v", rep.Layers.Relational)
	}
	if rep.URL != "https://example.com/x" || rep.ID == "" {
		t.Fatalf("report metadata missing: %+v", rep)
	}
}

func TestAnalyze_ResonanceValues(t *testing.T) {
	cases := []struct {
		name string
		stub *stubAnalyzer
		want float64
	}{
		{"all", &stubAnalyzer{}, 1},
		{"two", &stubAnalyzer{relational: fail("x")}, 2.0 / 3.0},
		{"one", &stubAnalyzer{relational: fail("x"), emotional: fail("y")}, 1.0 / 3.0},
		{"none", &stubAnalyzer{relational: fail("x"), emotional: fail("y"), strategic: fail("z")}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep, err := (&Orchestrator{Analyzer: tc.stub}).Analyze(context.Background(), Input{Content: longContent})
			if err != nil {
				t.Fatal(err)
			}
			if rep.Resonance != tc.want {
				t.Fatalf("resonance = %v, want %v", rep.Resonance, tc.want)
			}
		})
	}
}

func TestAnalyze_LayersRunConcurrently(t *testing.T) {
	var started atomic.Int32
	release := make(chan struct{})
	wait := func(ctx context.Context, _ string) (ai.Result, error) {
		if started.Add(1) == 3 {
			close(release)
		}
		select {
		case <-release:
			return ai.Result{Text: "ok"}, nil
		case <-ctx.Done():
			return ai.Result{}, ctx.Err()
		}
	}
	o := &Orchestrator{Analyzer: &stubAnalyzer{strategic: wait, emotional: wait, relational: wait}, LayerTimeout: 2 * time.Second}
	rep, err := o.Analyze(context.Background(), Input{Content: longContent})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Resonance != 1 {
		t.Fatalf("all three layers should meet concurrently, resonance = %v", rep.Resonance)
	}
}

func TestAnalyze_LayerTimeoutDoesNotBlockOthers(t *testing.T) {
	hang := func(context.Context, string) (ai.Result, error) {
		select {} // ignores cancellation entirely
	}
	o := &Orchestrator{Analyzer: &stubAnalyzer{emotional: hang}, LayerTimeout: 50 * time.Millisecond}
	done := make(chan Report, 1)
	go func() {
		rep, _ := o.Analyze(context.Background(), Input{Content: longContent})
		done <- rep
	}()
	select {
	case rep := <-done:
		if rep.Layers.Emotional.OK() || !strings.Contains(rep.Layers.Emotional.Error, "deadline exceeded") {
			t.Fatalf("expected emotional timeout, got %+v", rep.Layers.Emotional)
		}
		if rep.Resonance != 2.0/3.0 {
			t.Fatalf("resonance = %v", rep.Resonance)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("aggregation hung on a stuck layer")
	}
}

func TestAnalyze_PanickingLayerIsRecorded(t *testing.T) {
	boom := func(context.Context, string) (ai.Result, error) { panic("bad state") }
	rep, err := (&Orchestrator{Analyzer: &stubAnalyzer{relational: boom}}).Analyze(context.Background(), Input{Content: longContent})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Layers.Relational.OK() || !strings.Contains(rep.Layers.Relational.Error, "panicked") {
		t.Fatalf("expected recorded panic, got %+v", rep.Layers.Relational)
	}
}

func TestAnalyze_PassesLanguageHint(t *testing.T) {
	var got atomic.Value
	capture := func(ctx context.Context, _ string) (ai.Result, error) {
		got.Store(ai.LanguageFrom(ctx))
		return ai.Result{Text: "ok"}, nil
	}
	o := &Orchestrator{Analyzer: &stubAnalyzer{strategic: capture}}
	if _, err := o.Analyze(context.Background(), Input{Content: longContent, Language: "es"}); err != nil {
		t.Fatal(err)
	}
	if got.Load() != "es" {
		t.Fatalf("language hint = %v", got.Load())
	}
}

func TestAnalyze_PreviewAndTimestamps(t *testing.T) {
	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	ticks := []time.Time{start, start.Add(1500 * time.Millisecond)}
	i := 0
	o := &Orchestrator{Analyzer: &stubAnalyzer{}, Now: func() time.Time { ts := ticks[i]; i++; return ts }}
	rep, err := o.Analyze(context.Background(), Input{Content: longContent})
	if err != nil {
		t.Fatal(err)
	}
	if rep.ContentPreview != longContent[:200]+"..." {
		t.Fatalf("preview = %q", rep.ContentPreview)
	}
	if rep.ElapsedMs != 1500 || rep.Timestamp != "2026-10-17T09:00:01.5Z" {
		t.Fatalf("elapsed=%d timestamp=%s", rep.ElapsedMs, rep.Timestamp)
	}
	if rep.ContentLength != len(longContent) {
		t.Fatalf("content length = %d", rep.ContentLength)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("short", 200); got != "short..." {
		t.Fatalf("Preview = %q", got)
	}
	if got := Preview("ñandú", 2); got != "ña..." {
		t.Fatalf("Preview runes = %q", got)
	}
}

func TestResonanceLabel(t *testing.T) {
	cases := map[float64]string{1: "Excellent Match", 0.8: "Excellent Match", 2.0 / 3.0: "Good Match", 0.5: "Moderate Match", 1.0 / 3.0: "Low Match", 0: "Low Match"}
	for in, want := range cases {
		if got := ResonanceLabel(in); got != want {
			t.Fatalf("ResonanceLabel(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestHistory(t *testing.T) {
	var h History
	if _, ok := h.Latest(); ok {
		t.Fatalf("empty history must have no latest")
	}
	h.Add(Report{ID: "a"})
	h.Add(Report{ID: "b"})
	if r, ok := h.Latest(); !ok || r.ID != "b" {
		t.Fatalf("latest = %+v", r)
	}
	all := h.All()
	all[0].ID = "mutated"
	if h.All()[0].ID != "a" || h.Len() != 2 {
		t.Fatalf("All must return a copy in insertion order")
	}
}
