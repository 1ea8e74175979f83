// Package app wires extraction, language detection, the analysis layers,
// metrics and export into the CLI run and the HTTP service.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/chalamandra/internal/ai"
	"github.com/hyperifyio/chalamandra/internal/analysis"
	"github.com/hyperifyio/chalamandra/internal/cache"
	"github.com/hyperifyio/chalamandra/internal/export"
	"github.com/hyperifyio/chalamandra/internal/extract"
	"github.com/hyperifyio/chalamandra/internal/fetch"
	"github.com/hyperifyio/chalamandra/internal/kvstore"
	"github.com/hyperifyio/chalamandra/internal/lang"
	"github.com/hyperifyio/chalamandra/internal/llm"
	"github.com/hyperifyio/chalamandra/internal/metrics"
	"github.com/hyperifyio/chalamandra/internal/server"
)

// ErrNoInput is returned when neither an input file nor a URL is configured.
var ErrNoInput = errors.New("no input page")

type App struct {
	cfg       Config
	analyzer  ai.Analyzer
	extractor extract.Extractor
	detector  *lang.Detector
	orch      *analysis.Orchestrator
	history   *analysis.History
	metrics   *metrics.Log
	store     kvstore.Store
	fetcher   *fetch.Client
	stdin     io.Reader
	out       io.Writer
	now       func() time.Time
}

// Option customizes New.
type Option func(*App)

// WithAnalyzer replaces the chat backed analyzer.
func WithAnalyzer(an ai.Analyzer) Option { return func(a *App) { a.analyzer = an } }

// WithOutput redirects the rendered report and JSON printouts.
func WithOutput(w io.Writer) Option { return func(a *App) { a.out = w } }

// WithStdin sets the reader used for -input -.
func WithStdin(r io.Reader) Option { return func(a *App) { a.stdin = r } }

// WithClock pins timestamps.
func WithClock(now func() time.Time) Option { return func(a *App) { a.now = now } }

func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		history: &analysis.History{},
		stdin:   os.Stdin,
		out:     os.Stdout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(a)
	}

	a.extractor = extract.New(cfg.Extractor, extract.Options{MaxChars: cfg.MaxChars})
	if !cfg.DisableLanguageDetect {
		a.detector = lang.New()
	}
	httpClient := newHTTPClient(0)
	a.fetcher = &fetch.Client{
		HTTPClient:        httpClient,
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       defaultFetchAttempts,
		PerRequestTimeout: cfg.FetchTimeout,
	}

	if a.analyzer == nil && strings.TrimSpace(cfg.LLMModel) != "" {
		provider := llm.NewOpenAIProvider(cfg.LLMBaseURL, cfg.LLMAPIKey, httpClient)
		a.analyzer = &ai.ChatAnalyzer{
			Client:      provider,
			Model:       cfg.LLMModel,
			Cache:       a.llmCache(),
			Temperature: float32(cfg.LLMTemperature),
			MaxChars:    cfg.MaxChars,
			CacheOnly:   cfg.LLMCacheOnly,

			Options:           cfg.LayerOptions,
			StrategicMaxChars: cfg.StrategicMaxChars,
		}
		if !cfg.LLMCacheOnly {
			preflight(ctx, provider)
		}
	}
	a.orch = &analysis.Orchestrator{Analyzer: a.analyzer, LayerTimeout: cfg.LayerTimeout, Now: a.now}

	if err := a.openMetrics(); err != nil {
		return nil, err
	}
	return a, nil
}

// llmCache applies the invalidation controls and returns the response cache,
// or nil when caching is off.
func (a *App) llmCache() *cache.LLMCache {
	if strings.TrimSpace(a.cfg.CacheDir) == "" {
		return nil
	}
	dir := filepath.Join(a.cfg.CacheDir, "llm")
	if a.cfg.CacheClear {
		if err := cache.ClearDir(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("cache clear failed")
		}
	}
	if a.cfg.CacheMaxAge > 0 {
		if n, err := cache.PurgeLLMCacheByAge(dir, a.cfg.CacheMaxAge); err != nil {
			log.Warn().Err(err).Msg("cache purge failed")
		} else if n > 0 {
			log.Debug().Int("removed", n).Msg("purged stale cache entries")
		}
	}
	if a.cfg.CacheMaxCount > 0 {
		if _, err := cache.EnforceLLMCacheLimits(dir, a.cfg.CacheMaxCount); err != nil {
			log.Warn().Err(err).Msg("cache limit enforcement failed")
		}
	}
	return &cache.LLMCache{Dir: dir, StrictPerms: a.cfg.CacheStrictPerms}
}

// preflight lists models to surface connectivity problems early. It never
// fails; layer calls report their own errors.
func preflight(ctx context.Context, p llm.ModelLister) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := p.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	log.Debug().Int("count", len(models.Models)).Msg("LLM models available")
}

func (a *App) openMetrics() error {
	kind := strings.ToLower(strings.TrimSpace(a.cfg.MetricsBackend))
	if kind == "none" {
		return nil
	}
	path := a.cfg.MetricsPath
	if path == "" {
		path = MetricsPathFor(kind)
	}
	store, err := kvstore.Open(kind, path)
	if err != nil {
		return fmt.Errorf("open metrics store: %w", err)
	}
	if f, ok := store.(*kvstore.File); ok {
		f.StrictPerms = a.cfg.CacheStrictPerms
	}
	a.store = store
	a.metrics = &metrics.Log{Store: store}
	return nil
}

// Close releases the metrics store.
func (a *App) Close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// History returns the reports produced by this process.
func (a *App) History() *analysis.History { return a.history }

// Metrics returns the metrics log, or nil when metrics are disabled.
func (a *App) Metrics() *metrics.Log { return a.metrics }

// AnalyzePage extracts the page content and analyzes it.
func (a *App) AnalyzePage(ctx context.Context, page extract.Page) (analysis.Report, error) {
	resp := a.extract(page)
	if !resp.Success {
		return analysis.Report{}, fmt.Errorf("%w: %s", analysis.ErrInsufficientContent, resp.Error)
	}
	return a.AnalyzeText(ctx, analysis.Input{Content: extract.ContentOf(&resp), URL: page.URL, Title: resp.Title})
}

// AnalyzeText analyzes extracted text, keeps the report in the session
// history and appends a metrics record. A failing metrics write is logged
// and does not fail the analysis.
func (a *App) AnalyzeText(ctx context.Context, in analysis.Input) (analysis.Report, error) {
	in.Language = a.language(in)
	rep, err := a.orch.Analyze(ctx, in)
	if err != nil {
		return analysis.Report{}, err
	}
	a.history.Add(rep)
	if a.metrics != nil {
		if err := a.metrics.Append(ctx, metrics.FromReport(rep, a.now())); err != nil {
			log.Warn().Err(err).Msg("metrics write failed")
		}
	}
	log.Info().Str("url", rep.URL).Float64("resonance", rep.Resonance).Int("layers", rep.Layers.Fulfilled()).Msg("analysis complete")
	return rep, nil
}

// language picks the explicit hint, then the configured one, then a guess.
func (a *App) language(in analysis.Input) string {
	if l := lang.Normalize(in.Language); l != "" {
		return l
	}
	if l := lang.Normalize(a.cfg.LanguageHint); l != "" {
		return l
	}
	if a.detector != nil {
		return a.detector.Detect(in.Content)
	}
	return ""
}

func (a *App) extract(page extract.Page) extract.Response {
	return extract.HandleMessage(extract.Request{Action: extract.ActionExtractContent}, page, a.extractor, a.now())
}

func (a *App) loadPage(ctx context.Context) (extract.Page, error) {
	in := strings.TrimSpace(a.cfg.InputPath)
	switch {
	case in == "-":
		b, err := io.ReadAll(a.stdin)
		if err != nil {
			return extract.Page{}, fmt.Errorf("read stdin: %w", err)
		}
		return extract.Page{URL: a.cfg.URL, HTML: b}, nil
	case in != "":
		b, err := os.ReadFile(in)
		if err != nil {
			return extract.Page{}, fmt.Errorf("read input: %w", err)
		}
		return extract.Page{URL: a.cfg.URL, HTML: b}, nil
	case strings.TrimSpace(a.cfg.URL) != "":
		p, err := a.fetcher.Get(ctx, a.cfg.URL)
		if err != nil {
			return extract.Page{}, fmt.Errorf("fetch %s: %w", a.cfg.URL, err)
		}
		return extract.Page{URL: p.URL, HTML: p.HTML}, nil
	}
	return extract.Page{}, ErrNoInput
}

// Run performs one CLI invocation: print metrics, extract, or analyze and
// export.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.ShowMetrics {
		if err := a.printMetrics(ctx); err != nil {
			return err
		}
		if a.cfg.InputPath == "" && a.cfg.URL == "" {
			return nil
		}
	}

	page, err := a.loadPage(ctx)
	if err != nil {
		return err
	}
	if a.cfg.ExtractOnly {
		return a.printJSON(a.extract(page))
	}

	rep, err := a.AnalyzePage(ctx, page)
	if err != nil {
		return err
	}
	if err := export.Render(a.out, rep); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if a.cfg.OutputDir != "" {
		path, err := export.WriteJSON(a.cfg.OutputDir, rep, a.now())
		if err != nil {
			return fmt.Errorf("export json: %w", err)
		}
		log.Info().Str("out", path).Msg("wrote analysis")
	}
	if a.cfg.OutputPDFPath != "" {
		if err := export.WritePDF(a.cfg.OutputPDFPath, rep); err != nil {
			return fmt.Errorf("export pdf: %w", err)
		}
		log.Info().Str("out", a.cfg.OutputPDFPath).Msg("wrote PDF")
	}
	if a.cfg.Copy {
		if err := export.Copy(rep); err != nil {
			log.Warn().Err(err).Msg("copy failed")
		} else {
			log.Info().Msg("insights copied to clipboard")
		}
	}
	return nil
}

func (a *App) printMetrics(ctx context.Context) error {
	if a.metrics == nil {
		return a.printJSON(metrics.Summarize(nil))
	}
	rep, err := a.metrics.Report(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(rep)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Handler returns the HTTP service backed by this app.
func (a *App) Handler() http.Handler {
	s := &server.Server{
		Pipeline:       a,
		Extractor:      a.extractor,
		History:        a.history,
		Metrics:        a.metrics,
		AllowedOrigins: a.cfg.AllowedOrigins,
		Now:            a.now,
	}
	return s.Handler()
}

// Serve runs the HTTP service until ctx is done, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.ServeAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("serving")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
