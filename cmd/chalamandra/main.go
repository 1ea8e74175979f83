package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/chalamandra/internal/analysis"
	"github.com/hyperifyio/chalamandra/internal/app"
)

// version is set with -ldflags "-X main.version=...".
var version = "0.0.0-dev"

// options is what the flags bind to. It is bound twice: once for parsing and
// once to replay explicitly set flags over the merged file and env config.
type options struct {
	cfg         app.Config
	configPath  string
	envFiles    string
	origins     string
	showVersion bool
}

func bindFlags(fs *flag.FlagSet, o *options) {
	c := &o.cfg
	fs.StringVar(&c.InputPath, "input", c.InputPath, "HTML file to analyze; - reads stdin")
	fs.StringVar(&c.URL, "url", c.URL, "Page URL; fetched when -input is empty")
	fs.StringVar(&c.OutputDir, "out.dir", c.OutputDir, "Directory for the dated JSON export (empty disables)")
	fs.StringVar(&c.OutputPDFPath, "out.pdf", c.OutputPDFPath, "Write a PDF summary to this path")
	fs.BoolVar(&c.Copy, "copy", c.Copy, "Copy the report JSON to the clipboard")
	fs.BoolVar(&c.ExtractOnly, "extract-only", c.ExtractOnly, "Print the extraction response and skip analysis")
	fs.StringVar(&c.Extractor, "extractor", c.Extractor, "Extraction strategy: heuristic or readability")
	fs.IntVar(&c.MaxChars, "max.chars", c.MaxChars, "Maximum extracted characters (0 uses the default 15000)")

	fs.BoolVar(&c.Serve, "serve", c.Serve, "Run the HTTP service")
	fs.StringVar(&c.ServeAddr, "addr", c.ServeAddr, "Listen address for -serve")
	fs.StringVar(&o.origins, "origins", o.origins, "Comma-separated CORS origins for -serve (default any)")

	fs.BoolVar(&c.ShowMetrics, "metrics", c.ShowMetrics, "Print the performance report")
	fs.StringVar(&c.MetricsBackend, "metrics.backend", c.MetricsBackend, "Metrics store: file, sqlite, memory or none")
	fs.StringVar(&c.MetricsPath, "metrics.path", c.MetricsPath, "Metrics store path (default .chalamandra/metrics.json for file, .chalamandra/metrics.db for sqlite)")

	fs.StringVar(&c.LLMBaseURL, "llm.base", c.LLMBaseURL, "OpenAI-compatible base URL")
	fs.StringVar(&c.LLMModel, "llm.model", c.LLMModel, "Model name")
	fs.StringVar(&c.LLMAPIKey, "llm.key", c.LLMAPIKey, "API key for the OpenAI-compatible server")
	fs.Float64Var(&c.LLMTemperature, "llm.temperature", c.LLMTemperature, "Sampling temperature")
	fs.BoolVar(&c.LLMCacheOnly, "llm.cacheOnly", c.LLMCacheOnly, "Serve layer answers from cache only")
	fs.DurationVar(&c.LayerTimeout, "layer.timeout", c.LayerTimeout, "Timeout per analysis layer (0 uses 60s)")
	fs.StringVar(&c.LanguageHint, "lang", c.LanguageHint, "Answer language, e.g. 'en' or 'fi'; detected when empty")
	fs.BoolVar(&c.DisableLanguageDetect, "lang.noDetect", c.DisableLanguageDetect, "Do not guess the content language")

	fs.StringVar(&c.UserAgent, "fetch.ua", c.UserAgent, "User-Agent for page fetches")
	fs.DurationVar(&c.FetchTimeout, "fetch.timeout", c.FetchTimeout, "Per-request fetch timeout")

	fs.StringVar(&c.CacheDir, "cache.dir", c.CacheDir, "Cache directory path (empty disables)")
	fs.DurationVar(&c.CacheMaxAge, "cache.maxAge", c.CacheMaxAge, "Purge cache entries older than this; 0 disables")
	fs.IntVar(&c.CacheMaxCount, "cache.maxCount", c.CacheMaxCount, "Keep at most this many cached answers; 0 disables")
	fs.BoolVar(&c.CacheClear, "cache.clear", c.CacheClear, "Clear the cache before running")
	fs.BoolVar(&c.CacheStrictPerms, "cache.strictPerms", c.CacheStrictPerms, "Restrict cache and metrics permissions (0700 dirs, 0600 files)")

	fs.StringVar(&o.configPath, "config", o.configPath, "YAML or JSON config file")
	fs.StringVar(&o.envFiles, "env", o.envFiles, "Comma-separated dotenv files; later files win")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "Verbose logging")
	fs.BoolVar(&o.showVersion, "version", o.showVersion, "Print version and exit")
}

// parseConfig resolves flags > env > config file > defaults.
func parseConfig(args []string, stderr io.Writer) (app.Config, bool, error) {
	parsed := options{cfg: app.DefaultConfig(), envFiles: ".env"}
	fs := flag.NewFlagSet("chalamandra", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &parsed)
	if err := fs.Parse(args); err != nil {
		return app.Config{}, false, err
	}
	if parsed.showVersion {
		return app.Config{}, true, nil
	}

	if err := app.LoadEnvFiles(splitList(parsed.envFiles)...); err != nil {
		return app.Config{}, false, err
	}
	merged := options{cfg: app.DefaultConfig()}
	if parsed.configPath != "" {
		fc, err := app.LoadConfigFile(parsed.configPath)
		if err != nil {
			return app.Config{}, false, fmt.Errorf("config %s: %w", parsed.configPath, err)
		}
		app.ApplyFileConfig(&merged.cfg, fc)
	}
	app.ApplyEnvOverrides(&merged.cfg)

	replay := flag.NewFlagSet("replay", flag.ContinueOnError)
	bindFlags(replay, &merged)
	var replayErr error
	fs.Visit(func(f *flag.Flag) {
		if err := replay.Set(f.Name, f.Value.String()); err != nil && replayErr == nil {
			replayErr = fmt.Errorf("flag -%s: %w", f.Name, err)
		}
	})
	if replayErr != nil {
		return app.Config{}, false, replayErr
	}
	if list := splitList(merged.origins); len(list) > 0 {
		merged.cfg.AllowedOrigins = list
	}
	return merged.cfg, false, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, showVersion, err := parseConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Error().Err(err).Msg("invalid arguments")
		os.Exit(1)
	}
	if showVersion {
		fmt.Println(version)
		os.Exit(0)
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("run failed")
	}
	os.Exit(exitCode(err))
}

// exitCode maps insufficient content to 2 and any other failure to 1.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, analysis.ErrInsufficientContent):
		return 2
	}
	return 1
}

func run(ctx context.Context, cfg app.Config, opts ...app.Option) error {
	if err := app.ValidateConfig(cfg); err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}()
	if cfg.Serve {
		return a.Serve(ctx)
	}
	return a.Run(ctx)
}
