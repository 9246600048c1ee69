// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/law-makers/rednote/internal/auth"
	"github.com/law-makers/rednote/internal/cache"
	"github.com/law-makers/rednote/internal/config"
	"github.com/law-makers/rednote/internal/driver"
	"github.com/law-makers/rednote/internal/driver/chrome"
	"github.com/law-makers/rednote/internal/engine"
	"github.com/law-makers/rednote/internal/engine/scrape"
	"github.com/law-makers/rednote/internal/engine/session"
	"github.com/law-makers/rednote/internal/events"
	"github.com/law-makers/rednote/internal/imaging"
	"github.com/law-makers/rednote/internal/proxy"
	"github.com/law-makers/rednote/internal/ratelimit"
	"github.com/law-makers/rednote/internal/retry"
	"github.com/law-makers/rednote/internal/selectors"
	"github.com/law-makers/rednote/internal/utils/headers"
	urlutil "github.com/law-makers/rednote/internal/utils/url"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all CLI commands.
// Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config    *config.Config
	Logger    *zerolog.Logger
	Sink      events.Sink
	Selectors selectors.Set
	Cache     *cache.MemoryCache
	Limiter   ratelimit.RateLimiter
	Store     *auth.Store
	Manager   *session.Manager
	Verifier  *auth.Verifier
	Pipeline  *scrape.Pipeline
	Searcher  engine.Searcher
	Login     engine.LoginChecker

	// OCR is false when no tesseract binary was found
	OCR bool

	fileSink  *events.FileSink
	startTime time.Time
}

// Options overrides collaborators, mostly for tests
type Options struct {
	// Engine drives the browser; defaults to the chromedp engine
	Engine driver.Engine
	// LogWriter receives console logs; defaults to stderr
	LogWriter io.Writer
	// Recognizer runs OCR; defaults to the tesseract CLI when it is installed
	Recognizer imaging.Recognizer
}

// New creates and initializes a new Application with all dependencies.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	return NewWithOptions(ctx, cfg, Options{})
}

// NewWithOptions is New with injectable collaborators.
//
// It performs the following initialization steps:
//   - Configures logging and the event sinks
//   - Loads the selector contract
//   - Creates the rate limiters, the OCR cache and the image resolver
//   - Wires the session manager, state store, login verifier and pipeline
//
// No browser is started here; the first search or login launches it.
func NewWithOptions(ctx context.Context, cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := setupLogger(cfg, opts.LogWriter)
	logger.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Msg("Logger initialized")

	sinks := events.Multi{events.NewZerologSink(logger)}
	var fileSink *events.FileSink
	if cfg.LogFile != "" {
		fileSink = events.NewFileSink(cfg.LogFile, events.FileOptions{
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		})
		sinks = append(sinks, fileSink)
		logger.Debug().Str("path", cfg.LogFile).Msg("File event sink enabled")
	}
	var sink events.Sink = sinks

	contract := selectors.Defaults()
	if cfg.SelectorsFile != "" {
		loaded, err := selectors.Load(cfg.SelectorsFile)
		if err != nil {
			closeSink(fileSink)
			return nil, fmt.Errorf("load selectors: %w", err)
		}
		contract = loaded
		logger.Debug().Str("path", cfg.SelectorsFile).Msg("Selector overrides loaded")
	}

	detailLimiter := ratelimit.NewHostLimiter(cfg.DetailRateLimitRPS, cfg.DetailRateLimitBurst)
	imageLimiter := ratelimit.NewHostLimiter(cfg.ImageRateLimitRPS, cfg.ImageRateLimitBurst)
	logger.Debug().
		Float64("detail_rps", cfg.DetailRateLimitRPS).
		Float64("image_rps", cfg.ImageRateLimitRPS).
		Msg("Rate limiters initialized")

	memCache := cache.NewMemoryCache(cfg.CacheMaxSizeBytes)

	images, ocr, err := newResolver(cfg, opts.Recognizer, imageLimiter, memCache, sink)
	if err != nil {
		memCache.Close()
		closeSink(fileSink)
		return nil, err
	}
	if ocr {
		logger.Debug().Str("languages", cfg.OCRLanguages).Msg("Image OCR enabled")
	}

	eng := opts.Engine
	if eng == nil {
		eng = chrome.NewEngine()
	}

	sessionOpts := session.Options{
		Launch: driver.LaunchOptions{
			ProfileDir:       cfg.ProfileDir,
			Channel:          cfg.Channel,
			ExecPath:         cfg.ChromePath,
			EvasionFlags:     cfg.EvasionFlags,
			InteractionDelay: cfg.InteractionDelay,
			UserAgent:        cfg.UserAgent,
			OpTimeout:        cfg.OpTimeout,
			LaunchTimeout:    cfg.LaunchTimeout,
		},
	}
	if proxies := proxy.ParseList(cfg.Proxy); len(proxies) > 0 {
		sessionOpts.Proxies = proxy.NewPool(proxies, proxy.DefaultCooldown)
		logger.Debug().Int("proxies", len(proxies)).Msg("Proxy rotation enabled")
	}

	store := auth.NewStore(cfg.StateFile, sink)
	manager := session.NewManager(eng, store, sink, sessionOpts)

	verifierOpts := auth.DefaultVerifierOptions()
	verifierOpts.ExploreURL = cfg.ExploreURL
	verifierOpts.Settle = cfg.LoginSettle
	verifierOpts.PollAttempts = cfg.LoginPollAttempts
	verifierOpts.PollInterval = cfg.LoginPollInterval
	verifier := auth.NewVerifier(store, contract, sink, verifierOpts)

	pipelineOpts := scrape.DefaultOptions()
	pipelineOpts.SiteURL = cfg.SiteURL
	var resolver scrape.ImageResolver
	if ocr {
		resolver = images
	}
	pipeline := scrape.New(scrape.Deps{
		Manager:   manager,
		Store:     store,
		Verifier:  verifier,
		Selectors: contract,
		Limiter:   detailLimiter,
		Images:    resolver,
		Sink:      sink,
	}, pipelineOpts)
	logger.Debug().Str("searcher", pipeline.Name()).Msg("Pipeline initialized")

	app := &Application{
		Config:    cfg,
		Logger:    &logger,
		Sink:      sink,
		Selectors: contract,
		Cache:     memCache,
		Limiter:   detailLimiter,
		Store:     store,
		Manager:   manager,
		Verifier:  verifier,
		Pipeline:  pipeline,
		Searcher:  pipeline,
		Login:     pipeline,
		OCR:       ocr,
		fileSink:  fileSink,
		startTime: time.Now(),
	}

	logger.Debug().Msg("Application initialized successfully")
	return app, nil
}

func setupLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logLevel := zerolog.ErrorLevel // default: suppress non-verbose info logs
	switch cfg.LogLevel {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	// Treat "info" as non-verbose (don't display info logs unless -v is used)
	default:
		logLevel = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Logs never go to stdout: the tool server speaks its protocol there.
	if w == nil {
		w = os.Stderr
	}
	var logWriter io.Writer = w
	if !cfg.JSONLog {
		logWriter = zerolog.ConsoleWriter{Out: w}
	}

	logger := zerolog.New(logWriter).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

func newResolver(cfg *config.Config, rec imaging.Recognizer, lim ratelimit.RateLimiter, c cache.Cache, sink events.Sink) (*imaging.Resolver, bool, error) {
	if rec == nil {
		tess := imaging.Tesseract{Path: cfg.TesseractPath}
		if !tess.Available() {
			return nil, false, nil
		}
		rec = tess
	}

	extra, err := headers.Parse(cfg.ImageHeaders)
	if err != nil {
		return nil, false, fmt.Errorf("image headers: %w", err)
	}
	fetcher, err := imaging.NewFetcher(imaging.FetcherOptions{
		Timeout:   cfg.ImageTimeout,
		UserAgent: cfg.UserAgent,
		Referer:   urlutil.Origin(cfg.SiteURL) + "/",
		Limiter:   lim,
		Retry:     retry.DefaultConfig(),
		Headers:   extra,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create image fetcher: %w", err)
	}

	return imaging.NewResolver(fetcher, rec, c, sink, imaging.ResolverOptions{
		Languages: cfg.OCRLanguages,
		CacheTTL:  cfg.CacheTTL,
		Workers:   cfg.OCRWorkers,
	}), true, nil
}

func closeSink(f *events.FileSink) {
	if f != nil {
		_ = f.Close()
	}
}

// Close gracefully shuts down the application and all its resources.
//
// It releases the browser session (stopping the engine), closes the OCR cache
// and flushes the log file. Errors are logged and the remaining steps still run.
func (a *Application) Close(ctx context.Context) error {
	a.Logger.Debug().Msg("Shutting down application")

	var firstErr error
	if a.Manager != nil {
		if err := a.Manager.Close(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Error releasing browser session")
			firstErr = err
		}
	}

	if a.Cache != nil {
		stats := a.Cache.Stats()
		a.Logger.Debug().
			Int("entries", stats.Entries).
			Float64("hit_rate", stats.HitRate()).
			Msg("OCR cache closed")
		a.Cache.Close()
	}

	a.Logger.Debug().Dur("uptime", a.Uptime()).Msg("Application shutdown complete")

	if a.fileSink != nil {
		if err := a.fileSink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
