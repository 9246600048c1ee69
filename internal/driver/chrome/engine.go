// Package chrome implements the driver port on top of chromedp.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/law-makers/rednote/internal/driver"
	"github.com/rs/zerolog/log"
)

const defaultLaunchTimeout = 30 * time.Second

var errNotStarted = errors.New("browser engine not started")

// Engine launches Chromium-based browsers through chromedp
type Engine struct {
	mu       sync.Mutex
	started  bool
	contexts map[*BrowserContext]struct{}
}

// NewEngine creates an engine. Start must be called before launching.
func NewEngine() *Engine {
	return &Engine{contexts: make(map[*BrowserContext]struct{})}
}

// Start implements driver.Engine
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	return nil
}

// Stop closes every context the engine launched
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	open := make([]*BrowserContext, 0, len(e.contexts))
	for bc := range e.contexts {
		open = append(open, bc)
	}
	e.started = false
	e.mu.Unlock()

	var errs []error
	for _, bc := range open {
		if err := bc.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LaunchPersistentContext starts a browser on opts.ProfileDir and, when
// opts.RestoreStateFrom is set, applies the saved cookies and local storage.
func (e *Engine) LaunchPersistentContext(ctx context.Context, opts driver.LaunchOptions) (driver.BrowserContext, error) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return nil, errNotStarted
	}

	var restore []chromedp.Action
	var initScript string
	if opts.RestoreStateFrom != "" {
		st, err := driver.ReadStorageState(opts.RestoreStateFrom)
		if err != nil {
			return nil, fmt.Errorf("load storage state (run 'rednote session clear' to discard it): %w", err)
		}
		if params := cookieParams(st.Cookies); len(params) > 0 {
			restore = append(restore, network.SetCookies(params))
		}
		initScript = restoreScript(st.Origins)
	}

	execPath := opts.ExecPath
	if execPath == "" {
		execPath = FindBrowser(opts.Channel)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts, execPath)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	bc := &BrowserContext{
		engine:        e,
		opts:          opts,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		initScript:    initScript,
		pages:         make(map[target.ID]*Page),
	}

	chromedp.ListenBrowser(browserCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *target.EventTargetDestroyed:
			bc.markClosed(ev.TargetID)
		case *target.EventTargetCrashed:
			bc.markClosed(ev.TargetID)
		}
	})

	actions := []chromedp.Action{target.SetDiscoverTargets(true)}
	actions = append(actions, restore...)
	if initScript != "" {
		actions = append(actions, addInitScript(initScript))
	}

	// Caller cancellation aborts startup; after startup the browser outlives ctx.
	stop := context.AfterFunc(ctx, allocCancel)
	err := chromedp.Run(browserCtx, actions...)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	rootID := chromedp.FromContext(browserCtx).Target.TargetID
	bc.register(&Page{owner: bc, ctx: browserCtx, id: rootID})

	e.mu.Lock()
	e.contexts[bc] = struct{}{}
	e.mu.Unlock()

	log.Debug().
		Str("profile_dir", opts.ProfileDir).
		Bool("headless", opts.Headless).
		Bool("restored", opts.RestoreStateFrom != "").
		Msg("Browser launched")

	return bc, nil
}

func (e *Engine) forget(bc *BrowserContext) {
	e.mu.Lock()
	delete(e.contexts, bc)
	e.mu.Unlock()
}

func allocatorOptions(opts driver.LaunchOptions, execPath string) []chromedp.ExecAllocatorOption {
	launchTimeout := opts.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = defaultLaunchTimeout
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("force-color-profile", "srgb"),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("safebrowsing-disable-auto-update", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.WSURLReadTimeout(launchTimeout),
	}

	if execPath != "" {
		allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(execPath)}, allocOpts...)
	}
	if opts.ProfileDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}

	if opts.Headless {
		allocOpts = append(allocOpts,
			chromedp.Flag("headless", "new"),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}

	for _, f := range opts.EvasionFlags {
		name, value := parseFlag(f)
		if name == "" {
			continue
		}
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}

	return allocOpts
}

// parseFlag turns "--name=value" or "name" into a chromedp flag pair
func parseFlag(f string) (string, interface{}) {
	f = strings.TrimLeft(strings.TrimSpace(f), "-")
	if name, value, ok := strings.Cut(f, "="); ok {
		return name, value
	}
	return f, true
}

func addInitScript(script string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	})
}
