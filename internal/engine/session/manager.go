package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/law-makers/rednote/internal/driver"
	"github.com/law-makers/rednote/internal/engine"
	"github.com/law-makers/rednote/internal/events"
)

const defaultProbeTimeout = 5 * time.Second

// Options configures how sessions are launched and probed
type Options struct {
	// Launch is the base launch configuration; Headless and RestoreStateFrom
	// are set per launch.
	Launch       driver.LaunchOptions
	ProbeTimeout time.Duration
	// Proxies, when set, picks Launch.Proxy for every launch
	Proxies ProxySource
}

// ProxySource rotates proxies across launches. It is satisfied by
// *proxy.Pool.
type ProxySource interface {
	Next() string
	MarkFailed(proxy string)
	MarkHealthy(proxy string)
}

// Manager hands out the single live session, relaunching it when the
// browser has gone away. Acquire and Close are serialized.
type Manager struct {
	engine driver.Engine
	state  StateFile
	sink   events.Sink
	opts   Options

	mu      sync.Mutex
	started bool
	current *Session
}

// NewManager creates a manager. state may be nil when nothing is persisted.
func NewManager(eng driver.Engine, state StateFile, sink events.Sink, opts Options) *Manager {
	if sink == nil {
		sink = events.Nop{}
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	return &Manager{engine: eng, state: state, sink: sink, opts: opts}
}

// Acquire returns the live session, launching a new one when there is none
// or the current one no longer responds. A fresh launch restores the
// persisted state when it exists and always starts with AuthUnknown.
func (m *Manager) Acquire(ctx context.Context, headless bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.current; s != nil {
		if m.healthy(ctx, s) {
			m.sink.Record(events.SessionReused, events.Fields{"auth": s.Auth().String()})
			return s, nil
		}
		m.sink.Record(events.SessionStale, nil)
		m.closeContext(ctx, s)
		m.current = nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !m.started {
		if err := m.engine.Start(ctx); err != nil {
			m.sink.Record(events.SessionLaunchFailed, events.Fields{"err": err, "stage": "start"})
			return nil, launchError("failed to start browser engine", err)
		}
		m.started = true
	}

	opts := m.opts.Launch
	opts.Headless = headless
	opts.RestoreStateFrom = ""
	if m.state != nil && m.state.Exists() {
		opts.RestoreStateFrom = m.state.Path()
	}
	if m.opts.Proxies != nil {
		opts.Proxy = m.opts.Proxies.Next()
	}

	m.sink.Record(events.SessionLaunching, events.Fields{
		"headless": headless,
		"restore":  opts.RestoreStateFrom != "",
		"proxy":    opts.Proxy != "",
	})

	bc, err := m.engine.LaunchPersistentContext(ctx, opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if m.opts.Proxies != nil {
			m.opts.Proxies.MarkFailed(opts.Proxy)
		}
		m.sink.Record(events.SessionLaunchFailed, events.Fields{"err": err, "stage": "launch"})
		return nil, launchError("failed to launch browser context", err)
	}
	if m.opts.Proxies != nil {
		m.opts.Proxies.MarkHealthy(opts.Proxy)
	}

	page, err := m.selectPage(ctx, bc)
	if err != nil {
		if cerr := bc.Close(context.WithoutCancel(ctx)); cerr != nil {
			m.sink.Record(events.SessionCloseFailed, events.Fields{"err": cerr})
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.sink.Record(events.SessionLaunchFailed, events.Fields{"err": err, "stage": "page"})
		return nil, launchError("failed to open a page", err)
	}

	m.current = New(bc, page)
	m.sink.Record(events.SessionLaunched, events.Fields{"headless": headless})
	return m.current, nil
}

// Current returns the live session without probing it, or nil
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close releases the session and stops the browser engine. It is safe to
// call when nothing is running; the next Acquire starts over.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.current; s != nil {
		if s.Page != nil && !s.Page.IsClosed() {
			if err := s.Page.Close(ctx); err != nil && !errors.Is(err, driver.ErrPageClosed) {
				m.sink.Record(events.SessionCloseFailed, events.Fields{"err": err, "stage": "page"})
			}
		}
		m.closeContext(ctx, s)
		m.current = nil
	}

	if !m.started {
		return nil
	}
	m.started = false
	if err := m.engine.Stop(ctx); err != nil {
		m.sink.Record(events.SessionCloseFailed, events.Fields{"err": err, "stage": "stop"})
		return err
	}
	m.sink.Record(events.SessionClosed, nil)
	return nil
}

// healthy checks that the context still has pages and that the session's
// page answers a title probe within the probe timeout.
func (m *Manager) healthy(ctx context.Context, s *Session) bool {
	if s.Context == nil || s.Page == nil || s.Page.IsClosed() {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()

	pages, err := s.Context.Pages(probeCtx)
	if err != nil || len(pages) == 0 {
		return false
	}
	_, err = s.Page.Title(probeCtx)
	return err == nil
}

// selectPage reuses the first page of a fresh context when it responds,
// otherwise opens a new one.
func (m *Manager) selectPage(ctx context.Context, bc driver.BrowserContext) (driver.Page, error) {
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	pages, err := bc.Pages(probeCtx)
	if err == nil && len(pages) > 0 && !pages[0].IsClosed() {
		if _, terr := pages[0].Title(probeCtx); terr == nil {
			cancel()
			return pages[0], nil
		}
	}
	cancel()

	page, err := bc.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	m.sink.Record(events.SessionPageOpened, nil)
	return page, nil
}

func (m *Manager) closeContext(ctx context.Context, s *Session) {
	if s.Context == nil {
		return
	}
	if err := s.Context.Close(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, driver.ErrPageClosed) {
		m.sink.Record(events.SessionCloseFailed, events.Fields{"err": err})
	}
}

func launchError(msg string, err error) error {
	return engine.NewEngineError(engine.ErrCodeSessionLaunch, msg, err).WithRetry()
}
