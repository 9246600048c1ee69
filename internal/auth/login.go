// internal/auth/login.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/law-makers/rednote/internal/driver"
	"github.com/law-makers/rednote/internal/engine/session"
	"github.com/law-makers/rednote/internal/events"
	"github.com/law-makers/rednote/internal/retry"
	"github.com/law-makers/rednote/internal/selectors"
)

// VerifierOptions configures the login check
type VerifierOptions struct {
	// ExploreURL is the page whose markup reveals the login state
	ExploreURL string
	// NavTimeout bounds the navigation to ExploreURL
	NavTimeout time.Duration
	// Settle is the pause after navigation before probing
	Settle time.Duration
	// PollAttempts and PollInterval bound the wait for a manual login
	PollAttempts int
	PollInterval time.Duration
	// LoginURLHints are URL fragments that indicate a login page
	LoginURLHints []string
}

// DefaultVerifierOptions returns the defaults: 30s navigation, 3s settle and
// a 60 x 1s wait for the user to log in.
func DefaultVerifierOptions() VerifierOptions {
	return VerifierOptions{
		ExploreURL:    "https://www.xiaohongshu.com/explore",
		NavTimeout:    30 * time.Second,
		Settle:        3 * time.Second,
		PollAttempts:  60,
		PollInterval:  time.Second,
		LoginURLHints: []string{"login", "passport"},
	}
}

// Verifier decides whether a session is logged in by probing the page and,
// when a login prompt is shown, waits a bounded time for the user to log in.
type Verifier struct {
	store *Store
	sel   selectors.Set
	sink  events.Sink
	opts  VerifierOptions
}

// NewVerifier creates a verifier. Zero option fields take their defaults.
func NewVerifier(store *Store, sel selectors.Set, sink events.Sink, opts VerifierOptions) *Verifier {
	def := DefaultVerifierOptions()
	if opts.ExploreURL == "" {
		opts.ExploreURL = def.ExploreURL
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = def.NavTimeout
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = def.PollAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.LoginURLHints == nil {
		opts.LoginURLHints = def.LoginURLHints
	}
	if sel == nil {
		sel = selectors.Defaults()
	}
	if sink == nil {
		sink = events.Nop{}
	}
	return &Verifier{store: store, sel: sel, sink: sink, opts: opts}
}

// Verify reports whether the session is authenticated and updates its auth
// state. A positive result is persisted. Errors are returned only when the
// page is gone or ctx ends; every other probe failure counts as "not found".
func (v *Verifier) Verify(ctx context.Context, s *session.Session) (bool, error) {
	if s == nil || s.Page == nil {
		return false, fmt.Errorf("verify login: %w", driver.ErrPageClosed)
	}
	page := s.Page

	if err := page.Goto(ctx, v.opts.ExploreURL, driver.GotoOptions{Timeout: v.opts.NavTimeout}); err != nil {
		if fatal(ctx, err) {
			return false, fatalErr(ctx, err)
		}
		v.sink.Record(events.LoginNavigateFailed, events.Fields{"err": err, "url": v.opts.ExploreURL})
	}

	if err := retry.Sleep(ctx, v.opts.Settle); err != nil {
		return false, err
	}

	found, err := v.probe(ctx, page, selectors.ProfileMarker)
	if err != nil {
		return false, err
	}
	if found {
		v.authenticated(ctx, s, "initial")
		return true, nil
	}

	prompt, err := v.probe(ctx, page, selectors.LoginPromptMarker)
	if err != nil {
		return false, err
	}
	s.SetAuth(session.AuthNo)
	if !prompt {
		v.sink.Record(events.LoginAmbiguous, events.Fields{"url": v.opts.ExploreURL})
		return false, nil
	}

	v.sink.Record(events.LoginPromptShown, nil)
	if v.store != nil && v.store.Exists() {
		v.store.Delete()
	}

	v.sink.Record(events.LoginWaiting, events.Fields{
		"attempts": v.opts.PollAttempts,
		"interval": v.opts.PollInterval.String(),
	})
	found, err = retry.Poll(ctx, retry.PollConfig{Attempts: v.opts.PollAttempts, Interval: v.opts.PollInterval},
		func(ctx context.Context, _ int) (bool, error) {
			return v.probe(ctx, page, selectors.ProfileMarker)
		})
	if err != nil {
		return false, err
	}
	if found {
		v.authenticated(ctx, s, "poll")
		return true, nil
	}

	fields := events.Fields{"attempts": v.opts.PollAttempts}
	if url, err := page.URL(ctx); err == nil {
		fields["url"] = url
		fields["login_page"] = containsAny(url, v.opts.LoginURLHints)
	}
	v.sink.Record(events.LoginTimedOut, fields)
	return false, nil
}

// Login acquires a session and verifies it
func (v *Verifier) Login(ctx context.Context, m *session.Manager, headless bool) (bool, error) {
	s, err := m.Acquire(ctx, headless)
	if err != nil {
		return false, err
	}
	return v.Verify(ctx, s)
}

func (v *Verifier) authenticated(ctx context.Context, s *session.Session, stage string) {
	s.SetAuth(session.AuthYes)
	v.sink.Record(events.LoginAuthenticated, events.Fields{"stage": stage})
	if v.store != nil {
		v.store.Save(ctx, s)
	}
}

// probe reports whether the named marker is present
func (v *Verifier) probe(ctx context.Context, page driver.Page, name string) (bool, error) {
	el, err := page.QuerySelector(ctx, v.sel.Get(name))
	if err != nil {
		if fatal(ctx, err) {
			return false, fatalErr(ctx, err)
		}
		v.sink.Record(events.LoginProbeFailed, events.Fields{"err": err, "selector": name})
		return false, nil
	}
	return el != nil, nil
}

func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, driver.ErrPageClosed)
}

func fatalErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("verify login: %w", err)
}

func containsAny(s string, subs []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
