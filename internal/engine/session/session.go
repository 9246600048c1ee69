// Package session owns the lifecycle of the single browser session used for
// login checks and searches.
package session

import (
	"sync"

	"github.com/law-makers/rednote/internal/driver"
)

// AuthState is what is currently believed about the session's login state
type AuthState int

const (
	AuthUnknown AuthState = iota
	AuthNo
	AuthYes
)

func (a AuthState) String() string {
	switch a {
	case AuthNo:
		return "no"
	case AuthYes:
		return "yes"
	default:
		return "unknown"
	}
}

// Session is a live browser context plus the page used to drive it. Page is
// always a page of Context.
type Session struct {
	Context driver.BrowserContext
	Page    driver.Page

	mu   sync.Mutex
	auth AuthState
}

// Auth returns the current authentication belief
func (s *Session) Auth() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

// SetAuth records a new authentication belief
func (s *Session) SetAuth(a AuthState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = a
}

// New wraps an already launched context and page. Auth starts Unknown.
func New(bc driver.BrowserContext, page driver.Page) *Session {
	return &Session{Context: bc, Page: page}
}

// StateFile is the persisted storage state as seen by the manager
type StateFile interface {
	Exists() bool
	Path() string
}
