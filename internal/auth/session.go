// internal/auth/session.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/law-makers/rednote/internal/driver"
	"github.com/law-makers/rednote/internal/engine"
	"github.com/law-makers/rednote/internal/engine/session"
	"github.com/law-makers/rednote/internal/events"
)

const (
	// StateDir is the directory under the user's home that holds the state file
	StateDir = ".rednote"
	// StateFileName is the default storage state file name
	StateFileName = "state.json"
)

// DefaultStatePath returns ~/.rednote/state.json
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, StateDir, StateFileName), nil
}

// Store persists the authenticated browser state at a fixed path
type Store struct {
	path string
	sink events.Sink
}

// NewStore creates a store for path
func NewStore(path string, sink events.Sink) *Store {
	if sink == nil {
		sink = events.Nop{}
	}
	return &Store{path: path, sink: sink}
}

// Path returns the state file location
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a state file is present
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Save writes the session's storage state when the session is known to be
// authenticated. Skips and write failures are recorded, never returned.
func (s *Store) Save(ctx context.Context, sess *session.Session) {
	switch {
	case sess == nil || sess.Context == nil:
		s.sink.Record(events.StateSaveSkipped, events.Fields{"reason": "no_session", "path": s.path})
		return
	case sess.Auth() != session.AuthYes:
		s.sink.Record(events.StateSaveSkipped, events.Fields{"reason": "not_authenticated", "auth": sess.Auth().String(), "path": s.path})
		return
	}

	if err := sess.Context.SaveStorageState(ctx, s.path); err != nil {
		werr := engine.NewEngineError(engine.ErrCodePersistenceWrite, "failed to write session state", err).
			WithDetail("path", s.path)
		s.sink.Record(events.StateWriteFailed, events.Fields{"err": werr, "path": s.path, "code": string(werr.Code)})
		return
	}
	s.sink.Record(events.StateSaved, events.Fields{"path": s.path})
}

// Delete removes the state file. A missing file is not an error; other
// failures are recorded.
func (s *Store) Delete() {
	err := os.Remove(s.path)
	switch {
	case err == nil:
		s.sink.Record(events.StateDeleted, events.Fields{"path": s.path})
	case errors.Is(err, os.ErrNotExist):
	default:
		s.sink.Record(events.StateDeleteError, events.Fields{"err": err, "path": s.path})
	}
}

// StateInfo describes the persisted state for status output
type StateInfo struct {
	Path      string    `json:"path"`
	Exists    bool      `json:"exists"`
	Size      int64     `json:"size,omitempty"`
	ModTime   time.Time `json:"modified_at,omitempty"`
	Cookies   int       `json:"cookies,omitempty"`
	Origins   int       `json:"origins,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Info inspects the state file without launching a browser
func (s *Store) Info() (StateInfo, error) {
	info := StateInfo{Path: s.path}
	fi, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return info, err
	}
	info.Exists = true
	info.Size = fi.Size()
	info.ModTime = fi.ModTime()

	st, err := driver.ReadStorageState(s.path)
	if err != nil {
		return info, fmt.Errorf("inspect state file: %w", err)
	}
	info.Cookies = len(st.Cookies)
	info.Origins = len(st.Origins)

	// Latest cookie expiry approximates how long the login lasts
	maxExpires := 0.0
	for _, c := range st.Cookies {
		if c.Expires > maxExpires {
			maxExpires = c.Expires
		}
	}
	if maxExpires > 0 {
		info.ExpiresAt = time.Unix(int64(maxExpires), 0)
	}
	return info, nil
}
