// Package session keeps one in-memory editing session per browser.
//
// A session owns a table model and the name of the file it was loaded from.
// All access to the model goes through the session's mutex, so each session
// has exactly one writer at a time no matter how many requests the browser
// has in flight. Nothing is persisted; sessions die with the process or when
// the sweeper finds them idle.
package session

import (
	"sync"
	"time"

	"github.com/JonMunkholm/csvedit/internal/table"
)

// Session is a single browser's editing state.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	model    *table.Model
	source   string
	lastSeen time.Time
}

// View is a consistent read of a session taken under its lock.
type View struct {
	ID     string
	Source string
	Table  table.Snapshot
	Loaded bool
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		model:     table.New(),
		lastSeen:  now,
	}
}

// Apply runs fn with exclusive access to the model and returns a view of
// the state fn left behind. The view reflects fn's changes even when fn
// returns an error, which for the model's operations means nothing changed.
func (s *Session) Apply(fn func(m *table.Model) error) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn(s.model)
	return s.viewLocked(), err
}

// Replace loads a freshly decoded table and records its source filename.
func (s *Session) Replace(source string, headers []string, rows [][]string) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.model.Load(headers, rows)
	s.source = source
	return s.viewLocked()
}

// View returns the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	return View{
		ID:     s.ID,
		Source: s.source,
		Table:  s.model.State(),
		Loaded: !s.model.Empty(),
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}
