// Package session holds per-conversation state in process memory.
//
// Sessions live until they are explicitly deleted or the process exits.
// Callers only ever receive copies, so a returned Session can be read or
// modified without affecting the stored state.
package session

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is a keyed conversation: its history and preferred model.
type Session struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Model     string         `json:"model,omitempty"`
	Messages  []ChatMessage  `json:"messages"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (s *Session) clone() Session {
	out := *s
	out.Messages = slices.Clone(s.Messages)
	if out.Messages == nil {
		out.Messages = []ChatMessage{}
	}
	out.Metadata = maps.Clone(s.Metadata)
	return out
}

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidMessage  = errors.New("invalid chat message")
)

// Options seeds a new session.
type Options struct {
	Model    string
	Messages []ChatMessage
	Metadata map[string]any
}

// Recorder is notified after messages were appended to a session.
type Recorder interface {
	Record(sessionID string, msgs []ChatMessage, at time.Time)
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// Store is the process-wide session map. Map membership is guarded by a
// store-level lock; mutations of a single session are serialized by that
// session's own lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	recorder Recorder
	now      func() time.Time
}

type StoreOption func(*Store)

// WithRecorder attaches a transcript recorder.
func WithRecorder(r Recorder) StoreOption {
	return func(s *Store) { s.recorder = r }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new session under id. An existing session with the same
// id is replaced.
func (s *Store) Create(id string, opts Options) Session {
	now := s.now()
	e := &entry{session: Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Model:     opts.Model,
		Messages:  slices.Clone(opts.Messages),
		Metadata:  maps.Clone(opts.Metadata),
	}}
	if e.session.Messages == nil {
		e.session.Messages = []ChatMessage{}
	}
	if e.session.Metadata == nil {
		e.session.Metadata = map[string]any{}
	}

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()

	return e.session.clone()
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return e, ok
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (Session, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone(), true
}

// AppendMessage appends msgs, in order, to the end of the session history
// as one atomic step and bumps UpdatedAt.
func (s *Store) AppendMessage(id string, msgs ...ChatMessage) (Session, error) {
	for _, m := range msgs {
		if !m.Role.Valid() {
			return Session{}, fmt.Errorf("%w: role %q", ErrInvalidMessage, m.Role)
		}
	}

	e, ok := s.lockCurrent(id)
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	defer e.mu.Unlock()
	e.session.Messages = append(e.session.Messages, msgs...)
	e.session.UpdatedAt = s.now()

	// recorded under the session lock so the archive keeps the same order
	if s.recorder != nil && len(msgs) > 0 {
		s.recorder.Record(id, slices.Clone(msgs), e.session.UpdatedAt)
	}
	return e.session.clone(), nil
}

// lockCurrent returns the entry stored under id with its lock held. An entry
// replaced by Create or removed by Delete while waiting for its lock is
// never returned.
func (s *Store) lockCurrent(id string) (*entry, bool) {
	for {
		e, ok := s.lookup(id)
		if !ok {
			return nil, false
		}
		e.mu.Lock()
		if cur, ok := s.lookup(id); ok && cur == e {
			return e, true
		}
		e.mu.Unlock()
	}
}

// Reset clears the history in place. ID, CreatedAt and Model are kept.
func (s *Store) Reset(id string) (Session, bool) {
	e, ok := s.lockCurrent(id)
	if !ok {
		return Session{}, false
	}
	defer e.mu.Unlock()
	e.session.Messages = []ChatMessage{}
	e.session.UpdatedAt = s.now()
	return e.session.clone(), true
}

// Delete removes the session and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
