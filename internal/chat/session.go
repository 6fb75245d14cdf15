package chat

import (
	"context"
	"sync"
	"time"
)

type State string

const (
	StateIdle             State = "idle"
	StateSelectingRole    State = "selecting_role"
	StateSelectingTeacher State = "selecting_teacher"
	StateWritingMessage   State = "writing_message"
	StateViewingChat      State = "viewing_chat"
	StateReplyingMessage  State = "replying_message"
)

// Session is the transient per-identity conversation state. It is not durable
// across process restarts and is cleared on terminal transitions.
type Session struct {
	State         State     `json:"state"`
	PeerID        int64     `json:"peer_id,omitempty"`
	PeerName      string    `json:"peer_name,omitempty"`
	ReplyToID     int64     `json:"reply_to_id,omitempty"`
	ReplyToSender int64     `json:"reply_to_sender,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type SessionStore interface {
	Get(ctx context.Context, identity int64) (Session, bool, error)
	Put(ctx context.Context, identity int64, s Session) error
	Clear(ctx context.Context, identity int64) error
	// Stale lists identities whose sessions have not been touched since
	// cutoff. Stores that expire natively may return nothing.
	Stale(ctx context.Context, cutoff time.Time) ([]int64, error)
}

type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: map[int64]Session{}}
}

func (m *MemorySessions) Get(_ context.Context, identity int64) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[identity]
	return s, ok, nil
}

func (m *MemorySessions) Put(_ context.Context, identity int64, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[identity] = s
	return nil
}

func (m *MemorySessions) Clear(_ context.Context, identity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, identity)
	return nil
}

func (m *MemorySessions) Stale(_ context.Context, cutoff time.Time) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stale []int64
	for identity, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			stale = append(stale, identity)
		}
	}
	return stale, nil
}
