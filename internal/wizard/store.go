package wizard

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("import session not found")

// Store keeps wizard sessions between requests. Lookups are scoped to the
// tenant that created the session.
type Store interface {
	Create(s *Session)
	Get(tenantID, id uuid.UUID) (*Session, error)
	Delete(tenantID, id uuid.UUID) error
	Sweep(now time.Time) int
	Len() int
}

// MemoryStore holds sessions in process memory. Sessions idle longer than
// the TTL are removed by Sweep unless a commit is running.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: map[uuid.UUID]*Session{},
	}
}

func (m *MemoryStore) Create(s *Session) {
	s.touch(m.now())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

func (m *MemoryStore) Get(tenantID, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || s.TenantID != tenantID {
		return nil, ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Delete removes a session, cancelling its commit if one is running.
func (m *MemoryStore) Delete(tenantID, id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.TenantID != tenantID {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()
	s.Cancel()
	return nil
}

func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		idle, importing := s.idle(now)
		if importing || idle <= m.ttl {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	return removed
}

// Len reports how many sessions are held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
