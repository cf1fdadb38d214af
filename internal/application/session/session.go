package session

import (
	"sync"
	"time"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
)

// Upload is an image waiting to be scanned
type Upload struct {
	FileName string
	Data     []byte
}

// Session is one user's working state: the debug toggle, uploads not yet
// scanned and records held in memory after persistence failed.
type Session struct {
	Owner     string
	CreatedAt time.Time

	mu      sync.Mutex
	debug   bool
	pending []Upload
	held    []entity.InvoiceRecord
	nextID  int64
}

// New creates an empty session for owner
func New(owner string) *Session {
	return &Session{
		Owner:     owner,
		CreatedAt: time.Now(),
	}
}

func (s *Session) DebugEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debug
}

func (s *Session) SetDebug(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debug = enabled
}

// Hold keeps rec in memory with a negative provisional id and returns that id
func (s *Session) Hold(rec entity.InvoiceRecord) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID--
	rec.ID = s.nextID
	rec.OwnerIdentity = s.Owner
	s.held = append(s.held, rec)
	return rec.ID
}

// Held returns a copy of the records held in memory
func (s *Session) Held() []entity.InvoiceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.InvoiceRecord, len(s.held))
	copy(out, s.held)
	return out
}

// Release drops held records by provisional id and returns how many were removed
func (s *Session) Release(ids []int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.held[:0]
	removed := 0
	for _, rec := range s.held {
		if drop[rec.ID] {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.held = kept
	return removed
}

// AddUpload queues an image for the next scan
func (s *Session) AddUpload(u Upload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, u)
}

// TakeUploads returns the queued images and empties the queue
func (s *Session) TakeUploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Manager owns the sessions of all users. A session is created on first access
// and discarded on Clear.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Get returns the owner's session, creating it if needed
func (m *Manager) Get(owner string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[owner]
	if !ok {
		s = New(owner)
		m.sessions[owner] = s
	}
	return s
}

// Lookup returns the owner's session without creating one
func (m *Manager) Lookup(owner string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[owner]
	return s, ok
}

// Clear discards the owner's session, including held records
func (m *Manager) Clear(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, owner)
}
