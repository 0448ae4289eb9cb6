package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type memorySession struct {
	msgs     []Message
	lastUsed time.Time
}

// MemoryStore keeps sessions in process memory. It is lost on restart.
type MemoryStore struct {
	mu         sync.Mutex
	maxHistory int
	sessions   map[string]*memorySession
	now        func() time.Time
}

// NewMemoryStore returns a store that keeps the last maxHistory exchanges
// (question and answer pairs) per session.
func NewMemoryStore(maxHistory int) *MemoryStore {
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &MemoryStore{
		maxHistory: maxHistory,
		sessions:   make(map[string]*memorySession),
		now:        time.Now,
	}
}

// ExpireIdle starts a janitor that drops sessions unused for longer than
// idle, until ctx is done. idle <= 0 keeps sessions forever.
func (s *MemoryStore) ExpireIdle(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	interval := idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.sweep(s.now().Add(-idle)); n > 0 {
					log.Debug().Int("sessions", n).Msg("expired idle sessions")
				}
			}
		}
	}()
}

// sweep removes sessions last used before cutoff and reports how many.
func (s *MemoryStore) sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Create(_ context.Context) (string, error) {
	id := newID()
	s.mu.Lock()
	s.sessions[id] = &memorySession{lastUsed: s.now()}
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", nil
	}
	sess.lastUsed = s.now()
	return FormatHistory(sess.msgs), nil
}

// AddExchange appends one question and answer, creating the session when it
// is unknown (for example after it expired).
func (s *MemoryStore) AddExchange(_ context.Context, sessionID, question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &memorySession{}
		s.sessions[sessionID] = sess
	}
	msgs := append(sess.msgs,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: answer},
	)
	if limit := s.maxHistory * 2; len(msgs) > limit {
		msgs = append([]Message(nil), msgs[len(msgs)-limit:]...)
	}
	sess.msgs = msgs
	sess.lastUsed = s.now()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len reports the number of known sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
