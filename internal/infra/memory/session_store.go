package memory

import (
	"sync"

	"faculty-quiz-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu          sync.RWMutex
	controllers map[string]*app.Controller
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		controllers: make(map[string]*app.Controller),
	}
}

func (s *SessionStore) GetOrCreate(deviceID string, build func() *app.Controller) *app.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.controllers[deviceID]; ok {
		return c
	}
	c := build()
	s.controllers[deviceID] = c
	return c
}

func (s *SessionStore) Get(deviceID string) (*app.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[deviceID]
	return c, ok
}

// DeleteIfIdle drops the controller when no client is attached and no session is running.
func (s *SessionStore) DeleteIfIdle(deviceID string) (*app.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.controllers[deviceID]
	if !ok || !c.Idle() {
		return nil, false
	}
	delete(s.controllers, deviceID)
	return c, true
}

func (s *SessionStore) All() []*app.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		out = append(out, c)
	}
	return out
}
