package redis

import (
	"context"
	"sync"
	"time"

	"faculty-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Controllers own timers and subscriptions, so they stay in a local map.
//   - Redis carries a liveness marker per device, refreshed on every lookup, so other
//     instances and operators can see which devices are attached where. The ttl should
//     outlast a whole quiz since a running session may go untouched until it expires.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	instance string

	mu          sync.RWMutex
	controllers map[string]*app.Controller
}

func NewSessionStore(client *redis.Client, ttl time.Duration, instance string) *SessionStore {
	if instance == "" {
		instance = "1"
	}
	return &SessionStore{
		client:      client,
		ttl:         ttl,
		instance:    instance,
		controllers: make(map[string]*app.Controller),
	}
}

func (s *SessionStore) GetOrCreate(deviceID string, build func() *app.Controller) *app.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.controllers[deviceID]
	if !ok {
		c = build()
		s.controllers[deviceID] = c
	}
	s.touch(deviceID)
	return c
}

func (s *SessionStore) Get(deviceID string) (*app.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[deviceID]
	if ok {
		s.touch(deviceID)
	}
	return c, ok
}

func (s *SessionStore) DeleteIfIdle(deviceID string) (*app.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.controllers[deviceID]
	if !ok || !c.Idle() {
		return nil, false
	}
	delete(s.controllers, deviceID)
	_ = s.client.Del(context.Background(), s.key(deviceID)).Err()
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

// touch is best effort; the marker is informational.
func (s *SessionStore) touch(deviceID string) {
	_ = s.client.Set(context.Background(), s.key(deviceID), s.instance, s.ttl).Err()
}

func (s *SessionStore) key(deviceID string) string {
	return "quiz:session:" + deviceID
}
