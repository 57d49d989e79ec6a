package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"faculty-quiz-service/internal/domain"
)

// ServiceConfig configures the controllers and attempt stores a QuizService builds.
type ServiceConfig struct {
	Controller ControllerConfig
	Attempts   AttemptStoreConfig
}

// QuizService owns one Controller per device and the shared collaborators they use.
// A controller lives while a client is attached or a session is running or saving;
// once it settles it is dropped from the repository.
type QuizService struct {
	sessions SessionRepository
	source   QuestionSource
	kv       KVProvider
	mirror   AttemptMirror
	cfg      ServiceConfig
	log      *zap.Logger
	now      func() time.Time

	// mu orders attach against release so a controller is never dropped between lookup and subscribe.
	mu sync.Mutex
}

func NewQuizService(sessions SessionRepository, source QuestionSource, kv KVProvider, mirror AttemptMirror, cfg ServiceConfig, logger *zap.Logger) *QuizService {
	if mirror == nil {
		mirror = NopMirror{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{
		sessions: sessions,
		source:   source,
		kv:       kv,
		mirror:   mirror,
		cfg:      cfg,
		log:      logger,
		now:      time.Now,
	}
}

// Controller returns the device's controller, creating it (and reading its remembered identity) on first use.
// Callers that stay connected should use Attach instead.
func (s *QuizService) Controller(ctx context.Context, deviceID string) (*Controller, error) {
	if deviceID == "" {
		return nil, domain.ErrDeviceRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.GetOrCreate(deviceID, s.builder(ctx, deviceID)), nil
}

// Attach returns the device's controller already subscribed, so it stays registered until detach is called.
func (s *QuizService) Attach(ctx context.Context, deviceID string) (*Controller, <-chan domain.SessionView, func(), error) {
	if deviceID == "" {
		return nil, nil, nil, domain.ErrDeviceRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.sessions.GetOrCreate(deviceID, s.builder(ctx, deviceID))
	updates, detach := c.Subscribe()
	return c, updates, detach, nil
}

func (s *QuizService) builder(ctx context.Context, deviceID string) func() *Controller {
	return func() *Controller {
		local := s.kv.ForDevice(deviceID)
		c := NewController(ControllerDeps{
			DeviceID:   deviceID,
			Source:     s.source,
			Attempts:   s.attemptStore(deviceID),
			Identities: NewIdentityStore(local),
			Logger:     s.log,
			Now:        s.now,
			OnIdle:     func() { s.Release(deviceID) },
		}, s.cfg.Controller)
		if err := c.LoadIdentity(ctx); err != nil {
			s.log.Warn("reading remembered identity failed", zap.String("device_id", deviceID), zap.Error(err))
		}
		return c
	}
}

// Lookup returns an existing controller without creating one.
func (s *QuizService) Lookup(deviceID string) (*Controller, error) {
	c, ok := s.sessions.Get(deviceID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return c, nil
}

// Recent lists the device's own attempts, newest first.
func (s *QuizService) Recent(ctx context.Context, deviceID string) ([]domain.AttemptRecord, error) {
	if deviceID == "" {
		return nil, domain.ErrDeviceRequired
	}
	return s.attemptStore(deviceID).ListRecent(ctx)
}

// Global lists recent attempts of all participants. With a device id, the device's
// local history is the fallback when the remote list is unavailable.
func (s *QuizService) Global(ctx context.Context, deviceID string) ([]domain.AttemptRecord, error) {
	if deviceID != "" {
		return s.attemptStore(deviceID).ListGlobal(ctx)
	}
	records, err := s.mirror.Global(ctx, s.cfg.Attempts.withDefaults().GlobalLimit)
	if err != nil {
		s.log.Warn("global attempts unavailable", zap.Error(err))
		return []domain.AttemptRecord{}, nil
	}
	if records == nil {
		records = []domain.AttemptRecord{}
	}
	return records, nil
}

// Identity returns the label remembered for the device.
func (s *QuizService) Identity(ctx context.Context, deviceID string) (string, error) {
	if deviceID == "" {
		return "", domain.ErrDeviceRequired
	}
	return NewIdentityStore(s.kv.ForDevice(deviceID)).Load(ctx)
}

// Release drops a device's controller if nothing depends on it any more.
func (s *QuizService) Release(deviceID string) {
	s.mu.Lock()
	c, ok := s.sessions.DeleteIfIdle(deviceID)
	s.mu.Unlock()
	if !ok {
		return
	}
	c.Close()
	s.log.Debug("released idle controller", zap.String("device_id", deviceID))
}

// Close stops every controller and waits for pending saves.
func (s *QuizService) Close() {
	for _, c := range s.sessions.All() {
		c.Close()
	}
}

// attemptStore is cheap to build; only a controller's own store carries pending mirror writes.
func (s *QuizService) attemptStore(deviceID string) *AttemptStore {
	return NewAttemptStore(s.kv.ForDevice(deviceID), s.mirror, s.cfg.Attempts, s.log.With(zap.String("device_id", deviceID)))
}
