package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"faculty-quiz-service/internal/domain"
)

// LocalAttemptsKey holds the device's own attempt history as a JSON array, newest first.
const LocalAttemptsKey = "eng_quiz_local_attempts"

// AttemptStoreConfig bounds the attempt lists and the remote mirror retries.
type AttemptStoreConfig struct {
	LocalLimit       int
	GlobalLimit      int
	MirrorTimeout    time.Duration
	MirrorMaxElapsed time.Duration
}

func (c AttemptStoreConfig) withDefaults() AttemptStoreConfig {
	if c.LocalLimit <= 0 {
		c.LocalLimit = 10
	}
	if c.GlobalLimit <= 0 {
		c.GlobalLimit = 5
	}
	if c.MirrorTimeout <= 0 {
		c.MirrorTimeout = 5 * time.Second
	}
	if c.MirrorMaxElapsed <= 0 {
		c.MirrorMaxElapsed = 30 * time.Second
	}
	return c
}

// AttemptStore persists finished attempts locally first and mirrors them remotely on a best-effort basis.
type AttemptStore struct {
	local  KV
	mirror AttemptMirror
	cfg    AttemptStoreConfig
	log    *zap.Logger
	now    func() time.Time
	newID  func() string

	mu sync.Mutex // serialises read-modify-write of the local list
	wg sync.WaitGroup
}

func NewAttemptStore(local KV, mirror AttemptMirror, cfg AttemptStoreConfig, logger *zap.Logger) *AttemptStore {
	if mirror == nil {
		mirror = NopMirror{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptStore{
		local:  local,
		mirror: mirror,
		cfg:    cfg.withDefaults(),
		log:    logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Record appends a new attempt to the local list and schedules the remote mirror write.
// Only a local failure is returned.
func (s *AttemptStore) Record(ctx context.Context, score, total int, identity string) (string, error) {
	record := domain.AttemptRecord{
		ID:         s.newID(),
		Score:      score,
		Total:      total,
		Percentage: domain.Percentage(score, total),
		Identity:   identity,
		Timestamp:  s.now().UTC(),
	}

	if err := s.appendLocal(ctx, record); err != nil {
		return "", err
	}

	s.wg.Add(1)
	go s.mirrorRecord(record)
	return record.ID, nil
}

// ListRecent returns this device's attempts, newest first.
func (s *AttemptStore) ListRecent(ctx context.Context) ([]domain.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocalLocked(ctx)
}

// ListGlobal returns the most recent attempts across all participants.
// When the mirror is unavailable or empty the local history is returned instead.
func (s *AttemptStore) ListGlobal(ctx context.Context) ([]domain.AttemptRecord, error) {
	records, err := s.mirror.Global(ctx, s.cfg.GlobalLimit)
	if err != nil {
		s.log.Warn("global attempts unavailable, using local history", zap.Error(err))
	}
	if err == nil && len(records) > 0 {
		return records, nil
	}
	return s.ListRecent(ctx)
}

// Wait blocks until pending mirror writes have completed or given up.
func (s *AttemptStore) Wait() {
	s.wg.Wait()
}

func (s *AttemptStore) appendLocal(ctx context.Context, record domain.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocalLocked(ctx)
	if err != nil {
		return err
	}
	records = append([]domain.AttemptRecord{record}, records...)
	if len(records) > s.cfg.LocalLimit {
		records = records[:s.cfg.LocalLimit]
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode local attempts: %w", err)
	}
	if err := s.local.Set(ctx, LocalAttemptsKey, string(raw)); err != nil {
		return fmt.Errorf("save local attempts: %w", err)
	}
	return nil
}

func (s *AttemptStore) loadLocalLocked(ctx context.Context) ([]domain.AttemptRecord, error) {
	raw, ok, err := s.local.Get(ctx, LocalAttemptsKey)
	if err != nil {
		return nil, fmt.Errorf("load local attempts: %w", err)
	}
	if !ok || raw == "" {
		return []domain.AttemptRecord{}, nil
	}
	var records []domain.AttemptRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		// A corrupt list is replaced rather than blocking new attempts.
		s.log.Warn("discarding unreadable local attempts", zap.Error(err))
		return []domain.AttemptRecord{}, nil
	}
	if len(records) > s.cfg.LocalLimit {
		records = records[:s.cfg.LocalLimit]
	}
	return records, nil
}

func (s *AttemptStore) mirrorRecord(record domain.AttemptRecord) {
	defer s.wg.Done()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = s.cfg.MirrorMaxElapsed

	err := backoff.RetryNotify(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MirrorTimeout)
		defer cancel()
		return s.mirror.Mirror(ctx, record)
	}, policy, func(err error, next time.Duration) {
		s.log.Warn("attempt mirror failed, retrying",
			zap.String("attempt_id", record.ID),
			zap.Duration("next", next),
			zap.Error(err))
	})
	if err != nil {
		s.log.Error("attempt mirror gave up", zap.String("attempt_id", record.ID), zap.Error(err))
	}
}
