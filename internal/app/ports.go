package app

import (
	"context"

	"faculty-quiz-service/internal/domain"
)

// QuestionSource produces an ordered batch of questions for one session.
type QuestionSource interface {
	RequestBatch(ctx context.Context) ([]domain.Question, error)
}

// KV is a small string key-value capability standing in for client-local persistent storage.
type KV interface {
	// Get returns ok=false when the key has never been written.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// KVProvider hands out a KV scoped to one device.
type KVProvider interface {
	ForDevice(deviceID string) KV
}

// AttemptMirror is the optional remote copy of finished attempts shared by all participants.
type AttemptMirror interface {
	Mirror(ctx context.Context, record domain.AttemptRecord) error
	Global(ctx context.Context, limit int) ([]domain.AttemptRecord, error)
}

// AttemptRecorder is the write side of the attempt store used by controllers.
type AttemptRecorder interface {
	Record(ctx context.Context, score, total int, identity string) (string, error)
}

// SessionRepository abstracts where per-device controllers live (in-memory, Redis-marked, etc).
type SessionRepository interface {
	GetOrCreate(deviceID string, build func() *Controller) *Controller
	Get(deviceID string) (*Controller, bool)
	// DeleteIfIdle removes the controller when it is idle and returns it; the caller closes it.
	DeleteIfIdle(deviceID string) (*Controller, bool)
	All() []*Controller
}

// NopMirror is the AttemptMirror used when no remote store is configured.
type NopMirror struct{}

func (NopMirror) Mirror(context.Context, domain.AttemptRecord) error { return nil }

func (NopMirror) Global(context.Context, int) ([]domain.AttemptRecord, error) { return nil, nil }
