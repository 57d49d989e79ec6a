package memory

import (
	"context"
	"sync"

	"faculty-quiz-service/internal/app"
)

// KVStore is an in-process stand-in for client-local storage, partitioned by device.
type KVStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewKVStore() *KVStore {
	return &KVStore{values: make(map[string]string)}
}

// ForDevice returns a view whose keys are private to deviceID.
func (s *KVStore) ForDevice(deviceID string) app.KV {
	return &deviceKV{store: s, prefix: deviceID + "/"}
}

func (s *KVStore) get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *KVStore) set(key, value string) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

type deviceKV struct {
	store  *KVStore
	prefix string
}

func (d *deviceKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := d.store.get(d.prefix + key)
	return v, ok, nil
}

func (d *deviceKV) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.store.set(d.prefix+key, value)
	return nil
}
