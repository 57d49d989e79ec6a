package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faculty-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// KVStore keeps device-local state in Redis so it survives restarts of the service.
// Keys are laid out as: quiz:device:{deviceID}:{key}
type KVStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewKVStore returns a store whose keys expire after ttl of inactivity; ttl <= 0 keeps them forever.
func NewKVStore(client *redis.Client, ttl time.Duration) *KVStore {
	return &KVStore{client: client, ttl: ttl}
}

func (s *KVStore) ForDevice(deviceID string) app.KV {
	return &deviceKV{store: s, deviceID: deviceID}
}

func (s *KVStore) key(deviceID, key string) string {
	return "quiz:device:" + deviceID + ":" + key
}

type deviceKV struct {
	store    *KVStore
	deviceID string
}

func (d *deviceKV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := d.store.client.Get(ctx, d.store.key(d.deviceID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (d *deviceKV) Set(ctx context.Context, key, value string) error {
	ttl := d.store.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := d.store.client.Set(ctx, d.store.key(d.deviceID, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
