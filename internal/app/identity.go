package app

import (
	"context"
	"strings"
)

// IdentityKey is the fixed name under which the participant label is remembered.
const IdentityKey = "quiz_identity"

// IdentityStore remembers the last identity label used on a device.
type IdentityStore struct {
	kv KV
}

func NewIdentityStore(kv KV) *IdentityStore {
	return &IdentityStore{kv: kv}
}

// Load returns the remembered identity, or "" if none was stored.
func (s *IdentityStore) Load(ctx context.Context) (string, error) {
	value, ok, err := s.kv.Get(ctx, IdentityKey)
	if err != nil || !ok {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// Save remembers identity; blank labels are ignored.
func (s *IdentityStore) Save(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil
	}
	return s.kv.Set(ctx, IdentityKey, identity)
}
