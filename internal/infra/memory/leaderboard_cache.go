package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"faculty-quiz-service/internal/app"
	"faculty-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// LeaderboardCache caches the global attempt list with TTL to avoid repeated remote hits.
// Writes pass straight through and invalidate the cache.
type LeaderboardCache struct {
	mirror app.AttemptMirror
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int]cachedBoard
}

type cachedBoard struct {
	records   []domain.AttemptRecord
	expiresAt time.Time
}

func NewLeaderboardCache(mirror app.AttemptMirror, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		mirror: mirror,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int]cachedBoard),
	}
}

func (c *LeaderboardCache) Mirror(ctx context.Context, record domain.AttemptRecord) error {
	if err := c.mirror.Mirror(ctx, record); err != nil {
		return err
	}
	c.mu.Lock()
	c.cache = make(map[int]cachedBoard)
	c.mu.Unlock()
	return nil
}

func (c *LeaderboardCache) Global(ctx context.Context, limit int) ([]domain.AttemptRecord, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[limit]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.records, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(strconv.Itoa(limit), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[limit]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.records, nil
		}
		c.mu.RUnlock()

		records, err := c.mirror.Global(ctx, limit)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[limit] = cachedBoard{
			records:   records,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.AttemptRecord), nil
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
