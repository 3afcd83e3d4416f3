package notificationservice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sushihentaime/teamblog/internal/common"
	"github.com/vmihailenco/msgpack/v5"
)

// MemoryUnreadCache keeps unread entries in process memory. Only suitable
// when a single instance serves all requests.
type MemoryUnreadCache struct {
	c   *common.Cache
	ttl time.Duration

	mu   sync.Mutex
	gens map[string]int64
}

func NewMemoryUnreadCache(c *common.Cache, ttl time.Duration) *MemoryUnreadCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &MemoryUnreadCache{c: c, ttl: ttl, gens: make(map[string]int64)}
}

func (m *MemoryUnreadCache) Generation(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[userID], nil
}

func (m *MemoryUnreadCache) Get(ctx context.Context, userID string) ([]UnreadEntry, bool, error) {
	v, ok := m.c.Get(common.CacheKeyUnreadBlogs(userID))
	if !ok {
		return nil, false, nil
	}

	entries, ok := v.([]UnreadEntry)
	if !ok {
		return nil, false, nil
	}

	return append([]UnreadEntry(nil), entries...), true, nil
}

func (m *MemoryUnreadCache) Set(ctx context.Context, userID string, gen int64, entries []UnreadEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gens[userID] != gen {
		return nil
	}

	m.c.Set(common.CacheKeyUnreadBlogs(userID), append([]UnreadEntry(nil), entries...), m.ttl)
	return nil
}

func (m *MemoryUnreadCache) Invalidate(ctx context.Context, userIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range userIDs {
		m.gens[id]++
		m.c.Delete(common.CacheKeyUnreadBlogs(id))
	}
	return nil
}

var errStaleGeneration = errors.New("unread generation changed")

// RedisUnreadCache shares unread entries between instances. Values are
// msgpack encoded and generations are plain counters next to them.
type RedisUnreadCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisUnreadCache(rdb *redis.Client, ttl time.Duration) *RedisUnreadCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisUnreadCache{rdb: rdb, ttl: ttl}
}

func (r *RedisUnreadCache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := r.rdb.Get(ctx, common.CacheKeyUnreadGeneration(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return gen, nil
}

func (r *RedisUnreadCache) Get(ctx context.Context, userID string) ([]UnreadEntry, bool, error) {
	b, err := r.rdb.Get(ctx, common.CacheKeyUnreadBlogs(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var entries []UnreadEntry
	if err := msgpack.Unmarshal(b, &entries); err != nil {
		return nil, false, err
	}

	if entries == nil {
		entries = []UnreadEntry{}
	}

	return entries, true, nil
}

// Set writes under WATCH on the generation key, so an Invalidate committed
// in between aborts the write.
func (r *RedisUnreadCache) Set(ctx context.Context, userID string, gen int64, entries []UnreadEntry) error {
	b, err := msgpack.Marshal(entries)
	if err != nil {
		return err
	}

	genKey := common.CacheKeyUnreadGeneration(userID)

	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, common.CacheKeyUnreadBlogs(userID), b, r.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return nil
	default:
		return err
	}
}

func (r *RedisUnreadCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			genKey := common.CacheKeyUnreadGeneration(id)
			pipe.Incr(ctx, genKey)
			pipe.Expire(ctx, genKey, generationTTL)
			pipe.Del(ctx, common.CacheKeyUnreadBlogs(id))
		}
		return nil
	})
	return err
}
