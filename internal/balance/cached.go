package balance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/cache"
	"splitledger/internal/core"
)

// Invalidator is what the write-side services call after every mutation so
// memoized balances never outlive the records they were derived from.
type Invalidator interface {
	InvalidateUsers(userIDs ...uuid.UUID)
	InvalidateGroup(groupID uuid.UUID)
}

// Cached memoizes aggregator answers in an LRU with TTL. Invalidation bumps
// a per-user (or per-group) generation that is part of the cache key, so
// stale entries become unreachable immediately and age out of the LRU.
type Cached struct {
	agg    *Aggregator
	pairs  *cache.LRU[map[string]core.Money]
	groups *cache.LRU[GroupBalances]

	mu       sync.Mutex
	userGen  map[uuid.UUID]uint64
	groupGen map[uuid.UUID]uint64
}

func NewCached(agg *Aggregator, maxEntries int, ttl time.Duration) *Cached {
	return &Cached{
		agg:      agg,
		pairs:    cache.NewLRU[map[string]core.Money](maxEntries, ttl),
		groups:   cache.NewLRU[GroupBalances](maxEntries, ttl),
		userGen:  make(map[uuid.UUID]uint64),
		groupGen: make(map[uuid.UUID]uint64),
	}
}

// Register hooks both LRUs into a cache manager for periodic expiry sweeps.
func (c *Cached) Register(m *cache.Manager) {
	m.Register(c.pairs)
	m.Register(c.groups)
}

func (c *Cached) Pairwise(ctx context.Context, subject, counterpart uuid.UUID) (map[string]core.Money, error) {
	key := c.pairKey(subject, counterpart)
	if v, ok := c.pairs.Get(key); ok {
		return v, nil
	}
	v, err := c.agg.Pairwise(ctx, subject, counterpart)
	if err != nil {
		return nil, err
	}
	c.pairs.Set(key, v)
	return v, nil
}

func (c *Cached) Group(ctx context.Context, groupID uuid.UUID) (GroupBalances, error) {
	key := c.groupKey(groupID)
	if v, ok := c.groups.Get(key); ok {
		return v, nil
	}
	v, err := c.agg.Group(ctx, groupID)
	if err != nil {
		return GroupBalances{}, err
	}
	c.groups.Set(key, v)
	return v, nil
}

func (c *Cached) InvalidateUsers(userIDs ...uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		c.userGen[id]++
	}
}

func (c *Cached) InvalidateGroup(groupID uuid.UUID) {
	if groupID == uuid.Nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groupGen[groupID]++
}

func (c *Cached) pairKey(subject, counterpart uuid.UUID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("pair:%s:%d:%s:%d",
		subject, c.userGen[subject], counterpart, c.userGen[counterpart])
}

func (c *Cached) groupKey(groupID uuid.UUID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("group:%s:%d", groupID, c.groupGen[groupID])
}
