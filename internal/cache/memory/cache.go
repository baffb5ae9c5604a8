// Package memory provides an in-memory usage cache and token store.
// This is suitable for single-node deployments where Redis is not available.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vehix/vehix-api/internal/cache"
)

// DefaultSweepInterval is how often expired entries are collected.
const DefaultSweepInterval = time.Second

// Cache implements cache.UsageCache and cache.ExpirationSource using
// in-memory storage. This is NOT suitable for distributed deployments.
type Cache struct {
	mu          sync.Mutex
	hashes      map[string]*usageEntry
	markers     map[string]time.Time
	subscribers map[*subscriber]struct{}
	margin      time.Duration
	now         func() time.Time
	logger      zerolog.Logger
	stopCh      chan struct{}
	stopped     bool
}

// subscriber queues expired markers for one Expirations stream. The queue
// is unbounded so a burst of expirations is never dropped.
type subscriber struct {
	mu      sync.Mutex
	pending []string
	ready   chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{ready: make(chan struct{}, 1)}
}

func (s *subscriber) push(markers []string) {
	s.mu.Lock()
	s.pending = append(s.pending, markers...)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *subscriber) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.pending
	s.pending = nil
	return batch
}

// usageEntry is a single usage hash.
type usageEntry struct {
	userID       string
	usageCount   int64
	lastResponse string
	expiresAt    time.Time
}

// NewCache creates a new in-memory usage cache and starts its sweep loop.
func NewCache(margin, sweepInterval time.Duration, logger zerolog.Logger) *Cache {
	c := newCache(margin, logger)
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	go c.sweepLoop(sweepInterval)

	return c
}

func newCache(margin time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		hashes:      make(map[string]*usageEntry),
		markers:     make(map[string]time.Time),
		subscribers: make(map[*subscriber]struct{}),
		margin:      margin,
		now:         time.Now,
		logger:      logger.With().Str("component", "usage_cache").Logger(),
		stopCh:      make(chan struct{}),
	}
}

// sweepLoop periodically removes expired entries.
func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes expired markers and hashes and notifies subscribers of
// every expired marker.
func (c *Cache) sweep() {
	now := c.now()

	c.mu.Lock()
	var expired []string
	for external, expiresAt := range c.markers {
		if !now.Before(expiresAt) {
			delete(c.markers, external)
			expired = append(expired, cache.MarkerKey(external))
		}
	}
	for external, entry := range c.hashes {
		if !now.Before(entry.expiresAt) {
			delete(c.hashes, external)
		}
	}
	subs := make([]*subscriber, 0, len(c.subscribers))
	for sub := range c.subscribers {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	c.logger.Debug().Int("markers", len(expired)).Int("subscribers", len(subs)).Msg("usage markers expired")
	for _, sub := range subs {
		sub.push(expired)
	}
}

// Stop stops the sweep goroutine.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stopped {
		close(c.stopCh)
		c.stopped = true
	}
}

// live returns the hash for external if it has not expired. Caller holds mu.
func (c *Cache) live(external string) *usageEntry {
	entry, ok := c.hashes[external]
	if !ok {
		return nil
	}
	if !c.now().Before(entry.expiresAt) {
		return nil
	}
	return entry
}

// CheckAndIncrement implements cache.UsageCache.
func (c *Cache) CheckAndIncrement(ctx context.Context, external, expectedUserID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.live(external)
	if entry == nil {
		return false, nil
	}
	if expectedUserID != "" && entry.userID != expectedUserID {
		return false, nil
	}
	entry.usageCount++
	return true, nil
}

// Prime implements cache.UsageCache.
func (c *Cache) Prime(ctx context.Context, external, userID string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	markerTTL, err := cache.MarkerTTL(ttl, c.margin)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.hashes[external] = &usageEntry{
		userID:    userID,
		expiresAt: now.Add(ttl),
	}
	c.markers[external] = now.Add(markerTTL)
	return nil
}

// RecordResponse implements cache.UsageCache.
func (c *Cache) RecordResponse(ctx context.Context, external string, status int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry := c.live(external); entry != nil {
		entry.lastResponse = strconv.Itoa(status)
	}
	return nil
}

// Snapshot implements cache.UsageCache.
func (c *Cache) Snapshot(ctx context.Context, external string) (*cache.UsageSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.live(external)
	if entry == nil {
		return nil, cache.ErrCacheMiss
	}
	return &cache.UsageSnapshot{
		UserID:       entry.userID,
		UsageCount:   entry.usageCount,
		LastResponse: entry.lastResponse,
	}, nil
}

// Delete implements cache.UsageCache.
func (c *Cache) Delete(ctx context.Context, external string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.hashes, external)
	delete(c.markers, external)
	return nil
}

// Expirations implements cache.ExpirationSource. Markers expired while the
// consumer is busy are queued and delivered in order.
func (c *Cache) Expirations(ctx context.Context) (<-chan string, error) {
	sub := newSubscriber()

	c.mu.Lock()
	c.subscribers[sub] = struct{}{}
	c.mu.Unlock()

	out := make(chan string)
	go func() {
		defer close(out)
		defer func() {
			c.mu.Lock()
			delete(c.subscribers, sub)
			c.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.ready:
			}

			for _, marker := range sub.drain() {
				select {
				case out <- marker:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Ensure Cache implements the cache contracts.
var (
	_ cache.UsageCache       = (*Cache)(nil)
	_ cache.ExpirationSource = (*Cache)(nil)
)
