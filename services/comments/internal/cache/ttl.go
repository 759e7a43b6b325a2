package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Broadcaster publishes invalidations to other instances; *nats.Conn
// satisfies it.
type Broadcaster interface {
	Publish(subj string, data []byte) error
}

type cacheItem struct {
	val       []byte
	expiresAt time.Time
}

// TTLCache is an in-memory Cache with per-entry expiry and optional NATS
// invalidation across instances.
type TTLCache struct {
	mu    sync.RWMutex
	posts map[string]map[int]cacheItem
	ttl   time.Duration
	now   func() time.Time
	bc    Broadcaster
	log   *zap.Logger
}

func NewTTLCache(ttl time.Duration, log *zap.Logger) *TTLCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TTLCache{
		posts: make(map[string]map[int]cacheItem),
		ttl:   ttl,
		now:   time.Now,
		log:   log,
	}
}

// Attach subscribes to InvalidateSubject on nc and publishes local
// invalidations there.
func (c *TTLCache) Attach(nc *nats.Conn) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(InvalidateSubject, c.handleInvalidation)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.bc = nc
	c.mu.Unlock()
	return sub, nil
}

func (c *TTLCache) handleInvalidation(m *nats.Msg) {
	postID := strings.TrimSpace(string(m.Data))
	c.mu.Lock()
	defer c.mu.Unlock()
	if postID == "" || strings.EqualFold(postID, "ALL") {
		c.posts = make(map[string]map[int]cacheItem)
		return
	}
	delete(c.posts, postID)
}

func (c *TTLCache) Get(_ context.Context, postID string, page int, dest any) (bool, error) {
	c.mu.RLock()
	it, ok := c.posts[postID][page]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if c.now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.posts[postID][page]; ok2 && c.now().After(cur.expiresAt) {
			delete(c.posts[postID], page)
		}
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(it.val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *TTLCache) Set(_ context.Context, postID string, page int, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pages := c.posts[postID]
	if pages == nil {
		pages = make(map[int]cacheItem)
		c.posts[postID] = pages
	}
	pages[page] = cacheItem{val: b, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// InvalidatePost drops the post locally and tells other instances. A failed
// broadcast is logged; peers fall back to TTL expiry.
func (c *TTLCache) InvalidatePost(_ context.Context, postID string) error {
	c.mu.Lock()
	delete(c.posts, postID)
	bc := c.bc
	c.mu.Unlock()
	if bc != nil {
		if err := bc.Publish(InvalidateSubject, []byte(postID)); err != nil {
			c.log.Warn("cache: invalidation broadcast failed", zap.String("post_id", postID), zap.Error(err))
		}
	}
	return nil
}
