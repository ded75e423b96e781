package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/ideabox/internal/domain/model"
)

// Session is the resolved caller of one request.
type Session struct {
	User model.User `json:"user"`
	Role model.Role `json:"role"`
}

// Guest is the session of a caller without a token.
func Guest() Session { return Session{Role: model.RoleGuest} }

// SignedIn reports whether the caller presented a valid token.
func (s Session) SignedIn() bool { return s.Role != model.RoleGuest && s.User.ID != "" }

// IsCommittee reports whether the caller may triage ideas.
func (s Session) IsCommittee() bool { return s.Role.IsCommittee() }

// Cache stores resolved sessions and revoked tokens by token hash.
type Cache interface {
	Get(ctx context.Context, hash string) (Session, bool, error)
	Put(ctx context.Context, hash string, s Session, until time.Time) error
	Delete(ctx context.Context, hash string) error
	// Revoke removes the session and blocks the token until it expires.
	Revoke(ctx context.Context, hash string, until time.Time) error
	Revoked(ctx context.Context, hash string) (bool, error)
}

type memoryEntry struct {
	session Session
	until   time.Time
}

// MemoryCache keeps sessions in process memory.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	revoked map[string]time.Time
	now     func() time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, hash string) (Session, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hash]
	if !ok {
		return Session{}, false, nil
	}
	if !c.now().Before(e.until) {
		delete(c.entries, hash)
		return Session{}, false, nil
	}
	return e.session, true, nil
}

func (c *MemoryCache) Put(_ context.Context, hash string, s Session, until time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = memoryEntry{session: s, until: until}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, hash)
	return nil
}

func (c *MemoryCache) Revoke(_ context.Context, hash string, until time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, hash)
	c.revoked[hash] = until
	return nil
}

func (c *MemoryCache) Revoked(_ context.Context, hash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.revoked[hash]
	if !ok {
		return false, nil
	}
	if !c.now().Before(until) {
		delete(c.revoked, hash)
		return false, nil
	}
	return true, nil
}

// RedisCache shares sessions between instances. Keys expire with the token.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a cache on an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "ideabox:"}
}

func (c *RedisCache) sessionKey(hash string) string { return c.prefix + "session:" + hash }
func (c *RedisCache) revokedKey(hash string) string { return c.prefix + "revoked:" + hash }

func (c *RedisCache) Get(ctx context.Context, hash string) (Session, bool, error) {
	raw, err := c.client.Get(ctx, c.sessionKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("lookup session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return s, true, nil
}

func (c *RedisCache) Put(ctx context.Context, hash string, s Session, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := c.client.Set(ctx, c.sessionKey(hash), raw, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, hash string) error {
	if err := c.client.Del(ctx, c.sessionKey(hash)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (c *RedisCache) Revoke(ctx context.Context, hash string, until time.Time) error {
	ttl := time.Until(until)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.sessionKey(hash))
	if ttl > 0 {
		pipe.Set(ctx, c.revokedKey(hash), "1", ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (c *RedisCache) Revoked(ctx context.Context, hash string) (bool, error) {
	n, err := c.client.Exists(ctx, c.revokedKey(hash)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
