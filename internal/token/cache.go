package token

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	stderrors "errors"

	"github.com/openlms/admin-session/internal/infrastructure/observability"
	"github.com/openlms/admin-session/internal/infrastructure/redis"
)

// tokenKey is the fixed key the cached token record lives under in the
// persisted tier.
const tokenKey = "admin_session:token"

type persistedRecord struct {
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Cache is the two-tier store for the single live backend token: an
// in-process tier for the hot path and a Redis tier that survives process
// restarts. Exactly one record is live at a time; there is one session per
// deployment, not a keyed collection.
//
// Set and Clear touch both tiers before returning, so the tiers never
// disagree on whether a live token exists for longer than one call.
type Cache struct {
	mu         sync.RWMutex
	token      string
	acquiredAt time.Time

	store redis.KVStore
}

func NewCache(store redis.KVStore) *Cache {
	return &Cache{store: store}
}

// Get returns the live token, if any. The memory tier wins; an absent or
// expired memory entry falls back to the persisted tier, which is validated
// the same way and promoted into memory on a hit.
func (c *Cache) Get(ctx context.Context) (string, bool) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()

	if tok != "" {
		if !IsExpired(tok) {
			observability.TokenCacheLookups.WithLabelValues("memory", "hit").Inc()
			return tok, true
		}
		observability.TokenCacheLookups.WithLabelValues("memory", "expired").Inc()
	} else {
		observability.TokenCacheLookups.WithLabelValues("memory", "miss").Inc()
	}

	raw, err := c.store.Get(ctx, tokenKey)
	if err != nil {
		if !stderrors.Is(err, redis.ErrKeyNotFound) {
			slog.Warn("persisted token tier read failed", "error", err)
		}
		observability.TokenCacheLookups.WithLabelValues("persisted", "miss").Inc()
		return "", false
	}

	var rec persistedRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.Warn("persisted token record is malformed, dropping it", "error", err)
		if err := c.store.Del(ctx, tokenKey); err != nil {
			slog.Warn("failed to drop malformed token record", "error", err)
		}
		observability.TokenCacheLookups.WithLabelValues("persisted", "miss").Inc()
		return "", false
	}
	if rec.Token == "" || IsExpired(rec.Token) {
		observability.TokenCacheLookups.WithLabelValues("persisted", "expired").Inc()
		return "", false
	}

	// Promote into the memory tier so the next read stays local.
	c.mu.Lock()
	c.token = rec.Token
	c.acquiredAt = rec.AcquiredAt
	c.mu.Unlock()

	observability.TokenCacheLookups.WithLabelValues("persisted", "hit").Inc()
	return rec.Token, true
}

// Set writes the token and its acquisition time to both tiers. The
// persisted entry expires with the token itself when the exp claim is
// readable.
func (c *Cache) Set(ctx context.Context, tok string) error {
	now := time.Now()

	c.mu.Lock()
	c.token = tok
	c.acquiredAt = now
	c.mu.Unlock()

	rec, err := json.Marshal(persistedRecord{Token: tok, AcquiredAt: now})
	if err != nil {
		return err
	}

	var ttl time.Duration
	if cs, err := Decode(tok); err == nil && !cs.ExpiresAt.IsZero() {
		if until := time.Until(cs.ExpiresAt); until > 0 {
			ttl = until
		}
	}
	return c.store.Set(ctx, tokenKey, string(rec), ttl)
}

// Clear empties both tiers and unsets the acquisition time.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.token = ""
	c.acquiredAt = time.Time{}
	c.mu.Unlock()

	return c.store.Del(ctx, tokenKey)
}

// AcquiredAt returns when the live token was obtained, and false when no
// acquisition time is set.
func (c *Cache) AcquiredAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.acquiredAt, !c.acquiredAt.IsZero()
}
