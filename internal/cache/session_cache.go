package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zeenix-trading-bot/internal/database"
)

// SessionConfig is the cached view the pre-trade gate consults on every
// tick. The TTL bounds how stale a gate decision can be.
type SessionConfig struct {
	SessionID      int64    `json:"session_id"`
	SessionBalance float64  `json:"session_balance"`
	ProfitTarget   float64  `json:"profit_target"`
	LossLimit      float64  `json:"loss_limit"`
	InitialCapital float64  `json:"initial_capital"`
	ShieldedPct    *float64 `json:"shielded_pct"`
	SessionStatus  string   `json:"session_status"`
	Currency       string   `json:"currency"`
	IsActive       bool     `json:"is_active"`
	LastUpdate     int64    `json:"last_update"` // unix millis
}

const sessionKeyFmt = "zeenix:user:%s:session_config"

// SessionCache reads session configuration through Redis with a short
// TTL. All gate reads come through here; every session mutation must call
// Invalidate or the gate may act on a stopped session.
type SessionCache struct {
	cache *CacheService
	repo  *database.Repository
	ttl   time.Duration
}

// NewSessionCache creates the read-through cache
func NewSessionCache(cache *CacheService, repo *database.Repository, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = time.Second
	}
	return &SessionCache{cache: cache, repo: repo, ttl: ttl}
}

// Get returns the user's session config. nil means no active session.
func (sc *SessionCache) Get(ctx context.Context, userID string) (*SessionConfig, error) {
	key := fmt.Sprintf(sessionKeyFmt, userID)

	if val, err := sc.cache.Get(ctx, key); err == nil {
		var cfg SessionConfig
		if jsonErr := json.Unmarshal([]byte(val), &cfg); jsonErr == nil {
			if !cfg.IsActive && cfg.SessionID == 0 {
				return nil, nil // cached negative: no active session
			}
			return &cfg, nil
		}
	}

	// Miss or Redis down: read the row and repopulate
	session, err := sc.repo.GetActiveSessionByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("session config fallback read: %w", err)
	}

	var cfg *SessionConfig
	if session != nil {
		cfg = fromSession(session)
	}
	sc.store(ctx, key, cfg)
	return cfg, nil
}

// Invalidate drops the cached entry after any session mutation
func (sc *SessionCache) Invalidate(ctx context.Context, userID string) {
	key := fmt.Sprintf(sessionKeyFmt, userID)
	_ = sc.cache.Delete(ctx, key)
}

// store writes the entry (or a negative marker) with the gate TTL
func (sc *SessionCache) store(ctx context.Context, key string, cfg *SessionConfig) {
	entry := cfg
	if entry == nil {
		entry = &SessionConfig{} // negative marker
	}
	entry.LastUpdate = time.Now().UnixMilli()
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = sc.cache.Set(ctx, key, string(data), sc.ttl)
}

func fromSession(s *database.Session) *SessionConfig {
	return &SessionConfig{
		SessionID:      s.ID,
		SessionBalance: s.SessionBalance,
		ProfitTarget:   s.ProfitTarget,
		LossLimit:      s.LossLimit,
		InitialCapital: s.EntryValue,
		ShieldedPct:    s.StopBlindadoPercent,
		SessionStatus:  s.SessionStatus,
		Currency:       s.Currency,
		IsActive:       s.IsActive,
	}
}
