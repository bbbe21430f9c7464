// Package risk enforces the per-session limits: take-profit, stop-loss,
// the shielded trailing stop, and the pre-trade martingale clamp.
package risk

import (
	"context"
	"fmt"
	"sync"

	"zeenix-trading-bot/internal/cache"
	"zeenix-trading-bot/internal/database"
	"zeenix-trading-bot/internal/events"
	"zeenix-trading-bot/internal/logging"
	"zeenix-trading-bot/internal/logstream"
)

// Decision is the outcome of the pre-trade gate
type Decision struct {
	Allowed bool
	Session *cache.SessionConfig
	Stopped string // terminal status applied by this call, if any
	Reason  string
}

// Controller runs the risk gates. All session reads go through the
// 1-second config cache; every transition invalidates it.
type Controller struct {
	repo   *database.Repository
	cache  *cache.SessionCache
	bus    *events.EventBus
	logs   *logstream.Queue
	logger *logging.Logger

	mu     sync.Mutex
	shield map[string]float64 // armed shielded floor per user, session-scoped

	onStop func(userID string) // evicts in-memory strategy state
}

// NewController creates the risk controller
func NewController(repo *database.Repository, sessionCache *cache.SessionCache, bus *events.EventBus, logs *logstream.Queue, logger *logging.Logger) *Controller {
	return &Controller{
		repo:   repo,
		cache:  sessionCache,
		bus:    bus,
		logs:   logs,
		logger: logger.WithComponent("risk"),
		shield: make(map[string]float64),
	}
}

// OnStop registers the callback run after any session transition so the
// strategy runtime can drop the user's in-memory state
func (c *Controller) OnStop(fn func(userID string)) {
	c.onStop = fn
}

// PreTradeGate decides whether a user may open an operation right now.
// Blocking is not an error; a blocked user simply sits out the tick.
func (c *Controller) PreTradeGate(ctx context.Context, userID string) Decision {
	cfg, err := c.cache.Get(ctx, userID)
	if err != nil {
		c.logger.WithUser(userID).Error("pre-trade gate config read failed", "error", err)
		return Decision{Reason: "config unavailable"}
	}
	if cfg == nil || !cfg.IsActive {
		return Decision{Reason: "no active session"}
	}

	switch cfg.SessionStatus {
	case database.SessionStoppedProfit, database.SessionStoppedLoss, database.SessionStoppedBlindado:
		return Decision{Session: cfg, Reason: "session stopped: " + cfg.SessionStatus}
	}

	if status, reason := evaluateLimits(cfg); status != "" {
		c.stopSession(ctx, userID, cfg, status, reason)
		return Decision{Session: cfg, Stopped: status, Reason: reason}
	}

	return Decision{Allowed: true, Session: cfg}
}

// evaluateLimits applies the take-profit and stop-loss rules to the
// session balance. Reaching either boundary exactly counts as crossed; a
// zero target disables its rule.
func evaluateLimits(cfg *cache.SessionConfig) (status, reason string) {
	if cfg.ProfitTarget > 0 && cfg.SessionBalance >= cfg.ProfitTarget {
		return database.SessionStoppedProfit,
			fmt.Sprintf("Take profit atingido: %.2f >= %.2f", cfg.SessionBalance, cfg.ProfitTarget)
	}
	if cfg.LossLimit > 0 && cfg.SessionBalance <= -cfg.LossLimit {
		return database.SessionStoppedLoss,
			fmt.Sprintf("Stop loss atingido: %.2f <= -%.2f", cfg.SessionBalance, cfg.LossLimit)
	}
	return "", ""
}

// ClampMartingale caps a recovery stake at the session's remaining loss
// budget. When the clamp fires the caller must fall back to the base
// stake and reset the ladder entirely: the loss is accepted, not chased
// with a smaller step.
func (c *Controller) ClampMartingale(cfg *cache.SessionConfig, lossesAccum, nextStake, baseStake float64) (float64, bool) {
	if cfg == nil || cfg.LossLimit <= 0 {
		return nextStake, false
	}

	// remaining loss budget before the stop-loss would fire
	available := cfg.LossLimit + cfg.SessionBalance
	if lossesAccum+nextStake > available {
		return baseStake, true
	}
	return nextStake, false
}

// CheckShielded runs after each settlement while the session is in
// profit. The floor arms at net × percent above the initial capital and
// ratchets up as net grows; dropping back onto it stops the session.
func (c *Controller) CheckShielded(ctx context.Context, userID string, cfg *cache.SessionConfig) bool {
	c.mu.Lock()
	floor := c.shield[userID]
	c.mu.Unlock()

	newFloor, hit := evaluateShield(cfg, floor)

	if hit {
		protected := floor - cfg.InitialCapital
		reason := fmt.Sprintf("Stop blindado: lucro protegido de %.2f %s", protected, cfg.Currency)
		c.stopSession(ctx, userID, cfg, database.SessionStoppedBlindado, reason)
		return true
	}

	if newFloor > floor {
		c.mu.Lock()
		c.shield[userID] = newFloor
		c.mu.Unlock()
	}
	return false
}

// evaluateShield applies the shielded-stop rule against the armed floor.
// Returns the floor to arm (the higher of the previous one and the new
// candidate) and whether current equity fell onto the armed floor.
func evaluateShield(cfg *cache.SessionConfig, floor float64) (float64, bool) {
	if cfg == nil || cfg.ShieldedPct == nil || *cfg.ShieldedPct <= 0 {
		return floor, false
	}

	net := cfg.SessionBalance
	if net <= 0 {
		return floor, false
	}

	current := cfg.InitialCapital + net
	if floor > 0 && current <= floor {
		return floor, true
	}

	candidate := cfg.InitialCapital + net*(*cfg.ShieldedPct)/100
	if candidate > floor {
		floor = candidate
	}
	return floor, false
}

// ResetShield clears the armed floor when a session is created or torn
// down
func (c *Controller) ResetShield(userID string) {
	c.mu.Lock()
	delete(c.shield, userID)
	c.mu.Unlock()
}

// stopSession persists the terminal status, invalidates the cache, and
// evicts the user's in-memory state
func (c *Controller) stopSession(ctx context.Context, userID string, cfg *cache.SessionConfig, status, reason string) {
	if err := c.repo.DeactivateSession(ctx, cfg.SessionID, status, reason); err != nil {
		c.logger.WithUser(userID).Error("session stop persist failed", "status", status, "error", err)
		return
	}
	c.cache.Invalidate(ctx, userID)
	c.ResetShield(userID)

	cfg.SessionStatus = status
	cfg.IsActive = false

	c.logs.Log(userID, cfg.SessionID, database.LogAlerta, "🛑", reason, map[string]interface{}{
		"status":          status,
		"session_balance": cfg.SessionBalance,
	})
	c.bus.PublishSessionStopped(userID, cfg.SessionID, status, reason)
	c.logger.WithUser(userID).Info("session stopped", "status", status, "reason", reason)

	if c.onStop != nil {
		c.onStop(userID)
	}
}
