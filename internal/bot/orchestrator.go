// Package bot ties the pieces together: market data in, ticks to the
// strategy runtime, session mirroring from the database, and the
// background maintenance loops.
package bot

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"zeenix-trading-bot/config"
	"zeenix-trading-bot/internal/database"
	"zeenix-trading-bot/internal/deriv"
	"zeenix-trading-bot/internal/events"
	"zeenix-trading-bot/internal/logging"
	"zeenix-trading-bot/internal/logstream"
	"zeenix-trading-bot/internal/strategy"
	"zeenix-trading-bot/internal/ticks"
)

// Orchestrator owns the lifecycle: startup cleanup, market-data
// subscriptions, the session sync loop, state snapshots, and shutdown.
type Orchestrator struct {
	cfg     *config.Config
	repo    *database.Repository
	gateway *deriv.Gateway
	store   *ticks.Store
	runtime *strategy.Runtime
	logs    *logstream.Queue
	bus     *events.EventBus
	logger  *logging.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOrchestrator wires the orchestrator
func NewOrchestrator(cfg *config.Config, repo *database.Repository, gateway *deriv.Gateway,
	store *ticks.Store, runtime *strategy.Runtime, logs *logstream.Queue,
	bus *events.EventBus, logger *logging.Logger) *Orchestrator {

	return &Orchestrator{
		cfg:      cfg,
		repo:     repo,
		gateway:  gateway,
		store:    store,
		runtime:  runtime,
		logs:     logs,
		bus:      bus,
		logger:   logger.WithComponent("bot"),
		stopChan: make(chan struct{}),
	}
}

// Start runs the startup sequence and launches the background loops.
// The process never resumes in-flight contracts across a restart; stale
// rows are closed out before anything else happens.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.startupCleanup(ctx); err != nil {
		return err
	}

	o.restoreTickContext(ctx)

	o.gateway.OnTick(o.handleTick)
	symbols := append([]string{o.cfg.DerivConfig.PrimarySymbol}, o.cfg.DerivConfig.ExtraSymbols...)
	o.gateway.EnsureMarketData(symbols)

	// Mirror whatever sessions were activated while we were down
	o.syncSessions(ctx)

	o.wg.Add(3)
	go o.sessionSyncLoop()
	go o.stateSnapshotLoop()
	go o.maintenanceLoop()

	o.bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{
		"symbol": o.cfg.DerivConfig.PrimarySymbol,
	}})
	o.logger.Info("orchestrator started", "symbol", o.cfg.DerivConfig.PrimarySymbol)
	return nil
}

// Stop tears everything down in order: loops, market data, state marks
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopChan)
	})
	o.wg.Wait()

	o.gateway.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	o.persistTickState(ctx, false)
	if err := o.repo.MarkSymbolDisconnected(ctx, o.cfg.DerivConfig.PrimarySymbol); err != nil {
		o.logger.Error("disconnect mark failed", "error", err)
	}

	o.bus.Publish(events.Event{Type: events.EventBotStopped, Data: nil})
	o.logger.Info("orchestrator stopped")
}

// startupCleanup closes out everything a crash may have left behind.
// Contracts cannot be resumed, so pending and active trades become
// errors and active sessions stop with a restart status.
func (o *Orchestrator) startupCleanup(ctx context.Context) error {
	sessions, err := o.repo.AbortActiveSessions(ctx)
	if err != nil {
		return err
	}
	trades, err := o.repo.AbortPendingTrades(ctx)
	if err != nil {
		return err
	}
	if sessions > 0 || trades > 0 {
		o.logger.Warn("startup cleanup applied", "sessions_stopped", sessions, "trades_errored", trades)
	}
	return nil
}

// restoreTickContext reloads the persisted trailing tick snapshot so
// analysis has context before the live back-fill arrives
func (o *Orchestrator) restoreTickContext(ctx context.Context) {
	symbol := o.cfg.DerivConfig.PrimarySymbol
	st, err := o.repo.GetWebsocketState(ctx, symbol)
	if err != nil {
		o.logger.Error("websocket state read failed", "symbol", symbol, "error", err)
		return
	}
	if st == nil || len(st.TicksData) == 0 {
		return
	}

	var snapshot []ticks.Tick
	if err := json.Unmarshal(st.TicksData, &snapshot); err != nil {
		o.logger.Warn("tick snapshot unreadable, starting fresh", "symbol", symbol, "error", err)
		return
	}
	restored := o.store.Restore(symbol, snapshot)
	o.logger.Info("tick context restored", "symbol", symbol, "ticks", restored)
}

// handleTick is the gateway sink. Snapshot ticks (history back-fill) only
// build context; live ticks also drive the strategy runtime.
func (o *Orchestrator) handleTick(symbol string, t ticks.Tick, snapshot bool) {
	if !o.store.Append(symbol, t) {
		return // stale or out-of-order
	}
	if snapshot {
		return
	}
	o.runtime.OnTick(symbol, t)
}

// sessionSyncLoop periodically mirrors database sessions into the
// runtime. The API fast path calls SyncNow directly; this loop is the
// safety net for changes made out-of-band.
func (o *Orchestrator) sessionSyncLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.SyncConfig.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			o.syncSessions(ctx)
			cancel()
		case <-o.stopChan:
			return
		}
	}
}

// syncSessions makes the runtime's user set match the database's active
// sessions
func (o *Orchestrator) syncSessions(ctx context.Context) {
	sessions, err := o.repo.GetActiveSessions(ctx)
	if err != nil {
		o.logger.Error("active session sync failed", "error", err)
		return
	}

	active := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		active[s.UserID] = true
		o.runtime.UpsertUser(s)
	}
	for _, userID := range o.runtime.UserIDs() {
		if !active[userID] {
			o.runtime.RemoveUser(userID)
		}
	}
}

// SyncNow runs a session sync immediately. The API calls this after
// activating or deactivating a session so the change takes effect without
// waiting for the loop.
func (o *Orchestrator) SyncNow(ctx context.Context) {
	o.syncSessions(ctx)
}

// stateSnapshotLoop persists the trailing tick window on a fixed cadence
func (o *Orchestrator) stateSnapshotLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.SyncConfig.StateSnapshot)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			o.persistTickState(ctx, true)
			cancel()
		case <-o.stopChan:
			return
		}
	}
}

// persistTickState writes the current connection state and trailing
// ticks to ai_websocket_state
func (o *Orchestrator) persistTickState(ctx context.Context, connected bool) {
	symbol := o.cfg.DerivConfig.PrimarySymbol

	snapshot := o.store.Snapshot(symbol)
	data, err := json.Marshal(snapshot)
	if err != nil {
		o.logger.Error("tick snapshot marshal failed", "symbol", symbol, "error", err)
		return
	}

	st := &database.WebsocketState{
		Symbol:       symbol,
		TicksData:    data,
		IsConnected:  connected,
		WebsocketURL: &o.cfg.DerivConfig.Endpoint,
	}
	if status, ok := o.gateway.Status(symbol); ok {
		st.TotalTicks = status.TotalTicks
		if status.SubscriptionID != "" {
			st.SubscriptionID = &status.SubscriptionID
		}
		st.IsConnected = connected && status.Connected
	}
	if last, ok := o.store.Latest(symbol); ok {
		ts := time.Unix(last.Epoch, 0)
		st.LastTickReceivedAt = &ts
	}

	if err := o.repo.UpsertWebsocketState(ctx, st); err != nil {
		o.logger.Error("websocket state persist failed", "symbol", symbol, "error", err)
	}
}

// maintenanceLoop runs the slow housekeeping: per-user log retention and
// session balance snapshots for observability
func (o *Orchestrator) maintenanceLoop() {
	defer o.wg.Done()

	interval := o.cfg.SyncConfig.Interval * 5
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			o.runMaintenance(ctx)
			cancel()
		case <-o.stopChan:
			return
		}
	}
}

// runMaintenance trims logs and records a venue balance snapshot for
// every user currently in memory
func (o *Orchestrator) runMaintenance(ctx context.Context) {
	sessions, err := o.repo.GetActiveSessions(ctx)
	if err != nil {
		o.logger.Error("maintenance session read failed", "error", err)
		return
	}

	for _, s := range sessions {
		if trimmed, err := o.logs.Trim(ctx, s.UserID); err != nil {
			o.logger.WithUser(s.UserID).Error("log trim failed", "error", err)
		} else if trimmed > 0 {
			o.logger.WithUser(s.UserID).Debug("log retention applied", "rows", trimmed)
		}

		balance, err := o.gateway.QueryBalance(ctx, s.DerivToken)
		if err != nil {
			o.logger.WithUser(s.UserID).Warn("balance snapshot failed", "error", err)
			continue
		}
		o.logs.Log(s.UserID, s.ID, database.LogInfo, "💰",
			"Saldo da conta atualizado", map[string]interface{}{
				"balance":  balance.Amount,
				"currency": balance.Currency,
				"login_id": balance.LoginID,
			})
	}
}
