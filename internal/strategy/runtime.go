// Package strategy runs the per-user state machines: pacing, signal
// generation, the money-management ladder, and contract execution, one
// mode per user, all users of a symbol fanning out from its tick stream.
package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"zeenix-trading-bot/config"
	"zeenix-trading-bot/internal/analysis"
	"zeenix-trading-bot/internal/cache"
	"zeenix-trading-bot/internal/database"
	"zeenix-trading-bot/internal/deriv"
	"zeenix-trading-bot/internal/events"
	"zeenix-trading-bot/internal/logging"
	"zeenix-trading-bot/internal/logstream"
	"zeenix-trading-bot/internal/money"
	"zeenix-trading-bot/internal/risk"
	"zeenix-trading-bot/internal/ticks"

	"github.com/google/uuid"
)

// VenueGateway is the slice of the deriv gateway the runtime needs
type VenueGateway interface {
	ExecuteContract(ctx context.Context, token string, p deriv.ContractParams) (*deriv.Settlement, error)
	QueryPayout(ctx context.Context, token, currency, contractType, symbol string, markup float64) (float64, error)
}

// Runtime drives every user trading one symbol
type Runtime struct {
	symbol   string
	trading  config.TradingConfig
	gateway  VenueGateway
	store    *ticks.Store
	repo     *database.Repository
	sessions *cache.SessionCache
	riskCtrl *risk.Controller
	logs     *logstream.Queue
	bus      *events.EventBus
	logger   *logging.Logger

	users sync.Map // userID -> *UserState
	sem   chan struct{}
}

// pendingOp is an operation decided under the user's lock, executed after
// the tick dispatch slot is released
type pendingOp struct {
	dir   ticks.Parity
	entry int
	cfg   *cache.SessionConfig
	sig   *analysis.Signal
	in    money.Input
}

// NewRuntime creates the runtime for one symbol
func NewRuntime(symbol string, trading config.TradingConfig, gateway VenueGateway, store *ticks.Store,
	repo *database.Repository, sessions *cache.SessionCache, riskCtrl *risk.Controller,
	logs *logstream.Queue, bus *events.EventBus, logger *logging.Logger) *Runtime {

	fanout := trading.MaxUserFanout
	if fanout <= 0 {
		fanout = 16
	}
	return &Runtime{
		symbol:   symbol,
		trading:  trading,
		gateway:  gateway,
		store:    store,
		repo:     repo,
		sessions: sessions,
		riskCtrl: riskCtrl,
		logs:     logs,
		bus:      bus,
		logger:   logger.WithComponent("strategy"),
		sem:      make(chan struct{}, fanout),
	}
}

// Symbol returns the symbol this runtime trades
func (r *Runtime) Symbol() string {
	return r.symbol
}

// UpsertUser mirrors a persisted active session into memory. An existing
// state for the same session keeps its ladder; a new session id replaces
// the state wholesale.
func (r *Runtime) UpsertUser(s *database.Session) {
	if v, ok := r.users.Load(s.UserID); ok {
		u := v.(*UserState)
		u.mu.Lock()
		if u.SessionID == s.ID {
			u.Token = s.DerivToken
			u.BaseStake = s.StakeAmount
			u.mu.Unlock()
			return
		}
		u.mu.Unlock()
	}
	// The armed shielded floor belongs to the session being replaced
	r.riskCtrl.ResetShield(s.UserID)
	r.users.Store(s.UserID, newUserState(s, r.symbol))
	r.logger.WithUser(s.UserID).Info("user state created",
		"session_id", s.ID, "mode", s.Mode, "profile", s.ModoMartingale)
}

// RemoveUser drops a user's in-memory state
func (r *Runtime) RemoveUser(userID string) {
	if _, ok := r.users.LoadAndDelete(userID); ok {
		r.riskCtrl.ResetShield(userID)
		r.logger.WithUser(userID).Info("user state removed")
	}
}

// UserIDs returns a snapshot of users currently in memory
func (r *Runtime) UserIDs() []string {
	var ids []string
	r.users.Range(func(k, _ interface{}) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

// OnTick fans a tick out to every user of the symbol with bounded
// parallelism. A user whose operation is in flight only advances its
// pacing cursor.
func (r *Runtime) OnTick(symbol string, t ticks.Tick) {
	if symbol != r.symbol {
		return
	}

	r.users.Range(func(_, v interface{}) bool {
		u := v.(*UserState)
		r.sem <- struct{}{}
		go func(u *UserState) {
			op := r.evalTick(u)
			<-r.sem
			if op != nil {
				r.runOperation(context.Background(), u, op)
			}
		}(u)
		return true
	})
}

// evalTick walks one user through the per-tick decision ladder and
// returns the operation to run, if any
func (r *Runtime) evalTick(u *UserState) *pendingOp {
	now := time.Now()
	ctx := context.Background()

	u.mu.Lock()
	u.TicksSinceLastOp++
	if u.IsOperationActive {
		u.mu.Unlock()
		return nil
	}
	recovering := u.inRecovery()
	u.mu.Unlock()

	// Recovery continuation: no new signal, the saved direction rules
	if recovering {
		gate := r.riskCtrl.PreTradeGate(ctx, u.UserID)
		if !gate.Allowed {
			return nil
		}

		u.mu.Lock()
		defer u.mu.Unlock()
		if u.IsOperationActive || !u.inRecovery() || !u.pacingAllows(now) {
			return nil
		}
		entry := u.MartingaleStep + 1
		dir := u.LastMartingaleDir
		in := u.beginOperation(entry, now)
		return &pendingOp{dir: dir, entry: entry, cfg: gate.Session, in: in}
	}

	gate := r.riskCtrl.PreTradeGate(ctx, u.UserID)
	if !gate.Allowed {
		return nil
	}

	u.mu.Lock()
	if u.IsOperationActive || !u.pacingAllows(now) {
		u.mu.Unlock()
		return nil
	}
	u.mu.Unlock()

	params, ok := analysis.ParamsForMode(u.Mode)
	if !ok {
		return nil
	}
	slice := r.store.LastN(u.Symbol, r.store.Count(u.Symbol))
	sig := analysis.Evaluate(slice, params)
	if sig == nil {
		return nil
	}

	r.logs.Log(u.UserID, u.SessionID, database.LogAnalise, "📊",
		fmt.Sprintf("ZENIX %s: %s (confiança %.1f%%)", u.Mode, sig.Rationale, sig.Confidence),
		sig.Detail)
	r.logs.Log(u.UserID, u.SessionID, database.LogSinal, "🎯",
		fmt.Sprintf("Sinal %s @ %.1f%%", sig.Direction, sig.Confidence), nil)
	r.bus.PublishSignal(u.UserID, u.Symbol, string(sig.Direction), sig.Confidence)

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.IsOperationActive {
		return nil
	}
	entry := u.ConsecutiveWins + 1 // Soros continuation rides on banked wins
	in := u.beginOperation(entry, now)
	return &pendingOp{dir: sig.Direction, entry: entry, cfg: gate.Session, sig: sig, in: in}
}

// beginOperation flips the in-flight flag and snapshots the ladder
// inputs. Caller holds u.mu.
func (u *UserState) beginOperation(entry int, now time.Time) money.Input {
	u.IsOperationActive = true
	u.MartingaleStep = entry
	u.TicksSinceLastOp = 0
	u.LastOperationAt = now
	return money.Input{
		Entry:           entry,
		ConsecutiveWins: u.ConsecutiveWins,
		LossesAccum:     u.LossesAccum,
		LastProfit:      u.LastProfit,
		PreviousStake:   u.PreviousStake,
		BaseStake:       u.InitialStake,
		Profile:         u.Profile,
		Currency:        u.Currency,
	}
}

// runOperation executes one contract end to end: price the payout, size
// the stake, book a PENDING trade, run the contract, and handle the
// outcome. The user's state machine stays suspended (in-flight flag)
// until this returns.
func (r *Runtime) runOperation(ctx context.Context, u *UserState, op *pendingOp) {
	log := r.logger.WithUser(u.UserID)
	contractType := op.dir.ContractType()

	payout, err := r.gateway.QueryPayout(ctx, u.Token, u.Currency, contractType, u.Symbol, r.trading.PayoutMarkup)
	if err != nil || payout <= 0 {
		payout = r.trading.DefaultClientPayout
		log.Warn("payout query failed, using default", "default", payout, "error", err)
	}
	op.in.PayoutCliente = payout

	res := money.NextStake(op.in)
	stake := res.Stake
	entry := op.entry

	if res.IsRecovery {
		clamped, hit := r.riskCtrl.ClampMartingale(op.cfg, op.in.LossesAccum, stake, u.BaseStake)
		if hit {
			stake = clamped
			entry = 1
			u.mu.Lock()
			u.resetLadder()
			u.MartingaleStep = 1
			u.mu.Unlock()
			r.logs.Log(u.UserID, op.cfg.SessionID, database.LogAlerta, "⚠️",
				fmt.Sprintf("Martingale excederia o stop loss; retornando à entrada base de %.2f", stake), nil)
		}
	} else if res.ResetLadder {
		entry = 1
		u.mu.Lock()
		u.resetLadder()
		u.MartingaleStep = 1
		u.mu.Unlock()
	}

	trade := &database.Trade{
		UserID:         u.UserID,
		SessionID:      op.cfg.SessionID,
		Symbol:         u.Symbol,
		ContractType:   contractType,
		StakeAmount:    stake,
		Strategy:       u.Strategy,
		MartingaleStep: entry,
		Status:         database.TradePending,
	}
	if op.sig != nil {
		if data, jsonErr := json.Marshal(op.sig.Detail); jsonErr == nil {
			trade.AnalysisData = data
		}
	}
	if err := r.repo.CreateTrade(ctx, trade); err != nil {
		log.Error("trade record create failed", "error", err)
		r.release(u)
		return
	}

	if u.Mode == "moderado" {
		_ = r.repo.TouchNextTradeAt(ctx, op.cfg.SessionID, time.Now().Add(moderadoMinInterval))
	}

	r.logs.Log(u.UserID, op.cfg.SessionID, database.LogOperacao, "🚀",
		fmt.Sprintf("Entrada %d: %s %.2f %s", entry, contractType, stake, u.Currency),
		map[string]interface{}{"entry": entry, "stake": stake, "payout_cliente": payout})

	settlement, err := r.gateway.ExecuteContract(ctx, u.Token, deriv.ContractParams{
		Currency:     u.Currency,
		ContractType: contractType,
		Stake:        stake,
		Symbol:       u.Symbol,
		ClientRef:    uuid.NewString(),
		Bought: func(contractID string, payout float64) {
			// PENDING → ACTIVE as soon as the buy is confirmed, so the row
			// is visible as a live contract for its whole monitored life
			if err := r.repo.MarkTradeActive(ctx, trade.ID, contractID, payout); err != nil {
				log.Error("trade activate persist failed", "trade_id", trade.ID, "error", err)
			}
		},
	})
	if err != nil {
		// Trade errors never cascade: mark the row, free the user, done
		_ = r.repo.MarkTradeError(ctx, trade.ID, err.Error())
		r.logs.Log(u.UserID, op.cfg.SessionID, database.LogErro, "❌",
			fmt.Sprintf("Operação falhou: %v", err), nil)
		log.Error("contract execution failed", "trade_id", trade.ID, "error", err)
		r.release(u)
		return
	}

	won := settlement.Status == "WON"
	status := database.TradeLost
	if won {
		status = database.TradeWon
	}
	if err := r.repo.SettleTrade(ctx, trade.ID, status, settlement.EntryPrice, settlement.ExitPrice, settlement.Profit); err != nil {
		log.Error("trade settle persist failed", "trade_id", trade.ID, "error", err)
	}
	if err := r.repo.ApplyTradeOutcome(ctx, op.cfg.SessionID, settlement.Profit, won); err != nil {
		log.Error("session outcome persist failed", "session_id", op.cfg.SessionID, "error", err)
	}
	r.sessions.Invalidate(ctx, u.UserID)

	r.bus.PublishTradeSettled(u.UserID, trade.ID, u.Symbol, contractType, status, stake, settlement.Profit)
	icon := "✅"
	if !won {
		icon = "🔻"
	}
	r.logs.Log(u.UserID, op.cfg.SessionID, database.LogResultado, icon,
		fmt.Sprintf("Entrada %d %s: %+.2f %s", entry, status, settlement.Profit, u.Currency),
		map[string]interface{}{"entry": entry, "stake": stake, "profit": settlement.Profit})

	if won {
		r.afterWin(ctx, u, entry, stake, settlement.Profit)
	} else {
		r.afterLoss(ctx, u, op.dir, entry, stake)
	}
}

// afterWin advances the Soros progression (only outside recovery) and
// runs the post-settlement risk checks
func (r *Runtime) afterWin(ctx context.Context, u *UserState, entry int, stake, profit float64) {
	u.mu.Lock()
	if u.LossesAccum > 0 {
		// Won a recovery entry: chain is repaid, back to base
		u.resetLadder()
	} else if entry >= SorosFullCycle {
		// Third win completes the cycle
		u.resetLadder()
	} else {
		u.ConsecutiveWins = entry
		u.LastProfit = profit
		u.PreviousStake = stake
	}
	u.IsOperationActive = false
	u.MartingaleStep = 0
	u.mu.Unlock()

	r.postSettlementRisk(ctx, u)
}

// afterLoss books the loss into the ladder and either chains the next
// recovery entry synchronously or accepts the loss at the conservador cap
func (r *Runtime) afterLoss(ctx context.Context, u *UserState, dir ticks.Parity, entry int, stake float64) {
	u.mu.Lock()
	u.LossesAccum = money.Round2(u.LossesAccum + stake)
	u.LastMartingaleDir = dir
	u.ConsecutiveWins = 0
	u.LastProfit = 0
	u.PreviousStake = stake

	nextEntry := entry + 1
	chain := !(u.Profile == money.ProfileConservador && nextEntry > money.ConservadorMaxEntries)
	if !chain {
		// Cap reached: the accumulated loss is accepted, session continues
		u.resetLadder()
		u.IsOperationActive = false
		u.mu.Unlock()
		r.logs.Log(u.UserID, u.SessionID, database.LogAlerta, "♻️",
			"Limite de entradas do perfil conservador atingido; retornando à entrada base", nil)
		r.postSettlementRisk(ctx, u)
		return
	}
	u.IsOperationActive = false
	u.mu.Unlock()

	// The gate may flip the session to stopped_loss right here
	gate := r.riskCtrl.PreTradeGate(ctx, u.UserID)
	if !gate.Allowed {
		return
	}

	u.mu.Lock()
	if u.IsOperationActive || !u.inRecovery() {
		u.mu.Unlock()
		return
	}
	in := u.beginOperation(nextEntry, time.Now())
	u.mu.Unlock()

	r.runOperation(ctx, u, &pendingOp{dir: dir, entry: nextEntry, cfg: gate.Session, in: in})
}

// postSettlementRisk re-reads the fresh session and applies the
// take-profit / stop-loss / shielded checks without waiting for the next
// tick
func (r *Runtime) postSettlementRisk(ctx context.Context, u *UserState) {
	gate := r.riskCtrl.PreTradeGate(ctx, u.UserID)
	if gate.Stopped != "" || gate.Session == nil {
		return
	}
	r.riskCtrl.CheckShielded(ctx, u.UserID, gate.Session)
}

// release frees the in-flight flag after a failed operation. Ladder state
// is untouched; an errored trade neither wins nor loses.
func (r *Runtime) release(u *UserState) {
	u.mu.Lock()
	u.IsOperationActive = false
	u.mu.Unlock()
}

// SorosFullCycle is the entry whose win completes the progression
const SorosFullCycle = money.SorosMaxLevel + 1
