package strategy

import (
	"sync"
	"time"

	"zeenix-trading-bot/internal/database"
	"zeenix-trading-bot/internal/money"
	"zeenix-trading-bot/internal/ticks"
)

// Pacing constants per mode
const (
	velozMinTicksBetweenOps = 3
	moderadoMinInterval     = 17 * time.Second
)

// UserState is the in-memory state machine for one user. Created on
// session activation, mutated only by the runtime, destroyed on
// deactivation. All access goes through mu; a user never observes two
// concurrent ticks of its own.
type UserState struct {
	mu sync.Mutex

	UserID    string
	SessionID int64
	Symbol    string
	Mode      string
	Profile   money.Profile
	Strategy  string
	Currency  string
	Token     string

	Capital      float64 // initial capital committed at activation
	BaseStake    float64
	InitialStake float64 // base of the current Soros cycle

	IsOperationActive bool
	MartingaleStep    int
	LossesAccum       float64
	ConsecutiveWins   int // 0..2
	LastProfit        float64
	PreviousStake     float64
	LastMartingaleDir ticks.Parity // non-empty while recovering

	// pacing cursors: tick-based for veloz, wall-clock for moderado
	TicksSinceLastOp int
	LastOperationAt  time.Time
}

// newUserState builds state from a persisted session row
func newUserState(s *database.Session, symbol string) *UserState {
	u := &UserState{
		UserID:       s.UserID,
		SessionID:    s.ID,
		Symbol:       symbol,
		Mode:         s.Mode,
		Profile:      money.Profile(s.ModoMartingale),
		Strategy:     s.Strategy,
		Currency:     s.Currency,
		Token:        s.DerivToken,
		Capital:      s.EntryValue,
		BaseStake:    s.StakeAmount,
		InitialStake: s.StakeAmount,
	}
	// Moderado's cooldown is persisted as next_trade_at; seeding the
	// wall-clock cursor keeps the pacing honest when the state is rebuilt
	if s.Mode == "moderado" && s.NextTradeAt != nil {
		u.LastOperationAt = s.NextTradeAt.Add(-moderadoMinInterval)
	}
	return u
}

// pacingAllows applies the mode's pacing rule. Preciso has no fixed
// interval; it is gated purely by signal quality.
func (u *UserState) pacingAllows(now time.Time) bool {
	switch u.Mode {
	case "veloz":
		return u.TicksSinceLastOp >= velozMinTicksBetweenOps
	case "moderado":
		return u.LastOperationAt.IsZero() || now.Sub(u.LastOperationAt) >= moderadoMinInterval
	default: // preciso
		return true
	}
}

// inRecovery reports whether the next operation must continue the
// martingale in the saved direction
func (u *UserState) inRecovery() bool {
	return u.LossesAccum > 0 && u.LastMartingaleDir != ""
}

// resetLadder clears the whole money-management chain back to base
func (u *UserState) resetLadder() {
	u.MartingaleStep = 0
	u.LossesAccum = 0
	u.ConsecutiveWins = 0
	u.LastProfit = 0
	u.LastMartingaleDir = ""
	u.InitialStake = u.BaseStake
	u.PreviousStake = 0
}
