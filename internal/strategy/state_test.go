package strategy

import (
	"testing"
	"time"

	"zeenix-trading-bot/internal/database"
	"zeenix-trading-bot/internal/money"
	"zeenix-trading-bot/internal/ticks"
)

func testSession() *database.Session {
	return &database.Session{
		ID:             7,
		UserID:         "user-1",
		Mode:           "veloz",
		ModoMartingale: "conservador",
		Strategy:       "zenix",
		Currency:       "USD",
		StakeAmount:    1.00,
		EntryValue:     100.00,
		DerivToken:     "tok",
	}
}

// TestNewUserState tests the session-to-state mapping
func TestNewUserState(t *testing.T) {
	u := newUserState(testSession(), "R_100")

	if u.SessionID != 7 || u.Symbol != "R_100" {
		t.Errorf("identity fields wrong: %+v", u)
	}
	if u.BaseStake != 1.00 || u.InitialStake != 1.00 {
		t.Errorf("stakes not seeded from the session: base=%.2f initial=%.2f", u.BaseStake, u.InitialStake)
	}
	if u.Capital != 100.00 {
		t.Errorf("capital = %.2f, want 100.00", u.Capital)
	}
	if u.Profile != money.ProfileConservador {
		t.Errorf("profile = %s, want conservador", u.Profile)
	}
	if u.IsOperationActive || u.LossesAccum != 0 || u.ConsecutiveWins != 0 {
		t.Error("fresh state must start idle with a clean ladder")
	}
}

// ============================================================================
// TEST: Pacing rules per mode
// ============================================================================

func TestPacingVeloz(t *testing.T) {
	u := newUserState(testSession(), "R_100")
	now := time.Now()

	u.TicksSinceLastOp = velozMinTicksBetweenOps - 1
	if u.pacingAllows(now) {
		t.Errorf("veloz allowed an operation after only %d ticks", u.TicksSinceLastOp)
	}

	u.TicksSinceLastOp = velozMinTicksBetweenOps
	if !u.pacingAllows(now) {
		t.Errorf("veloz should allow after %d ticks", velozMinTicksBetweenOps)
	}
}

func TestPacingModerado(t *testing.T) {
	u := newUserState(testSession(), "R_100")
	u.Mode = "moderado"
	now := time.Now()

	// Never operated: allowed immediately
	if !u.pacingAllows(now) {
		t.Error("moderado with no prior operation should allow")
	}

	u.LastOperationAt = now.Add(-16 * time.Second)
	if u.pacingAllows(now) {
		t.Error("moderado should hold until the interval elapses")
	}

	u.LastOperationAt = now.Add(-moderadoMinInterval)
	if !u.pacingAllows(now) {
		t.Error("moderado should allow once the interval elapsed")
	}
}

// TestPacingModeradoRebuiltState tests that the persisted next_trade_at
// seeds the wall-clock cursor when state is rebuilt mid-cooldown
func TestPacingModeradoRebuiltState(t *testing.T) {
	s := testSession()
	s.Mode = "moderado"
	now := time.Now()

	next := now.Add(10 * time.Second)
	s.NextTradeAt = &next
	u := newUserState(s, "R_100")
	if u.pacingAllows(now) {
		t.Error("rebuilt state must honor a pending cooldown")
	}
	if !u.pacingAllows(next) {
		t.Error("rebuilt state should allow once next_trade_at arrives")
	}

	// An elapsed cooldown does not block
	past := now.Add(-time.Second)
	s.NextTradeAt = &past
	if u = newUserState(s, "R_100"); !u.pacingAllows(now) {
		t.Error("an elapsed next_trade_at must not block")
	}
}

func TestPacingPreciso(t *testing.T) {
	u := newUserState(testSession(), "R_100")
	u.Mode = "preciso"

	// Preciso has no fixed interval
	if !u.pacingAllows(time.Now()) {
		t.Error("preciso should always allow; the signal threshold is the gate")
	}
}

// ============================================================================
// TEST: Ladder bookkeeping
// ============================================================================

func TestInRecovery(t *testing.T) {
	u := newUserState(testSession(), "R_100")

	if u.inRecovery() {
		t.Error("clean state is not in recovery")
	}

	u.LossesAccum = 1.09
	u.LastMartingaleDir = ticks.ParityPar
	if !u.inRecovery() {
		t.Error("accumulated losses with a saved direction means recovery")
	}

	u.LastMartingaleDir = ""
	if u.inRecovery() {
		t.Error("no saved direction means no recovery continuation")
	}
}

func TestResetLadder(t *testing.T) {
	u := newUserState(testSession(), "R_100")
	u.MartingaleStep = 3
	u.LossesAccum = 4.36
	u.ConsecutiveWins = 1
	u.LastProfit = 0.92
	u.PreviousStake = 2.27
	u.LastMartingaleDir = ticks.ParityImpar
	u.InitialStake = 1.92

	u.resetLadder()

	if u.MartingaleStep != 0 || u.LossesAccum != 0 || u.ConsecutiveWins != 0 ||
		u.LastProfit != 0 || u.PreviousStake != 0 || u.LastMartingaleDir != "" {
		t.Errorf("ladder not fully cleared: %+v", u)
	}
	if u.InitialStake != u.BaseStake {
		t.Errorf("cycle base = %.2f, want back at base stake %.2f", u.InitialStake, u.BaseStake)
	}
}

// TestBeginOperation tests the in-flight flag and input snapshot
func TestBeginOperation(t *testing.T) {
	u := newUserState(testSession(), "R_100")
	u.ConsecutiveWins = 1
	u.LastProfit = 0.92
	u.PreviousStake = 1.00
	u.TicksSinceLastOp = 9

	now := time.Now()
	in := u.beginOperation(2, now)

	if !u.IsOperationActive {
		t.Error("beginOperation must flag the user as in-flight")
	}
	if u.MartingaleStep != 2 {
		t.Errorf("martingale step = %d, want 2", u.MartingaleStep)
	}
	if u.TicksSinceLastOp != 0 || !u.LastOperationAt.Equal(now) {
		t.Error("pacing cursors must reset at operation start")
	}

	if in.Entry != 2 || in.ConsecutiveWins != 1 || in.LastProfit != 0.92 ||
		in.PreviousStake != 1.00 || in.BaseStake != 1.00 {
		t.Errorf("ladder input snapshot wrong: %+v", in)
	}
	if in.Profile != money.ProfileConservador || in.Currency != "USD" {
		t.Errorf("profile/currency snapshot wrong: %+v", in)
	}
}
