package strategy

import (
	"context"
	"testing"

	"zeenix-trading-bot/config"
	"zeenix-trading-bot/internal/cache"
	"zeenix-trading-bot/internal/events"
	"zeenix-trading-bot/internal/logging"
	"zeenix-trading-bot/internal/risk"
)

func testRuntime() (*Runtime, *risk.Controller) {
	logger := logging.New(&logging.Config{Level: "ERROR", Output: "stdout"})
	bus := events.NewEventBus()
	rc := risk.NewController(nil, nil, bus, nil, logger)
	r := NewRuntime("R_100", config.TradingConfig{}, nil, nil, nil, nil, rc, nil, bus, logger)
	return r, rc
}

// ============================================================================
// TEST: User state lifecycle
// ============================================================================

func TestUpsertUserSameSessionRefreshes(t *testing.T) {
	r, _ := testRuntime()

	s := testSession()
	r.UpsertUser(s)

	v, _ := r.users.Load(s.UserID)
	u := v.(*UserState)
	u.LossesAccum = 4.36 // mid-recovery

	refreshed := testSession()
	refreshed.DerivToken = "rotated"
	refreshed.StakeAmount = 2.00
	r.UpsertUser(refreshed)

	v, _ = r.users.Load(s.UserID)
	if v.(*UserState) != u {
		t.Fatal("same session id must keep the existing state")
	}
	if u.Token != "rotated" || u.BaseStake != 2.00 {
		t.Errorf("token/stake not refreshed: token=%s base=%.2f", u.Token, u.BaseStake)
	}
	if u.LossesAccum != 4.36 {
		t.Error("refresh must not touch the ladder")
	}
}

func TestUpsertUserNewSessionReplacesState(t *testing.T) {
	r, _ := testRuntime()

	s := testSession()
	r.UpsertUser(s)
	v, _ := r.users.Load(s.UserID)
	v.(*UserState).LossesAccum = 9.10

	next := testSession()
	next.ID = s.ID + 1
	r.UpsertUser(next)

	v, _ = r.users.Load(s.UserID)
	u := v.(*UserState)
	if u.SessionID != next.ID || u.LossesAccum != 0 {
		t.Errorf("new session must start from a clean state: %+v", u)
	}
}

// TestUpsertUserNewSessionResetsShield verifies the armed shielded floor
// dies with the session it was armed for. A floor left over from a
// replaced session would stop the next one on its first small profit.
func TestUpsertUserNewSessionResetsShield(t *testing.T) {
	r, rc := testRuntime()
	ctx := context.Background()

	s := testSession()
	r.UpsertUser(s)

	// Session runs up to net +20: floor arms at 110
	shieldPct := 50.0
	running := &cache.SessionConfig{
		SessionID:      s.ID,
		InitialCapital: 100,
		SessionBalance: 20,
		ShieldedPct:    &shieldPct,
		IsActive:       true,
	}
	if rc.CheckShielded(ctx, s.UserID, running) {
		t.Fatal("arming pass must not stop the session")
	}

	// The user activates a replacement session
	next := testSession()
	next.ID = s.ID + 1
	r.UpsertUser(next)

	// The fresh session's first small profit sits below the old floor of
	// 110; it must not be stopped against it
	fresh := &cache.SessionConfig{
		SessionID:      next.ID,
		InitialCapital: 100,
		SessionBalance: 1,
		ShieldedPct:    &shieldPct,
		IsActive:       true,
	}
	if rc.CheckShielded(ctx, s.UserID, fresh) {
		t.Fatal("fresh session stopped against the replaced session's armed floor")
	}
}
