package risk

import (
	"context"
	"math"
	"testing"

	"zeenix-trading-bot/internal/cache"
	"zeenix-trading-bot/internal/database"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func pct(v float64) *float64 { return &v }

// ============================================================================
// TEST: Shielded stop arming and ratcheting
// ============================================================================

func TestEvaluateShield_ArmsAboveInitialCapital(t *testing.T) {
	cfg := &cache.SessionConfig{
		InitialCapital: 100,
		SessionBalance: 20,
		ShieldedPct:    pct(50),
	}

	floor, hit := evaluateShield(cfg, 0)
	if hit {
		t.Fatal("arming must not trigger the stop")
	}
	// 100 + 20*50% = 110
	if !floatEquals(floor, 110, 0.001) {
		t.Errorf("armed floor = %.2f, want 110", floor)
	}
}

func TestEvaluateShield_TriggersOnFloor(t *testing.T) {
	cfg := &cache.SessionConfig{
		InitialCapital: 100,
		SessionBalance: 10, // equity back at exactly 110
		ShieldedPct:    pct(50),
	}

	_, hit := evaluateShield(cfg, 110)
	if !hit {
		t.Error("equity falling onto the armed floor should trigger the stop")
	}
}

func TestEvaluateShield_RatchetsUpNeverDown(t *testing.T) {
	cfg := &cache.SessionConfig{
		InitialCapital: 100,
		SessionBalance: 30,
		ShieldedPct:    pct(50),
	}

	// Net 30 raises the floor to 115
	floor, hit := evaluateShield(cfg, 110)
	if hit || !floatEquals(floor, 115, 0.001) {
		t.Fatalf("floor = %.2f hit=%v, want 115/false", floor, hit)
	}

	// Net back to 20: candidate 110 is below the armed 115, but equity 120
	// is still above the floor, so nothing moves and nothing fires
	cfg.SessionBalance = 20
	floor, hit = evaluateShield(cfg, 115)
	if hit {
		t.Error("equity above the floor must not trigger")
	}
	if !floatEquals(floor, 115, 0.001) {
		t.Errorf("floor lowered to %.2f, must stay at 115", floor)
	}
}

func TestEvaluateShield_Disabled(t *testing.T) {
	// nil percent means the feature is off
	cfg := &cache.SessionConfig{InitialCapital: 100, SessionBalance: 50}
	if floor, hit := evaluateShield(cfg, 0); hit || floor != 0 {
		t.Error("disabled shield must neither arm nor trigger")
	}

	// Sessions at or below break-even never arm
	cfg = &cache.SessionConfig{InitialCapital: 100, SessionBalance: -5, ShieldedPct: pct(50)}
	if floor, hit := evaluateShield(cfg, 0); hit || floor != 0 {
		t.Error("shield must not arm while the session is not in profit")
	}
}

// ============================================================================
// TEST: Martingale clamp against the remaining loss budget
// ============================================================================

func TestClampMartingale(t *testing.T) {
	c := &Controller{}

	cfg := &cache.SessionConfig{
		LossLimit:      10,
		SessionBalance: -6, // 4 of loss budget left
	}

	// Chain total within budget passes through untouched
	stake, clamped := c.ClampMartingale(cfg, 1.00, 2.00, 0.50)
	if clamped || !floatEquals(stake, 2.00, 0.001) {
		t.Errorf("within budget: stake = %.2f clamped=%v, want 2.00/false", stake, clamped)
	}

	// Chain total over budget falls back to the base stake
	stake, clamped = c.ClampMartingale(cfg, 3.00, 2.00, 0.50)
	if !clamped {
		t.Fatal("over budget: expected the clamp to fire")
	}
	if !floatEquals(stake, 0.50, 0.001) {
		t.Errorf("clamped stake = %.2f, want base 0.50", stake)
	}
}

func TestClampMartingale_NoLimit(t *testing.T) {
	c := &Controller{}

	// Without a loss limit the clamp never applies
	stake, clamped := c.ClampMartingale(&cache.SessionConfig{}, 100, 50, 1)
	if clamped || !floatEquals(stake, 50, 0.001) {
		t.Errorf("no limit: stake = %.2f clamped=%v, want 50/false", stake, clamped)
	}

	stake, clamped = c.ClampMartingale(nil, 100, 50, 1)
	if clamped || !floatEquals(stake, 50, 0.001) {
		t.Errorf("nil config: stake = %.2f clamped=%v, want 50/false", stake, clamped)
	}
}

// ============================================================================
// TEST: Take-profit / stop-loss thresholds
// ============================================================================

func TestEvaluateLimits(t *testing.T) {
	cases := []struct {
		name       string
		balance    float64
		target     float64
		limit      float64
		wantStatus string
	}{
		{"inside both limits", 5.00, 10, 10, ""},
		{"target reached exactly", 10.00, 10, 10, database.SessionStoppedProfit},
		{"target exceeded", 12.50, 10, 10, database.SessionStoppedProfit},
		{"just under target", 9.99, 10, 10, ""},
		{"loss limit reached exactly", -10.00, 10, 10, database.SessionStoppedLoss},
		{"loss limit exceeded", -18.99, 10, 10, database.SessionStoppedLoss},
		{"just inside loss limit", -9.99, 10, 10, ""},
		{"zero target disables take profit", 50.00, 0, 10, ""},
		{"zero limit disables stop loss", -50.00, 10, 0, ""},
	}

	for _, tc := range cases {
		cfg := &cache.SessionConfig{
			SessionBalance: tc.balance,
			ProfitTarget:   tc.target,
			LossLimit:      tc.limit,
		}
		status, reason := evaluateLimits(cfg)
		if status != tc.wantStatus {
			t.Errorf("%s: status = %q, want %q", tc.name, status, tc.wantStatus)
		}
		if status != "" && reason == "" {
			t.Errorf("%s: a stop must carry a reason", tc.name)
		}
	}
}

// ============================================================================
// TEST: Shield floor lifecycle across sessions
// ============================================================================

// TestResetShieldClearsArmedFloor verifies a replaced session's armed
// floor never carries into the next session of the same user
func TestResetShieldClearsArmedFloor(t *testing.T) {
	c := &Controller{shield: make(map[string]float64)}
	ctx := context.Background()

	// Session A climbs to net +20 and arms the floor at 110
	sessionA := &cache.SessionConfig{
		SessionID:      1,
		InitialCapital: 100,
		SessionBalance: 20,
		ShieldedPct:    pct(50),
		IsActive:       true,
	}
	if c.CheckShielded(ctx, "user-1", sessionA) {
		t.Fatal("arming pass must not stop the session")
	}

	// Session A is replaced; the floor goes with it
	c.ResetShield("user-1")

	// Session B at net +1 sits far below the old floor of 110; it must
	// not be stopped by a leaked floor
	sessionB := &cache.SessionConfig{
		SessionID:      2,
		InitialCapital: 100,
		SessionBalance: 1,
		ShieldedPct:    pct(50),
		IsActive:       true,
	}
	if c.CheckShielded(ctx, "user-1", sessionB) {
		t.Fatal("fresh session was stopped against the previous session's floor")
	}

	// Sanity: without the reset, the leaked floor would have fired
	if _, hit := evaluateShield(sessionB, 110); !hit {
		t.Error("a leaked floor of 110 should trip a session at equity 101")
	}
}
