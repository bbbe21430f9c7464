package money

import (
	"math"
	"testing"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// ============================================================================
// TEST: Soros progression over a full three-win cycle
// ============================================================================

func TestSorosProgression(t *testing.T) {
	const base = 1.00
	const payout = 92.0

	// Entry 1: clean base entry
	r1 := NextStake(Input{Entry: 1, BaseStake: base, Profile: ProfileConservador, PayoutCliente: payout, Currency: "USD"})
	if !floatEquals(r1.Stake, 1.00, 0.001) || r1.IsRecovery {
		t.Fatalf("entry 1: stake = %.2f recovery=%v, want 1.00/false", r1.Stake, r1.IsRecovery)
	}

	// Win pays 92% of the stake
	profit1 := Round2(r1.Stake * payout / 100)

	// Entry 2: previous stake plus its profit rides
	r2 := NextStake(Input{
		Entry: 2, ConsecutiveWins: 1,
		LastProfit: profit1, PreviousStake: r1.Stake,
		BaseStake: base, Profile: ProfileConservador, PayoutCliente: payout, Currency: "USD",
	})
	if !floatEquals(r2.Stake, 1.92, 0.001) {
		t.Fatalf("entry 2: stake = %.2f, want 1.92", r2.Stake)
	}

	profit2 := Round2(r2.Stake * payout / 100) // 1.77

	// Entry 3: compounds once more
	r3 := NextStake(Input{
		Entry: 3, ConsecutiveWins: 2,
		LastProfit: profit2, PreviousStake: r2.Stake,
		BaseStake: base, Profile: ProfileConservador, PayoutCliente: payout, Currency: "USD",
	})
	if !floatEquals(r3.Stake, 3.69, 0.001) {
		t.Errorf("entry 3: stake = %.2f, want 3.69", r3.Stake)
	}
}

func TestSorosRequiresMatchingWins(t *testing.T) {
	// Entry 2 without a banked win is just a base entry
	r := NextStake(Input{
		Entry: 2, ConsecutiveWins: 0,
		LastProfit: 0.92, PreviousStake: 1.00,
		BaseStake: 1.00, PayoutCliente: 92, Currency: "USD",
	})
	if !floatEquals(r.Stake, 1.00, 0.001) {
		t.Errorf("mismatched win level: stake = %.2f, want base 1.00", r.Stake)
	}

	// Entry 4 is past the progression even with wins banked
	r = NextStake(Input{
		Entry: 4, ConsecutiveWins: 3,
		LastProfit: 3.39, PreviousStake: 3.69,
		BaseStake: 1.00, PayoutCliente: 92, Currency: "USD",
	})
	if !floatEquals(r.Stake, 1.00, 0.001) {
		t.Errorf("past max level: stake = %.2f, want base 1.00", r.Stake)
	}
}

// ============================================================================
// TEST: Martingale recovery chain, conservador profile
// ============================================================================

func TestMartingaleChainConservador(t *testing.T) {
	const base = 1.00
	const payout = 92.0

	// Stakes the chain should produce as losses pile up
	expected := []float64{1.09, 2.27, 4.74, 9.89}

	lossesAccum := base // entry 1 lost its base stake
	prevStake := base
	for i, want := range expected {
		entry := i + 2
		r := NextStake(Input{
			Entry: entry, LossesAccum: lossesAccum,
			PreviousStake: prevStake, BaseStake: base,
			Profile: ProfileConservador, PayoutCliente: payout, Currency: "USD",
		})
		if !r.IsRecovery {
			t.Fatalf("entry %d: expected a recovery stake", entry)
		}
		if !floatEquals(r.Stake, want, 0.001) {
			t.Fatalf("entry %d: stake = %.2f, want %.2f", entry, r.Stake, want)
		}
		lossesAccum = Round2(lossesAccum + r.Stake)
		prevStake = r.Stake
	}

	// Entry 6 exceeds the conservador cap: back to base, chain cleared
	r := NextStake(Input{
		Entry: 6, LossesAccum: lossesAccum,
		BaseStake: base, Profile: ProfileConservador, PayoutCliente: payout, Currency: "USD",
	})
	if !r.ResetLadder {
		t.Error("entry past the conservador cap should demand a ladder reset")
	}
	if !floatEquals(r.Stake, base, 0.001) {
		t.Errorf("capped entry: stake = %.2f, want base %.2f", r.Stake, base)
	}
}

// ============================================================================
// TEST: Profile metas
// ============================================================================

func TestMeta(t *testing.T) {
	cases := []struct {
		profile Profile
		losses  float64
		want    float64
	}{
		{ProfileConservador, 2.00, 2.00},
		{ProfileModerado, 2.00, 2.50},
		{ProfileAgressivo, 2.00, 3.00},
	}
	for _, tc := range cases {
		if got := Meta(tc.profile, tc.losses); !floatEquals(got, tc.want, 0.001) {
			t.Errorf("Meta(%s, %.2f) = %.2f, want %.2f", tc.profile, tc.losses, got, tc.want)
		}
	}
}

func TestMartingaleUsesMeta(t *testing.T) {
	// Agressivo recovers 150% of the losses
	r := NextStake(Input{
		Entry: 2, LossesAccum: 2.00, BaseStake: 1.00,
		Profile: ProfileAgressivo, PayoutCliente: 92, Currency: "USD",
	})
	if !floatEquals(r.Stake, 3.26, 0.001) {
		t.Errorf("agressivo stake = %.2f, want 3.26", r.Stake)
	}
}

// ============================================================================
// TEST: Payout fallback and minimum stakes
// ============================================================================

func TestMartingalePayoutFallback(t *testing.T) {
	// A zero payout quote falls back to the default instead of exploding
	r := NextStake(Input{
		Entry: 2, LossesAccum: 1.00, BaseStake: 1.00,
		Profile: ProfileConservador, PayoutCliente: 0, Currency: "USD",
	})
	if !floatEquals(r.Stake, 1.09, 0.001) {
		t.Errorf("fallback payout stake = %.2f, want 1.09", r.Stake)
	}
}

func TestMinimumStake(t *testing.T) {
	// Tiny losses still stake at least the venue minimum
	r := NextStake(Input{
		Entry: 2, LossesAccum: 0.10, BaseStake: 0.35,
		Profile: ProfileConservador, PayoutCliente: 92, Currency: "USD",
	})
	if !floatEquals(r.Stake, 0.35, 0.001) {
		t.Errorf("fiat minimum stake = %.2f, want 0.35", r.Stake)
	}

	if MinStakeByCurrency("BTC") != 0.0000001 {
		t.Error("BTC minimum stake wrong")
	}
	if MinStakeByCurrency("USD") != 0.35 {
		t.Error("fiat minimum stake wrong")
	}
}

func TestCryptoStakePrecision(t *testing.T) {
	// Crypto stakes keep 8 decimals instead of 2
	r := NextStake(Input{
		Entry: 2, ConsecutiveWins: 1,
		LastProfit: 0.00000092, PreviousStake: 0.000001,
		BaseStake: 0.000001, PayoutCliente: 92, Currency: "BTC",
	})
	if !floatEquals(r.Stake, 0.00000192, 1e-10) {
		t.Errorf("BTC soros stake = %.8f, want 0.00000192", r.Stake)
	}
}

// ============================================================================
// TEST: Client payout markup
// ============================================================================

func TestClientPayout(t *testing.T) {
	if got := ClientPayout(95.2, 3); !floatEquals(got, 92.2, 0.001) {
		t.Errorf("ClientPayout(95.2, 3) = %.2f, want 92.2", got)
	}
}

// TestRound2 tests the fiat rounding helper
func TestRound2(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{1.006, 1.01},
		{2.2717, 2.27},
		{9.8913, 9.89},
		{1.0, 1.0},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); !floatEquals(got, tc.want, 0.0001) {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
