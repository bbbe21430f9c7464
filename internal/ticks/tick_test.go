package ticks

import (
	"testing"
)

// TestLastDigit tests last-digit extraction at the symbol's pip precision
func TestLastDigit(t *testing.T) {
	cases := []struct {
		value float64
		pip   int
		want  int
	}{
		{123.456, 3, 6},
		{100, 2, 0},
		{100.1, 1, 1},
		{0.35, 2, 5},
		{-7.3, 1, 3}, // sign is ignored
		{0, 2, 0},
		{9999.99999, 5, 9},
	}

	for _, tc := range cases {
		if got := LastDigit(tc.value, tc.pip); got != tc.want {
			t.Errorf("LastDigit(%v, %d) = %d, want %d", tc.value, tc.pip, got, tc.want)
		}
	}
}

// TestLastDigitTrailingZero tests that fixed-precision rendering keeps the
// trailing zero a shortest-form float drops
func TestLastDigitTrailingZero(t *testing.T) {
	cases := []struct {
		value float64
		pip   int
		want  int
	}{
		{1234.50, 2, 0}, // shortest form would render "1234.5" and yield 5
		{1234.5, 2, 0},
		{987.00, 2, 0},
		{87.10, 2, 0},
		{87.1, 1, 1}, // one-pip symbol: the 1 really is the last digit
	}

	for _, tc := range cases {
		if got := LastDigit(tc.value, tc.pip); got != tc.want {
			t.Errorf("LastDigit(%v, %d) = %d, want %d", tc.value, tc.pip, got, tc.want)
		}
		tick := NewTick(tc.value, 1, tc.pip)
		if tick.Parity != ParityOf(tc.want) {
			t.Errorf("NewTick(%v, pip %d) parity = %s, want %s",
				tc.value, tc.pip, tick.Parity, ParityOf(tc.want))
		}
	}
}

// TestParityOf tests digit-to-parity mapping
func TestParityOf(t *testing.T) {
	for d := 0; d <= 9; d++ {
		want := ParityImpar
		if d%2 == 0 {
			want = ParityPar
		}
		if got := ParityOf(d); got != want {
			t.Errorf("ParityOf(%d) = %s, want %s", d, got, want)
		}
	}
}

// TestParityOpposite tests that Opposite is its own inverse
func TestParityOpposite(t *testing.T) {
	if ParityPar.Opposite() != ParityImpar {
		t.Error("PAR opposite should be IMPAR")
	}
	if ParityImpar.Opposite() != ParityPar {
		t.Error("IMPAR opposite should be PAR")
	}
	if ParityPar.Opposite().Opposite() != ParityPar {
		t.Error("double Opposite should round-trip")
	}
}

// TestContractType tests parity-to-contract mapping
func TestContractType(t *testing.T) {
	if ParityPar.ContractType() != "DIGITEVEN" {
		t.Errorf("PAR contract = %s, want DIGITEVEN", ParityPar.ContractType())
	}
	if ParityImpar.ContractType() != "DIGITODD" {
		t.Errorf("IMPAR contract = %s, want DIGITODD", ParityImpar.ContractType())
	}
}

// TestNewTick tests derived fields
func TestNewTick(t *testing.T) {
	tick := NewTick(1234.57, 1700000000, 2)

	if tick.Digit != 7 {
		t.Errorf("digit = %d, want 7", tick.Digit)
	}
	if tick.Parity != ParityImpar {
		t.Errorf("parity = %s, want IMPAR", tick.Parity)
	}
	if tick.Epoch != 1700000000 {
		t.Errorf("epoch = %d, want 1700000000", tick.Epoch)
	}
}

// TestStoreMonotonic tests that stale and duplicate epochs are rejected
func TestStoreMonotonic(t *testing.T) {
	s := NewStore(10)

	if !s.Append("R_100", NewTick(100.1, 100, 2)) {
		t.Fatal("first tick should be accepted")
	}
	if s.Append("R_100", NewTick(100.2, 100, 2)) {
		t.Error("duplicate epoch should be rejected")
	}
	if s.Append("R_100", NewTick(100.3, 99, 2)) {
		t.Error("older epoch should be rejected")
	}
	if !s.Append("R_100", NewTick(100.4, 101, 2)) {
		t.Error("newer epoch should be accepted")
	}
	if s.Count("R_100") != 2 {
		t.Errorf("count = %d, want 2", s.Count("R_100"))
	}
}

// TestStoreEviction tests the bounded buffer
func TestStoreEviction(t *testing.T) {
	s := NewStore(3)

	for i := int64(1); i <= 5; i++ {
		s.Append("R_100", NewTick(float64(i), i, 2))
	}

	if s.Count("R_100") != 3 {
		t.Fatalf("count = %d, want 3", s.Count("R_100"))
	}

	got := s.LastN("R_100", 3)
	if got[0].Epoch != 3 || got[2].Epoch != 5 {
		t.Errorf("buffer epochs = %d..%d, want 3..5", got[0].Epoch, got[2].Epoch)
	}
}

// TestStoreLastNOrder tests that LastN returns oldest-first copies
func TestStoreLastNOrder(t *testing.T) {
	s := NewStore(10)
	for i := int64(1); i <= 4; i++ {
		s.Append("R_100", NewTick(float64(i), i, 2))
	}

	got := s.LastN("R_100", 2)
	if len(got) != 2 || got[0].Epoch != 3 || got[1].Epoch != 4 {
		t.Errorf("LastN(2) epochs wrong: %+v", got)
	}

	// Asking for more than buffered returns what exists
	all := s.LastN("R_100", 100)
	if len(all) != 4 {
		t.Errorf("LastN(100) len = %d, want 4", len(all))
	}

	// Mutating the copy must not touch the buffer
	all[0].Epoch = 999
	if tick, _ := s.Latest("R_100"); tick.Epoch != 4 {
		t.Error("LastN must return a copy")
	}
}

// TestStoreRestore tests snapshot restore with the monotonic guard
func TestStoreRestore(t *testing.T) {
	s := NewStore(10)
	s.Append("R_100", NewTick(1, 5, 2))

	snapshot := []Tick{NewTick(1, 3, 2), NewTick(2, 5, 2), NewTick(3, 6, 2), NewTick(4, 7, 2)}
	restored := s.Restore("R_100", snapshot)

	if restored != 2 {
		t.Errorf("restored = %d, want 2 (epochs 6 and 7)", restored)
	}
	if s.Count("R_100") != 3 {
		t.Errorf("count = %d, want 3", s.Count("R_100"))
	}
}
