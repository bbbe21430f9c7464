package logstream

import (
	"strings"
	"testing"

	"zeenix-trading-bot/internal/database"
)

// TestGroupByUser tests batch partitioning with per-user order preserved
func TestGroupByUser(t *testing.T) {
	batch := []*database.LogRow{
		{UserID: "a", Message: "a1"},
		{UserID: "b", Message: "b1"},
		{UserID: "a", Message: "a2"},
		{UserID: "c", Message: "c1"},
		{UserID: "b", Message: "b2"},
	}

	got := groupByUser(batch)
	if len(got) != len(batch) {
		t.Fatalf("grouped length = %d, want %d", len(got), len(batch))
	}

	wantOrder := []string{"a1", "a2", "b1", "b2", "c1"}
	for i, want := range wantOrder {
		if got[i].Message != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].Message, want)
		}
	}
}

// TestGroupByUser_SingleUser tests the trivial partition
func TestGroupByUser_SingleUser(t *testing.T) {
	batch := []*database.LogRow{
		{UserID: "a", Message: "1"},
		{UserID: "a", Message: "2"},
		{UserID: "a", Message: "3"},
	}

	got := groupByUser(batch)
	for i, row := range got {
		if row.Message != batch[i].Message {
			t.Errorf("single-user order changed at %d", i)
		}
	}
}

// TestTruncateTo tests the message/details caps
func TestTruncateTo(t *testing.T) {
	long := strings.Repeat("x", 100)

	if got := truncateTo(long, 10); len(got) != 10 {
		t.Errorf("truncated length = %d, want 10", len(got))
	}
	if got := truncateTo("short", 10); got != "short" {
		t.Errorf("under the cap must pass through, got %q", got)
	}
	if got := truncateTo(long, 100); got != long {
		t.Error("exactly at the cap must pass through")
	}
}
