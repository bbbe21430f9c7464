package ticks

import (
	"sync"
)

// SnapshotSize is how many trailing ticks are persisted per symbol so
// analysis can resume across restarts without a full back-fill.
const SnapshotSize = 50

// Store keeps a bounded ordered tick sequence per symbol
type Store struct {
	mu      sync.RWMutex
	maxSize int
	buffers map[string][]Tick
}

// NewStore creates a store with the given per-symbol cap
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Store{
		maxSize: maxSize,
		buffers: make(map[string][]Tick),
	}
}

// Append adds a tick to a symbol's buffer, evicting the oldest entry when
// the cap is exceeded. Ticks with a non-increasing epoch are dropped so the
// sequence stays monotonic (reconnect snapshots overlap the live stream).
func (s *Store) Append(symbol string, t Tick) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[symbol]
	if n := len(buf); n > 0 && t.Epoch <= buf[n-1].Epoch {
		return false
	}

	buf = append(buf, t)
	if len(buf) > s.maxSize {
		buf = buf[len(buf)-s.maxSize:]
	}
	s.buffers[symbol] = buf
	return true
}

// Latest returns the most recent tick for a symbol
func (s *Store) Latest(symbol string) (Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[symbol]
	if len(buf) == 0 {
		return Tick{}, false
	}
	return buf[len(buf)-1], true
}

// LastN returns a copy of the last n ticks for a symbol, oldest first.
// Fewer than n are returned when the buffer is still filling.
func (s *Store) LastN(symbol string, n int) []Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[symbol]
	if n > len(buf) {
		n = len(buf)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Tick, n)
	copy(out, buf[len(buf)-n:])
	return out
}

// Count returns the number of buffered ticks for a symbol
func (s *Store) Count(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffers[symbol])
}

// Snapshot returns the trailing SnapshotSize ticks for persistence
func (s *Store) Snapshot(symbol string) []Tick {
	return s.LastN(symbol, SnapshotSize)
}

// Restore seeds a symbol's buffer from a persisted snapshot. Existing
// ticks are kept; restored ticks older than the newest buffered tick are
// ignored by the monotonic guard.
func (s *Store) Restore(symbol string, snapshot []Tick) int {
	restored := 0
	for _, t := range snapshot {
		if s.Append(symbol, t) {
			restored++
		}
	}
	return restored
}
