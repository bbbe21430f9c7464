// Package logstream buffers per-user activity logs and drains them into
// ai_logs in multi-row batches. Callers never wait on a database write on
// the hot path.
package logstream

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"zeenix-trading-bot/config"
	"zeenix-trading-bot/internal/database"

	"github.com/rs/zerolog"
)

// Queue is the FIFO log buffer with a single background drainer
type Queue struct {
	repo   *database.Repository
	cfg    config.LogStreamConfig
	logger zerolog.Logger

	ch      chan *database.LogRow
	stop    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewQueue creates the log queue
func NewQueue(repo *database.Repository, cfg config.LogStreamConfig, logger zerolog.Logger) *Queue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.MessageCap <= 0 {
		cfg.MessageCap = 5000
	}
	if cfg.DetailsCap <= 0 {
		cfg.DetailsCap = 10000
	}
	return &Queue{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With().Str("component", "logstream").Logger(),
		ch:     make(chan *database.LogRow, cfg.BatchSize*20),
		stop:   make(chan struct{}),
	}
}

// Start launches the drainer goroutine
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.drain()
}

// Stop flushes whatever is buffered and stops the drainer
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
	if n := q.dropped.Load(); n > 0 {
		q.logger.Warn().Int64("dropped", n).Msg("log rows dropped under backpressure")
	}
}

// Log enqueues one entry. details is marshaled to JSON; message and
// details are truncated to their caps. Never blocks: under backpressure
// the entry is dropped and counted.
func (q *Queue) Log(userID string, sessionID int64, typ, icon, message string, details interface{}) {
	row := &database.LogRow{
		UserID:    userID,
		SessionID: sessionID,
		Type:      typ,
		Icon:      icon,
		Message:   truncateTo(message, q.cfg.MessageCap),
		Timestamp: time.Now(),
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			row.Details = truncateTo(string(data), q.cfg.DetailsCap)
		}
	}

	select {
	case q.ch <- row:
	default:
		q.dropped.Add(1)
	}
}

// drain batches rows: a batch closes when it reaches BatchSize or the
// flush interval elapses. Per-user order is the channel's FIFO order.
func (q *Queue) drain() {
	defer q.wg.Done()

	batch := make([]*database.LogRow, 0, q.cfg.BatchSize)
	timer := time.NewTimer(q.cfg.FlushInterval)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		q.insert(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-q.stop:
			// Drain whatever is still queued before exiting
			for {
				select {
				case row := <-q.ch:
					batch = append(batch, row)
					if len(batch) >= q.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case row := <-q.ch:
			batch = append(batch, row)
			if len(batch) >= q.cfg.BatchSize {
				flush()
				timer.Reset(q.cfg.FlushInterval)
			}
		case <-timer.C:
			flush()
			timer.Reset(q.cfg.FlushInterval)
		}
	}
}

// insert writes one batch, grouped by user so each user's rows land
// contiguously in insertion order
func (q *Queue) insert(batch []*database.LogRow) {
	grouped := groupByUser(batch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.repo.InsertLogBatch(ctx, grouped); err != nil {
		q.logger.Error().Err(err).Int("rows", len(grouped)).Msg("log batch insert failed")
	}
}

// groupByUser partitions a batch by user while preserving each user's
// insertion order
func groupByUser(batch []*database.LogRow) []*database.LogRow {
	byUser := make(map[string][]*database.LogRow)
	order := make([]string, 0)
	for _, row := range batch {
		if _, seen := byUser[row.UserID]; !seen {
			order = append(order, row.UserID)
		}
		byUser[row.UserID] = append(byUser[row.UserID], row)
	}

	out := make([]*database.LogRow, 0, len(batch))
	for _, userID := range order {
		out = append(out, byUser[userID]...)
	}
	return out
}

// Trim applies per-user retention using the configured keep count
func (q *Queue) Trim(ctx context.Context, userID string) (int64, error) {
	return q.repo.TrimLogs(ctx, userID, q.cfg.RetainPerUser)
}

func truncateTo(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
