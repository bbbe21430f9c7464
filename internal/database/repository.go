package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// SESSIONS (ai_user_config)
// ============================================================================

const sessionColumns = `id, user_id, is_active, session_status, session_balance, stake_amount,
	entry_value, deriv_token, currency, mode, modo_martingale, strategy, profit_target,
	loss_limit, stop_blindado_percent, next_trade_at, last_trade_at, total_trades,
	total_wins, total_losses, deactivation_reason, deactivated_at, created_at, updated_at`

func scanSession(row pgx.Row) (*Session, error) {
	s := &Session{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.IsActive, &s.SessionStatus, &s.SessionBalance, &s.StakeAmount,
		&s.EntryValue, &s.DerivToken, &s.Currency, &s.Mode, &s.ModoMartingale, &s.Strategy,
		&s.ProfitTarget, &s.LossLimit, &s.StopBlindadoPercent, &s.NextTradeAt, &s.LastTradeAt,
		&s.TotalTrades, &s.TotalWins, &s.TotalLosses, &s.DeactivationReason, &s.DeactivatedAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ActivateSession atomically deactivates any previous active session for
// the user and inserts the new one. Exactly one session per user may be
// active at any time.
func (r *Repository) ActivateSession(ctx context.Context, s *Session) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin activate session: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE ai_user_config
		SET is_active = false, deactivation_reason = 'Replaced by new session',
		    deactivated_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND is_active = true
	`, s.UserID)
	if err != nil {
		return fmt.Errorf("deactivate previous session: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO ai_user_config (user_id, is_active, session_status, session_balance,
			stake_amount, entry_value, deriv_token, currency, mode, modo_martingale,
			strategy, profit_target, loss_limit, stop_blindado_percent)
		VALUES ($1, true, 'active', 0, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`, s.UserID, s.StakeAmount, s.EntryValue, s.DerivToken, s.Currency, s.Mode,
		s.ModoMartingale, s.Strategy, s.ProfitTarget, s.LossLimit, s.StopBlindadoPercent,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	s.IsActive = true
	s.SessionStatus = SessionActive
	return tx.Commit(ctx)
}

// GetActiveSessionByUser returns the user's active session, or nil when
// none exists
func (r *Repository) GetActiveSessionByUser(ctx context.Context, userID string) (*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM ai_user_config
		WHERE user_id = $1 AND is_active = true
		ORDER BY created_at DESC
		LIMIT 1
	`
	s, err := scanSession(r.db.Pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// GetSessionByID retrieves a session row by id
func (r *Repository) GetSessionByID(ctx context.Context, id int64) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM ai_user_config WHERE id = $1`
	return scanSession(r.db.Pool.QueryRow(ctx, query, id))
}

// GetActiveSessions returns all currently active sessions
func (r *Repository) GetActiveSessions(ctx context.Context) ([]*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM ai_user_config
		WHERE is_active = true
		ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeactivateSession flips the session to a terminal status. Single
// statement; the row is the atomic unit.
func (r *Repository) DeactivateSession(ctx context.Context, sessionID int64, status, reason string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE ai_user_config
		SET is_active = false, session_status = $2, deactivation_reason = $3,
		    deactivated_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, sessionID, status, reason)
	return err
}

// ApplyTradeOutcome books a settlement into the session in one statement:
// balance delta plus counters. won selects which counter is bumped.
func (r *Repository) ApplyTradeOutcome(ctx context.Context, sessionID int64, profit float64, won bool) error {
	var query string
	if won {
		query = `
			UPDATE ai_user_config
			SET session_balance = session_balance + $2,
			    total_trades = total_trades + 1, total_wins = total_wins + 1,
			    last_trade_at = NOW(), updated_at = NOW()
			WHERE id = $1
		`
	} else {
		query = `
			UPDATE ai_user_config
			SET session_balance = session_balance + $2,
			    total_trades = total_trades + 1, total_losses = total_losses + 1,
			    last_trade_at = NOW(), updated_at = NOW()
			WHERE id = $1
		`
	}
	_, err := r.db.Pool.Exec(ctx, query, sessionID, profit)
	return err
}

// AbortActiveSessions is the startup clean-up: any session left active by
// a previous process is stamped stopped_server_restart. Returns how many
// rows were touched.
func (r *Repository) AbortActiveSessions(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE ai_user_config
		SET is_active = false, session_status = $1,
		    deactivation_reason = 'Server restart', deactivated_at = NOW(), updated_at = NOW()
		WHERE is_active = true
	`, SessionStoppedRestart)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// TouchNextTradeAt records when the session's pacing allows another trade
func (r *Repository) TouchNextTradeAt(ctx context.Context, sessionID int64, next time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE ai_user_config SET next_trade_at = $2, updated_at = NOW() WHERE id = $1
	`, sessionID, next)
	return err
}
