package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// TRADES (ai_trades)
// ============================================================================

const tradeColumns = `id, user_id, session_id, symbol, contract_type, stake_amount,
	entry_price, exit_price, profit_loss, payout, status, strategy, analysis_data,
	contract_id, martingale_step, error_message, started_at, closed_at, created_at`

func scanTrade(row pgx.Row) (*Trade, error) {
	t := &Trade{}
	err := row.Scan(
		&t.ID, &t.UserID, &t.SessionID, &t.Symbol, &t.ContractType, &t.StakeAmount,
		&t.EntryPrice, &t.ExitPrice, &t.ProfitLoss, &t.Payout, &t.Status, &t.Strategy,
		&t.AnalysisData, &t.ContractID, &t.MartingaleStep, &t.ErrorMessage,
		&t.StartedAt, &t.ClosedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTrade inserts a new PENDING trade attempt
func (r *Repository) CreateTrade(ctx context.Context, t *Trade) error {
	if t.Status == "" {
		t.Status = TradePending
	}
	var analysis interface{}
	if len(t.AnalysisData) > 0 {
		analysis = json.RawMessage(t.AnalysisData)
	}
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO ai_trades (user_id, session_id, symbol, contract_type, stake_amount,
			status, strategy, analysis_data, martingale_step, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at
	`, t.UserID, t.SessionID, t.Symbol, t.ContractType, t.StakeAmount,
		t.Status, t.Strategy, analysis, t.MartingaleStep,
	).Scan(&t.ID, &t.CreatedAt)
}

// MarkTradeActive flips the row ACTIVE the moment the venue confirms the
// buy. The entry spot is not known yet; it lands at settlement.
func (r *Repository) MarkTradeActive(ctx context.Context, tradeID int64, contractID string, payout float64) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE ai_trades
		SET status = $2, contract_id = $3, payout = $4
		WHERE id = $1
	`, tradeID, TradeActive, contractID, payout)
	return err
}

// SettleTrade writes the final WON/LOST outcome. entry and exit prices,
// profit and closed_at land in one statement.
func (r *Repository) SettleTrade(ctx context.Context, tradeID int64, status string, entryPrice, exitPrice, profit float64) error {
	if status != TradeWon && status != TradeLost {
		return fmt.Errorf("settle trade %d: invalid terminal status %q", tradeID, status)
	}
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE ai_trades
		SET status = $2, entry_price = $3, exit_price = $4, profit_loss = $5, closed_at = NOW()
		WHERE id = $1
	`, tradeID, status, entryPrice, exitPrice, profit)
	return err
}

// MarkTradeError fails a trade with the venue message. profit_loss stays
// null; ERROR rows are excluded from user history.
func (r *Repository) MarkTradeError(ctx context.Context, tradeID int64, message string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE ai_trades
		SET status = $2, error_message = $3, closed_at = NOW()
		WHERE id = $1
	`, tradeID, TradeError, message)
	return err
}

// AbortPendingTrades is the startup clean-up: trades left PENDING by a
// previous process become ERROR so history stays consistent.
func (r *Repository) AbortPendingTrades(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE ai_trades
		SET status = $1, error_message = 'Server Restart - Connection Lost', closed_at = NOW()
		WHERE status = $2 OR status = $3
	`, TradeError, TradePending, TradeActive)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetTradeHistory returns a user's settled trades, newest first. ERROR
// rows are not part of user-visible history.
func (r *Repository) GetTradeHistory(ctx context.Context, userID string, limit, offset int) ([]*Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM ai_trades
		WHERE user_id = $1 AND status IN ('WON', 'LOST')
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryTrades(ctx, query, userID, limit, offset)
}

// GetSessionTrades returns all non-ERROR trades of a session
func (r *Repository) GetSessionTrades(ctx context.Context, sessionID int64) ([]*Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM ai_trades
		WHERE session_id = $1 AND status != 'ERROR'
		ORDER BY created_at
	`
	return r.queryTrades(ctx, query, sessionID)
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*Trade, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
