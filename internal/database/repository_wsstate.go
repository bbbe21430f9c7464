package database

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// MARKET-DATA STATE (ai_websocket_state)
// ============================================================================

// UpsertWebsocketState records a symbol's connection state plus its
// trailing tick snapshot. One row per symbol.
func (r *Repository) UpsertWebsocketState(ctx context.Context, st *WebsocketState) error {
	var ticksData interface{}
	if len(st.TicksData) > 0 {
		ticksData = json.RawMessage(st.TicksData)
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO ai_websocket_state (symbol, subscription_id, ticks_data, total_ticks,
			last_tick_received_at, websocket_url, is_connected, connection_created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			subscription_id = EXCLUDED.subscription_id,
			ticks_data = EXCLUDED.ticks_data,
			total_ticks = EXCLUDED.total_ticks,
			last_tick_received_at = EXCLUDED.last_tick_received_at,
			websocket_url = EXCLUDED.websocket_url,
			is_connected = EXCLUDED.is_connected,
			connection_created_at = EXCLUDED.connection_created_at,
			updated_at = NOW()
	`, st.Symbol, st.SubscriptionID, ticksData, st.TotalTicks,
		st.LastTickReceivedAt, st.WebsocketURL, st.IsConnected, st.ConnectionCreatedAt)
	return err
}

// GetWebsocketState returns a symbol's persisted state, or nil when the
// symbol has never connected
func (r *Repository) GetWebsocketState(ctx context.Context, symbol string) (*WebsocketState, error) {
	st := &WebsocketState{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, symbol, subscription_id, ticks_data, total_ticks, last_tick_received_at,
			websocket_url, is_connected, connection_created_at, updated_at
		FROM ai_websocket_state
		WHERE symbol = $1
	`, symbol).Scan(
		&st.ID, &st.Symbol, &st.SubscriptionID, &st.TicksData, &st.TotalTicks,
		&st.LastTickReceivedAt, &st.WebsocketURL, &st.IsConnected,
		&st.ConnectionCreatedAt, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// MarkSymbolDisconnected flips a symbol's connected flag on shutdown
func (r *Repository) MarkSymbolDisconnected(ctx context.Context, symbol string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE ai_websocket_state SET is_connected = false, updated_at = NOW() WHERE symbol = $1
	`, symbol)
	return err
}
