package database

import (
	"context"
	"fmt"
	"strings"
)

// ============================================================================
// LOG STREAM (ai_logs)
// ============================================================================

// InsertLogBatch writes a batch of log rows in one multi-row INSERT. The
// hot path never inserts individually; the logstream drainer calls this
// with up to its batch size.
func (r *Repository) InsertLogBatch(ctx context.Context, rows []*LogRow) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO ai_logs (user_id, session_id, type, icon, message, details, timestamp) VALUES `)

	args := make([]interface{}, 0, len(rows)*7)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args, row.UserID, row.SessionID, row.Type, row.Icon,
			row.Message, row.Details, row.Timestamp)
	}

	_, err := r.db.Pool.Exec(ctx, sb.String(), args...)
	return err
}

// GetRecentLogs returns a user's most recent log rows, newest first
func (r *Repository) GetRecentLogs(ctx context.Context, userID string, limit int) ([]*LogRow, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, user_id, session_id, type, icon, message, details, timestamp
		FROM ai_logs
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*LogRow
	for rows.Next() {
		l := &LogRow{}
		if err := rows.Scan(&l.ID, &l.UserID, &l.SessionID, &l.Type, &l.Icon,
			&l.Message, &l.Details, &l.Timestamp); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// TrimLogs enforces per-user retention: only the keep most-recent rows
// survive. Returns how many rows were deleted.
func (r *Repository) TrimLogs(ctx context.Context, userID string, keep int) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		DELETE FROM ai_logs
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM ai_logs
			WHERE user_id = $1
			ORDER BY timestamp DESC
			LIMIT $2
		)
	`, userID, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
