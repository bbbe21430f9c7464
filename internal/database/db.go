package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		// Session configuration: one row per session, many per user over time
		`CREATE TABLE IF NOT EXISTS ai_user_config (
			id SERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT false,
			session_status VARCHAR(32) NOT NULL DEFAULT 'active',
			session_balance DECIMAL(20, 8) NOT NULL DEFAULT 0,
			stake_amount DECIMAL(20, 8) NOT NULL,
			entry_value DECIMAL(20, 8) NOT NULL DEFAULT 0,
			deriv_token VARCHAR(128) NOT NULL,
			currency VARCHAR(8) NOT NULL DEFAULT 'USD',
			mode VARCHAR(16) NOT NULL DEFAULT 'veloz',
			modo_martingale VARCHAR(16) NOT NULL DEFAULT 'conservador',
			strategy VARCHAR(32) NOT NULL DEFAULT 'zenix',
			profit_target DECIMAL(20, 8) NOT NULL DEFAULT 0,
			loss_limit DECIMAL(20, 8) NOT NULL DEFAULT 0,
			stop_blindado_percent DECIMAL(8, 2),
			next_trade_at TIMESTAMP,
			last_trade_at TIMESTAMP,
			total_trades INTEGER NOT NULL DEFAULT 0,
			total_wins INTEGER NOT NULL DEFAULT 0,
			total_losses INTEGER NOT NULL DEFAULT 0,
			deactivation_reason TEXT,
			deactivated_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_user_config_user_active
			ON ai_user_config(user_id, is_active, created_at)`,

		// Trade ledger: one row per contract attempt
		`CREATE TABLE IF NOT EXISTS ai_trades (
			id SERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			session_id INTEGER,
			symbol VARCHAR(20) NOT NULL,
			contract_type VARCHAR(16) NOT NULL,
			stake_amount DECIMAL(20, 8) NOT NULL,
			entry_price DECIMAL(20, 8),
			exit_price DECIMAL(20, 8),
			profit_loss DECIMAL(20, 8),
			payout DECIMAL(20, 8),
			status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			strategy VARCHAR(32),
			analysis_data JSONB,
			contract_id VARCHAR(64),
			martingale_step INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at TIMESTAMP,
			closed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_trades_user_status
			ON ai_trades(user_id, status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_trades_session
			ON ai_trades(session_id)`,

		// Structured log stream, append-only
		`CREATE TABLE IF NOT EXISTS ai_logs (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			session_id INTEGER,
			type VARCHAR(16) NOT NULL,
			icon VARCHAR(8),
			message TEXT NOT NULL,
			details TEXT,
			timestamp TIMESTAMP(3) NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_logs_user_time
			ON ai_logs(user_id, timestamp DESC)`,

		// Market-data connection state, singleton per symbol
		`CREATE TABLE IF NOT EXISTS ai_websocket_state (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL UNIQUE,
			subscription_id VARCHAR(64),
			ticks_data JSONB,
			total_ticks BIGINT NOT NULL DEFAULT 0,
			last_tick_received_at TIMESTAMP,
			websocket_url TEXT,
			is_connected BOOLEAN NOT NULL DEFAULT false,
			connection_created_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed")
	return nil
}
