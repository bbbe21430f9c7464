package database

import (
	"encoding/json"
	"time"
)

// Session status values
const (
	SessionActive          = "active"
	SessionStoppedProfit   = "stopped_profit"
	SessionStoppedLoss     = "stopped_loss"
	SessionStoppedBlindado = "stopped_blindado"
	SessionStoppedManual   = "stopped_manual"
	SessionStoppedRestart  = "stopped_server_restart"
)

// Trade status values
const (
	TradePending = "PENDING"
	TradeActive  = "ACTIVE"
	TradeWon     = "WON"
	TradeLost    = "LOST"
	TradeError   = "ERROR"
)

// Log entry types
const (
	LogInfo      = "info"
	LogTick      = "tick"
	LogAnalise   = "analise"
	LogSinal     = "sinal"
	LogOperacao  = "operacao"
	LogResultado = "resultado"
	LogAlerta    = "alerta"
	LogErro      = "erro"
)

// Session is one ai_user_config row: a contiguous run of trading for a
// user. Many rows per user exist over time; at most one is active.
type Session struct {
	ID                  int64      `json:"id"`
	UserID              string     `json:"user_id"`
	IsActive            bool       `json:"is_active"`
	SessionStatus       string     `json:"session_status"`
	SessionBalance      float64    `json:"session_balance"` // cumulative P&L since activation
	StakeAmount         float64    `json:"stake_amount"`    // base stake
	EntryValue          float64    `json:"entry_value"`     // initial capital committed
	DerivToken          string     `json:"-"`
	Currency            string     `json:"currency"`
	Mode                string     `json:"mode"`            // veloz | moderado | preciso
	ModoMartingale      string     `json:"modo_martingale"` // conservador | moderado | agressivo
	Strategy            string     `json:"strategy"`
	ProfitTarget        float64    `json:"profit_target"`
	LossLimit           float64    `json:"loss_limit"`
	StopBlindadoPercent *float64   `json:"stop_blindado_percent"` // nil = shielded stop disabled
	NextTradeAt         *time.Time `json:"next_trade_at"`
	LastTradeAt         *time.Time `json:"last_trade_at"`
	TotalTrades         int        `json:"total_trades"`
	TotalWins           int        `json:"total_wins"`
	TotalLosses         int        `json:"total_losses"`
	DeactivationReason  *string    `json:"deactivation_reason"`
	DeactivatedAt       *time.Time `json:"deactivated_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Trade is one ai_trades row: a single contract attempt
type Trade struct {
	ID             int64           `json:"id"`
	UserID         string          `json:"user_id"`
	SessionID      int64           `json:"session_id"`
	Symbol         string          `json:"symbol"`
	ContractType   string          `json:"contract_type"` // DIGITEVEN | DIGITODD
	StakeAmount    float64         `json:"stake_amount"`
	EntryPrice     *float64        `json:"entry_price"`
	ExitPrice      *float64        `json:"exit_price"`
	ProfitLoss     *float64        `json:"profit_loss"`
	Payout         *float64        `json:"payout"`
	Status         string          `json:"status"`
	Strategy       string          `json:"strategy"`
	AnalysisData   json.RawMessage `json:"analysis_data"`
	ContractID     *string         `json:"contract_id"`
	MartingaleStep int             `json:"martingale_step"`
	ErrorMessage   *string         `json:"error_message"`
	StartedAt      *time.Time      `json:"started_at"`
	ClosedAt       *time.Time      `json:"closed_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

// LogRow is one ai_logs row
type LogRow struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID int64     `json:"session_id"`
	Type      string    `json:"type"`
	Icon      string    `json:"icon"`
	Message   string    `json:"message"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// WebsocketState is the persisted market-data connection state for one
// symbol, used to restore tick context across restarts
type WebsocketState struct {
	ID                  int64           `json:"id"`
	Symbol              string          `json:"symbol"`
	SubscriptionID      *string         `json:"subscription_id"`
	TicksData           json.RawMessage `json:"ticks_data"` // trailing tick snapshot
	TotalTicks          int64           `json:"total_ticks"`
	LastTickReceivedAt  *time.Time      `json:"last_tick_received_at"`
	WebsocketURL        *string         `json:"websocket_url"`
	IsConnected         bool            `json:"is_connected"`
	ConnectionCreatedAt *time.Time      `json:"connection_created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}
