package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DerivConfig     DerivConfig     `json:"deriv"`
	TradingConfig   TradingConfig   `json:"trading"`
	RiskConfig      RiskConfig      `json:"risk"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	LogStreamConfig LogStreamConfig `json:"log_stream"`
	SyncConfig      SyncConfig      `json:"sync"`
	ServerConfig    ServerConfig    `json:"server"`
	RedisConfig     RedisConfig     `json:"redis"`
}

// DerivConfig holds the venue connection configuration
type DerivConfig struct {
	AppID           string        `json:"app_id"`
	Endpoint        string        `json:"endpoint"`          // wss://ws.derivws.com/websockets/v3
	PrimarySymbol   string        `json:"primary_symbol"`    // e.g. R_100
	PipDigits       int           `json:"pip_digits"`        // decimal places the symbol quotes in
	ExtraSymbols    []string      `json:"extra_symbols"`     // symbols subscribed by other strategies
	MaxHistory      int           `json:"max_history"`       // tick back-fill / buffer cap per symbol
	KeepAlive       time.Duration `json:"keep_alive"`        // ping interval; venue idle timeout ~120s
	PayoutTimeout   time.Duration `json:"payout_timeout"`    // payout / balance queries
	TradeTimeout    time.Duration `json:"trade_timeout"`     // proposal+buy send
	ContractTimeout time.Duration `json:"contract_timeout"`  // full contract transaction
	MonitorTimeout  time.Duration `json:"monitor_timeout"`   // open-contract monitoring only
}

// TradingConfig holds money-management parameters shared by all strategies
type TradingConfig struct {
	PayoutMarkup         float64 `json:"payout_markup"`          // house markup in percentage points
	DefaultClientPayout  float64 `json:"default_client_payout"`  // fallback when the payout query fails
	ShieldedDefaultPct   float64 `json:"shielded_default_pct"`   // shielded stop default percent
	MaxUserFanout        int     `json:"max_user_fanout"`        // bounded parallelism per tick dispatch
}

type RiskConfig struct {
	ConfigCacheTTL time.Duration `json:"config_cache_ttl"` // pre-trade gate cache TTL
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// LogStreamConfig holds the batched ai_logs writer configuration
type LogStreamConfig struct {
	BatchSize     int           `json:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	MessageCap    int           `json:"message_cap"`
	DetailsCap    int           `json:"details_cap"`
	RetainPerUser int           `json:"retain_per_user"`
}

// SyncConfig controls how often active sessions are mirrored into memory
type SyncConfig struct {
	Interval      time.Duration `json:"interval"`
	StateSnapshot time.Duration `json:"state_snapshot"` // ai_websocket_state persistence cadence
}

// ServerConfig holds the ops HTTP API configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// RedisConfig holds Redis configuration for the session-config cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Note: DERIV_TOKEN is NOT read from environment. Venue tokens are per-user
// and stored with the session row.
func applyEnvOverrides(cfg *Config) {
	// Deriv config
	cfg.DerivConfig.AppID = getEnvOrDefault("DERIV_APP_ID", cfg.DerivConfig.AppID)
	if cfg.DerivConfig.AppID == "" {
		cfg.DerivConfig.AppID = "1089"
	}
	cfg.DerivConfig.Endpoint = getEnvOrDefault("DERIV_ENDPOINT", cfg.DerivConfig.Endpoint)
	if cfg.DerivConfig.Endpoint == "" {
		cfg.DerivConfig.Endpoint = "wss://ws.derivws.com/websockets/v3"
	}
	cfg.DerivConfig.PrimarySymbol = getEnvOrDefault("DERIV_PRIMARY_SYMBOL", "R_100")
	cfg.DerivConfig.PipDigits = getEnvIntOrDefault("DERIV_PIP_DIGITS", 2) // R_100 quotes at 0.01
	cfg.DerivConfig.MaxHistory = getEnvIntOrDefault("DERIV_MAX_HISTORY", 100)
	cfg.DerivConfig.KeepAlive = getEnvDurationOrDefault("DERIV_KEEP_ALIVE", 90*time.Second)
	cfg.DerivConfig.PayoutTimeout = getEnvDurationOrDefault("DERIV_PAYOUT_TIMEOUT", 10*time.Second)
	cfg.DerivConfig.TradeTimeout = getEnvDurationOrDefault("DERIV_TRADE_TIMEOUT", 30*time.Second)
	cfg.DerivConfig.ContractTimeout = getEnvDurationOrDefault("DERIV_CONTRACT_TIMEOUT", 60*time.Second)
	cfg.DerivConfig.MonitorTimeout = getEnvDurationOrDefault("DERIV_MONITOR_TIMEOUT", 120*time.Second)

	// Trading config
	cfg.TradingConfig.PayoutMarkup = getEnvFloatOrDefault("TRADING_PAYOUT_MARKUP", 3.0)
	cfg.TradingConfig.DefaultClientPayout = getEnvFloatOrDefault("TRADING_DEFAULT_CLIENT_PAYOUT", 92.0)
	cfg.TradingConfig.ShieldedDefaultPct = getEnvFloatOrDefault("TRADING_SHIELDED_DEFAULT_PCT", 50.0)
	cfg.TradingConfig.MaxUserFanout = getEnvIntOrDefault("TRADING_MAX_USER_FANOUT", 16)

	// Risk config
	cfg.RiskConfig.ConfigCacheTTL = getEnvDurationOrDefault("RISK_CONFIG_CACHE_TTL", time.Second)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Log stream config
	cfg.LogStreamConfig.BatchSize = getEnvIntOrDefault("LOG_STREAM_BATCH_SIZE", 50)
	cfg.LogStreamConfig.FlushInterval = getEnvDurationOrDefault("LOG_STREAM_FLUSH_INTERVAL", 2*time.Second)
	cfg.LogStreamConfig.MessageCap = getEnvIntOrDefault("LOG_STREAM_MESSAGE_CAP", 5000)
	cfg.LogStreamConfig.DetailsCap = getEnvIntOrDefault("LOG_STREAM_DETAILS_CAP", 10000)
	cfg.LogStreamConfig.RetainPerUser = getEnvIntOrDefault("LOG_STREAM_RETAIN_PER_USER", 1000)

	// Sync config
	cfg.SyncConfig.Interval = getEnvDurationOrDefault("SYNC_INTERVAL", time.Minute)
	cfg.SyncConfig.StateSnapshot = getEnvDurationOrDefault("SYNC_STATE_SNAPSHOT", 30*time.Second)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8088)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
