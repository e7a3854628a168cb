// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port     int
	DevMode  bool
	LogLevel string

	// Databases
	AppDBPath   string
	AuditDBPath string

	// Broker (Alpaca)
	AlpacaAPIKey        string
	AlpacaSecretKey     string
	AlpacaMode          string // paper | live
	AlpacaLiveConfirmed bool

	// Classifier
	AIBaseURL string
	AIAPIKey  string
	AIModel   string

	// News search
	SearchBaseURL string
	SearchAPIKey  string

	// Market data
	MarketDataProvider string // alpaca | yahoo | hybrid
	MarketDataCacheTTL int    // seconds, 0 disables the cache

	// Trading loop
	Symbols             []string
	PollIntervalSeconds int
	ExecutionEnabled    bool
	EnforceMarketHours  bool

	// Risk governor
	MaxRiskPerTrade    float64
	MaxDailyLoss       float64
	MaxTradesPerDay    int
	CooldownSeconds    int
	AccountSize        float64
	MaxSlippageBps     float64
	MinConfidence      float64
	MaxNegativeSignals int

	// Audit backups
	BackupS3Bucket string
	BackupS3Prefix string
	AWSRegion      string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvAsInt("GO_PORT", 8090),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AppDBPath:   getEnv("APP_DB_PATH", "./data/app.db"),
		AuditDBPath: getEnv("AUDIT_DB_PATH", "./data/audit.db"),

		AlpacaAPIKey:        getEnv("ALPACA_API_KEY", ""),
		AlpacaSecretKey:     getEnv("ALPACA_SECRET_KEY", ""),
		AlpacaMode:          getEnv("ALPACA_MODE", "paper"),
		AlpacaLiveConfirmed: getEnvAsBool("ALPACA_LIVE_CONFIRMED", false),

		AIBaseURL: getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIAPIKey:  getEnv("AI_API_KEY", ""),
		AIModel:   getEnv("AI_MODEL", "gpt-4o-mini"),

		SearchBaseURL: getEnv("SEARCH_BASE_URL", "https://api.search.brave.com"),
		SearchAPIKey:  getEnv("SEARCH_API_KEY", ""),

		MarketDataProvider: getEnv("MARKET_DATA_PROVIDER", "hybrid"),
		MarketDataCacheTTL: getEnvAsInt("MARKET_DATA_CACHE_TTL_SECONDS", 30),

		Symbols:             getEnvAsList("TRADER_SYMBOLS"),
		PollIntervalSeconds: getEnvAsInt("TRADER_POLL_INTERVAL_SECONDS", 60),
		ExecutionEnabled:    getEnvAsBool("EXECUTION_ENABLED", false),
		EnforceMarketHours:  getEnvAsBool("ENFORCE_MARKET_HOURS", true),

		MaxRiskPerTrade:    getEnvAsFloat("MAX_RISK_PER_TRADE", 0.01),
		MaxDailyLoss:       getEnvAsFloat("MAX_DAILY_LOSS", 0.05),
		MaxTradesPerDay:    getEnvAsInt("MAX_TRADES_PER_DAY", 10),
		CooldownSeconds:    getEnvAsInt("COOLDOWN_SECONDS", 300),
		AccountSize:        getEnvAsFloat("ACCOUNT_SIZE", 100000),
		MaxSlippageBps:     getEnvAsFloat("MAX_SLIPPAGE_BPS", 50),
		MinConfidence:      getEnvAsFloat("MIN_CONFIDENCE", 0.7),
		MaxNegativeSignals: getEnvAsInt("MAX_NEGATIVE_SIGNALS", 2),

		BackupS3Bucket: getEnv("BACKUP_S3_BUCKET", ""),
		BackupS3Prefix: getEnv("BACKUP_S3_PREFIX", "audit"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
// Broker credentials are only required once execution is switched on, so
// a research-mode deployment can run without any keys.
func (c *Config) Validate() error {
	if c.AppDBPath == "" || c.AuditDBPath == "" {
		return fmt.Errorf("APP_DB_PATH and AUDIT_DB_PATH are required")
	}

	switch c.AlpacaMode {
	case "paper", "live":
	default:
		return fmt.Errorf("ALPACA_MODE must be 'paper' or 'live', got %q", c.AlpacaMode)
	}

	if c.AlpacaMode == "live" && !c.AlpacaLiveConfirmed {
		return fmt.Errorf("live trading requires ALPACA_LIVE_CONFIRMED=true")
	}

	if c.ExecutionEnabled && (c.AlpacaAPIKey == "" || c.AlpacaSecretKey == "") {
		return fmt.Errorf("EXECUTION_ENABLED requires ALPACA_API_KEY and ALPACA_SECRET_KEY")
	}

	switch c.MarketDataProvider {
	case "alpaca", "yahoo", "hybrid":
	default:
		return fmt.Errorf("MARKET_DATA_PROVIDER must be alpaca, yahoo or hybrid, got %q", c.MarketDataProvider)
	}

	if c.MaxRiskPerTrade <= 0 || c.MaxDailyLoss <= 0 || c.AccountSize <= 0 {
		return fmt.Errorf("risk parameters must be positive")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}
