package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	DatabaseDSN string
	ListenAddr  string
	CORSOrigins []string

	LogLevel  string
	LogFormat string

	// GatewayTimeout bounds every call to the ERP receivables gateway.
	GatewayTimeout time.Duration
	// ReceivableCacheTTL bounds how long open-receivable reads are served
	// from cache before hitting the ERP again.
	ReceivableCacheTTL time.Duration

	// Matching overrides. Zero values keep the built-in matching defaults.
	MatchAutoAssignThreshold  float64
	MatchSuggestionFloor      float64
	MatchAmountToleranceCents int64
	MatchBatchWorkers         int
}

func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_DSN is not set")
	}

	cfg := &Config{
		DatabaseDSN:        dsn,
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		CORSOrigins:        strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		GatewayTimeout:     getDuration("GATEWAY_TIMEOUT", 5*time.Second),
		ReceivableCacheTTL: getDuration("RECEIVABLE_CACHE_TTL", 30*time.Second),

		MatchAutoAssignThreshold:  getFloat("MATCH_AUTO_ASSIGN_THRESHOLD", 0),
		MatchSuggestionFloor:      getFloat("MATCH_SUGGESTION_FLOOR", 0),
		MatchAmountToleranceCents: getInt64("MATCH_AMOUNT_TOLERANCE_CENTS", 0),
		MatchBatchWorkers:         getInt("MATCH_BATCH_WORKERS", 0),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return fallback
}

// InitDB opens the postgres connection shared by the transaction store and
// the ERP gateway. TranslateError lets callers detect unique-constraint
// violations as gorm.ErrDuplicatedKey.
func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
