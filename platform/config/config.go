// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// TelegramConfig provides settings for the Telegram Bot API transport.
type TelegramConfig interface {
	GetTelegramBotToken() string
	GetTelegramAPIURL() string
	GetTelegramWebhookSecret() string
	GetTelegramWebhookURL() string
	IsWebhookMode() bool
}

// AdminConfig provides the set of privileged telegram users and the ops API token.
type AdminConfig interface {
	GetAdminIDs() []int64
	GetAdminAPIToken() string
}

// SheetsConfig provides settings for the spreadsheet-backed ledgers.
type SheetsConfig interface {
	GetLedgerBackend() string
	GetSheetsCredentialsFile() string
	GetSupervisorSheetID() string
}

// EnrichmentConfig provides settings for the company registry provider.
type EnrichmentConfig interface {
	GetDataNewtonAPIKey() string
	GetDataNewtonBaseURL() string
	GetDataNewtonRPS() float64
	GetEnrichmentCacheTTL() time.Duration
	IsEnrichmentEnabled() bool
}

// SchedulerConfig provides settings for the asynq based reminder scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetReminderTime() string
	GetReminderLocation() *time.Location
}

// SessionConfig provides settings for conversation session storage.
type SessionConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetSessionTTL() time.Duration
}

// HTTPConfig provides settings for the ops HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
}

// StorageConfig provides settings for MinIO S3-compatible storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketImports() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	TelegramBotToken      string
	TelegramAPIURL        string
	TelegramWebhookSecret string
	TelegramWebhookURL    string
	AdminIDs              []int64
	AdminAPIToken         string
	LedgerBackend         string
	SheetsCredentialsFile string
	SupervisorSheetID     string
	DataNewtonAPIKey      string
	DataNewtonBaseURL     string
	DataNewtonRPS         float64
	EnrichmentCacheTTL    time.Duration
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	ReminderTime          string
	ReminderLocation      *time.Location
	SessionTTL            time.Duration
	MinIOEndpoint         string
	MinIOAccessKey        string
	MinIOSecretKey        string
	MinIOUseSSL           bool
	MinioBucketImports    string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// TelegramConfig implementation
func (c *Config) GetTelegramBotToken() string      { return c.TelegramBotToken }
func (c *Config) GetTelegramAPIURL() string        { return c.TelegramAPIURL }
func (c *Config) GetTelegramWebhookSecret() string { return c.TelegramWebhookSecret }
func (c *Config) GetTelegramWebhookURL() string    { return c.TelegramWebhookURL }
func (c *Config) IsWebhookMode() bool              { return c.TelegramWebhookSecret != "" }

// AdminConfig implementation
func (c *Config) GetAdminIDs() []int64     { return c.AdminIDs }
func (c *Config) GetAdminAPIToken() string { return c.AdminAPIToken }

// SheetsConfig implementation
func (c *Config) GetLedgerBackend() string         { return c.LedgerBackend }
func (c *Config) GetSheetsCredentialsFile() string { return c.SheetsCredentialsFile }
func (c *Config) GetSupervisorSheetID() string     { return c.SupervisorSheetID }

// EnrichmentConfig implementation
func (c *Config) GetDataNewtonAPIKey() string          { return c.DataNewtonAPIKey }
func (c *Config) GetDataNewtonBaseURL() string         { return c.DataNewtonBaseURL }
func (c *Config) GetDataNewtonRPS() float64            { return c.DataNewtonRPS }
func (c *Config) GetEnrichmentCacheTTL() time.Duration { return c.EnrichmentCacheTTL }
func (c *Config) IsEnrichmentEnabled() bool            { return c.DataNewtonAPIKey != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }
func (c *Config) GetReminderTime() string    { return c.ReminderTime }
func (c *Config) GetReminderLocation() *time.Location {
	if c.ReminderLocation == nil {
		return time.UTC
	}
	return c.ReminderLocation
}

// SessionConfig implementation
func (c *Config) GetSessionTTL() time.Duration { return c.SessionTTL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string { return c.HTTPAddr }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string      { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string     { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string     { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool          { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketImports() string { return c.MinioBucketImports }
func (c *Config) IsMinIOEnabled() bool          { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	adminIDs, err := parseIDs(getEnv("ADMIN_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS: %w", err)
	}

	location, err := time.LoadLocation(getEnv("REMINDER_TIMEZONE", "Europe/Moscow"))
	if err != nil {
		return nil, fmt.Errorf("REMINDER_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:        getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		TelegramWebhookURL:    strings.TrimRight(getEnv("TELEGRAM_WEBHOOK_URL", ""), "/"),
		AdminIDs:              adminIDs,
		AdminAPIToken:         getEnv("ADMIN_API_TOKEN", ""),
		LedgerBackend:         strings.ToLower(getEnv("LEDGER_BACKEND", "sheets")),
		SheetsCredentialsFile: getEnv("GOOGLE_SHEETS_CREDENTIALS_FILE", "credentials.json"),
		SupervisorSheetID:     getEnv("SUPERVISOR_SHEET_ID", ""),
		DataNewtonAPIKey:      getEnv("DATANEWTON_API_KEY", ""),
		DataNewtonBaseURL:     getEnv("DATANEWTON_BASE_URL", "https://api.datanewton.ru/v1"),
		DataNewtonRPS:         mustFloat(getEnv("DATANEWTON_RPS", "5")),
		EnrichmentCacheTTL:    mustDuration(getEnv("ENRICHMENT_CACHE_TTL", "24h")),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		ReminderTime:          getEnv("REMINDER_TIME", "09:00"),
		ReminderLocation:      location,
		SessionTTL:            mustDuration(getEnv("SESSION_TTL", "30m")),
		MinIOEndpoint:         getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:        getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:        getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:           strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketImports:    getEnv("MINIO_BUCKET_IMPORTS", "ledger-imports"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.LedgerBackend != "sheets" && cfg.LedgerBackend != "memory" {
		return nil, fmt.Errorf("LEDGER_BACKEND must be sheets or memory, got %q", cfg.LedgerBackend)
	}
	if _, err := time.Parse("15:04", cfg.ReminderTime); err != nil {
		return nil, fmt.Errorf("REMINDER_TIME must be HH:MM: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func parseIDs(value string) ([]int64, error) {
	parts := splitCSV(value)
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
