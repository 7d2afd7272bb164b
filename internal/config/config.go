package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// Render worker
	DownloadPath string
	MaxFileSize  int64
	NavTimeout   time.Duration
	PageWidthPx  int64
	MetricsHost  string
	MetricsPort  int

	// Telegram frontend
	TelegramToken       string
	TelegramCoolDown    time.Duration
	TelegramMaxAttempts int

	// Email frontend
	EmailCoolDown    time.Duration
	EmailMaxAttempts int
	EmailInboundList string
	SMTPHost         string
	SMTPPort         int
	SMTPFrom         string

	// Audit log
	AuditDir            string
	AuditFlushThreshold int
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg := &Config{
		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// Render worker
		DownloadPath: getEnv("DOWNLOAD_PATH", "/tmp"),
		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 2*1024*1024),
		NavTimeout:   time.Duration(getEnvInt("NAV_TIMEOUT_MS", 5000)) * time.Millisecond,
		PageWidthPx:  getEnvInt64("PAGE_WIDTH_PX", 1080),
		MetricsHost:  getEnv("METRICS_HOST", "127.0.0.1"),
		MetricsPort:  getEnvInt("METRICS_PORT", 9137),

		// Telegram frontend
		TelegramToken:       getEnv("CECIBOT_TELEGRAM_SECRET", ""),
		TelegramCoolDown:    time.Duration(getEnvInt("TELEGRAM_COOL_DOWN_SECONDS", 15)) * time.Second,
		TelegramMaxAttempts: getEnvInt("TELEGRAM_MAX_ATTEMPTS", 10),

		// Email frontend
		EmailCoolDown:    time.Duration(getEnvInt("EMAIL_COOL_DOWN_SECONDS", 30)) * time.Second,
		EmailMaxAttempts: getEnvInt("EMAIL_MAX_ATTEMPTS", 20),
		EmailInboundList: getEnv("EMAIL_INBOUND_LIST", "email_inbound"),
		SMTPHost:         getEnv("SMTP_HOST", "localhost"),
		SMTPPort:         getEnvInt("SMTP_PORT", 25),
		SMTPFrom:         getEnv("SMTP_FROM", "bot@cecibot.com"),

		// Audit log
		AuditDir:            getEnv("AUDIT_DIR", filepath.Join(home, ".cecibot")),
		AuditFlushThreshold: getEnvInt("AUDIT_FLUSH_THRESHOLD", 1),
	}

	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if cfg.AuditFlushThreshold < 1 {
		return nil, fmt.Errorf("AUDIT_FLUSH_THRESHOLD must be at least 1")
	}

	return cfg, nil
}

// RedisAddr returns the Redis connection address.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// MetricsAddr returns the worker's metrics listen address.
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// SMTPAddr returns the outgoing mail server address.
func (c *Config) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
}

// ComponentAuditDir returns the audit database directory for a component.
func (c *Config) ComponentAuditDir(component string) string {
	return filepath.Join(c.AuditDir, component)
}

// --- helpers ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
