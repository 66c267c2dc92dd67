package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the etapy bot
type Config struct {
	// Telegram settings
	TelegramToken string
	WebhookURL    string // empty means long polling
	Port          int
	TelegramRate  float64 // outbound requests per second

	// Storage settings
	DataDir        string
	StorageBackend string // "sqlite", "xlsx" or "memory"
	LockTimeout    time.Duration

	// Export settings
	ExportInterval time.Duration // 0 disables the periodic export

	// SharePoint settings, kept for deployments that sync the workbook
	// elsewhere. The bot itself does not upload.
	SharePointSite         string
	SharePointLibrary      string
	SharePointClientID     string
	SharePointClientSecret string

	Debug bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken:          strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		WebhookURL:             strings.TrimRight(strings.TrimSpace(os.Getenv("WEBHOOK_URL")), "/"),
		Port:                   getEnvInt("PORT", 8080),
		TelegramRate:           getEnvFloat("TELEGRAM_RATE", 25),
		DataDir:                getEnv("DATA_DIR", "."),
		StorageBackend:         strings.ToLower(getEnv("STORAGE_BACKEND", "sqlite")),
		LockTimeout:            time.Duration(getEnvInt("LOCK_TIMEOUT_SECONDS", 30)) * time.Second,
		ExportInterval:         time.Duration(getEnvInt("EXPORT_INTERVAL_MINUTES", 0)) * time.Minute,
		SharePointSite:         os.Getenv("SP_SITE"),
		SharePointLibrary:      os.Getenv("SP_LIBRARY"),
		SharePointClientID:     os.Getenv("SP_CLIENT_ID"),
		SharePointClientSecret: os.Getenv("SP_CLIENT_SECRET"),
		Debug:                  getEnvBool("DEBUG", false),
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// StateDir is where per-user sessions live
func (c *Config) StateDir() string {
	return filepath.Join(c.DataDir, "state")
}

// ExportPath is the workbook written by the export worker
func (c *Config) ExportPath() string {
	return filepath.Join(c.DataDir, "exports", "projects.xlsx")
}

// UsesWebhook reports whether updates arrive by webhook instead of polling
func (c *Config) UsesWebhook() bool {
	return c.WebhookURL != ""
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	switch c.StorageBackend {
	case "sqlite", "xlsx", "memory":
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND: %s (must be 'sqlite', 'xlsx' or 'memory')", c.StorageBackend)
	}

	if c.UsesWebhook() && !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("WEBHOOK_URL must start with https://")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	c.applyDefaults()

	if c.SharePointSite != "" && (c.SharePointClientID == "" || c.SharePointClientSecret == "") {
		log.Printf("Warning: SP_SITE is set without SP_CLIENT_ID/SP_CLIENT_SECRET")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.TelegramRate <= 0 {
		c.TelegramRate = 25
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 30 * time.Second
	}
	if c.ExportInterval < 0 {
		c.ExportInterval = 0
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
