package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
//	required: Must be provided (no default)
type Config struct {
	// Listeners
	Addr    string `env:"CHATD_ADDR" envDefault:":2007"`
	WSAddr  string `env:"CHATD_WS_ADDR" envDefault:""`
	OpsAddr string `env:"CHATD_OPS_ADDR" envDefault:":9090"`

	// Identity and durability
	ServerID    uint32 `env:"CHATD_SERVER_ID" envDefault:"1"`
	JournalPath string `env:"CHATD_JOURNAL_PATH" envDefault:"data/transaction_log.txt"`

	// Federation. Empty relay URL runs standalone.
	RelayURL      string        `env:"CHATD_RELAY_URL" envDefault:""`
	RelaySecret   string        `env:"CHATD_RELAY_SECRET" envDefault:""`
	RelayRefresh  time.Duration `env:"CHATD_RELAY_REFRESH" envDefault:"5s"`
	RelayPageSize int           `env:"CHATD_RELAY_PAGE_SIZE" envDefault:"32"`

	// Accept rate limiting
	ConnRatePerIP   float64 `env:"CHATD_CONN_RATE_PER_IP" envDefault:"2.0"`
	ConnBurstPerIP  int     `env:"CHATD_CONN_BURST_PER_IP" envDefault:"10"`
	ConnRateGlobal  float64 `env:"CHATD_CONN_RATE_GLOBAL" envDefault:"100.0"`
	ConnBurstGlobal int     `env:"CHATD_CONN_BURST_GLOBAL" envDefault:"200"`

	// Monitoring
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// LoadConfig reads configuration from .env file and environment variables
// Priority: ENV vars > .env file > defaults
//
// Optional logger parameter for structured logging. If nil, logs to stdout.
func LoadConfig(logger *zerolog.Logger) (*Config, error) {
	// Load .env file (optional - OK if it doesn't exist)
	// In production (Docker), we use environment variables directly
	// In development, .env file provides convenience
	if err := godotenv.Load(); err != nil {
		// Only log, don't fail - we can run without .env file
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		} else {
			fmt.Println("Info: No .env file found (using environment variables only)")
		}
	} else {
		if logger != nil {
			logger.Info().Msg("Loaded configuration from .env file")
		}
	}

	cfg := &Config{}

	// Parse environment variables into struct
	// This validates types and applies defaults
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validation
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if logger != nil {
		logger.Info().Msg("Configuration loaded and validated successfully")
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	// Required fields (no sensible defaults)
	if c.Addr == "" {
		return fmt.Errorf("CHATD_ADDR is required")
	}
	if c.ServerID == 0 {
		return fmt.Errorf("CHATD_SERVER_ID must be > 0 (0 is reserved for the null uuid)")
	}
	if c.JournalPath == "" {
		return fmt.Errorf("CHATD_JOURNAL_PATH is required")
	}

	// Range checks
	if c.RelayRefresh <= 0 {
		return fmt.Errorf("CHATD_RELAY_REFRESH must be > 0, got %s", c.RelayRefresh)
	}
	if c.RelayPageSize < 1 {
		return fmt.Errorf("CHATD_RELAY_PAGE_SIZE must be > 0, got %d", c.RelayPageSize)
	}

	// Logical checks
	if c.RelayURL != "" && c.RelaySecret == "" {
		return fmt.Errorf("CHATD_RELAY_SECRET is required when CHATD_RELAY_URL is set")
	}

	// Enum checks
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, text, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs configuration using structured logging (Loki-compatible)
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Str("ws_addr", c.WSAddr).
		Str("ops_addr", c.OpsAddr).
		Uint32("server_id", c.ServerID).
		Str("journal_path", c.JournalPath).
		Str("relay_url", c.RelayURL).
		Dur("relay_refresh", c.RelayRefresh).
		Int("relay_page_size", c.RelayPageSize).
		Float64("conn_rate_per_ip", c.ConnRatePerIP).
		Float64("conn_rate_global", c.ConnRateGlobal).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Server configuration loaded")
}
