// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// The bot token is only required to connect; use ValidateBotReady before opening the session.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/endervision20/availability-bot/db"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	// Discord
	DiscordToken string
	GuildID      string

	// Storage
	StoreBackend    string
	DataDir         string
	DataFile        string
	PanelConfigFile string
	DBDsn           string

	// Panel
	SweepInterval  time.Duration
	PanelEditRate  float64
	PanelEditBurst int

	// HTTP
	HTTPAddr string

	// Tracing
	OTLPEndpoint string
}

// Load reads environment variables and applies defaults. Invalid numbers and
// durations fall back to their defaults with a warning; an unknown
// STORE_BACKEND is an error.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = strings.TrimSpace(os.Getenv("DISCORD_TOKEN"))
	cfg.GuildID = strings.TrimSpace(os.Getenv("GUILD_ID"))

	// Storage
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = BackendFile
	}
	if cfg.StoreBackend != BackendFile && cfg.StoreBackend != BackendPostgres {
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: want %q or %q", cfg.StoreBackend, BackendFile, BackendPostgres)
	}
	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	cfg.DataFile = os.Getenv("DATA_FILE")
	if cfg.DataFile == "" {
		cfg.DataFile = filepath.Join(cfg.DataDir, "data.json")
	}
	cfg.PanelConfigFile = os.Getenv("PANEL_CONFIG_FILE")
	if cfg.PanelConfigFile == "" {
		cfg.PanelConfigFile = filepath.Join(cfg.DataDir, "config.json")
	}
	cfg.DBDsn = os.Getenv("DB_DSN")
	if cfg.DBDsn == "" {
		cfg.DBDsn = db.DefaultDSN
	}

	// Panel
	cfg.SweepInterval = envDuration("SWEEP_INTERVAL", 60*time.Second)
	cfg.PanelEditRate = envFloat("PANEL_EDIT_RATE", 1)
	cfg.PanelEditBurst = envInt("PANEL_EDIT_BURST", 5)

	// HTTP
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "3000"
		}
		cfg.HTTPAddr = ":" + port
	}

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

// ValidateBotReady checks the fields required to connect to Discord.
func (c *Config) ValidateBotReady() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN")
	}
	return nil
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	slog.Warn("invalid duration env; using default", slog.String("key", key), slog.String("value", v), slog.Duration("default", def))
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	slog.Warn("invalid integer env; using default", slog.String("key", key), slog.String("value", v), slog.Int("default", def))
	return def
}

// envFloat accepts zero so pacing can be switched off.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
		return f
	}
	slog.Warn("invalid number env; using default", slog.String("key", key), slog.String("value", v), slog.Float64("default", def))
	return def
}
