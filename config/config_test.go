package config

import (
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DISCORD_TOKEN", "GUILD_ID", "STORE_BACKEND", "DATA_DIR", "DATA_FILE",
		"PANEL_CONFIG_FILE", "DB_DSN", "SWEEP_INTERVAL", "PANEL_EDIT_RATE",
		"PANEL_EDIT_BURST", "HTTP_ADDR", "PORT", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.StoreBackend != BackendFile {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.DataFile != filepath.Join("data", "data.json") || cfg.PanelConfigFile != filepath.Join("data", "config.json") {
		t.Errorf("paths = %q, %q", cfg.DataFile, cfg.PanelConfigFile)
	}
	if cfg.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.SweepInterval != time.Minute || cfg.PanelEditRate != 1 || cfg.PanelEditBurst != 5 {
		t.Errorf("panel defaults = %v %v %v", cfg.SweepInterval, cfg.PanelEditRate, cfg.PanelEditBurst)
	}
	if cfg.DBDsn == "" {
		t.Error("expected default DSN")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", " tok ")
	t.Setenv("GUILD_ID", "g1")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATA_DIR", "/var/lib/avail")
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("PANEL_EDIT_RATE", "0")
	t.Setenv("PANEL_EDIT_BURST", "2")
	t.Setenv("PORT", "8080")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DiscordToken != "tok" || cfg.GuildID != "g1" {
		t.Errorf("discord = %q %q", cfg.DiscordToken, cfg.GuildID)
	}
	if cfg.StoreBackend != BackendPostgres {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.DataFile != filepath.Join("/var/lib/avail", "data.json") {
		t.Errorf("DataFile = %q", cfg.DataFile)
	}
	if cfg.SweepInterval != 15*time.Second || cfg.PanelEditRate != 0 || cfg.PanelEditBurst != 2 {
		t.Errorf("panel = %v %v %v", cfg.SweepInterval, cfg.PanelEditRate, cfg.PanelEditBurst)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}

	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	cfg, _ = Load()
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("HTTP_ADDR should win over PORT, got %q", cfg.HTTPAddr)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SWEEP_INTERVAL", "soon")
	t.Setenv("PANEL_EDIT_RATE", "-3")
	t.Setenv("PANEL_EDIT_BURST", "many")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SweepInterval != time.Minute || cfg.PanelEditRate != 1 || cfg.PanelEditBurst != 5 {
		t.Errorf("fallbacks = %v %v %v", cfg.SweepInterval, cfg.PanelEditRate, cfg.PanelEditBurst)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestValidateBotReady(t *testing.T) {
	clearEnv(t)
	cfg, _ := Load()
	if err := cfg.ValidateBotReady(); err == nil {
		t.Error("expected error without DISCORD_TOKEN")
	}
	t.Setenv("DISCORD_TOKEN", "tok")
	cfg, _ = Load()
	if err := cfg.ValidateBotReady(); err != nil {
		t.Errorf("expected valid bot config, got %v", err)
	}
}
