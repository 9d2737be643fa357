// Command availability-bot runs the Discord availability panel.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the configured store (JSON files or Postgres) and loads entries.
//   - Connects to the Discord gateway and serves the panel interactions.
//   - Runs the reconciler that sweeps expired entries and refreshes the panel.
//   - Exposes a small HTTP server with /, /healthz, /readyz, /metrics and admin endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/endervision20/availability-bot/availability"
	"github.com/endervision20/availability-bot/config"
	"github.com/endervision20/availability-bot/db"
	"github.com/endervision20/availability-bot/discord"
	"github.com/endervision20/availability-bot/filestore"
	"github.com/endervision20/availability-bot/panel"
	"github.com/endervision20/availability-bot/server"
	"github.com/endervision20/availability-bot/telemetry"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("availability-bot", version, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	if err := run(cfg); err != nil {
		slog.Error("fatal", slog.Any("err", err))
		os.Exit(1)
	}
}

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persister, refs, checks, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	store := availability.NewStore(persister, nil)
	if err := store.Load(ctx); err != nil {
		return err
	}
	slog.Info("availability loaded", slog.Int("entries", store.Len()), slog.String("backend", cfg.StoreBackend))

	if err := cfg.ValidateBotReady(); err != nil {
		return err
	}
	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	rec := panel.NewReconciler(store, refs, discord.NewPublisher(session), panel.Options{
		Interval:  cfg.SweepInterval,
		EditRate:  cfg.PanelEditRate,
		EditBurst: cfg.PanelEditBurst,
		GuildID:   cfg.GuildID,
	})
	if err := rec.Init(ctx); err != nil {
		return err
	}
	svc := panel.NewService(store, rec)
	bot := discord.NewBot(session, svc, cfg.GuildID)

	go rec.Run(ctx)

	if err := bot.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Error("failed to close discord session", slog.Any("err", err))
		}
	}()

	checks = append(checks, server.Check{Name: "discord", Fn: func(context.Context) error {
		if !session.DataReady {
			return errors.New("gateway not ready")
		}
		return nil
	}})
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(ctx, rec, checks)); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// openStore returns the persistence pair for the configured backend plus
// its readiness checks and a close func.
func openStore(ctx context.Context, cfg *config.Config) (availability.Persister, availability.RefStore, []server.Check, func(), error) {
	if cfg.StoreBackend != config.BackendPostgres {
		return &filestore.DataFile{Path: cfg.DataFile}, &filestore.ConfigFile{Path: cfg.PanelConfigFile}, nil, func() {}, nil
	}

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	closeDB := func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}

	// Versioned migrations first; the embedded idempotent SQL covers databases
	// created before schema_migrations existed.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded SQL", slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			closeDB()
			return nil, nil, nil, nil, err
		}
	}

	pg := &db.Postgres{DB: database}
	checks := []server.Check{{Name: "database", Fn: pg.Ping}}
	return pg, pg, checks, closeDB, nil
}
