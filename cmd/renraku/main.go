package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/renraku/internal/config"
	"github.com/ashita-ai/renraku/internal/ctxutil"
	"github.com/ashita-ai/renraku/internal/events"
	"github.com/ashita-ai/renraku/internal/keystore"
	"github.com/ashita-ai/renraku/internal/notify"
	"github.com/ashita-ai/renraku/internal/reconcile"
	"github.com/ashita-ai/renraku/internal/storage"
	"github.com/ashita-ai/renraku/internal/telemetry"
	"github.com/ashita-ai/renraku/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("RENRAKU_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("renraku starting", "version", version, "session_id", cfg.SessionID)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, false)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database.
	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close(context.Background())

	// Run migrations. RunMigrations tracks applied files in
	// schema_migrations and skips duplicates, so errors here indicate real
	// failures (not "already exists").
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	ctx = ctxutil.WithSessionID(ctx, cfg.SessionID)

	// Session key store for this tenant. Loads or initializes credentials.
	store, err := keystore.New(ctx, cfg.SessionID, db, db, logger)
	if err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	if err := store.SaveCreds(ctx); err != nil {
		return fmt.Errorf("keystore: persist initial credentials: %w", err)
	}

	// Notification broker: in-process fan-out plus a Postgres NOTIFY
	// forward for out-of-process consumers.
	broker := notify.NewBroker(logger,
		notify.WithForwarder(db, storage.ChannelEvents))

	// Event stream and reconcilers. The upstream protocol connector emits
	// onto the stream; this process applies whatever arrives.
	stream := events.NewStream(logger)

	contacts := reconcile.NewContactHandler(cfg.SessionID, db, reconcile.NoDirectory{},
		broker, stream, logger, cfg.CountryCode)
	contacts.Listen()
	defer contacts.Unlisten()

	chats := reconcile.NewChatHandler(cfg.SessionID, db, broker, stream, logger)
	chats.Listen()
	defer chats.Unlisten()

	slog.Info("renraku ready", "session_id", cfg.SessionID)

	<-ctx.Done()

	slog.Info("renraku shutting down")

	flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer flushCancel()
	if err := store.SaveCreds(flushCtx); err != nil {
		slog.Warn("credential flush failed", "error", err)
	}

	slog.Info("renraku stopped")
	return nil
}
