package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rezkam/prefstate/internal/config"
	"github.com/rezkam/prefstate/internal/prefstore"
	"github.com/rezkam/prefstate/internal/storage"
	"github.com/rezkam/prefstate/internal/storage/fsmirror"
	"github.com/rezkam/prefstate/internal/storage/gcsmirror"
	"github.com/rezkam/prefstate/internal/storage/memory"
	"github.com/rezkam/prefstate/internal/storage/postgres"
	"github.com/rezkam/prefstate/internal/storage/sqlite"
	"github.com/rezkam/prefstate/pkg/observability"
)

const serviceName = "prefsd"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Root context for all normal operations; cancels on SIGTERM/SIGINT.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Init observability. Exporter configuration comes from the standard
	// OTEL_* env vars.
	lp, logger, err := observability.InitLogger(ctx, serviceName, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown logger provider", "error", err)
		}
	}()
	slog.SetDefault(logger)

	tp, err := observability.InitTracerProvider(ctx, serviceName, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown tracer provider", "error", err)
		}
	}()

	mp, err := observability.InitMeterProvider(ctx, serviceName, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init meter provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown meter provider", "error", err)
		}
	}()

	kv, err := openKV(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open primary store: %w", err)
	}
	defer kv.Close()

	mirror, closeMirror, err := openMirror(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open legacy mirror: %w", err)
	}
	if closeMirror != nil {
		defer closeMirror()
	}

	var opts []prefstore.Option
	opts = append(opts, prefstore.WithLogger(logger))
	if cfg.StrictDecode {
		opts = append(opts, prefstore.WithStrictDecode())
	}
	store := prefstore.New(kv, mirror, opts...)

	logger.InfoContext(ctx, "prefsd started",
		"storage", cfg.StorageType,
		"mirror", cfg.MirrorType,
		"env", cfg.Env,
	)

	// Follow the preference stream until shutdown, logging every change.
	sub := store.Watch(ctx)
	for pref := range sub.Updates() {
		logger.InfoContext(ctx, "preferences changed",
			"show_completed", pref.ShowCompleted,
			"sort_order", pref.SortOrder.String(),
		)
	}
	if err := sub.Err(); err != nil {
		return fmt.Errorf("preference stream failed: %w", err)
	}

	logger.InfoContext(ctx, "prefsd stopped")
	return nil
}

func openKV(ctx context.Context, cfg *config.Config) (storage.KV, error) {
	switch cfg.StorageType {
	case "sqlite":
		return sqlite.NewStore(ctx, cfg.SQLitePath)
	case "postgres":
		return postgres.NewStore(ctx, postgres.DBConfig{DSN: cfg.PostgresURL})
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.StorageType)
	}
}

func openMirror(ctx context.Context, cfg *config.Config) (storage.Mirror, func() error, error) {
	switch cfg.MirrorType {
	case "file":
		mirror, err := fsmirror.NewMirror(cfg.MirrorPath)
		if err != nil {
			return nil, nil, err
		}
		return mirror, nil, nil
	case "gcs":
		mirror, err := gcsmirror.NewMirror(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, err
		}
		return mirror, mirror.Close, nil
	case "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown mirror type: %s", cfg.MirrorType)
	}
}
