package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	server "github.com/ascentxr/opsdeck/internal"
	"github.com/ascentxr/opsdeck/internal/config"
	"github.com/ascentxr/opsdeck/pkg/clog"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithColor(true), clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store, closeStore, err := openStorage(ctx, env)
	if err != nil {
		slog.Error("failed to open storage", "type", env.StorageEnv.Type, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	app, err := server.NewApp(env, store)
	if err != nil {
		slog.Error("failed to wire server", "error", err)
		os.Exit(1)
	}
	if err := app.LoadCatalog(ctx); err != nil {
		slog.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}
	app.StartBackground(ctx)

	go func() {
		if err := app.Server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func openStorage(ctx context.Context, env *config.Env) (storage.Storage, func(), error) {
	switch env.StorageEnv.Type {
	case "s3":
		s, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		return s, func() {}, err
	case "postgres":
		s, err := storage.NewPostgresStorage(ctx, env.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := storage.NewLocalStorage(env.BaseDir)
		return s, func() {}, err
	}
}
