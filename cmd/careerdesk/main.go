package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"careerdesk/internal/cache"
	"careerdesk/internal/cli"
	"careerdesk/internal/integrations/backend"
	"careerdesk/internal/usecase"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil {
		logger.Debug(".env file not loaded", "err", err)
	}

	// ---- Configuration (read only here) ----
	baseURL := envStr("CAREERDESK_BASE_URL", "http://localhost:8000")
	cacheFile := envStr("CAREERDESK_CACHE_FILE", "careerdesk.db")
	maxUpload := envInt64("CAREERDESK_MAX_UPLOAD", 5<<20)
	syncConcurrency := envInt("CAREERDESK_SYNC_CONCURRENCY", 1)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Local cache ----
	store, err := cache.Open(cacheFile)
	if err != nil {
		logger.Error("failed to open cache", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// A credential passed through the environment is persisted, matching
	// how the browser client kept its bearer token in local storage.
	if token := os.Getenv("CAREERDESK_TOKEN"); token != "" {
		if err := store.SaveCredentials(token, os.Getenv("CAREERDESK_REFRESH_TOKEN")); err != nil {
			logger.Warn("failed to persist credential", "err", err)
		}
	}

	// ---- Gateway ----
	gw, err := backend.NewClient(store, backend.WithBaseURL(baseURL))
	if err != nil {
		logger.Error("failed to create backend client", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	chatStore, err := usecase.NewChatStore(gw, store, logger, usecase.Config{SyncConcurrency: syncConcurrency})
	if err != nil {
		logger.Error("failed to create chat store", "err", err)
		os.Exit(1)
	}
	uploads, err := usecase.NewUploadService(gw, store, logger, maxUpload)
	if err != nil {
		logger.Error("failed to create upload service", "err", err)
		os.Exit(1)
	}
	profile, err := usecase.NewProfileService(store, logger)
	if err != nil {
		logger.Error("failed to create profile service", "err", err)
		os.Exit(1)
	}

	app, err := cli.New(chatStore, uploads, profile, os.Stdin, os.Stdout, logger)
	if err != nil {
		logger.Error("failed to create app", "err", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("app exited with error", "err", err)
		os.Exit(1)
	}
}

func envStr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
