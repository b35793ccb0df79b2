package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/gridnote/gridnote/internal/localstore"
	"github.com/gridnote/gridnote/internal/remote"
	"github.com/gridnote/gridnote/internal/syncengine"
	"github.com/gridnote/gridnote/internal/workspace"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(strings.TrimSpace(os.Getenv("GRIDNOTE_LOG_LEVEL"))); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}

	userID := strings.TrimSpace(os.Getenv("GRIDNOTE_USER_ID"))
	if userID == "" {
		logger.Fatal().Msg("GRIDNOTE_USER_ID is required")
	}
	remoteURL := strings.TrimSpace(os.Getenv("GRIDNOTE_REMOTE_URL"))
	if remoteURL == "" {
		logger.Fatal().Msg("GRIDNOTE_REMOTE_URL is required")
	}

	dsn, err := stateDSNFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid storage configuration")
	}
	kv, err := localstore.OpenFromDSN(dsn)
	if err != nil {
		logger.Fatal().Err(err).Str("dsn", dsn).Msg("failed to open local store")
	}
	defer kv.Close()

	pending := localstore.NewPendingQueue(kv)
	store := workspace.NewStore(workspace.Options{
		KV:              kv,
		Pending:         pending,
		Logger:          logger.With().Str("component", "store").Logger(),
		HistoryCapacity: intEnv("GRIDNOTE_HISTORY_CAPACITY", 0),
	})

	client := remote.NewHTTPClient(remoteURL, os.Getenv("GRIDNOTE_TOKEN"), nil)
	engine := syncengine.New(syncengine.Options{
		Store:         store,
		Client:        client,
		KV:            kv,
		Pending:       pending,
		Logger:        logger.With().Str("component", "sync").Logger(),
		Debounce:      durationEnv("GRIDNOTE_DEBOUNCE", 0),
		RetryInterval: durationEnv("GRIDNOTE_RETRY_INTERVAL", 0),
	})
	engine.OnSyncError(func(message string) {
		if message == "" {
			logger.Info().Msg("sync recovered")
			return
		}
		logger.Warn().Str("error", message).Msg("sync degraded")
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx, userID); err != nil {
		// Session stays started; the next pull or edit retries.
		logger.Warn().Err(err).Msg("initial sync failed")
	}
	logger.Info().Str("user", userID).Str("remote", remoteURL).Str("dsn", dsn).
		Msg("gridnote sync running")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	engine.Shutdown()
}

func stateDSNFromEnv() (string, error) {
	if dsn := strings.TrimSpace(os.Getenv("GRIDNOTE_STATE_DSN")); dsn != "" {
		return dsn, nil
	}
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("GRIDNOTE_BACKEND_PROFILE")))
	dataDir := strings.TrimSpace(os.Getenv("GRIDNOTE_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".gridnote"
	}
	switch profile {
	case "", "durable-local", "local-durable":
		return "file://" + filepath.Join(dataDir, "state.json"), nil
	case "memory", "inmemory":
		return "memory://", nil
	case "production", "prod":
		dsn := strings.TrimSpace(os.Getenv("GRIDNOTE_POSTGRES_DSN"))
		if dsn == "" {
			return "", fmt.Errorf("GRIDNOTE_POSTGRES_DSN is required when GRIDNOTE_BACKEND_PROFILE=%s", profile)
		}
		return dsn, nil
	default:
		return "", fmt.Errorf("unsupported GRIDNOTE_BACKEND_PROFILE: %s", profile)
	}
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
