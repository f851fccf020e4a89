package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/grvram01/person-service-repo/config"
	"github.com/grvram01/person-service-repo/relay"
	"github.com/grvram01/person-service-repo/storage"
)

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Println("change relay starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	changesTable := os.Getenv("CHANGES_TABLE")
	checkpointsTable := os.Getenv("CHECKPOINTS_TABLE")
	eventsQueue := os.Getenv("EVENTS_QUEUE")
	if connStr == "" || changesTable == "" || checkpointsTable == "" || eventsQueue == "" {
		log.Fatal("missing storage config")
	}

	store, err := storage.New(connStr, storage.Config{
		ChangesTable:     changesTable,
		CheckpointsTable: checkpointsTable,
		EventsQueue:      eventsQueue,
	})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	logger := log.New()
	runner := relay.NewRunner(store, relay.New(store, logger), store, relay.RunnerConfig{
		BatchSize:     config.Int("RELAY_BATCH_SIZE", 25),
		PollInterval:  config.Duration("RELAY_POLL_INTERVAL", time.Second),
		MaxAttempts:   config.Int("RELAY_MAX_ATTEMPTS", 5),
		RetryInitial:  config.Duration("RELAY_RETRY_INITIAL", 250*time.Millisecond),
		RetryMax:      config.Duration("RELAY_RETRY_MAX", 30*time.Second),
		Retention:     config.Duration("FEED_RETENTION", 24*time.Hour),
		PruneInterval: config.Duration("FEED_PRUNE_INTERVAL", 5*time.Minute),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("relay: %v", err)
	}
	log.Println("change relay stopped")
}
