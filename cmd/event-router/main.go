package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/grvram01/person-service-repo/config"
	"github.com/grvram01/person-service-repo/consumers"
	"github.com/grvram01/person-service-repo/domain"
	"github.com/grvram01/person-service-repo/router"
	"github.com/grvram01/person-service-repo/storage"
)

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Println("event router starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	eventsQueue := os.Getenv("EVENTS_QUEUE")
	deadLetterQueue := os.Getenv("DEADLETTER_QUEUE")
	auditTable := os.Getenv("AUDIT_TABLE")
	if connStr == "" || eventsQueue == "" || deadLetterQueue == "" || auditTable == "" {
		log.Fatal("missing storage config")
	}

	store, err := storage.New(connStr, storage.Config{
		EventsQueue:     eventsQueue,
		DeadLetterQueue: deadLetterQueue,
		AuditTable:      auditTable,
	})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisOptions(redisConn))
	deduper := consumers.NewRedisDeduper(rc, config.Duration("DEDUPER_TTL", 24*time.Hour))

	logger := log.New()
	subs := []router.Subscription{
		{Source: domain.EventSource, Type: domain.TypeRecordChanged, Consumer: consumers.NewAuditSink(store, logger)},
		{Source: domain.EventSource, Type: domain.TypeRecordChanged, Consumer: consumers.NewNotifier(deduper, logger)},
	}
	bus := router.NewBus(subs, store, router.Config{
		MaxAttempts:    config.Int("DELIVERY_MAX_ATTEMPTS", 3),
		RetryInitial:   config.Duration("DELIVERY_RETRY_INITIAL", 250*time.Millisecond),
		RetryMax:       config.Duration("DELIVERY_RETRY_MAX", 15*time.Second),
		AttemptTimeout: config.Duration("DELIVERY_TIMEOUT", 30*time.Second),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pollInterval := config.Duration("ROUTER_POLL_INTERVAL", time.Second)
	for ctx.Err() == nil {
		queued, err := store.Dequeue(ctx)
		if err != nil {
			logger.WithError(err).Error("dequeue failed")
			sleep(ctx, pollInterval)
			continue
		}
		if queued == nil {
			sleep(ctx, pollInterval)
			continue
		}
		if queued.DecodeErr != nil {
			logger.WithError(queued.DecodeErr).Warn("undecodable event parked")
			if err := store.SendRaw(ctx, queued.Raw, queued.DecodeErr); err != nil {
				// Leave the message for redelivery rather than dropping it.
				logger.WithError(err).Error("dead-letter park failed")
				sleep(ctx, pollInterval)
				continue
			}
			if err := store.Delete(ctx, queued.MessageID, queued.PopReceipt); err != nil {
				logger.WithError(err).Warn("event ack failed")
			}
			continue
		}
		bus.Dispatch(ctx, queued.Event)
		// Delete only after dispatch: a crash in between redelivers the
		// event, and consumers tolerate the duplicate.
		if err := store.Delete(ctx, queued.MessageID, queued.PopReceipt); err != nil {
			logger.WithError(err).WithField("event", queued.Event.ID).Warn("event ack failed")
		}
	}
	log.Println("event router stopped")
}

// redisOptions understands both redis URLs and the comma-separated
// host,password=...,ssl=true form managed Redis hands out.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
