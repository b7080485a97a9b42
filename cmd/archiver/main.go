// Command archiver mirrors the messages collection into PostgreSQL. It
// consumes the same full-snapshot subscription the chat client renders
// from, so it needs no cooperation from senders.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fireside/chat-app/internal/archive"
	"github.com/fireside/chat-app/internal/config"
	"github.com/fireside/chat-app/internal/docstore"
	"github.com/fireside/chat-app/internal/messaging"
)

func main() {
	log.Println("Starting Fireside archiver...")

	cfg := config.Load()
	if cfg.PostgresURL == "" {
		log.Fatalf("POSTGRES_URL is required")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "fireside-archiver"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	if err := archive.RunMigrations(cfg.PostgresURL); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to open Postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}

	store := docstore.NewRedisStore(rdb, natsClient)
	archiver := archive.NewArchiver(db, store)

	ctx, stop := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		stop()
	}()

	if err := archiver.Run(ctx); err != nil {
		log.Fatalf("archiver: %v", err)
	}

	natsClient.Close()
	if err := db.Close(); err != nil {
		log.Printf("postgres close: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Printf("redis close: %v", err)
	}
	log.Println("archiver stopped")
}
