package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"roomsync/api/internal/access"
	"roomsync/api/internal/app"
	"roomsync/api/internal/config"
	"roomsync/api/internal/notify"
	"roomsync/api/internal/room"
	"roomsync/api/internal/search"
	"roomsync/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var (
		dataStore  store.RoomStore
		redisStore *store.RedisStore
	)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		rs, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer rs.Close()
		redisStore = rs
	}

	switch {
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		log.Printf("Using PostgreSQL for room storage")
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		if err := store.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("schema setup failed: %v", err)
		}
		dataStore = store.NewPostgresStore(db)
	case redisStore != nil:
		log.Printf("Using Redis for room storage")
		dataStore = redisStore
	default:
		log.Printf("WARNING: no DATABASE_URL or REDIS_URL set, rooms are in-memory only")
		dataStore = store.NewMemoryStore()
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, dataStore)

	var notifier access.Notifier
	emailSender := notify.NewEmailSender(notify.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if emailSender.IsConfigured() {
		queue := notify.NewQueue(emailSender, 256)
		defer queue.Close()
		notifier = queue
	} else {
		log.Printf("SMTP not configured, grant notifications disabled")
	}

	var invalidator room.Invalidator
	if redisStore != nil {
		invalidator = room.InvalidatorFunc(redisStore.PublishInvalidation)
	}

	acl := access.NewManager(dataStore, notifier)
	rooms := room.NewService(dataStore, acl, invalidator, searchService)

	httpServer := app.NewHTTPServer(rooms, searchService, dataStore, []byte(cfg.JWTSecret), cfg.RoomTokenTTL, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("RoomSync API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
