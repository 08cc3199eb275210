package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rentline/internal/cache"
	"rentline/internal/config"
	"rentline/internal/domain"
	"rentline/internal/httpserver"
	"rentline/internal/notify"
	"rentline/internal/realtime"
	"rentline/internal/security"
	"rentline/internal/service"
	"rentline/internal/storage"
	"rentline/internal/store/postgres"
	"rentline/internal/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var (
		db            *sql.DB
		conversations domain.ConversationRepository
		messages      domain.MessageRepository
		profiles      domain.ProfileDirectory
		properties    domain.PropertyCatalog
	)
	switch cfg.Driver {
	case "postgres":
		db, err = postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := postgres.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		conversations = postgres.NewConversationRepo(db)
		messages = postgres.NewMessageRepo(db)
		profiles = postgres.NewProfileRepo(db)
		properties = postgres.NewPropertyRepo(db)
	default:
		db, err = sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := sqlite.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		conversations = sqlite.NewConversationRepo(db)
		messages = sqlite.NewMessageRepo(db)
		profiles = sqlite.NewProfileRepo(db)
		properties = sqlite.NewPropertyRepo(db)
	}
	defer db.Close()

	// Projection cache and notification queue share the Redis instance;
	// without one, enrichment caches in process and notifications are off.
	var projCache cache.Cache
	var notifier notify.Notifier = notify.Nop{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rc.Close()
		projCache = rc

		an, err := notify.NewAsynqNotifier(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to init notifier: %v", err)
		}
		defer an.Close()
		notifier = an
	} else {
		projCache = cache.NewMemory()
	}
	directory := cache.NewDirectory(projCache, profiles, properties)

	blobs, err := storage.NewLocalStore(cfg.UploadDir, cfg.UploadBaseURL)
	if err != nil {
		log.Fatalf("failed to init blob store: %v", err)
	}

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	feed := realtime.NewFeed()

	settings := service.Settings{
		EditWindow:      cfg.EditWindow,
		MaxContentChars: cfg.MaxMessageSize,
		SendRetries:     cfg.SendRetries,
		PageSize:        cfg.PageSize,
	}
	convSvc := service.NewConversationService(conversations, messages, directory, directory, feed)
	msgSvc := service.NewMessageService(conversations, messages, directory, blobs, feed, notifier, settings)

	router := httpserver.NewRouter(cfg, convSvc, msgSvc, conversations, blobs, feed, tokenSvc)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting %s on %s (driver=%s)\n", cfg.AppName, cfg.HTTPAddr(), cfg.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
