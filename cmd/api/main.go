package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/pager/server/internal/auth"
	"github.com/pager/server/internal/config"
	"github.com/pager/server/internal/db"
	httphandler "github.com/pager/server/internal/http"
	"github.com/pager/server/internal/http/handlers"
	"github.com/pager/server/internal/media"
	"github.com/pager/server/internal/notify"
	"github.com/pager/server/internal/repo"
	"github.com/pager/server/internal/transport"
)

func main() {
	// Load .env from CWD so it works during development (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	userRepo := repo.NewUserRepo(database)
	groupRepo := repo.NewGroupRepo(database)
	chatRepo := repo.NewChatRepo(database)
	imageRepo := repo.NewImageRepo(database)
	identifierRepo := repo.NewIdentifierRepo(database)

	// Core services
	verifier := auth.NewVerifier(userRepo, groupRepo, identifierRepo)
	registrationTokens := auth.NewRegistrationTokenService(cfg.JWTSecret)
	throttle := notify.NewThrottle()
	defer throttle.Close()
	pusher := notify.NewExpoPusher(cfg.ExpoPushURL)

	mediaStore, err := media.NewStore(cfg.MediaDir)
	if err != nil {
		log.Fatalf("Failed to open media store: %v", err)
	}

	// Live-connection registry
	live := transport.NewServer(transport.Deps{
		Verifier:       verifier,
		Users:          userRepo,
		Groups:         groupRepo,
		Chats:          chatRepo,
		Images:         imageRepo,
		Throttle:       throttle,
		Pusher:         pusher,
		Media:          mediaStore,
		MediaBaseURL:   cfg.ServerURL,
		AdminGroupName: cfg.AdminGroupName,
	})

	// Handlers
	signupHandler := handlers.NewSignupHandler(userRepo, registrationTokens)
	mediaHandler := handlers.NewMediaHandler(imageRepo, mediaStore, live)
	pagerHandler := handlers.NewPagerHandler(userRepo, groupRepo, pusher)
	lockoutHandler := handlers.NewLockoutHandler(userRepo, groupRepo, pusher, live, cfg.AdminGroupName)

	router := httphandler.NewRouter(verifier, live, signupHandler, mediaHandler, pagerHandler, lockoutHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("[SERVER] Now listening on port %s.", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
