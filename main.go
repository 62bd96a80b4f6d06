package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"mediastore/config"
	"mediastore/config/database"
	"mediastore/internal/auth/model"
	"mediastore/internal/auth/repository"
	"mediastore/internal/auth/service"
	mediaRepository "mediastore/internal/media/repository"
	"mediastore/middleware"
	"mediastore/pkg/logger"
	"mediastore/router"
	"mediastore/socket"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [port [root]]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "mediastore: %v\n", err)
		os.Exit(2)
	}

	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	repo := mediaRepository.NewMediaRepository(mediaRepository.Layout{
		Root:       cfg.StorageRoot,
		PublicDir:  cfg.PublicDir,
		PrivateDir: cfg.PrivateDir,
	})
	if err := repo.EnsureLayout(); err != nil {
		logger.Sugar.Fatalf("Failed to prepare storage root %s: %v", cfg.StorageRoot, err)
	}

	var db *sql.DB
	if cfg.LoginEnabled() {
		db, err = openUsers(cfg)
		if err != nil {
			logger.Sugar.Fatalf("Failed to open user database: %v", err)
		}
		defer db.Close()
	} else {
		logger.Sugar.Warn("database_url is not set, /auth/token is disabled")
	}

	// The Hub fans store events out to /events subscribers.
	hub := socket.NewHub()
	go hub.Run()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(cfg, repo, db, hub),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Sugar.Infof("Media store listening on %s, serving %s", cfg.Addr(), cfg.StorageRoot)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, shutdownSignals...)
	<-quit

	logger.Sugar.Info("Shutdown signal received, draining connections")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	hub.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar.Errorf("Graceful shutdown failed: %v", err)
	}
	logger.Sugar.Info("Media store stopped")
}

// openUsers connects to the user database, creates the users table and
// bootstraps the admin account when one is configured.
func openUsers(cfg *config.Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	users := repository.NewUserRepository(db)
	if err := users.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.AdminUsername != "" {
		svc := service.NewAuthService(users, cfg.JWTSecret, cfg.TokenTTL)
		roles := []string{middleware.RoleReader, middleware.RoleEditor}
		if err := svc.EnsureUser(ctx, cfg.AdminUsername, cfg.AdminPassword, roles); err != nil {
			db.Close()
			return nil, fmt.Errorf("bootstrap user %s: %w", cfg.AdminUsername, err)
		}
		logger.Sugar.Infof("Bootstrapped user %s with roles %s", cfg.AdminUsername, model.JoinRoles(roles))
	}
	return db, nil
}
