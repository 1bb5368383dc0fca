package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/user/movieverse/internal/auth"
	"github.com/user/movieverse/internal/bot"
	"github.com/user/movieverse/internal/catalog"
	"github.com/user/movieverse/internal/config"
	"github.com/user/movieverse/internal/importer"
	"github.com/user/movieverse/internal/media"
	"github.com/user/movieverse/internal/scheduler"
	"github.com/user/movieverse/internal/server"
	"github.com/user/movieverse/internal/store"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 30 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Str("driver", cfg.DB.Driver).Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(&cfg.DB, store.PasswordScheme(cfg.Auth.PasswordScheme))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Database connection established")

	if cfg.Auth.AdminUsername != "" {
		if err := db.CreateAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed admin account")
		}
		log.Info().Str("username", cfg.Auth.AdminUsername).Msg("Admin account ready")
	}

	files := media.NewFileSystemStore(cfg.Media.Root)
	if err := files.EnsureDir(); err != nil {
		log.Fatal().Err(err).Str("root", cfg.Media.Root).Msg("Failed to prepare media directory")
	}

	imp := importer.New(&importer.Config{
		RateLimit:  cfg.Import.RateLimit,
		Timeout:    cfg.Import.Timeout,
		MaxRetries: cfg.Import.MaxRetries,
		Backoff:    time.Second,
		UserAgent:  cfg.Import.UserAgent,
	})

	sessions := auth.NewSessions(db, cfg.Auth.SessionTTL)
	svc := catalog.NewService(db, sessions, files, imp)

	sched := scheduler.NewScheduler(db, &cfg.Stats)

	httpServer := server.NewServer(svc, db, server.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	})

	var telegramClient *bot.Client
	if cfg.Bot.Token != "" {
		telegramClient, err = bot.NewClient(cfg.Bot.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Telegram client")
		}
		log.Info().Str("username", telegramClient.Username()).Msg("Telegram client initialized")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	sched.Start(ctx)

	if telegramClient != nil {
		handler := bot.NewHandler(svc, telegramClient)
		go func() {
			log.Info().Msg("Starting Telegram bot polling")
			handler.Run(ctx, telegramClient.GetUpdates())
		}()
	}

	log.Info().Msg("MovieVerse started successfully")

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	log.Info().Msg("Starting graceful shutdown...")

	// 1. Stop refreshing stats
	sched.Stop()

	// 2. Stop Telegram bot polling
	if telegramClient != nil {
		telegramClient.StopReceivingUpdates()
		log.Info().Msg("Telegram bot polling stopped")
	}

	// 3. Drain HTTP requests
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
	} else {
		log.Info().Msg("HTTP server stopped")
	}

	// 4. Close the connection pool last so in-flight requests can finish
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	} else {
		log.Info().Msg("Database connection closed")
	}

	cancel()

	select {
	case <-shutdownCtx.Done():
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			log.Warn().Msg("Shutdown timeout exceeded, forcing exit")
		}
	default:
		log.Info().Msg("Graceful shutdown completed")
	}
}
