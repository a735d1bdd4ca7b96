package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/playloop/arena/config"
	"github.com/playloop/arena/db"
	"github.com/playloop/arena/handlers"
	"github.com/playloop/arena/middleware"
	"github.com/playloop/arena/realtime"
	"github.com/playloop/arena/repositories"
	api "github.com/playloop/arena/routes"
	"github.com/playloop/arena/services"
	"github.com/playloop/arena/storage"
	"golang.org/x/sync/errgroup"
)

const (
	resumeTokenTTL   = 24 * time.Hour
	retentionSweep   = time.Minute
	shutdownTimeout  = 15 * time.Second
	dbConnectTimeout = 5 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Snapshot store: Postgres when configured, otherwise ephemeral. The
	// coordinator behaves identically either way; only reconnects across a
	// process restart need the durable variant.
	var dbConn *sql.DB
	var snapshots repositories.SnapshotRepository
	if cfg.DatabaseURL != "" {
		dbConn, err = db.Connect(cfg.DatabaseURL, dbConnectTimeout)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			}
		}()
		snapshots = repositories.NewPostgresSnapshotRepository(dbConn)
		logger.Info("postgres snapshot store ready")
	} else {
		snapshots = repositories.NewMemorySnapshotRepository()
		logger.Info("running on the in-memory snapshot store")
	}

	var archiver storage.ResultsArchiver = storage.NoopArchiver{}
	if cfg.ArchiveConfigured() {
		archiver, err = storage.NewCloudflareR2Archiver(storage.CloudflareR2ArchiverConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize results archiver", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("results archiver initialized")
	}

	registry := services.NewRegistry()
	tournamentService := services.NewTournamentService(registry, snapshots, archiver, logger)
	assembler := services.NewReconnectAssembler(tournamentService)
	tokens := middleware.NewTokenManager(cfg.JWTSecretKey, resumeTokenTTL)

	hub := realtime.NewHub(logger)
	gateway := realtime.NewGateway(tournamentService, assembler, hub, tokens, logger, cfg.RoundDuration)
	logger.Info("realtime gateway initialized", slog.Duration("round_duration", cfg.RoundDuration))

	tournamentHandler := handlers.NewTournamentHandler(tournamentService, assembler, gateway, tokens)
	healthHandler := handlers.NewHealthHandler(dbConn)
	webSocketHandler := handlers.NewWebSocketHandler(hub, gateway, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, logger, cfg.CORSAllowedOrigins, tokens,
		tournamentHandler, healthHandler, webSocketHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Retention sweeper: completed tournaments past the retention window
	// leave the registry and the durable store.
	group.Go(func() error {
		ticker := time.NewTicker(retentionSweep)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				cutoff := time.Now().Add(-cfg.RetentionWindow)
				if evicted := tournamentService.EvictCompletedBefore(groupCtx, cutoff); len(evicted) > 0 {
					logger.Info("retention sweep complete", slog.Int("evicted", len(evicted)))
				}
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received")
		gateway.Shutdown()
		tournamentService.Flush()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			return server.Close()
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}
