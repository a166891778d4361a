package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ipg-server/internal/auth"
	"ipg-server/internal/game"
	"ipg-server/internal/history"
	"ipg-server/internal/lobby"
	"ipg-server/internal/maps"
	"ipg-server/internal/middleware"
	"ipg-server/internal/rejoin"
	"ipg-server/internal/server"
	"ipg-server/internal/session"
	"ipg-server/internal/shared/config"
	"ipg-server/internal/shared/database"
	"ipg-server/internal/shared/logger"
	"ipg-server/internal/shared/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init()

	if err := run(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.GlobalConfig
	log := slog.With("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *database.DB
	if cfg.Database.Enabled {
		var err error
		db, err = database.Connect()
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Failed to close database", "error", err)
			}
		}()

		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info("Database disabled, game history will not be recorded")
	}

	rdb, err := redis.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	var rejoinStore rejoin.Store
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error("Failed to close redis", "error", err)
			}
		}()
		rejoinStore = rejoin.NewRedisStore(rdb)
	} else {
		memory := rejoin.NewMemoryStore()
		memory.StartCleanup(ctx, time.Minute)
		rejoinStore = memory
	}
	rejoinService := rejoin.NewService(rejoinStore, cfg.Game.RejoinTTL)

	mapManager, err := maps.NewFileSystem(cfg.Game.MapsDir)
	if err != nil {
		return fmt.Errorf("failed to load maps: %w", err)
	}

	gameLobby := lobby.New(mapManager, game.GameConfig{MinPlayers: cfg.Game.DefaultMinPlayers})

	var recorder *history.Recorder
	var historyService *history.Service
	if db != nil {
		repo := history.NewRepository(db)
		recorder = history.NewRecorder(repo, history.RecorderConfigFrom(cfg))
		historyService = history.NewService(repo)
		gameLobby.OnRoomCreated(recorder.Attach)
		gameLobby.OnRoomRemoved(recorder.Detach)
	}

	sessions := session.NewHandler(gameLobby, mapManager, rejoinService, session.ConfigFrom(cfg))

	states := auth.NewStateManager()
	states.StartCleanup(ctx, 5*time.Minute)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		Enabled:           cfg.RateLimit.Enabled,
		TrustProxy:        cfg.RateLimit.TrustProxy,
	})
	rateLimiter.StartCleanup(ctx, 5*time.Minute)

	routes := &server.Routes{
		DB:        db,
		Lobby:     gameLobby,
		Maps:      mapManager,
		Sessions:  sessions,
		History:   historyService,
		Recorder:  recorder,
		States:    states,
		Providers: auth.InitOAuth(),
	}
	handler := middleware.NewCORS().Middleware(rateLimiter.Middleware(routes.Setup()))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Inter Planet Game server starting",
			"port", cfg.Server.Port,
			"environment", cfg.Server.Environment,
			"maps", len(mapManager.MapIDs()),
			"history_enabled", recorder != nil,
			"redis_enabled", rdb != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		log.Error("Websocket sessions did not close in time", "error", err)
	}
	gameLobby.Close(shutdownCtx)
	if recorder != nil {
		if err := recorder.Close(shutdownCtx); err != nil {
			log.Error("History recorder did not drain in time", "error", err)
		}
	}

	log.Info("Server stopped")
	return nil
}
