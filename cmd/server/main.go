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
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/sechat/internal/api"
	"github.com/eldtechnologies/sechat/internal/auth"
	"github.com/eldtechnologies/sechat/internal/chat"
	"github.com/eldtechnologies/sechat/internal/config"
	"github.com/eldtechnologies/sechat/internal/handlers"
	"github.com/eldtechnologies/sechat/internal/realtime"
	"github.com/eldtechnologies/sechat/internal/store"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Message store: Postgres when configured, SQLite otherwise
	var ds store.DataStore
	if cfg.UsePostgres() {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		ds = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		ds = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer ds.Close()

	hub := realtime.NewHub(logger)

	// Fan-out: through Redis when configured so every instance sees every
	// commit, straight into the local hub otherwise
	var (
		redisStore *store.RedisStore
		relay      *realtime.RedisRelay
		publisher  realtime.Publisher = hub
		cache      chat.RoomCache
	)
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()

		relay = realtime.NewRedisRelay(redisStore.Client(), hub, logger)
		publisher = relay
		cache = redisStore
		logger.Info().Msg("connected to Redis")
	}

	if cfg.AdminEmail == "" || cfg.AdminPasswordHash == "" {
		logger.Warn().Msg("ADMIN_EMAIL or ADMIN_PASSWORD_HASH not set, admin login disabled")
	}

	gateway := chat.NewGateway(ds, publisher, logger)
	deps := handlers.Deps{
		Gateway:       gateway,
		Rooms:         chat.NewRooms(ds, gateway, publisher, cache, logger),
		Auth:          auth.NewAuthenticator(cfg.AdminEmail, cfg.AdminPasswordHash, auth.NewTokenManager(cfg.JWTSecret)),
		Hub:           hub,
		Store:         ds,
		Redis:         redisStore,
		Logger:        logger,
		SecureCookies: !cfg.IsDevelopment(),
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     api.NewRouter(logger, cfg, deps),
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset for websocket streams.
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting SeChat server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}

	logger.Info().Msg("server stopped")
}
