package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"breadcast/internal/adapters/breadcast"
	server "breadcast/internal/adapters/http_server"
	"breadcast/internal/adapters/observability"
	redisad "breadcast/internal/adapters/redis"
	"breadcast/internal/app"
	"breadcast/internal/session"
	"breadcast/internal/shared"
	mysqlrepo "breadcast/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	observability.Serve(cfg.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	repo := mysqlrepo.New(db)
	if err := repo.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	log.Info().Msg("database connection ok")

	// redis backs both the cache and the sessions
	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
	defer rc.Close()
	cache := redisad.NewWithClient(rc)
	if err := cache.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}
	store := redisad.NewSessionStore(rc, cfg.SessionTTL)

	client, err := breadcast.New(cfg.BreadcastBase, cfg.BreadcastRPS, cfg.UpstreamTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize breadcast client")
	}

	// deps
	views := app.NewViewRegistry(client, cfg.IndexWorkers, cfg.ViewTTL)
	h := &server.Handlers{
		Q:            app.NewQueryService(client, cache, cfg.CacheTTL),
		Reviews:      app.NewReviewService(client, views, repo),
		Views:        views,
		Sessions:     session.NewManager(client, store, session.NewExpiryGuard(store, cfg.SessionTTL)),
		WaitTimeout:  5 * time.Second,
		SecureCookie: cfg.AppEnv != "dev" && cfg.AppEnv != "development",
	}

	// http
	srv := server.New(15 * time.Second)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(h)

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("upstream", cfg.BreadcastBase).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	views.Shutdown()
}
