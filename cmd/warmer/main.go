package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"breadcast/internal/adapters/breadcast"
	"breadcast/internal/adapters/observability"
	redisad "breadcast/internal/adapters/redis"
	"breadcast/internal/app"
	"breadcast/internal/shared"
	mysqlrepo "breadcast/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := shared.Load()
	var (
		ids     string
		workers int
	)
	cmd := &cobra.Command{
		Use:          "warmer [bakery-id...]",
		Short:        "Pre-fetch bakery details and menus into the cache",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := append(shared.SplitIDs(ids), args...)
			if len(list) == 0 {
				return fmt.Errorf("no bakery ids: pass --ids or set WARM_BAKERY_IDS")
			}
			return run(cmd.Context(), cfg, list, workers)
		},
	}
	cmd.Flags().StringVar(&ids, "ids", strings.Join(cfg.WarmBakeryIDs, ","), "comma separated bakery ids")
	cmd.Flags().IntVar(&workers, "workers", cfg.WarmWorkers, "concurrent upstream fetches")
	return cmd
}

func run(ctx context.Context, cfg shared.Config, ids []string, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)
	log.Info().
		Str("base", cfg.BreadcastBase).
		Int("workers", workers).
		Int("bakeries", len(ids)).
		Msg("warmer starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	defer db.Close()
	repo := mysqlrepo.New(db)
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}

	client, err := breadcast.New(cfg.BreadcastBase, cfg.BreadcastRPS, cfg.UpstreamTimeout)
	if err != nil {
		return fmt.Errorf("breadcast client: %w", err)
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	w := app.NewWarmService(client, repo, cache, cfg.CacheTTL)

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var failed atomic.Int32

	for _, id := range ids {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(bakeryID string) {
			defer wg.Done()
			defer sem.Release(1)

			if err := w.WarmBakery(ctx, bakeryID); err != nil {
				failed.Add(1)
				log.Warn().Str("id", bakeryID).Err(err).Msg("warm failed")
				return
			}
			log.Info().Str("id", bakeryID).Msg("warm ok")
		}(id)
	}

	wg.Wait()
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d bakeries failed", n, len(ids))
	}
	log.Info().Msg("warm-up completed")
	return ctx.Err()
}
