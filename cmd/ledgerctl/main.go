package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/commands"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	env := commands.Env{
		OpenLedger: func(ctx context.Context) (commands.Ledger, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
			if err != nil {
				return nil, nil, err
			}
			closeFn := pool.Close
			opts := app.LedgerOptions{}
			// Writes must bump the report cache the API server reads from.
			if client, err := cache.New(ctx, cfg.RedisAddr); err == nil {
				opts.Cache = cache.NewVersioned(client, cfg.ReportCacheTTL)
				closeFn = func() {
					_ = client.Close()
					pool.Close()
				}
			} else {
				logger.Warn("redis unavailable, report cache not invalidated", slog.Any("error", err))
			}
			ledger := app.NewLedger(cfg, pool, logger, opts)
			return ledger.Accounting, closeFn, nil
		},
		MigrateUp: func() error {
			return db.Migrate(cfg.PGDSN, logger)
		},
		MigrateDown: func(steps int) error {
			return db.MigrateDown(cfg.PGDSN, steps, logger)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCommand(env).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
