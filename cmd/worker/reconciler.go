package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/config"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/db"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/engine"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/index"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/logger"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/metrics"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/repository"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/worker"
)

var reconcilerCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Run retry/reconciliation worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level, "reconciler")
		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) DB connections
		dbx, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() {
			_ = chDB.Close()
		}()

		// 3) repositories
		oplogRepo := repository.NewOperationLogRepository(dbx)
		statusRepo := repository.NewSyncStatusRepository(dbx)
		attemptsRepo := repository.NewAttemptsRepository(chDB)

		// 4) index client
		idx := index.NewHTTPClient(
			cfg.Index.BaseURL,
			cfg.Index.TimeoutMs,
			cfg.Index.Breaker.FailThreshold,
			cfg.Index.Breaker.OpenForMs,
		)

		// 5) writer (redrive path only, no dedup needed here)
		writer := engine.NewWriter(engine.NewTxRunner(dbx), oplogRepo, statusRepo, idx, engine.WriterOptions{
			Attempts:   attemptsRepo,
			MaxRetries: cfg.Reconciler.MaxRetries,
			Backoff: engine.Backoff{
				Base: cfg.Reconciler.BackoffBase,
				Max:  cfg.Reconciler.BackoffMax,
			},
		})

		r := worker.NewReconciler(statusRepo, writer)

		// tune knobs
		if cfg.Reconciler.Interval > 0 {
			r.Interval = cfg.Reconciler.Interval
		}
		if cfg.Reconciler.BatchSize > 0 {
			r.BatchSize = cfg.Reconciler.BatchSize
		}
		if cfg.Reconciler.WorkerCount > 0 {
			r.Workers = cfg.Reconciler.WorkerCount
		}

		// 6) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> reconciler started interval=%s batchSize=%d workers=%d maxRetries=%d",
			r.Interval, r.BatchSize, r.Workers, writer.MaxRetries())

		return r.Run(ctx)
	},
}
