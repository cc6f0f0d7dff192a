package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/config"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/db"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/engine"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/index"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/ingest"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/kafka"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/logger"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/metrics"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/repository"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run Kafka change-event ingest worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level, "ingest")
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

		rds, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = rds.Close() }()

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

		// 5) writer with the full dedup window
		writer := engine.NewWriter(engine.NewTxRunner(dbx), oplogRepo, statusRepo, idx, engine.WriterOptions{
			Dedup:      engine.NewRedisDeduper(rds, cfg.Dedup.KeyPrefix, cfg.Dedup.Window),
			Attempts:   attemptsRepo,
			MaxRetries: cfg.Reconciler.MaxRetries,
			Backoff: engine.Backoff{
				Base: cfg.Reconciler.BackoffBase,
				Max:  cfg.Reconciler.BackoffMax,
			},
		})

		// 6) kafka consumer
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "indexsync-ingest"
		}

		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		c := ingest.NewConsumer(consumer, writer)

		// 7) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> ingest started topic=%s group=%s workers=%d",
			cfg.Kafka.Topic, groupID, c.Workers)

		return c.Run(ctx)
	},
}
