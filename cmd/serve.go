package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/config"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/db"
	httpSrv "github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/http"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/index"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run ops HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level, "serve")

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() {
			_ = chDB.Close()
		}()

		// read-only index client for /v1/verify point reads
		idx := index.NewHTTPClient(
			cfg.Index.BaseURL,
			cfg.Index.TimeoutMs,
			cfg.Index.Breaker.FailThreshold,
			cfg.Index.Breaker.OpenForMs,
		)

		server := httpSrv.NewServer(cfg, mysqlDB, chDB, idx)

		errCh := make(chan error, 1)
		go func() {
			log.Printf("starting http on %s", cfg.HTTP.Addr)
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Printf("signal received: %s, shutting down...", sig)
		case err := <-errCh:
			if err != nil {
				log.Printf("http server exited: %v", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
