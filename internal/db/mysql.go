package db

import (
	"context"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/config"
)

// NewMySQLConnection opens a *sqlx.DB against the system-of-record side
// (sync_operations + sync_status) with pool limits from config. The pool is
// shared by request handlers and the reconciler, so limits matter here.
func NewMySQLConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("empty MySQL DSN")
	}
	sdb, err := sqlx.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}
	applyPoolOpts(sdb, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout(cfg))
	defer cancel()
	if err := sdb.PingContext(ctx); err != nil {
		_ = sdb.Close()
		return nil, err
	}

	return sdb, nil
}
