package engine

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// TxRunner is the relational transaction boundary. The writer keeps this
// scope short: it must never span an index call.
type TxRunner interface {
	InTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type sqlTxRunner struct {
	db *sqlx.DB
}

func NewTxRunner(db *sqlx.DB) TxRunner {
	return &sqlTxRunner{db: db}
}

func (r *sqlTxRunner) InTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
