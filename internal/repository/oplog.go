package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
)

// ErrDuplicateToken means a row with the same (tenant_id, token) already
// exists. This is the replay signal, not a failure.
var ErrDuplicateToken = errors.New("operation log: duplicate token")

const mysqlErrDupEntry = 1062

// OperationLogRepository persists the append-only record of index-mutating
// intents (sync_operations table).
type OperationLogRepository interface {
	// Append writes one operation inside the caller-supplied transaction,
	// so intent and status commit (or roll back) together.
	Append(ctx context.Context, tx *sqlx.Tx, op model.Operation) error
	FindByToken(ctx context.Context, tenantID, token string) (*model.Operation, error)
	ListByEntity(ctx context.Context, key model.EntityKey, limit int) ([]model.Operation, error)
}

type OperationLogRepositoryImpl struct {
	db *sqlx.DB
}

func NewOperationLogRepository(db *sqlx.DB) *OperationLogRepositoryImpl {
	return &OperationLogRepositoryImpl{db: db}
}

func (r *OperationLogRepositoryImpl) Append(ctx context.Context, tx *sqlx.Tx, op model.Operation) error {
	const q = `
		INSERT INTO sync_operations
		    (id, tenant_id, entity_type, entity_id, kind, token, payload, created_at)
		VALUES
		    (?,  ?,         ?,           ?,         ?,    ?,     ?,       NOW())
	`
	_, err := tx.ExecContext(ctx, q,
		op.ID, op.TenantID, op.EntityType, op.EntityID, op.Kind.String(), op.Token, []byte(op.Payload),
	)
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrDupEntry {
		return ErrDuplicateToken
	}
	return err
}

// FindByToken returns nil when no operation with that token exists for the
// tenant. The tenant filter is part of the key, never optional.
func (r *OperationLogRepositoryImpl) FindByToken(ctx context.Context, tenantID, token string) (*model.Operation, error) {
	const q = `
		SELECT id, tenant_id, entity_type, entity_id, kind, token, payload, created_at
		FROM sync_operations
		WHERE tenant_id = ? AND token = ?
	`
	var op model.Operation
	err := r.db.GetContext(ctx, &op, q, tenantID, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// ListByEntity returns the newest operations for one entity, newest first.
func (r *OperationLogRepositoryImpl) ListByEntity(ctx context.Context, key model.EntityKey, limit int) ([]model.Operation, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
		SELECT id, tenant_id, entity_type, entity_id, kind, token, payload, created_at
		FROM sync_operations
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	ops := []model.Operation{}
	err := r.db.SelectContext(ctx, &ops, q, key.TenantID, key.EntityType, key.EntityID, limit)
	return ops, err
}
