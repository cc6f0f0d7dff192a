package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
)

// AttemptsRepository is the ClickHouse-backed attempt history: one row per
// apply/reconcile attempt, append-only.
type AttemptsRepository interface {
	Insert(ctx context.Context, a model.SyncAttempt) error
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]model.SyncAttempt, error)
	ListByEntity(ctx context.Context, key model.EntityKey, limit int) ([]model.SyncAttempt, error)
}

type AttemptsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAttemptsRepository(db *sqlx.DB) *AttemptsRepositoryImpl {
	return &AttemptsRepositoryImpl{db: db}
}

func (r *AttemptsRepositoryImpl) Insert(ctx context.Context, a model.SyncAttempt) error {
	const q = `
		INSERT INTO sync_attempts
		    (tenant_id, entity_type, entity_id, token, outcome, error, attempt, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, q,
		a.TenantID, a.EntityType, a.EntityID, a.Token, a.Outcome, a.Error, a.Attempt, a.OccurredAt,
	)
	return err
}

func (r *AttemptsRepositoryImpl) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]model.SyncAttempt, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const q = `
		SELECT tenant_id, entity_type, entity_id, token, outcome, error, attempt, occurred_at
		FROM sync_attempts
		WHERE tenant_id = ?
		ORDER BY occurred_at DESC
		LIMIT ? OFFSET ?
	`
	rows := []model.SyncAttempt{}
	err := r.db.SelectContext(ctx, &rows, q, tenantID, limit, offset)
	return rows, err
}

func (r *AttemptsRepositoryImpl) ListByEntity(ctx context.Context, key model.EntityKey, limit int) ([]model.SyncAttempt, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	const q = `
		SELECT tenant_id, entity_type, entity_id, token, outcome, error, attempt, occurred_at
		FROM sync_attempts
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
		ORDER BY occurred_at DESC
		LIMIT ?
	`
	rows := []model.SyncAttempt{}
	err := r.db.SelectContext(ctx, &rows, q, key.TenantID, key.EntityType, key.EntityID, limit)
	return rows, err
}
