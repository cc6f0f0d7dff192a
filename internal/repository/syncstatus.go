package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
)

// ErrStaleVersion means the row advanced between the caller's read and its
// write. Benign: the write was superseded by a newer one.
var ErrStaleVersion = errors.New("sync status: stale version")

// SyncStatusRepository persists per-entity mirror state (sync_status table).
// Rows are only ever written by the writer and the reconciler.
type SyncStatusRepository interface {
	// GetForUpdate lock-reads one row inside tx; nil when the entity has
	// never been synced.
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, key model.EntityKey) (*model.SyncStatus, error)

	// Upsert inserts (prevVersion 0) or updates the row, failing with
	// ErrStaleVersion when version moved past prevVersion concurrently.
	Upsert(ctx context.Context, tx *sqlx.Tx, st model.SyncStatus, prevVersion int64) error

	// MarkSynced / MarkFailed settle the row after an index call. Both are
	// guarded on last_token so a late settle from a superseded attempt
	// cannot clobber a newer one; a superseded settle is a silent no-op.
	MarkSynced(ctx context.Context, key model.EntityKey, token string, deleted bool) error
	MarkFailed(ctx context.Context, key model.EntityKey, token, reason string, retryCount int, nextRetryAt time.Time) error

	// ClaimDue locks and flips to processing a batch of rows whose retry
	// time elapsed, skipping rows another worker holds. Rows stuck in
	// processing longer than stuckAfter (crash between commit and index
	// call) are claimed too.
	ClaimDue(ctx context.Context, batch, maxRetries int, stuckAfter time.Duration) ([]model.SyncStatus, error)

	Get(ctx context.Context, key model.EntityKey) (*model.SyncStatus, error)
	ListDeadLetters(ctx context.Context, tenantID string, maxRetries, limit, offset int) ([]model.SyncStatus, error)
	ResetForRetry(ctx context.Context, key model.EntityKey) (bool, error)
	HealthCounts(ctx context.Context, maxRetries int) (model.SyncHealth, error)
}

type SyncStatusRepositoryImpl struct {
	db *sqlx.DB
}

func NewSyncStatusRepository(db *sqlx.DB) *SyncStatusRepositoryImpl {
	return &SyncStatusRepositoryImpl{db: db}
}

const syncStatusCols = `
	tenant_id, entity_type, entity_id, version, status, last_token,
	retry_count, next_retry_at, last_error, deleted, created_at, updated_at`

func (r *SyncStatusRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, key model.EntityKey) (*model.SyncStatus, error) {
	q := `SELECT` + syncStatusCols + `
		FROM sync_status
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
		FOR UPDATE`

	var st model.SyncStatus
	err := tx.GetContext(ctx, &st, q, key.TenantID, key.EntityType, key.EntityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *SyncStatusRepositoryImpl) Get(ctx context.Context, key model.EntityKey) (*model.SyncStatus, error) {
	q := `SELECT` + syncStatusCols + `
		FROM sync_status
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?`

	var st model.SyncStatus
	err := r.db.GetContext(ctx, &st, q, key.TenantID, key.EntityType, key.EntityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *SyncStatusRepositoryImpl) Upsert(ctx context.Context, tx *sqlx.Tx, st model.SyncStatus, prevVersion int64) error {
	if prevVersion == 0 {
		const q = `
			INSERT INTO sync_status
			    (tenant_id, entity_type, entity_id, version, status, last_token,
			     retry_count, next_retry_at, last_error, deleted, created_at, updated_at)
			VALUES
			    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		`
		_, err := tx.ExecContext(ctx, q,
			st.TenantID, st.EntityType, st.EntityID, st.Version, st.Status.String(),
			st.LastToken, st.RetryCount, st.NextRetryAt, st.LastError, st.Deleted,
		)
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlErrDupEntry {
			// another writer created the row first
			return ErrStaleVersion
		}
		return err
	}

	const q = `
		UPDATE sync_status
		SET version = ?, status = ?, last_token = ?, retry_count = ?,
		    next_retry_at = ?, last_error = ?, deleted = ?, updated_at = NOW()
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ? AND version = ?
	`
	res, err := tx.ExecContext(ctx, q,
		st.Version, st.Status.String(), st.LastToken, st.RetryCount,
		st.NextRetryAt, st.LastError, st.Deleted,
		st.TenantID, st.EntityType, st.EntityID, prevVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (r *SyncStatusRepositoryImpl) MarkSynced(ctx context.Context, key model.EntityKey, token string, deleted bool) error {
	const q = `
		UPDATE sync_status
		SET status = 'synced', retry_count = 0, next_retry_at = NULL,
		    last_error = NULL, deleted = ?, updated_at = NOW()
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ? AND last_token = ?
	`
	_, err := r.db.ExecContext(ctx, q, deleted, key.TenantID, key.EntityType, key.EntityID, token)
	return err
}

func (r *SyncStatusRepositoryImpl) MarkFailed(ctx context.Context, key model.EntityKey, token, reason string, retryCount int, nextRetryAt time.Time) error {
	const q = `
		UPDATE sync_status
		SET status = 'failed', retry_count = ?, next_retry_at = ?,
		    last_error = ?, updated_at = NOW()
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ? AND last_token = ?
	`
	_, err := r.db.ExecContext(ctx, q, retryCount, nextRetryAt, reason,
		key.TenantID, key.EntityType, key.EntityID, token)
	return err
}

func (r *SyncStatusRepositoryImpl) ClaimDue(ctx context.Context, batch, maxRetries int, stuckAfter time.Duration) ([]model.SyncStatus, error) {
	if batch <= 0 {
		batch = 100
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	q := `SELECT` + syncStatusCols + `
		FROM sync_status
		WHERE (
			(status IN ('pending', 'failed')
				AND retry_count < ?
				AND (next_retry_at IS NULL OR next_retry_at <= NOW()))
			OR (status = 'processing' AND updated_at <= NOW() - INTERVAL ? SECOND)
		)
		ORDER BY updated_at ASC
		LIMIT ?
		FOR UPDATE SKIP LOCKED`

	var rows []model.SyncStatus
	if err := tx.SelectContext(ctx, &rows, q, maxRetries, int(stuckAfter.Seconds()), batch); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, tx.Commit()
	}

	const upd = `
		UPDATE sync_status
		SET status = 'processing', updated_at = NOW()
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
	`
	for i := range rows {
		if _, err := tx.ExecContext(ctx, upd, rows[i].TenantID, rows[i].EntityType, rows[i].EntityID); err != nil {
			return nil, err
		}
		rows[i].Status = model.StateProcessing
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDeadLetters returns rows that exhausted their retry budget. Empty
// tenantID lists across tenants (operator view only; the API layer never
// exposes that to tenant callers).
func (r *SyncStatusRepositoryImpl) ListDeadLetters(ctx context.Context, tenantID string, maxRetries, limit, offset int) ([]model.SyncStatus, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := `SELECT` + syncStatusCols + `
		FROM sync_status
		WHERE status = 'failed' AND retry_count >= ?`
	args := []any{maxRetries}
	if tenantID != "" {
		q += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	q += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows := []model.SyncStatus{}
	err := r.db.SelectContext(ctx, &rows, q, args...)
	return rows, err
}

// ResetForRetry requeues a dead-lettered row for immediate reconciliation.
func (r *SyncStatusRepositoryImpl) ResetForRetry(ctx context.Context, key model.EntityKey) (bool, error) {
	const q = `
		UPDATE sync_status
		SET retry_count = 0, next_retry_at = NOW(), updated_at = NOW()
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ? AND status = 'failed'
	`
	res, err := r.db.ExecContext(ctx, q, key.TenantID, key.EntityType, key.EntityID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SyncStatusRepositoryImpl) HealthCounts(ctx context.Context, maxRetries int) (model.SyncHealth, error) {
	const q = `
		SELECT
			COALESCE(SUM(status IN ('pending', 'processing')), 0)             AS pending,
			COALESCE(SUM(status = 'failed' AND retry_count < ?), 0)           AS failed,
			COALESCE(SUM(status = 'failed' AND retry_count >= ?), 0)          AS dead,
			COALESCE(MIN(CASE WHEN status != 'synced' THEN updated_at END), NOW()) AS oldest
	`
	var row struct {
		Pending int64     `db:"pending"`
		Failed  int64     `db:"failed"`
		Dead    int64     `db:"dead"`
		Oldest  time.Time `db:"oldest"`
	}
	if err := r.db.GetContext(ctx, &row, q+` FROM sync_status`, maxRetries, maxRetries); err != nil {
		return model.SyncHealth{}, err
	}

	h := model.SyncHealth{Pending: row.Pending, Failed: row.Failed, DeadLetters: row.Dead}
	if row.Pending > 0 || row.Failed > 0 {
		h.OldestUnsync = time.Since(row.Oldest)
	}
	return h, nil
}
