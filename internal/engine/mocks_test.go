package engine

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/index"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/repository"
)

// --- Mock implementations ---

type mockTxRunner struct {
	mu       sync.Mutex
	beginErr error
}

func (r *mockTxRunner) InTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if r.beginErr != nil {
		return r.beginErr
	}
	// serialized like a row lock would; mock repos ignore the tx handle
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(nil)
}

type mockOpLog struct {
	mu        sync.Mutex
	ops       map[string]model.Operation // (tenant|token) -> op
	appendErr error
}

func newMockOpLog() *mockOpLog {
	return &mockOpLog{ops: make(map[string]model.Operation)}
}

func opKey(tenantID, token string) string { return tenantID + "|" + token }

func (m *mockOpLog) Append(ctx context.Context, tx *sqlx.Tx, op model.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	k := opKey(op.TenantID, op.Token)
	if _, ok := m.ops[k]; ok {
		return repository.ErrDuplicateToken
	}
	op.CreatedAt = time.Now()
	m.ops[k] = op
	return nil
}

func (m *mockOpLog) FindByToken(ctx context.Context, tenantID, token string) (*model.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op, ok := m.ops[opKey(tenantID, token)]; ok {
		cp := op
		return &cp, nil
	}
	return nil, nil
}

func (m *mockOpLog) ListByEntity(ctx context.Context, key model.EntityKey, limit int) ([]model.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Operation
	for _, op := range m.ops {
		if op.TenantID == key.TenantID && op.EntityType == key.EntityType && op.EntityID == key.EntityID {
			out = append(out, op)
		}
	}
	return out, nil
}

func (m *mockOpLog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ops)
}

type mockStatusRepo struct {
	mu   sync.Mutex
	rows map[model.EntityKey]model.SyncStatus
}

func newMockStatusRepo() *mockStatusRepo {
	return &mockStatusRepo{rows: make(map[model.EntityKey]model.SyncStatus)}
}

func (m *mockStatusRepo) get(key model.EntityKey) (*model.SyncStatus, error) {
	if st, ok := m.rows[key]; ok {
		cp := st
		return &cp, nil
	}
	return nil, nil
}

func (m *mockStatusRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, key model.EntityKey) (*model.SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(key)
}

func (m *mockStatusRepo) Get(ctx context.Context, key model.EntityKey) (*model.SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(key)
}

func (m *mockStatusRepo) Upsert(ctx context.Context, tx *sqlx.Tx, st model.SyncStatus, prevVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[st.Key()]
	if prevVersion == 0 {
		if ok {
			return repository.ErrStaleVersion
		}
	} else {
		if !ok || cur.Version != prevVersion {
			return repository.ErrStaleVersion
		}
	}
	st.UpdatedAt = time.Now()
	m.rows[st.Key()] = st
	return nil
}

func (m *mockStatusRepo) MarkSynced(ctx context.Context, key model.EntityKey, token string, deleted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rows[key]
	if !ok || st.LastToken != token {
		return nil // superseded settle: silent no-op, as in SQL
	}
	st.Status = model.StateSynced
	st.RetryCount = 0
	st.NextRetryAt = sql.NullTime{}
	st.LastError = sql.NullString{}
	st.Deleted = deleted
	st.UpdatedAt = time.Now()
	m.rows[key] = st
	return nil
}

func (m *mockStatusRepo) MarkFailed(ctx context.Context, key model.EntityKey, token, reason string, retryCount int, nextRetryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rows[key]
	if !ok || st.LastToken != token {
		return nil
	}
	st.Status = model.StateFailed
	st.RetryCount = retryCount
	st.NextRetryAt = sql.NullTime{Time: nextRetryAt, Valid: true}
	st.LastError = sql.NullString{String: reason, Valid: true}
	st.UpdatedAt = time.Now()
	m.rows[key] = st
	return nil
}

func (m *mockStatusRepo) ClaimDue(ctx context.Context, batch, maxRetries int, stuckAfter time.Duration) ([]model.SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []model.SyncStatus
	for key, st := range m.rows {
		if len(out) >= batch {
			break
		}
		due := (st.Status == model.StatePending || st.Status == model.StateFailed) &&
			st.RetryCount < maxRetries &&
			(!st.NextRetryAt.Valid || !st.NextRetryAt.Time.After(now))
		stuck := st.Status == model.StateProcessing && now.Sub(st.UpdatedAt) >= stuckAfter
		if due || stuck {
			st.Status = model.StateProcessing
			st.UpdatedAt = now
			m.rows[key] = st
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *mockStatusRepo) ListDeadLetters(ctx context.Context, tenantID string, maxRetries, limit, offset int) ([]model.SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SyncStatus
	for _, st := range m.rows {
		if st.Status == model.StateFailed && st.RetryCount >= maxRetries &&
			(tenantID == "" || st.TenantID == tenantID) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *mockStatusRepo) ResetForRetry(ctx context.Context, key model.EntityKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rows[key]
	if !ok || st.Status != model.StateFailed {
		return false, nil
	}
	st.RetryCount = 0
	st.NextRetryAt = sql.NullTime{Time: time.Now(), Valid: true}
	m.rows[key] = st
	return true, nil
}

func (m *mockStatusRepo) HealthCounts(ctx context.Context, maxRetries int) (model.SyncHealth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var h model.SyncHealth
	for _, st := range m.rows {
		switch {
		case st.Status == model.StatePending || st.Status == model.StateProcessing:
			h.Pending++
		case st.Status == model.StateFailed && st.RetryCount < maxRetries:
			h.Failed++
		case st.Status == model.StateFailed:
			h.DeadLetters++
		}
	}
	return h, nil
}

func (m *mockStatusRepo) row(key model.EntityKey) model.SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[key]
}

func (m *mockStatusRepo) put(st model.SyncStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[st.Key()] = st
}

type mockIndex struct {
	mu         sync.Mutex
	mutateErrs []error // popped per call; empty = success
	mutations  []index.MutateRequest
	docs       map[string]*index.Document
	getErr     error
}

func newMockIndex() *mockIndex {
	return &mockIndex{docs: make(map[string]*index.Document)}
}

func (m *mockIndex) failWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutateErrs = append(m.mutateErrs, errs...)
}

func (m *mockIndex) Mutate(ctx context.Context, req index.MutateRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations = append(m.mutations, req)
	if len(m.mutateErrs) > 0 {
		err := m.mutateErrs[0]
		m.mutateErrs = m.mutateErrs[1:]
		if err != nil {
			return err
		}
	}
	k := req.TenantID + "|" + req.EntityType + "|" + req.EntityID
	if req.Kind == model.KindDelete {
		delete(m.docs, k)
	} else {
		m.docs[k] = &index.Document{Version: req.ExpectedVersion, Token: req.Token, Payload: req.Payload}
	}
	return nil
}

func (m *mockIndex) Get(ctx context.Context, tenantID, entityType, entityID string) (*index.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.docs[tenantID+"|"+entityType+"|"+entityID], nil
}

func (m *mockIndex) clearDocs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]*index.Document)
}

func (m *mockIndex) mutationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mutations)
}

type mockDeduper struct {
	mu      sync.Mutex
	entries map[string]string
	err     error
}

func newMockDeduper() *mockDeduper {
	return &mockDeduper{entries: make(map[string]string)}
}

func (m *mockDeduper) Reserve(ctx context.Context, tenantID, key, token string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	k := tenantID + "|" + key
	if winner, ok := m.entries[k]; ok {
		return winner, false, nil
	}
	m.entries[k] = token
	return token, true, nil
}

func (m *mockDeduper) Release(ctx context.Context, tenantID, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tenantID + "|" + key
	if m.entries[k] == token {
		delete(m.entries, k)
	}
	return nil
}

func (m *mockDeduper) holds(tenantID, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[tenantID+"|"+key]
	return ok
}

var errIndexDown = &index.Error{Permanent: false, Err: errors.New("connection refused")}
var errBadDoc = &index.Error{Permanent: true, Status: 422, Err: errors.New("mapping rejected")}

func newTestWriter(opts WriterOptions) (*Writer, *mockOpLog, *mockStatusRepo, *mockIndex) {
	oplog := newMockOpLog()
	status := newMockStatusRepo()
	idx := newMockIndex()
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond}
	}
	w := NewWriter(&mockTxRunner{}, oplog, status, idx, opts)
	return w, oplog, status, idx
}

func venueIntent(tenant, id string) model.OperationIntent {
	return model.OperationIntent{
		TenantID:   tenant,
		EntityType: model.EntityTypeVenue,
		EntityID:   id,
		Kind:       model.KindUpsert,
		Payload:    []byte(`{"schema":1,"name":"Roxy Theatre"}`),
	}
}
