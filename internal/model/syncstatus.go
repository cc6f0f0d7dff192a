package model

import (
	"database/sql"
	"time"
)

type SyncState string

const (
	StatePending    SyncState = "pending"
	StateProcessing SyncState = "processing"
	StateSynced     SyncState = "synced"
	StateFailed     SyncState = "failed"
)

func (s SyncState) String() string {
	return string(s)
}

func (s SyncState) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateSynced, StateFailed:
		return true
	}
	return false
}

// EntityKey identifies one entity's mirror row. TenantID is always the
// leading component; no lookup ever happens without it.
type EntityKey struct {
	TenantID   string `db:"tenant_id" json:"tenant_id"`
	EntityType string `db:"entity_type" json:"entity_type"`
	EntityID   string `db:"entity_id" json:"entity_id"`
}

// SyncStatus is the DB entity persisted in the sync_status table: the
// current believed state of one entity's search-index mirror.
type SyncStatus struct {
	TenantID    string         `db:"tenant_id" json:"tenant_id"`
	EntityType  string         `db:"entity_type" json:"entity_type"`
	EntityID    string         `db:"entity_id" json:"entity_id"`
	Version     int64          `db:"version" json:"version"`
	Status      SyncState      `db:"status" json:"status"`
	LastToken   string         `db:"last_token" json:"last_token"`
	RetryCount  int            `db:"retry_count" json:"retry_count"`
	NextRetryAt sql.NullTime   `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastError   sql.NullString `db:"last_error" json:"last_error,omitempty"`
	Deleted     bool           `db:"deleted" json:"deleted"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

func (s SyncStatus) Key() EntityKey {
	return EntityKey{TenantID: s.TenantID, EntityType: s.EntityType, EntityID: s.EntityID}
}

// SyncHealth is the aggregate backlog signal exposed to readiness checks.
type SyncHealth struct {
	Pending      int64         `json:"pending"`
	Failed       int64         `json:"failed"`
	DeadLetters  int64         `json:"dead_letters"`
	OldestUnsync time.Duration `json:"oldest_unsynced"`
}

// ConsistencyOutcome classifies a Verify call.
type ConsistencyOutcome string

const (
	OutcomeConsistent ConsistencyOutcome = "consistent"
	OutcomePending    ConsistencyOutcome = "pending"
	OutcomeFailed     ConsistencyOutcome = "failed"
)

type ConsistencyResult struct {
	Outcome   ConsistencyOutcome `json:"outcome"`
	Token     string             `json:"token"`
	Version   int64              `json:"version"`
	LastError string             `json:"last_error,omitempty"`
}
