package model

import "time"

// SyncAttempt is one reconcile/apply attempt, appended to ClickHouse for
// operator forensics. sync_status only keeps the latest error; this keeps
// them all.
type SyncAttempt struct {
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Token      string    `db:"token" json:"token"`
	Outcome    string    `db:"outcome" json:"outcome"` // synced | failed
	Error      string    `db:"error" json:"error,omitempty"`
	Attempt    int32     `db:"attempt" json:"attempt"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}
