package model

import (
	"encoding/json"
	"strings"
	"time"
)

type OperationKind string

const (
	KindUpsert OperationKind = "upsert"
	KindDelete OperationKind = "delete"
)

func (k OperationKind) String() string {
	return string(k)
}

func (k OperationKind) Valid() bool {
	return k == KindUpsert || k == KindDelete
}

// ParseOperationKind normalizes input; empty => upsert.
// Returns (value, true) if valid; otherwise (upsert, false).
func ParseOperationKind(s string) (OperationKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "upsert":
		return KindUpsert, true
	case "delete":
		return KindDelete, true
	default:
		return KindUpsert, false
	}
}

// Operation is the DB entity persisted in the sync_operations table.
// One row per index-mutating intent; rows are append-only.
type Operation struct {
	ID         string          `db:"id"` // ULID
	TenantID   string          `db:"tenant_id"`
	EntityType string          `db:"entity_type"`
	EntityID   string          `db:"entity_id"`
	Kind       OperationKind   `db:"kind"`
	Token      string          `db:"token"` // unique per (tenant_id, token)
	Payload    json.RawMessage `db:"payload"`
	CreatedAt  time.Time       `db:"created_at"`
}

// OperationIntent is what the CRUD layer hands to the writer. The internal
// token is never part of it; IdempotencyKey is the caller-level dedup key
// (e.g. derived from an HTTP Idempotency-Key header) and may be empty.
type OperationIntent struct {
	TenantID       string          `json:"tenant_id"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	Kind           OperationKind   `json:"kind"`
	Version        int64           `json:"version,omitempty"` // 0 = next
	Payload        json.RawMessage `json:"payload,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// ChangeEvent is the envelope published by the CRUD services on the entity
// change topic; the ingest worker turns each one into an OperationIntent.
type ChangeEvent struct {
	TenantID       string          `json:"tenant_id"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	Kind           string          `json:"kind"`
	Version        int64           `json:"version,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}
