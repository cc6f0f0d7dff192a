package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Index documents arrive as free-form JSON from the CRUD services. Each known
// entity type has a versioned shape that is checked at intake, so a malformed
// payload fails before the first index call instead of after a retry cycle.

const (
	EntityTypeVenue = "venue"
	EntityTypeStaff = "staff"
	EntityTypeEvent = "event"
)

type VenuePayload struct {
	Schema   int      `json:"schema"`
	Name     string   `json:"name"`
	Slug     string   `json:"slug,omitempty"`
	City     string   `json:"city,omitempty"`
	Country  string   `json:"country,omitempty"`
	Capacity int      `json:"capacity,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type StaffPayload struct {
	Schema  int    `json:"schema"`
	VenueID string `json:"venue_id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role,omitempty"`
}

type EventPayload struct {
	Schema   int    `json:"schema"`
	VenueID  string `json:"venue_id"`
	Title    string `json:"title"`
	StartsAt string `json:"starts_at,omitempty"`
	Status   string `json:"status,omitempty"`
}

const payloadSchemaMax = 1

func KnownEntityType(entityType string) bool {
	switch entityType {
	case EntityTypeVenue, EntityTypeStaff, EntityTypeEvent:
		return true
	}
	return false
}

// ValidatePayload checks a raw upsert payload against the schema for its
// entity type. Delete operations carry no payload and skip this.
func ValidatePayload(entityType string, raw json.RawMessage) error {
	if !KnownEntityType(entityType) {
		return fmt.Errorf("unknown entity type %q", entityType)
	}
	if len(raw) == 0 {
		return fmt.Errorf("%s: empty payload", entityType)
	}

	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()

	var schema int
	switch entityType {
	case EntityTypeVenue:
		var p VenuePayload
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("venue payload: %w", err)
		}
		if p.Name == "" {
			return fmt.Errorf("venue payload: missing name")
		}
		schema = p.Schema
	case EntityTypeStaff:
		var p StaffPayload
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("staff payload: %w", err)
		}
		if p.VenueID == "" || p.Name == "" {
			return fmt.Errorf("staff payload: missing venue_id or name")
		}
		schema = p.Schema
	case EntityTypeEvent:
		var p EventPayload
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("event payload: %w", err)
		}
		if p.VenueID == "" || p.Title == "" {
			return fmt.Errorf("event payload: missing venue_id or title")
		}
		schema = p.Schema
	}

	if schema < 1 || schema > payloadSchemaMax {
		return fmt.Errorf("%s payload: unsupported schema %d", entityType, schema)
	}
	return nil
}
