// Package events carries registry and compliance notifications to external
// collaborators. Emission never blocks the mutating call: events are queued
// in-process and a worker delivers them to sinks with retry.
package events

import (
	"time"

	"github.com/google/uuid"

	id "tracecore/pkg/domain"
)

// Type names an event kind. Values are stable wire identifiers.
type Type string

const (
	EntityRegistered  Type = "entity_registered"
	EntityUpdated     Type = "entity_updated"
	EntityDeactivated Type = "entity_deactivated"
	EntityReactivated Type = "entity_reactivated"
	CheckpointAdded   Type = "checkpoint_added"
	CheckpointUpdated Type = "checkpoint_updated"
	ActorAdded        Type = "actor_added"
	ActorRemoved      Type = "actor_removed"

	RuleAdded               Type = "rule_added"
	RuleStatusChanged       Type = "rule_status_changed"
	ComplianceChecked       Type = "compliance_checked"
	ComplianceStatusUpdated Type = "compliance_status_updated"
	EvidenceUpdated         Type = "evidence_updated"
)

// Event is the envelope delivered to sinks. Seq is process-wide and strictly
// increasing in emission order; subscribers use it to order and de-duplicate
// at-least-once deliveries.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Seq        uint64         `json:"seq"`
	Type       Type           `json:"type"`
	EntityID   id.EntityID    `json:"entity_id,omitempty"`
	RuleID     id.RuleID      `json:"rule_id,omitempty"`
	Actor      id.ActorID     `json:"actor,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	RequestID  string         `json:"request_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Batch is the unit of emission. Events emitted by one mutating call share a
// batch so sinks see them together and in order.
type Batch []Event
