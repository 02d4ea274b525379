package models

import (
	"time"

	"tracecore/internal/authz"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
)

const (
	MaxNameLength     = 256
	MaxTypeLength     = 64
	MaxBatchKeyLength = 128
)

// Entity is a registered traceable item.
//
// Invariants:
//   - ID, BatchKey and Owner never change after registration
//   - ValidUntil is strictly after ValidFrom
//   - Attributes are trimmed and unique
//   - Entities are never deleted; Active toggles between true and false
type Entity struct {
	ID          id.EntityID `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Owner       id.ActorID  `json:"owner"`
	BatchKey    string      `json:"batch_key"`
	ValidFrom   time.Time   `json:"valid_from"`
	ValidUntil  time.Time   `json:"valid_until"`
	Attributes  []string    `json:"attributes"`
	MetadataRef string      `json:"metadata_ref,omitempty"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewEntity builds an active entity from a normalized registration. The ID is
// assigned by the store.
func NewEntity(req RegisterRequest, owner id.ActorID, now time.Time) (*Entity, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner is required")
	}
	if req.Name == "" || req.Type == "" || req.BatchKey == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name, type and batch key are required")
	}
	if err := checkValidity(req.ValidFrom, req.ValidUntil); err != nil {
		return nil, err
	}
	return &Entity{
		Name:        req.Name,
		Type:        req.Type,
		Owner:       owner,
		BatchKey:    req.BatchKey,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
		Attributes:  req.Attributes,
		MetadataRef: req.MetadataRef,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func checkValidity(from, until time.Time) error {
	if !until.After(from) {
		return dErrors.New(dErrors.CodeInvariantViolation, "valid_until must be after valid_from")
	}
	return nil
}

func (e *Entity) IsActive() bool {
	return e.Active
}

// IsExpired reports whether the validity window has closed at now.
func (e *Entity) IsExpired(now time.Time) bool {
	return !now.Before(e.ValidUntil)
}

// Subject returns the authorization view of the entity given its members.
func (e *Entity) Subject(members []id.ActorID) authz.Subject {
	return authz.Subject{Owner: e.Owner, Members: members}
}

// CanDeactivate checks if the entity can transition to inactive.
func (e *Entity) CanDeactivate() error {
	if !e.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "entity is already inactive")
	}
	return nil
}

// ApplyDeactivation transitions the entity to inactive.
// Call CanDeactivate first to validate the transition.
func (e *Entity) ApplyDeactivation(now time.Time) {
	e.Active = false
	e.UpdatedAt = now
}

// CanReactivate checks if the entity can transition to active.
func (e *Entity) CanReactivate() error {
	if e.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "entity is already active")
	}
	return nil
}

// ApplyReactivation transitions the entity to active.
// Call CanReactivate first to validate the transition.
func (e *Entity) ApplyReactivation(now time.Time) {
	e.Active = true
	e.UpdatedAt = now
}

// ApplyUpdate changes the descriptive fields present in req. Date ordering is
// checked against the merged window before anything is written.
func (e *Entity) ApplyUpdate(req UpdateRequest, now time.Time) error {
	from, until := e.ValidFrom, e.ValidUntil
	if req.ValidFrom != nil {
		from = *req.ValidFrom
	}
	if req.ValidUntil != nil {
		until = *req.ValidUntil
	}
	if err := checkValidity(from, until); err != nil {
		return err
	}
	if req.Name != nil {
		e.Name = *req.Name
	}
	if req.Type != nil {
		e.Type = *req.Type
	}
	if req.Attributes != nil {
		e.Attributes = *req.Attributes
	}
	if req.MetadataRef != nil {
		e.MetadataRef = *req.MetadataRef
	}
	e.ValidFrom, e.ValidUntil = from, until
	e.UpdatedAt = now
	return nil
}

// Clone returns a deep copy safe to hand outside a store lock.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Attributes = append([]string{}, e.Attributes...)
	return &c
}
