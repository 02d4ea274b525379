package domain

import (
	"strconv"
	"strings"

	dErrors "tracecore/pkg/domain-errors"
)

// EntityID is the store-generated identifier of a traceable entity. Zero is
// never assigned.
type EntityID uint64

func (id EntityID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IsNil reports whether the id is the unassigned zero value.
func (id EntityID) IsNil() bool {
	return id == 0
}

// ActorID identifies a caller acting on the registry. Actors are opaque to the
// core; the transport decides how they are authenticated.
type ActorID string

func (a ActorID) String() string {
	return string(a)
}

func (a ActorID) IsNil() bool {
	return a == ""
}

// RuleID identifies a compliance rule in the catalog.
type RuleID string

func (r RuleID) String() string {
	return string(r)
}

func (r RuleID) IsNil() bool {
	return r == ""
}

// ParseEntityID parses a decimal entity id. Zero and non-numeric input are rejected.
func ParseEntityID(s string) (EntityID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, "entity id must be a positive integer")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "entity id must be a positive integer")
	}
	return EntityID(v), nil
}

// ParseActorID trims and validates an actor identifier.
func ParseActorID(s string) (ActorID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if len(s) > 256 {
		return "", dErrors.New(dErrors.CodeValidation, "actor must be 256 characters or less")
	}
	return ActorID(s), nil
}

// ParseRuleID trims and validates a rule identifier.
func ParseRuleID(s string) (RuleID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "rule id is required")
	}
	if len(s) > 64 {
		return "", dErrors.New(dErrors.CodeValidation, "rule id must be 64 characters or less")
	}
	return RuleID(s), nil
}
