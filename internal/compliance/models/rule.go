package models

import (
	"fmt"
	"strings"
	"time"

	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	strutil "tracecore/pkg/platform/strings"
)

const (
	MinSeverity = 1
	MaxSeverity = 5

	// CriticalSeverity is the lowest severity whose checks are gated on
	// MinCriticalConfidence.
	CriticalSeverity      = 4
	MinCriticalConfidence = 80

	maxRuleNameLength    = 256
	maxRequirementLength = 2048
	maxStandardLength    = 128
)

// Rule is a catalog entry that compliance checks are recorded against.
// Rules are never deleted; Active gates whether new checks may cite them.
type Rule struct {
	ID          id.RuleID `json:"id"`
	Name        string    `json:"name"`
	EntityType  string    `json:"entity_type"`
	Requirement string    `json:"requirement"`
	Standard    string    `json:"standard,omitempty"`
	Severity    int       `json:"severity"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RuleInput is the catalog registration payload.
type RuleInput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	EntityType  string `json:"entity_type"`
	Requirement string `json:"requirement"`
	Standard    string `json:"standard"`
	Severity    int    `json:"severity"`
}

func (r *RuleInput) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
	r.EntityType = strutil.NormalizeLabel(r.EntityType)
	r.Requirement = strings.TrimSpace(r.Requirement)
	r.Standard = strings.TrimSpace(r.Standard)
}

func (r *RuleInput) Validate() error {
	r.Normalize()
	if _, err := id.ParseRuleID(r.ID); err != nil {
		return err
	}
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Name) > maxRuleNameLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("name must be %d characters or less", maxRuleNameLength))
	}
	if r.EntityType == "" {
		return dErrors.New(dErrors.CodeValidation, "entity_type is required")
	}
	if len(r.Requirement) > maxRequirementLength {
		return dErrors.New(dErrors.CodeValidation, "requirement is too long")
	}
	if len(r.Standard) > maxStandardLength {
		return dErrors.New(dErrors.CodeValidation, "standard is too long")
	}
	if r.Severity < MinSeverity || r.Severity > MaxSeverity {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("severity must be between %d and %d", MinSeverity, MaxSeverity))
	}
	return nil
}

// NewRule builds an active rule from a validated input.
func NewRule(in RuleInput, now time.Time) (*Rule, error) {
	if in.ID == "" || in.EntityType == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "rule id and entity type are required")
	}
	if in.Severity < MinSeverity || in.Severity > MaxSeverity {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "severity out of range")
	}
	return &Rule{
		ID:          id.RuleID(in.ID),
		Name:        in.Name,
		EntityType:  in.EntityType,
		Requirement: in.Requirement,
		Standard:    in.Standard,
		Severity:    in.Severity,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *Rule) IsCritical() bool {
	return r.Severity >= CriticalSeverity
}

// CheckConfidence rejects evidence for a critical rule whose confidence is
// below MinCriticalConfidence.
func (r *Rule) CheckConfidence(confidence int) error {
	if r.IsCritical() && confidence < MinCriticalConfidence {
		return dErrors.New(dErrors.CodeConfidenceThreshold,
			fmt.Sprintf("rule %s has severity %d and requires confidence of at least %d, got %d",
				r.ID, r.Severity, MinCriticalConfidence, confidence))
	}
	return nil
}

// SetActive toggles the rule. It reports false when the rule is already in
// the requested state.
func (r *Rule) SetActive(active bool, now time.Time) bool {
	if r.Active == active {
		return false
	}
	r.Active = active
	r.UpdatedAt = now
	return true
}

func (r *Rule) Clone() *Rule {
	c := *r
	return &c
}
