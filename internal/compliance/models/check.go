package models

import (
	"fmt"
	"strings"
	"time"

	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
)

const (
	MaxEvidenceLength = 1024
	MaxConfidence     = 100
	MaxBatchChecks    = 20

	maxCheckNoteLength = 512
)

// Check is one immutable entry in an entity's compliance history. Only the
// evidence text may be replaced after the fact.
type Check struct {
	EntityID          id.EntityID `json:"entity_id"`
	Index             uint64      `json:"index"`
	RuleID            id.RuleID   `json:"rule_id"`
	Passed            bool        `json:"passed"`
	Evidence          string      `json:"evidence"`
	Confidence        int         `json:"confidence"`
	Actor             id.ActorID  `json:"actor"`
	Timestamp         time.Time   `json:"timestamp"`
	Note              string      `json:"note,omitempty"`
	EvidenceUpdatedAt *time.Time  `json:"evidence_updated_at,omitempty"`
}

// CheckInput is the caller-supplied part of a check.
type CheckInput struct {
	RuleID     string `json:"rule_id"`
	Passed     bool   `json:"passed"`
	Evidence   string `json:"evidence"`
	Confidence int    `json:"confidence"`
	Note       string `json:"note"`
}

func (c *CheckInput) Normalize() {
	c.RuleID = strings.TrimSpace(c.RuleID)
	c.Note = strings.TrimSpace(c.Note)
}

func (c *CheckInput) Validate() error {
	c.Normalize()
	if _, err := id.ParseRuleID(c.RuleID); err != nil {
		return err
	}
	if err := validateEvidence(c.Evidence); err != nil {
		return err
	}
	if c.Confidence < 0 || c.Confidence > MaxConfidence {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("confidence must be between 0 and %d", MaxConfidence))
	}
	if len(c.Note) > maxCheckNoteLength {
		return dErrors.New(dErrors.CodeValidation, "note is too long")
	}
	return nil
}

func validateEvidence(evidence string) error {
	if len(evidence) > MaxEvidenceLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("evidence must be %d bytes or less", MaxEvidenceLength))
	}
	return nil
}

// BatchCheckRequest carries 1..MaxBatchChecks checks for one entity.
type BatchCheckRequest struct {
	Items []CheckInput `json:"items"`
}

// Validate only bounds the batch. Items are validated by the evaluator so that
// unknown rules can be skipped before field validation applies.
func (b *BatchCheckRequest) Validate() error {
	if len(b.Items) == 0 {
		return dErrors.New(dErrors.CodeValidation, "batch must contain at least one check")
	}
	if len(b.Items) > MaxBatchChecks {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("batch must contain at most %d checks", MaxBatchChecks))
	}
	return nil
}

// EvidenceEdit replaces the evidence text of a recorded check.
type EvidenceEdit struct {
	Evidence string `json:"evidence"`
}

func (e *EvidenceEdit) Validate() error {
	return validateEvidence(e.Evidence)
}

// NewCheck builds the check for index. The rule's confidence gate is applied
// here so that nothing below the threshold is ever constructed.
func NewCheck(entityID id.EntityID, index uint64, in CheckInput, rule *Rule, actor id.ActorID, now time.Time) (*Check, error) {
	if rule == nil || rule.ID != id.RuleID(in.RuleID) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "check must reference its rule")
	}
	if err := rule.CheckConfidence(in.Confidence); err != nil {
		return nil, err
	}
	return &Check{
		EntityID:   entityID,
		Index:      index,
		RuleID:     rule.ID,
		Passed:     in.Passed,
		Evidence:   in.Evidence,
		Confidence: in.Confidence,
		Actor:      actor,
		Timestamp:  storedTime(now),
		Note:       in.Note,
	}, nil
}

// ReplaceEvidence swaps the evidence text and stamps the edit.
func (c *Check) ReplaceEvidence(evidence string, now time.Time) {
	c.Evidence = evidence
	t := storedTime(now)
	c.EvidenceUpdatedAt = &t
}

func (c *Check) Clone() *Check {
	cp := *c
	if c.EvidenceUpdatedAt != nil {
		t := *c.EvidenceUpdatedAt
		cp.EvidenceUpdatedAt = &t
	}
	return &cp
}

// storedTime matches the precision of timestamptz so that a status folded
// before and after a round trip through Postgres is identical.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
