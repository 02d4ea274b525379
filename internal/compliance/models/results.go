package models

import id "tracecore/pkg/domain"

// Skip reasons reported by BatchCheck.
const (
	SkipUnknownRule  = "unknown_rule"
	SkipInactiveRule = "inactive_rule"
)

// CheckResult is the outcome of a single recorded check.
type CheckResult struct {
	Check  *Check  `json:"check"`
	Status *Status `json:"status"`
}

// SkippedCheck reports a batch item that was not applied.
type SkippedCheck struct {
	Position int       `json:"position"`
	RuleID   id.RuleID `json:"rule_id"`
	Reason   string    `json:"reason"`
}

// BatchResult is the outcome of BatchCheck. Status reflects the projection
// after the applied checks were committed.
type BatchResult struct {
	Applied []*Check       `json:"applied"`
	Skipped []SkippedCheck `json:"skipped"`
	Status  *Status        `json:"status"`
}

// Verification compares the stored projection with a fresh fold of history.
type Verification struct {
	EntityID   id.EntityID `json:"entity_id"`
	Consistent bool        `json:"consistent"`
	Stored     *Status     `json:"stored"`
	Derived    *Status     `json:"derived"`
}
