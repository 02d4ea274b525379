package models

import (
	"slices"
	"time"

	id "tracecore/pkg/domain"
	strutil "tracecore/pkg/platform/strings"
)

// Status is the compliance projection of an entity's check history. It is
// derived only: Fold over the same history always yields an equal value.
//
// Invariants:
//   - Total == Passed + Failed == Version
//   - Compliant is true iff Total > 0 and Failed == 0
//   - FailedRules is sorted and holds each failing rule once
type Status struct {
	EntityID      id.EntityID `json:"entity_id"`
	Compliant     bool        `json:"compliant"`
	Total         uint64      `json:"total"`
	Passed        uint64      `json:"passed"`
	Failed        uint64      `json:"failed"`
	FailedRules   []id.RuleID `json:"failed_rules"`
	LastCheckedAt *time.Time  `json:"last_checked_at,omitempty"`
	Version       uint64      `json:"version"`
}

// Fold derives the status from the full history of entityID.
func Fold(entityID id.EntityID, history []*Check) *Status {
	st := &Status{EntityID: entityID}
	failed := make([]id.RuleID, 0)
	for _, c := range history {
		st.Total++
		if c.Passed {
			st.Passed++
		} else {
			st.Failed++
			failed = append(failed, c.RuleID)
		}
		if st.LastCheckedAt == nil || c.Timestamp.After(*st.LastCheckedAt) {
			ts := c.Timestamp.UTC()
			st.LastCheckedAt = &ts
		}
	}
	st.FailedRules = strutil.SortedUnique(failed)
	st.Compliant = st.Total > 0 && st.Failed == 0
	st.Version = st.Total
	return st
}

// Empty is the status of an entity with no recorded checks.
func Empty(entityID id.EntityID) *Status {
	return Fold(entityID, nil)
}

// Equal compares two projections field by field.
func (s *Status) Equal(o *Status) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.EntityID != o.EntityID || s.Compliant != o.Compliant || s.Total != o.Total ||
		s.Passed != o.Passed || s.Failed != o.Failed || s.Version != o.Version {
		return false
	}
	if !slices.Equal(s.FailedRules, o.FailedRules) {
		return false
	}
	switch {
	case s.LastCheckedAt == nil || o.LastCheckedAt == nil:
		return s.LastCheckedAt == o.LastCheckedAt
	default:
		return s.LastCheckedAt.Equal(*o.LastCheckedAt)
	}
}

func (s *Status) Clone() *Status {
	c := *s
	c.FailedRules = slices.Clone(s.FailedRules)
	if c.FailedRules == nil {
		c.FailedRules = []id.RuleID{}
	}
	if s.LastCheckedAt != nil {
		t := *s.LastCheckedAt
		c.LastCheckedAt = &t
	}
	return &c
}
