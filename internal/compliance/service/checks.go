package service

import (
	"context"
	"errors"
	"fmt"

	"tracecore/internal/compliance/models"
	"tracecore/internal/events"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/platform/sentinel"
	"tracecore/pkg/requestcontext"
)

// pendingCheck pairs a validated input with the active rule it cites.
type pendingCheck struct {
	in   models.CheckInput
	rule *models.Rule
}

// Check records one piece of compliance evidence and refreshes the entity's
// status. A critical rule with insufficient confidence persists nothing.
func (s *Service) Check(ctx context.Context, entityID id.EntityID, in models.CheckInput, actor id.ActorID) (res *models.CheckResult, err error) {
	ctx, end := s.startSpan(ctx, "Check")
	defer end(&err)

	if actor, err = requireActor(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var checks []*models.Check
	var status *models.Status
	err = s.withEntityLock(ctx, entityID, func(ctx context.Context) error {
		if err := s.requireMember(ctx, entityID, actor); err != nil {
			return err
		}
		rule, err := s.loadRule(ctx, id.RuleID(in.RuleID))
		if err != nil {
			return err
		}
		if !rule.Active {
			return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("rule %s is inactive", rule.ID))
		}
		checks, status, err = s.commit(ctx, entityID, []pendingCheck{{in: in, rule: rule}}, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, entityID, checks, status, actor)
	return &models.CheckResult{Check: checks[0], Status: status}, nil
}

// BatchCheck records up to MaxBatchChecks checks for one entity. Items citing
// an unknown or inactive rule are skipped and reported; any other invalid item
// aborts the whole batch.
func (s *Service) BatchCheck(ctx context.Context, entityID id.EntityID, ins []models.CheckInput, actor id.ActorID) (res *models.BatchResult, err error) {
	ctx, end := s.startSpan(ctx, "BatchCheck")
	defer end(&err)

	if actor, err = requireActor(actor); err != nil {
		return nil, err
	}
	batch := models.BatchCheckRequest{Items: ins}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	res = &models.BatchResult{Applied: []*models.Check{}, Skipped: []models.SkippedCheck{}}
	err = s.withEntityLock(ctx, entityID, func(ctx context.Context) error {
		if err := s.requireMember(ctx, entityID, actor); err != nil {
			return err
		}

		pending := make([]pendingCheck, 0, len(batch.Items))
		for pos, in := range batch.Items {
			in.Normalize()
			rule, skip, err := s.resolveBatchRule(ctx, in.RuleID)
			if err != nil {
				return err
			}
			if skip != "" {
				res.Skipped = append(res.Skipped, models.SkippedCheck{Position: pos, RuleID: id.RuleID(in.RuleID), Reason: skip})
				continue
			}
			if err := in.Validate(); err != nil {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("item %d: %s", pos, messageOf(err)))
			}
			pending = append(pending, pendingCheck{in: in, rule: rule})
		}

		if len(pending) == 0 {
			st, err := s.currentStatus(ctx, entityID)
			res.Status = st
			return err
		}
		checks, status, err := s.commit(ctx, entityID, pending, actor)
		if err != nil {
			return err
		}
		res.Applied, res.Status = checks, status
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, sk := range res.Skipped {
		s.logger.WarnContext(ctx, "batch check item skipped",
			"entity_id", entityID,
			"rule_id", sk.RuleID,
			"position", sk.Position,
			"reason", sk.Reason,
			"request_id", requestcontext.RequestID(ctx),
		)
		s.metrics.IncSkipped(sk.Reason)
	}
	if len(res.Applied) > 0 {
		s.afterCommit(ctx, entityID, res.Applied, res.Status, actor)
	}
	return res, nil
}

// resolveBatchRule returns the rule or a skip reason. Only store failures are
// returned as errors.
func (s *Service) resolveBatchRule(ctx context.Context, raw string) (*models.Rule, string, error) {
	ruleID, err := id.ParseRuleID(raw)
	if err != nil {
		return nil, "", err
	}
	rule, err := s.store.FindRule(ctx, ruleID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, models.SkipUnknownRule, nil
	case err != nil:
		return nil, "", wrapStoreErr(err, "rule not found")
	case !rule.Active:
		return nil, models.SkipInactiveRule, nil
	}
	return rule, "", nil
}

// commit builds the checks at the next free indices, folds the full history,
// persists both in one store call and writes the status through to the cache.
// Must run under the entity lock.
func (s *Service) commit(ctx context.Context, entityID id.EntityID, pending []pendingCheck, actor id.ActorID) ([]*models.Check, *models.Status, error) {
	history, err := s.store.ListChecks(ctx, entityID)
	if err != nil {
		return nil, nil, wrapStoreErr(err, "entity not found")
	}
	next := uint64(len(history))
	now := s.clock()
	if len(history) > 0 && now.Before(history[len(history)-1].Timestamp) {
		now = history[len(history)-1].Timestamp
	}

	checks := make([]*models.Check, len(pending))
	for i, p := range pending {
		c, err := models.NewCheck(entityID, next+uint64(i), p.in, p.rule, actor, now)
		if err != nil {
			return nil, nil, err
		}
		checks[i] = c
	}

	status := models.Fold(entityID, append(history, checks...))
	if err := s.store.AppendChecks(ctx, entityID, checks, status); err != nil {
		return nil, nil, wrapStoreErr(err, "rule not found")
	}
	s.cacheStatus(ctx, status)
	return checks, status, nil
}

// afterCommit counts the checks and emits one ComplianceChecked per check
// followed by ComplianceStatusUpdated.
func (s *Service) afterCommit(ctx context.Context, entityID id.EntityID, checks []*models.Check, status *models.Status, actor id.ActorID) {
	evts := make([]events.Event, 0, len(checks)+1)
	for _, c := range checks {
		s.metrics.IncChecks(c.Passed)
		evts = append(evts, s.audit(ctx, events.ComplianceChecked,
			"entity_id", entityID,
			"rule_id", c.RuleID,
			"actor", actor,
			"index", c.Index,
			"passed", c.Passed,
			"confidence", c.Confidence,
		))
	}
	evts = append(evts, s.statusEvent(ctx, status, actor))
	s.publish(ctx, evts...)
}

func (s *Service) statusEvent(ctx context.Context, st *models.Status, actor id.ActorID) events.Event {
	return s.audit(ctx, events.ComplianceStatusUpdated,
		"entity_id", st.EntityID,
		"actor", actor,
		"compliant", st.Compliant,
		"total", st.Total,
		"passed", st.Passed,
		"failed", st.Failed,
		"version", st.Version,
	)
}

// UpdateEvidence replaces the evidence text of a recorded check. Only the
// recording actor or the administrator may do so; the status is unaffected.
func (s *Service) UpdateEvidence(ctx context.Context, entityID id.EntityID, index uint64, edit models.EvidenceEdit, actor id.ActorID) (c *models.Check, err error) {
	ctx, end := s.startSpan(ctx, "UpdateEvidence")
	defer end(&err)

	if actor, err = requireActor(actor); err != nil {
		return nil, err
	}
	if err := edit.Validate(); err != nil {
		return nil, err
	}

	err = s.withEntityLock(ctx, entityID, func(ctx context.Context) error {
		if _, err := s.loadEntity(ctx, entityID); err != nil {
			return err
		}
		found, err := s.store.FindCheck(ctx, entityID, index)
		if err != nil {
			return wrapStoreErr(err, "compliance check not found")
		}
		if err := s.gate.RequireAuthorOrAdmin(actor, found.Actor); err != nil {
			return err
		}
		found.ReplaceEvidence(edit.Evidence, s.clock())
		if err := s.store.UpdateEvidence(ctx, found); err != nil {
			return wrapStoreErr(err, "compliance check not found")
		}
		c = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, s.audit(ctx, events.EvidenceUpdated,
		"entity_id", entityID,
		"rule_id", c.RuleID,
		"actor", actor,
		"index", index,
	))
	return c, nil
}

func messageOf(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
