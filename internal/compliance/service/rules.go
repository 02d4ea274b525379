package service

import (
	"context"
	"errors"

	"tracecore/internal/compliance/models"
	"tracecore/internal/events"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/platform/sentinel"
	strutil "tracecore/pkg/platform/strings"
)

// AddRule registers a catalog rule. Administrator only.
func (s *Service) AddRule(ctx context.Context, in models.RuleInput, actor id.ActorID) (r *models.Rule, err error) {
	ctx, end := s.startSpan(ctx, "AddRule")
	defer end(&err)

	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	r, err = models.NewRule(in, s.clock())
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.store.CreateRule(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "rule id is already registered")
		}
		return nil, wrapStoreErr(err, "rule not found")
	}

	s.publish(ctx, s.audit(ctx, events.RuleAdded,
		"rule_id", r.ID,
		"actor", actor,
		"entity_type", r.EntityType,
		"severity", r.Severity,
	))
	return r, nil
}

// SetRuleActive enables or disables a rule. Setting the current state again
// is a no-op without an event.
func (s *Service) SetRuleActive(ctx context.Context, ruleID id.RuleID, active bool, actor id.ActorID) (r *models.Rule, err error) {
	ctx, end := s.startSpan(ctx, "SetRuleActive")
	defer end(&err)

	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if ruleID, err = id.ParseRuleID(string(ruleID)); err != nil {
		return nil, err
	}
	r, err = s.loadRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !r.SetActive(active, s.clock()) {
		return r, nil
	}
	if err := s.store.UpdateRule(ctx, r); err != nil {
		return nil, wrapStoreErr(err, "rule not found")
	}

	s.publish(ctx, s.audit(ctx, events.RuleStatusChanged,
		"rule_id", r.ID,
		"actor", actor,
		"active", r.Active,
	))
	return r, nil
}

// Rule returns a catalog entry.
func (s *Service) Rule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error) {
	return s.loadRule(ctx, ruleID)
}

// Rules returns the whole catalog ordered by id.
func (s *Service) Rules(ctx context.Context) ([]*models.Rule, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "rule not found")
	}
	return rules, nil
}

// RulesByType returns every rule registered for entityType, active or not.
func (s *Service) RulesByType(ctx context.Context, entityType string) ([]*models.Rule, error) {
	entityType = strutil.NormalizeLabel(entityType)
	if entityType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "entity type is required")
	}
	rules, err := s.store.ListRulesByType(ctx, entityType)
	if err != nil {
		return nil, wrapStoreErr(err, "rule not found")
	}
	return rules, nil
}

// RulesForType returns the ids of the rules registered for entityType.
func (s *Service) RulesForType(ctx context.Context, entityType string) ([]id.RuleID, error) {
	rules, err := s.RulesByType(ctx, entityType)
	if err != nil {
		return nil, err
	}
	ids := make([]id.RuleID, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids, nil
}
