// Package store persists the rule catalog, per-entity check histories and the
// derived compliance status projection.
package store

import (
	"context"
	"slices"
	"sync"

	"tracecore/internal/compliance/models"
	id "tracecore/pkg/domain"
	"tracecore/pkg/platform/sentinel"
)

// InMemory keeps compliance state in maps guarded by one RWMutex.
type InMemory struct {
	mu       sync.RWMutex
	rules    map[id.RuleID]*models.Rule
	ruleIDs  []id.RuleID
	byType   map[string][]id.RuleID
	checks   map[id.EntityID][]*models.Check
	statuses map[id.EntityID]*models.Status
}

func NewInMemory() *InMemory {
	return &InMemory{
		rules:    make(map[id.RuleID]*models.Rule),
		byType:   make(map[string][]id.RuleID),
		checks:   make(map[id.EntityID][]*models.Check),
		statuses: make(map[id.EntityID]*models.Status),
	}
}

func (s *InMemory) CreateRule(_ context.Context, r *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[r.ID]; ok {
		return sentinel.ErrConflict
	}
	s.rules[r.ID] = r.Clone()
	s.ruleIDs = insertSorted(s.ruleIDs, r.ID)
	s.byType[r.EntityType] = insertSorted(s.byType[r.EntityType], r.ID)
	return nil
}

func (s *InMemory) FindRule(_ context.Context, ruleID id.RuleID) (*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// UpdateRule persists Active and UpdatedAt. The catalog keys of a rule never
// change.
func (s *InMemory) UpdateRule(_ context.Context, r *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rules[r.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Active = r.Active
	existing.UpdatedAt = r.UpdatedAt
	return nil
}

func (s *InMemory) ListRules(_ context.Context) ([]*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectRules(s.ruleIDs), nil
}

func (s *InMemory) ListRulesByType(_ context.Context, entityType string) ([]*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectRules(s.byType[entityType]), nil
}

func (s *InMemory) collectRules(ids []id.RuleID) []*models.Rule {
	out := make([]*models.Rule, 0, len(ids))
	for _, ruleID := range ids {
		out = append(out, s.rules[ruleID].Clone())
	}
	return out
}

// AppendChecks appends checks to the entity's history and replaces its status
// in one step. The first check must carry the next free index; anything else
// means another writer got there first and yields ErrConflict.
func (s *InMemory) AppendChecks(_ context.Context, entityID id.EntityID, checks []*models.Check, status *models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.checks[entityID]
	next := uint64(len(history))
	for i, c := range checks {
		if c.Index != next+uint64(i) {
			return sentinel.ErrConflict
		}
		if _, ok := s.rules[c.RuleID]; !ok {
			return sentinel.ErrNotFound
		}
	}
	for _, c := range checks {
		history = append(history, c.Clone())
	}
	s.checks[entityID] = history
	s.statuses[entityID] = status.Clone()
	return nil
}

// ListChecks returns the entity's history in index order. An entity without
// checks yields an empty slice.
func (s *InMemory) ListChecks(_ context.Context, entityID id.EntityID) ([]*models.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.checks[entityID]
	out := make([]*models.Check, len(history))
	for i, c := range history {
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *InMemory) FindCheck(_ context.Context, entityID id.EntityID, index uint64) (*models.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.checks[entityID]
	if index >= uint64(len(history)) {
		return nil, sentinel.ErrNotFound
	}
	return history[index].Clone(), nil
}

// UpdateEvidence persists only the evidence text and its edit timestamp.
func (s *InMemory) UpdateEvidence(_ context.Context, c *models.Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.checks[c.EntityID]
	if c.Index >= uint64(len(history)) {
		return sentinel.ErrNotFound
	}
	stored := history[c.Index]
	stored.Evidence = c.Evidence
	if c.EvidenceUpdatedAt != nil {
		t := *c.EvidenceUpdatedAt
		stored.EvidenceUpdatedAt = &t
	}
	return nil
}

func (s *InMemory) FindStatus(_ context.Context, entityID id.EntityID) (*models.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[entityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *InMemory) SaveStatus(_ context.Context, status *models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.EntityID] = status.Clone()
	return nil
}

func insertSorted(ids []id.RuleID, ruleID id.RuleID) []id.RuleID {
	i, found := slices.BinarySearch(ids, ruleID)
	if found {
		return ids
	}
	return slices.Insert(ids, i, ruleID)
}
