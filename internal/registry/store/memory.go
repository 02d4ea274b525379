// Package store persists registry entities, their checkpoint logs and their
// authorization sets.
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
	"tracecore/pkg/platform/sentinel"
)

type validFromKey struct {
	at time.Time
	id id.EntityID
}

func compareValidFrom(a, b validFromKey) int {
	if c := a.at.Compare(b.at); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// InMemory keeps registry state in maps guarded by one RWMutex. Secondary
// indices are maintained on every write so reads never scan all entities.
type InMemory struct {
	mu          sync.RWMutex
	nextID      id.EntityID
	entities    map[id.EntityID]*models.Entity
	byBatchKey  map[string]id.EntityID
	byOwner     map[id.ActorID][]id.EntityID
	byType      map[string][]id.EntityID
	byValidFrom []validFromKey
	checkpoints map[id.EntityID][]*models.Checkpoint
	actors      map[id.EntityID][]models.Stakeholder
}

func NewInMemory() *InMemory {
	return &InMemory{
		nextID:      1,
		entities:    make(map[id.EntityID]*models.Entity),
		byBatchKey:  make(map[string]id.EntityID),
		byOwner:     make(map[id.ActorID][]id.EntityID),
		byType:      make(map[string][]id.EntityID),
		checkpoints: make(map[id.EntityID][]*models.Checkpoint),
		actors:      make(map[id.EntityID][]models.Stakeholder),
	}
}

// CreateEntities inserts every registration or none. A batch key already in
// the store, or repeated within regs, fails the whole call with ErrConflict.
func (s *InMemory) CreateEntities(_ context.Context, regs []models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(regs))
	for _, r := range regs {
		if _, ok := s.byBatchKey[r.Entity.BatchKey]; ok {
			return sentinel.ErrConflict
		}
		if _, ok := seen[r.Entity.BatchKey]; ok {
			return sentinel.ErrConflict
		}
		seen[r.Entity.BatchKey] = struct{}{}
	}

	for _, r := range regs {
		e := r.Entity
		e.ID = s.nextID
		s.nextID++

		stored := e.Clone()
		s.entities[e.ID] = stored
		s.byBatchKey[e.BatchKey] = e.ID
		s.byOwner[e.Owner] = append(s.byOwner[e.Owner], e.ID)
		s.indexType(e.Type, e.ID)
		s.indexValidFrom(e.ValidFrom, e.ID)

		r.Genesis.EntityID = e.ID
		r.Genesis.Seq = 0
		s.checkpoints[e.ID] = []*models.Checkpoint{r.Genesis.Clone()}
		s.actors[e.ID] = []models.Stakeholder{{
			EntityID: e.ID,
			Actor:    e.Owner,
			AddedBy:  e.Owner,
			AddedAt:  e.CreatedAt,
		}}
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, entityID id.EntityID) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *InMemory) FindByBatchKey(_ context.Context, key string) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entityID, ok := s.byBatchKey[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.entities[entityID].Clone(), nil
}

func (s *InMemory) ListByOwner(_ context.Context, owner id.ActorID) ([]*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byOwner[owner]), nil
}

func (s *InMemory) ListByType(_ context.Context, entityType string) ([]*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byType[entityType]), nil
}

// ListByValidFrom returns entities whose ValidFrom lies in [from, to], ordered
// by ValidFrom then ID.
func (s *InMemory) ListByValidFrom(_ context.Context, from, to time.Time) ([]*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start, _ := slices.BinarySearchFunc(s.byValidFrom, validFromKey{at: from}, compareValidFrom)
	out := []*models.Entity{}
	for _, k := range s.byValidFrom[start:] {
		if k.at.After(to) {
			break
		}
		out = append(out, s.entities[k.id].Clone())
	}
	return out, nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities), nil
}

// Update replaces the mutable fields of an existing entity and reindexes it.
func (s *InMemory) Update(_ context.Context, e *models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entities[e.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.Type != e.Type {
		s.unindexType(cur.Type, e.ID)
		s.indexType(e.Type, e.ID)
	}
	if !cur.ValidFrom.Equal(e.ValidFrom) {
		s.unindexValidFrom(cur.ValidFrom, e.ID)
		s.indexValidFrom(e.ValidFrom, e.ID)
	}
	next := e.Clone()
	next.Owner, next.BatchKey, next.CreatedAt = cur.Owner, cur.BatchKey, cur.CreatedAt
	s.entities[e.ID] = next
	return nil
}

// AppendCheckpoints assigns consecutive sequence numbers to cps and appends
// them to the entity's log.
func (s *InMemory) AppendCheckpoints(_ context.Context, entityID id.EntityID, cps []*models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entityID]; !ok {
		return sentinel.ErrNotFound
	}
	log := s.checkpoints[entityID]
	next := uint64(len(log))
	for i, cp := range cps {
		cp.EntityID = entityID
		cp.Seq = next + uint64(i)
		log = append(log, cp.Clone())
	}
	s.checkpoints[entityID] = log
	return nil
}

func (s *InMemory) ListCheckpoints(_ context.Context, entityID id.EntityID) ([]*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entities[entityID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	log := s.checkpoints[entityID]
	out := make([]*models.Checkpoint, len(log))
	for i, cp := range log {
		out[i] = cp.Clone()
	}
	return out, nil
}

func (s *InMemory) FindCheckpoint(_ context.Context, entityID id.EntityID, seq uint64) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.checkpoints[entityID]
	if seq >= uint64(len(log)) {
		return nil, sentinel.ErrNotFound
	}
	return log[seq].Clone(), nil
}

// LastCheckpoint returns the highest-seq checkpoint of the entity.
func (s *InMemory) LastCheckpoint(_ context.Context, entityID id.EntityID) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.checkpoints[entityID]
	if len(log) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return log[len(log)-1].Clone(), nil
}

// UpdateCheckpoint overwrites the editable fields of a committed checkpoint.
// Seq, Timestamp, Status and Actor are preserved.
func (s *InMemory) UpdateCheckpoint(_ context.Context, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.checkpoints[cp.EntityID]
	if cp.Seq >= uint64(len(log)) {
		return sentinel.ErrNotFound
	}
	cur := log[cp.Seq]
	next := cp.Clone()
	next.Timestamp, next.Status, next.Actor = cur.Timestamp, cur.Status, cur.Actor
	log[cp.Seq] = next
	return nil
}

// AddActor appends a member. ErrConflict if already present.
func (s *InMemory) AddActor(_ context.Context, sh models.Stakeholder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[sh.EntityID]; !ok {
		return sentinel.ErrNotFound
	}
	rows := s.actors[sh.EntityID]
	if slices.ContainsFunc(rows, func(r models.Stakeholder) bool { return r.Actor == sh.Actor }) {
		return sentinel.ErrConflict
	}
	s.actors[sh.EntityID] = append(rows, sh)
	return nil
}

// RemoveActor deletes a member. ErrNotFound if absent.
func (s *InMemory) RemoveActor(_ context.Context, entityID id.EntityID, actor id.ActorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.actors[entityID]
	i := slices.IndexFunc(rows, func(r models.Stakeholder) bool { return r.Actor == actor })
	if i < 0 {
		return sentinel.ErrNotFound
	}
	s.actors[entityID] = slices.Delete(slices.Clone(rows), i, i+1)
	return nil
}

func (s *InMemory) ListActors(_ context.Context, entityID id.EntityID) ([]models.Stakeholder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entities[entityID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(s.actors[entityID]), nil
}

func (s *InMemory) collect(ids []id.EntityID) []*models.Entity {
	out := make([]*models.Entity, 0, len(ids))
	for _, entityID := range ids {
		out = append(out, s.entities[entityID].Clone())
	}
	return out
}

func (s *InMemory) indexType(t string, entityID id.EntityID) {
	ids := s.byType[t]
	i, _ := slices.BinarySearch(ids, entityID)
	s.byType[t] = slices.Insert(ids, i, entityID)
}

func (s *InMemory) unindexType(t string, entityID id.EntityID) {
	ids := s.byType[t]
	if i, ok := slices.BinarySearch(ids, entityID); ok {
		ids = slices.Delete(ids, i, i+1)
	}
	if len(ids) == 0 {
		delete(s.byType, t)
		return
	}
	s.byType[t] = ids
}

func (s *InMemory) indexValidFrom(at time.Time, entityID id.EntityID) {
	k := validFromKey{at: at, id: entityID}
	i, _ := slices.BinarySearchFunc(s.byValidFrom, k, compareValidFrom)
	s.byValidFrom = slices.Insert(s.byValidFrom, i, k)
}

func (s *InMemory) unindexValidFrom(at time.Time, entityID id.EntityID) {
	k := validFromKey{at: at, id: entityID}
	if i, ok := slices.BinarySearchFunc(s.byValidFrom, k, compareValidFrom); ok {
		s.byValidFrom = slices.Delete(s.byValidFrom, i, i+1)
	}
}
