package service

import (
	"context"
	"errors"
	"time"

	"tracecore/internal/events"
	"tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/platform/sentinel"
)

// Register creates an entity owned by actor, seeds its authorization set with
// the owner and appends the genesis checkpoint.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest, actor id.ActorID) (e *models.Entity, err error) {
	ctx, end := s.startSpan(ctx, "Register")
	defer end(&err)

	entities, err := s.register(ctx, []models.RegisterRequest{req}, actor)
	if err != nil {
		return nil, err
	}
	return entities[0], nil
}

// BatchRegister registers 1..MaxBatchRegister entities atomically. A batch
// key repeated inside the batch or already registered fails the whole call.
func (s *Service) BatchRegister(ctx context.Context, reqs []models.RegisterRequest, actor id.ActorID) (out []*models.Entity, err error) {
	ctx, end := s.startSpan(ctx, "BatchRegister")
	defer end(&err)

	batch := models.BatchRegisterRequest{Items: reqs}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return s.register(ctx, batch.Items, actor)
}

func (s *Service) register(ctx context.Context, reqs []models.RegisterRequest, actor id.ActorID) ([]*models.Entity, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	now := models.StoredTime(s.clock())

	regs := make([]models.Registration, len(reqs))
	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			return nil, err
		}
		e, err := models.NewEntity(reqs[i], actor, now)
		if err != nil {
			return nil, invariantAs(err, dErrors.CodeValidation)
		}
		genesis := models.NewCheckpoint(0, models.CheckpointInput{Status: models.StatusCreated}, actor, now)
		regs[i] = models.Registration{Entity: e, Genesis: genesis}
	}

	if err := s.store.CreateEntities(ctx, regs); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "batch key is already registered")
		}
		return nil, wrapStoreErr(err, "entity not found")
	}

	out := make([]*models.Entity, len(regs))
	evts := make([]events.Event, 0, 2*len(regs))
	for i, r := range regs {
		out[i] = r.Entity
		evts = append(evts,
			s.audit(ctx, events.EntityRegistered,
				"entity_id", r.Entity.ID,
				"actor", actor,
				"batch_key", r.Entity.BatchKey,
				"type", r.Entity.Type,
			),
			s.audit(ctx, events.CheckpointAdded,
				"entity_id", r.Entity.ID,
				"actor", actor,
				"seq", r.Genesis.Seq,
				"status", r.Genesis.Status,
			),
		)
	}
	s.publish(ctx, evts...)
	s.metrics.AddEntitiesRegistered(len(out))
	s.metrics.AddCheckpoints(len(out))
	return out, nil
}

// Update changes descriptive fields. ID, BatchKey and Owner never change.
func (s *Service) Update(ctx context.Context, entityID id.EntityID, req models.UpdateRequest, actor id.ActorID) (out *models.Entity, err error) {
	ctx, end := s.startSpan(ctx, "Update")
	defer end(&err)

	if actor, err = requireActor(actor); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	err = s.withEntityLock(ctx, entityID, func(ctx context.Context) error {
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		if err := s.gate.RequireOwnerOrAdmin(actor, e.Owner); err != nil {
			return err
		}
		if err := e.ApplyUpdate(req, models.StoredTime(s.clock())); err != nil {
			return invariantAs(err, dErrors.CodeValidation)
		}
		if err := s.store.Update(ctx, e); err != nil {
			return wrapStoreErr(err, "entity not found")
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, s.audit(ctx, events.EntityUpdated,
		"entity_id", out.ID,
		"actor", actor,
		"fields", req.ChangedFields(),
	))
	return out, nil
}

// Deactivate stops further checkpoints on the entity.
func (s *Service) Deactivate(ctx context.Context, entityID id.EntityID, actor id.ActorID) (out *models.Entity, err error) {
	ctx, end := s.startSpan(ctx, "Deactivate")
	defer end(&err)

	out, err = s.transition(ctx, entityID, actor,
		(*models.Entity).CanDeactivate,
		(*models.Entity).ApplyDeactivation,
	)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, s.audit(ctx, events.EntityDeactivated, "entity_id", out.ID, "actor", actor))
	return out, nil
}

// Reactivate re-opens an inactive entity.
func (s *Service) Reactivate(ctx context.Context, entityID id.EntityID, actor id.ActorID) (out *models.Entity, err error) {
	ctx, end := s.startSpan(ctx, "Reactivate")
	defer end(&err)

	out, err = s.transition(ctx, entityID, actor,
		(*models.Entity).CanReactivate,
		(*models.Entity).ApplyReactivation,
	)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, s.audit(ctx, events.EntityReactivated, "entity_id", out.ID, "actor", actor))
	return out, nil
}

func (s *Service) transition(
	ctx context.Context,
	entityID id.EntityID,
	actor id.ActorID,
	can func(*models.Entity) error,
	apply func(*models.Entity, time.Time),
) (*models.Entity, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	var out *models.Entity
	err = s.withEntityLock(ctx, entityID, func(ctx context.Context) error {
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		if err := s.gate.RequireOwnerOrAdmin(actor, e.Owner); err != nil {
			return err
		}
		if err := can(e); err != nil {
			return invariantAs(err, dErrors.CodeInvalidState)
		}
		apply(e, models.StoredTime(s.clock()))
		if err := s.store.Update(ctx, e); err != nil {
			return wrapStoreErr(err, "entity not found")
		}
		out = e
		return nil
	})
	return out, err
}
