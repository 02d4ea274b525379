package service

import (
	"context"

	"tracecore/internal/events"
	"tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
)

// AddCheckpoint appends one checkpoint at the next sequence index.
func (s *Service) AddCheckpoint(ctx context.Context, entityID id.EntityID, in models.CheckpointInput, actor id.ActorID) (cp *models.Checkpoint, err error) {
	ctx, end := s.startSpan(ctx, "AddCheckpoint")
	defer end(&err)

	if err := in.Validate(); err != nil {
		return nil, err
	}
	cps, err := s.appendCheckpoints(ctx, entityID, []models.CheckpointInput{in}, actor)
	if err != nil {
		return nil, err
	}
	return cps[0], nil
}

// BatchAddCheckpoints appends 1..MaxBatchCheckpoints checkpoints with
// consecutive sequence indices, all or nothing.
func (s *Service) BatchAddCheckpoints(ctx context.Context, entityID id.EntityID, ins []models.CheckpointInput, actor id.ActorID) (cps []*models.Checkpoint, err error) {
	ctx, end := s.startSpan(ctx, "BatchAddCheckpoints")
	defer end(&err)

	batch := models.BatchCheckpointRequest{Items: ins}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return s.appendCheckpoints(ctx, entityID, batch.Items, actor)
}

func (s *Service) appendCheckpoints(ctx context.Context, entityID id.EntityID, ins []models.CheckpointInput, actor id.ActorID) ([]*models.Checkpoint, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}

	var cps []*models.Checkpoint
	err = s.withEntityLock(ctx, entityID, func(ctx context.Context) error {
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		subject, err := s.loadSubject(ctx, e)
		if err != nil {
			return err
		}
		if err := s.gate.RequireMember(actor, subject); err != nil {
			return err
		}
		if !e.IsActive() {
			return dErrors.New(dErrors.CodeInvalidState, "entity is inactive")
		}

		last, err := s.store.LastCheckpoint(ctx, entityID)
		if err != nil {
			return wrapStoreErr(err, "entity not found")
		}
		now := models.NextTimestamp(last, s.clock())
		cps = make([]*models.Checkpoint, len(ins))
		for i, in := range ins {
			cps[i] = models.NewCheckpoint(entityID, in, actor, now)
		}
		if err := s.store.AppendCheckpoints(ctx, entityID, cps); err != nil {
			return wrapStoreErr(err, "entity not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	evts := make([]events.Event, len(cps))
	for i, cp := range cps {
		evts[i] = s.audit(ctx, events.CheckpointAdded,
			"entity_id", entityID,
			"actor", actor,
			"seq", cp.Seq,
			"status", cp.Status,
			"location", cp.Location,
		)
	}
	s.publish(ctx, evts...)
	s.metrics.AddCheckpoints(len(cps))
	return cps, nil
}

// UpdateCheckpoint edits the location or note of a committed checkpoint.
// Only available when checkpoint edits are enabled; ordering fields never
// change.
func (s *Service) UpdateCheckpoint(ctx context.Context, entityID id.EntityID, seq uint64, edit models.CheckpointEdit, actor id.ActorID) (cp *models.Checkpoint, err error) {
	ctx, end := s.startSpan(ctx, "UpdateCheckpoint")
	defer end(&err)

	if !s.allowCheckpointEdits {
		return nil, dErrors.New(dErrors.CodeInvalidState, "checkpoint edits are disabled")
	}
	if actor, err = requireActor(actor); err != nil {
		return nil, err
	}
	if err := edit.Validate(); err != nil {
		return nil, err
	}

	err = s.withEntityLock(ctx, entityID, func(ctx context.Context) error {
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		found, err := s.store.FindCheckpoint(ctx, entityID, seq)
		if err != nil {
			return wrapStoreErr(err, "checkpoint not found")
		}
		if err := s.gate.RequireAuthorOrAdmin(actor, found.Actor); err != nil {
			return err
		}
		if !e.IsActive() {
			return dErrors.New(dErrors.CodeInvalidState, "entity is inactive")
		}
		found.ApplyEdit(edit, s.clock())
		if err := s.store.UpdateCheckpoint(ctx, found); err != nil {
			return wrapStoreErr(err, "checkpoint not found")
		}
		cp = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, s.audit(ctx, events.CheckpointUpdated,
		"entity_id", entityID,
		"actor", actor,
		"seq", seq,
	))
	return cp, nil
}
