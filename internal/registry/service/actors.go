package service

import (
	"context"
	"errors"

	"tracecore/internal/events"
	"tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/platform/sentinel"
)

// AddActor adds newActor to the entity's authorization set. Any current
// member or the administrator may add; self-adds and duplicates conflict.
func (s *Service) AddActor(ctx context.Context, entityID id.EntityID, newActor, actor id.ActorID) (err error) {
	ctx, end := s.startSpan(ctx, "AddActor")
	defer end(&err)

	if actor, err = requireActor(actor); err != nil {
		return err
	}
	if newActor, err = id.ParseActorID(string(newActor)); err != nil {
		return err
	}

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
		if newActor == actor {
			return dErrors.New(dErrors.CodeConflict, "actor cannot add itself")
		}
		err = s.store.AddActor(ctx, models.Stakeholder{
			EntityID: entityID,
			Actor:    newActor,
			AddedBy:  actor,
			AddedAt:  models.StoredTime(s.clock()),
		})
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "actor is already authorized")
		}
		return wrapStoreErr(err, "entity not found")
	})
	if err != nil {
		return err
	}

	s.publish(ctx, s.audit(ctx, events.ActorAdded,
		"entity_id", entityID,
		"actor", actor,
		"added_actor", string(newActor),
	))
	return nil
}

// RemoveActor removes target from the authorization set. Only the owner or
// the administrator may remove, and the owner is never removable.
func (s *Service) RemoveActor(ctx context.Context, entityID id.EntityID, target, actor id.ActorID) (err error) {
	ctx, end := s.startSpan(ctx, "RemoveActor")
	defer end(&err)

	if actor, err = requireActor(actor); err != nil {
		return err
	}
	if target, err = id.ParseActorID(string(target)); err != nil {
		return err
	}

	err = s.withEntityLock(ctx, entityID, func(ctx context.Context) error {
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		if err := s.gate.RequireOwnerOrAdmin(actor, e.Owner); err != nil {
			return err
		}
		if target == e.Owner {
			return dErrors.New(dErrors.CodeConflict, "the owner cannot be removed")
		}
		if err := s.store.RemoveActor(ctx, entityID, target); err != nil {
			return wrapStoreErr(err, "actor is not authorized for this entity")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, s.audit(ctx, events.ActorRemoved,
		"entity_id", entityID,
		"actor", actor,
		"removed_actor", string(target),
	))
	return nil
}
