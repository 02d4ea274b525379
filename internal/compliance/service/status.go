package service

import (
	"context"
	"errors"

	"tracecore/internal/compliance/models"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/platform/sentinel"
)

// Status returns the entity's compliance projection, through the cache when
// one is configured. An entity without checks has the empty, non-compliant
// status.
func (s *Service) Status(ctx context.Context, entityID id.EntityID) (*models.Status, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	if s.cache != nil {
		st, ok, err := s.cache.Get(ctx, entityID)
		switch {
		case err != nil:
			s.metrics.IncCacheLookup("error")
			s.logger.WarnContext(ctx, "status cache read failed", "entity_id", entityID, "error", err)
		case ok:
			s.metrics.IncCacheLookup("hit")
			return st, nil
		default:
			s.metrics.IncCacheLookup("miss")
		}
	}

	if s.cache == nil {
		return s.currentStatus(ctx, entityID)
	}

	// fill under the entity lock so a concurrent commit cannot be overtaken
	// by this older read
	var st *models.Status
	err := s.withEntityLock(ctx, entityID, func(ctx context.Context) error {
		var err error
		if st, err = s.currentStatus(ctx, entityID); err != nil {
			return err
		}
		s.cacheStatus(ctx, st)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// currentStatus reads the stored projection, falling back to the empty status
// for a known entity that has never been checked.
func (s *Service) currentStatus(ctx context.Context, entityID id.EntityID) (*models.Status, error) {
	st, err := s.store.FindStatus(ctx, entityID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, wrapStoreErr(err, "status not found")
	}
	if _, err := s.loadEntity(ctx, entityID); err != nil {
		return nil, err
	}
	return models.Empty(entityID), nil
}

// History returns every check recorded for the entity in index order.
func (s *Service) History(ctx context.Context, entityID id.EntityID) ([]*models.Check, error) {
	if _, err := s.loadEntity(ctx, entityID); err != nil {
		return nil, err
	}
	checks, err := s.store.ListChecks(ctx, entityID)
	if err != nil {
		return nil, wrapStoreErr(err, "entity not found")
	}
	return checks, nil
}

// Recompute folds the full history again and overwrites the stored projection
// and the cache. Running it twice yields identical results. actor must be
// authorized for the entity.
func (s *Service) Recompute(ctx context.Context, entityID id.EntityID, actor id.ActorID) (st *models.Status, err error) {
	ctx, end := s.startSpan(ctx, "Recompute")
	defer end(&err)

	if actor, err = requireActor(actor); err != nil {
		return nil, err
	}
	var repaired bool
	err = s.withEntityLock(ctx, entityID, func(ctx context.Context) error {
		if err := s.requireMember(ctx, entityID, actor); err != nil {
			return err
		}
		history, err := s.store.ListChecks(ctx, entityID)
		if err != nil {
			return wrapStoreErr(err, "entity not found")
		}
		st = models.Fold(entityID, history)

		stored, err := s.store.FindStatus(ctx, entityID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return wrapStoreErr(err, "status not found")
		}
		repaired = stored != nil && !stored.Equal(st)

		if err := s.store.SaveStatus(ctx, st); err != nil {
			return wrapStoreErr(err, "entity not found")
		}
		s.replaceCached(ctx, st)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if repaired {
		evt := s.statusEvent(ctx, st, actor)
		evt.Payload["repaired"] = true
		s.publish(ctx, evt)
	}
	return st, nil
}

// replaceCached overwrites the cache entry even when it holds a higher
// version, as a repaired projection may. Must run under the entity lock.
func (s *Service) replaceCached(ctx context.Context, st *models.Status) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, st.EntityID); err != nil {
		s.logger.WarnContext(ctx, "status cache invalidation failed",
			"entity_id", st.EntityID,
			"error", err,
		)
		return
	}
	s.cacheStatus(ctx, st)
}

// Verify compares the stored projection with a fresh fold of the history
// without writing anything.
func (s *Service) Verify(ctx context.Context, entityID id.EntityID) (v *models.Verification, err error) {
	ctx, end := s.startSpan(ctx, "Verify")
	defer end(&err)

	if _, err := s.loadEntity(ctx, entityID); err != nil {
		return nil, err
	}
	history, err := s.store.ListChecks(ctx, entityID)
	if err != nil {
		return nil, wrapStoreErr(err, "entity not found")
	}
	derived := models.Fold(entityID, history)

	stored, err := s.store.FindStatus(ctx, entityID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, wrapStoreErr(err, "status not found")
	}

	v = &models.Verification{EntityID: entityID, Stored: stored, Derived: derived}
	if stored == nil {
		v.Consistent = len(history) == 0
	} else {
		v.Consistent = stored.Equal(derived)
	}
	if !v.Consistent {
		s.metrics.IncInconsistent()
		s.logger.WarnContext(ctx, "compliance projection diverges from history",
			"entity_id", entityID,
			"stored_version", versionOf(stored),
			"derived_version", derived.Version,
		)
	}
	return v, nil
}

func versionOf(st *models.Status) any {
	if st == nil {
		return nil
	}
	return st.Version
}
