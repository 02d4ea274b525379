package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	strutil "tracecore/pkg/platform/strings"
)

func (s *Service) Get(ctx context.Context, entityID id.EntityID) (*models.Entity, error) {
	return s.loadEntity(ctx, entityID)
}

func (s *Service) GetByBatchKey(ctx context.Context, key string) (*models.Entity, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "batch key is required")
	}
	e, err := s.store.FindByBatchKey(ctx, key)
	if err != nil {
		return nil, wrapStoreErr(err, "entity not found")
	}
	return e, nil
}

func (s *Service) GetByOwner(ctx context.Context, owner id.ActorID) ([]*models.Entity, error) {
	owner, err := id.ParseActorID(string(owner))
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, wrapStoreErr(err, "entity not found")
	}
	return out, nil
}

func (s *Service) GetByType(ctx context.Context, entityType string) ([]*models.Entity, error) {
	entityType = strutil.NormalizeLabel(entityType)
	if entityType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "type is required")
	}
	out, err := s.store.ListByType(ctx, entityType)
	if err != nil {
		return nil, wrapStoreErr(err, "entity not found")
	}
	return out, nil
}

// GetInDateRange returns entities whose ValidFrom lies in [from, to].
func (s *Service) GetInDateRange(ctx context.Context, from, to time.Time) ([]*models.Entity, error) {
	if from.IsZero() || to.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "from and to are required")
	}
	if to.Before(from) {
		return nil, dErrors.New(dErrors.CodeValidation, "to must not be before from")
	}
	out, err := s.store.ListByValidFrom(ctx, from, to)
	if err != nil {
		return nil, wrapStoreErr(err, "entity not found")
	}
	return out, nil
}

func (s *Service) GetCheckpoints(ctx context.Context, entityID id.EntityID) ([]*models.Checkpoint, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	cps, err := s.store.ListCheckpoints(ctx, entityID)
	if err != nil {
		return nil, wrapStoreErr(err, "entity not found")
	}
	return cps, nil
}

func (s *Service) GetCheckpoint(ctx context.Context, entityID id.EntityID, seq uint64) (*models.Checkpoint, error) {
	if _, err := s.loadEntity(ctx, entityID); err != nil {
		return nil, err
	}
	cp, err := s.store.FindCheckpoint(ctx, entityID, seq)
	if err != nil {
		return nil, wrapStoreErr(err, "checkpoint not found")
	}
	return cp, nil
}

func (s *Service) GetActors(ctx context.Context, entityID id.EntityID) ([]models.Stakeholder, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	rows, err := s.store.ListActors(ctx, entityID)
	if err != nil {
		return nil, wrapStoreErr(err, "entity not found")
	}
	return rows, nil
}

// IsAuthorized reports whether actor may mutate the entity.
func (s *Service) IsAuthorized(ctx context.Context, entityID id.EntityID, actor id.ActorID) (bool, error) {
	e, err := s.loadEntity(ctx, entityID)
	if err != nil {
		return false, err
	}
	subject, err := s.loadSubject(ctx, e)
	if err != nil {
		return false, err
	}
	return s.gate.Authorized(actor, subject), nil
}

// GetTraceChain returns the checkpoint log with elapsed time and, where both
// ends carry coordinates, distance between consecutive entries.
func (s *Service) GetTraceChain(ctx context.Context, entityID id.EntityID) (*models.TraceChain, error) {
	cps, err := s.GetCheckpoints(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return models.BuildTraceChain(cps), nil
}

func (s *Service) IsExpired(ctx context.Context, entityID id.EntityID, now time.Time) (bool, error) {
	e, err := s.loadEntity(ctx, entityID)
	if err != nil {
		return false, err
	}
	return e.IsExpired(now), nil
}

// Summary gathers the entity, its log and its authorization set concurrently.
func (s *Service) Summary(ctx context.Context, entityID id.EntityID, now time.Time) (*models.Summary, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	var (
		e      *models.Entity
		cps    []*models.Checkpoint
		actors []models.Stakeholder
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		e, err = s.store.FindByID(gctx, entityID)
		return err
	})
	g.Go(func() error {
		var err error
		cps, err = s.store.ListCheckpoints(gctx, entityID)
		return err
	})
	g.Go(func() error {
		var err error
		actors, err = s.store.ListActors(gctx, entityID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, wrapStoreErr(err, "entity not found")
	}

	summary := &models.Summary{
		Entity:          e,
		CheckpointCount: len(cps),
		ActorCount:      len(actors),
		Expired:         e.IsExpired(now),
	}
	if len(cps) > 0 {
		summary.Latest = cps[len(cps)-1]
	}
	return summary, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, wrapStoreErr(err, "entity not found")
	}
	return n, nil
}
