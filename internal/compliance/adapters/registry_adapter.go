package adapters

import (
	"context"

	"tracecore/internal/compliance/ports"
	registrymodels "tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
)

// EntityReader is the read surface of the registry service used here.
type EntityReader interface {
	Get(ctx context.Context, entityID id.EntityID) (*registrymodels.Entity, error)
	IsAuthorized(ctx context.Context, entityID id.EntityID, actor id.ActorID) (bool, error)
}

// RegistryAdapter implements ports.RegistryPort by calling the registry
// service in-process.
type RegistryAdapter struct {
	registry EntityReader
}

func NewRegistryAdapter(registry EntityReader) ports.RegistryPort {
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Entity(ctx context.Context, entityID id.EntityID) (*ports.EntityRef, error) {
	e, err := a.registry.Get(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return &ports.EntityRef{
		ID:     e.ID,
		Type:   e.Type,
		Owner:  e.Owner,
		Active: e.Active,
	}, nil
}

func (a *RegistryAdapter) IsAuthorized(ctx context.Context, entityID id.EntityID, actor id.ActorID) (bool, error) {
	return a.registry.IsAuthorized(ctx, entityID, actor)
}
