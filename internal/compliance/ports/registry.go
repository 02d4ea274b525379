// Package ports declares what the compliance evaluator needs from other
// domains.
package ports

import (
	"context"

	id "tracecore/pkg/domain"
)

// EntityRef is the slice of a registry entity the evaluator depends on.
type EntityRef struct {
	ID     id.EntityID
	Type   string
	Owner  id.ActorID
	Active bool
}

// RegistryPort resolves entities and their authorization sets. Both calls
// return a not_found domain error for unknown ids.
type RegistryPort interface {
	Entity(ctx context.Context, entityID id.EntityID) (*EntityRef, error)
	// IsAuthorized applies the registry's gate: member of the authorization
	// set or the administrator.
	IsAuthorized(ctx context.Context, entityID id.EntityID, actor id.ActorID) (bool, error)
}
