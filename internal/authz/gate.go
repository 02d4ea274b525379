// Package authz is the single authorization gate for every mutating
// operation: an actor may mutate an entity iff it belongs to the entity's
// authorization set or is the global administrator.
package authz

import (
	"slices"

	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
)

// Subject is the authorization view of an entity.
type Subject struct {
	Owner   id.ActorID
	Members []id.ActorID
}

// Gate evaluates authorization decisions against a configured administrator.
type Gate struct {
	admin id.ActorID
}

// New builds a gate. An empty admin disables the override.
func New(admin id.ActorID) *Gate {
	return &Gate{admin: admin}
}

// IsAdmin reports whether actor is the global administrator.
func (g *Gate) IsAdmin(actor id.ActorID) bool {
	return !g.admin.IsNil() && actor == g.admin
}

// Authorized reports actor ∈ members ∨ actor == admin.
func (g *Gate) Authorized(actor id.ActorID, s Subject) bool {
	if actor.IsNil() {
		return false
	}
	return g.IsAdmin(actor) || actor == s.Owner || slices.Contains(s.Members, actor)
}

// RequireMember gates checkpoint appends and actor additions.
func (g *Gate) RequireMember(actor id.ActorID, s Subject) error {
	if !g.Authorized(actor, s) {
		return dErrors.New(dErrors.CodeForbidden, "actor is not authorized for this entity")
	}
	return nil
}

// RequireOwnerOrAdmin gates lifecycle changes, descriptive updates and actor removal.
func (g *Gate) RequireOwnerOrAdmin(actor id.ActorID, owner id.ActorID) error {
	if actor.IsNil() || (actor != owner && !g.IsAdmin(actor)) {
		return dErrors.New(dErrors.CodeForbidden, "only the owner or the administrator may perform this operation")
	}
	return nil
}

// RequireAuthorOrAdmin gates edits of committed records (checkpoint notes,
// compliance evidence) to the actor that wrote them.
func (g *Gate) RequireAuthorOrAdmin(actor id.ActorID, author id.ActorID) error {
	if actor.IsNil() || (actor != author && !g.IsAdmin(actor)) {
		return dErrors.New(dErrors.CodeForbidden, "only the original actor or the administrator may edit this record")
	}
	return nil
}

// RequireAdmin gates catalog-wide operations such as rule management.
func (g *Gate) RequireAdmin(actor id.ActorID) error {
	if !g.IsAdmin(actor) {
		return dErrors.New(dErrors.CodeForbidden, "administrator privileges required")
	}
	return nil
}
