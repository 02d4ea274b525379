package adapters

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	registrymodels "tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
)

type stubReader map[id.EntityID]*registrymodels.Entity

// members of every stub entity besides its owner
var stubMembers = []id.ActorID{"carrier"}

func (s stubReader) Get(_ context.Context, entityID id.EntityID) (*registrymodels.Entity, error) {
	e, ok := s[entityID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "entity not found")
	}
	return e, nil
}

func (s stubReader) IsAuthorized(_ context.Context, entityID id.EntityID, actor id.ActorID) (bool, error) {
	e, ok := s[entityID]
	if !ok {
		return false, dErrors.New(dErrors.CodeNotFound, "entity not found")
	}
	return actor == e.Owner || slices.Contains(stubMembers, actor), nil
}

func TestRegistryAdapter(t *testing.T) {
	adapter := NewRegistryAdapter(stubReader{
		1: {ID: 1, Type: "textile", Owner: "acme", Active: true},
	})

	ref, err := adapter.Entity(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "textile", ref.Type)
	assert.Equal(t, id.ActorID("acme"), ref.Owner)
	assert.True(t, ref.Active)

	_, err = adapter.Entity(context.Background(), 2)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRegistryAdapterAuthorization(t *testing.T) {
	adapter := NewRegistryAdapter(stubReader{
		1: {ID: 1, Type: "textile", Owner: "acme", Active: true},
	})
	ctx := context.Background()

	ok, err := adapter.IsAuthorized(ctx, 1, "carrier")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.IsAuthorized(ctx, 1, "stranger")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = adapter.IsAuthorized(ctx, 2, "acme")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
