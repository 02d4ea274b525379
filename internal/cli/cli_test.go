package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracecore/internal/authz"
	"tracecore/internal/compliance/models"
	compliancestore "tracecore/internal/compliance/store"
	jwttoken "tracecore/internal/jwt_token"
	"tracecore/internal/platform/lock"
	registrymodels "tracecore/internal/registry/models"
	registryservice "tracecore/internal/registry/service"
	registrystore "tracecore/internal/registry/store"
	id "tracecore/pkg/domain"
)

type stubOps struct {
	recomputed   []id.EntityID
	operators    []id.ActorID
	inconsistent map[id.EntityID]bool
	err          error
}

func (s *stubOps) Recompute(_ context.Context, entityID id.EntityID, actor id.ActorID) (*models.Status, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.recomputed = append(s.recomputed, entityID)
	s.operators = append(s.operators, actor)
	return &models.Status{EntityID: entityID, Compliant: true, Total: 2, Passed: 2, Version: 2}, nil
}

func (s *stubOps) Verify(_ context.Context, entityID id.EntityID) (*models.Verification, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Verification{EntityID: entityID, Consistent: !s.inconsistent[entityID]}, nil
}

func run(t *testing.T, ops *stubOps, args ...string) (string, error) {
	t.Helper()
	closed := false
	cmd := NewRootCommand(func(context.Context, Backend) (ComplianceOps, func(), error) {
		return ops, func() { closed = true }, nil
	})
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil && ops != nil && len(ops.recomputed) > 0 {
		assert.True(t, closed, "backend should be released")
	}
	return out.String(), err
}

func TestRecompute(t *testing.T) {
	ops := &stubOps{}
	out, err := run(t, ops, "--operator", "ops", "recompute", "1", "7")
	require.NoError(t, err)
	assert.Equal(t, []id.EntityID{1, 7}, ops.recomputed)
	assert.Equal(t, []id.ActorID{"ops", "ops"}, ops.operators)
	assert.Contains(t, out, "entity 7: compliant=true total=2 passed=2 failed=0")
}

func TestRecompute_JSON(t *testing.T) {
	out, err := run(t, &stubOps{}, "--format", "json", "recompute", "3")
	require.NoError(t, err)

	var statuses []models.Status
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, id.EntityID(3), statuses[0].EntityID)
}

func TestRecompute_BadID(t *testing.T) {
	_, err := run(t, &stubOps{}, "recompute", "zero")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecompute_BlankOperator(t *testing.T) {
	ops := &stubOps{}
	_, err := run(t, ops, "--operator", " ", "recompute", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, ops.recomputed)
}

func TestRecompute_ServiceError(t *testing.T) {
	_, err := run(t, &stubOps{err: errors.New("entity not found")}, "recompute", "9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestVerify(t *testing.T) {
	t.Run("all consistent", func(t *testing.T) {
		out, err := run(t, &stubOps{}, "verify", "1", "2")
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(out, "consistent"))
	})

	t.Run("divergence exits with failure", func(t *testing.T) {
		out, err := run(t, &stubOps{inconsistent: map[id.EntityID]bool{2: true}}, "verify", "1", "2")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "entity 2: INCONSISTENT")
	})
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, &stubOps{}, "--format", "yaml", "verify", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestToken(t *testing.T) {
	out, err := run(t, nil, "token", "--actor", "carrier", "--key", "k", "--issuer", "iss")
	require.NoError(t, err)

	claims, err := jwttoken.NewJWTService("k", "iss").ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "carrier", claims.Subject)
}

func TestToken_RequiresActor(t *testing.T) {
	_, err := run(t, nil, "token")
	require.Error(t, err)
}

func TestMigrate_RequiresDSN(t *testing.T) {
	_, err := run(t, nil, "--dsn", "", "migrate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// mapCache stands in for the servers' Redis status cache.
type mapCache struct {
	mu      sync.Mutex
	entries map[id.EntityID]*models.Status
}

func (c *mapCache) Get(_ context.Context, entityID id.EntityID) (*models.Status, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.entries[entityID]
	if !ok {
		return nil, false, nil
	}
	return st.Clone(), true, nil
}

func (c *mapCache) Set(_ context.Context, st *models.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[st.EntityID]; ok && cur.Version > st.Version {
		return nil
	}
	c.entries[st.EntityID] = st.Clone()
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, entityID id.EntityID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, entityID)
	return nil
}

func TestRecompute_ReplacesCachedStatus(t *testing.T) {
	ctx := context.Background()
	stores := parts{
		registry:   registrystore.NewInMemory(),
		compliance: compliancestore.NewInMemory(),
		locker:     lock.NewSharded(time.Second),
	}
	registry := registryservice.New(stores.registry, stores.locker, authz.New("admin"))
	server := assemble(stores, "admin", nil)

	now := time.Now()
	e, err := registry.Register(ctx, registrymodels.RegisterRequest{
		Name: "Widget", Type: "textile", BatchKey: "B-1", ValidFrom: now, ValidUntil: now.Add(24 * time.Hour),
	}, "acme")
	require.NoError(t, err)
	_, err = server.AddRule(ctx, models.RuleInput{ID: "R1", Name: "rule", EntityType: "textile", Severity: 1}, "admin")
	require.NoError(t, err)
	_, err = server.Check(ctx, e.ID, models.CheckInput{RuleID: "R1", Passed: false}, "acme")
	require.NoError(t, err)

	// A diverged projection that a server has also cached at a later version.
	corrupt := models.Empty(e.ID)
	corrupt.Compliant = true
	require.NoError(t, stores.compliance.SaveStatus(ctx, corrupt))
	stale := corrupt.Clone()
	stale.Version = 5
	cache := &mapCache{entries: map[id.EntityID]*models.Status{e.ID: stale}}

	var opened Backend
	cmd := NewRootCommand(func(_ context.Context, b Backend) (ComplianceOps, func(), error) {
		opened = b
		withCache := stores
		withCache.cache = cache
		return assemble(withCache, b.Operator, b.Logger), func() {}, nil
	})
	cmd.SetArgs([]string{"--operator", "admin", "--redis-url", "redis://cache:6379/0", "recompute", e.ID.String()})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "redis://cache:6379/0", opened.RedisURL)
	assert.Equal(t, id.ActorID("admin"), opened.Operator)

	stored, err := stores.compliance.FindStatus(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, stored.Compliant)

	cached, ok, err := cache.Get(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cached.Equal(stored), "cache should serve the recomputed status")
}
