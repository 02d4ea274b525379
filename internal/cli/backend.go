package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"tracecore/internal/authz"
	complianceadapters "tracecore/internal/compliance/adapters"
	compliancecache "tracecore/internal/compliance/cache"
	complianceservice "tracecore/internal/compliance/service"
	compliancestore "tracecore/internal/compliance/store"
	"tracecore/internal/platform/config"
	"tracecore/internal/platform/lock"
	"tracecore/internal/platform/postgres"
	platformredis "tracecore/internal/platform/redis"
	registryservice "tracecore/internal/registry/service"
	registrystore "tracecore/internal/registry/store"
	id "tracecore/pkg/domain"
)

var errDSNRequired = errors.New("a postgres dsn is required (--dsn or TRACECORE_POSTGRES_DSN)")

// OpenPostgres builds the compliance service over the shared database. Entity
// locks are advisory locks, so tracectl serializes with running servers. When
// b.RedisURL is set, recomputed statuses replace the servers' cached entries.
func OpenPostgres(ctx context.Context, b Backend) (ComplianceOps, func(), error) {
	if b.DSN == "" {
		return nil, nil, errDSNRequired
	}
	pool, err := postgres.Open(ctx, config.Storage{PostgresDSN: b.DSN, MaxConns: 4})
	if err != nil {
		return nil, nil, err
	}
	redisCfg, err := env.ParseAs[config.RedisConfig]()
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("parse redis env: %w", err)
	}
	redisCfg.URL = b.RedisURL
	redisCfg.PoolSize = 2
	rc, err := platformredis.New(ctx, redisCfg)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	var cache complianceservice.StatusCache
	closeFn := pool.Close
	if rc != nil {
		cache = compliancecache.NewRedisStatusCache(rc.Client, redisCfg.StatusTTL)
		closeFn = func() {
			_ = rc.Close()
			pool.Close()
		}
	}
	ops := assemble(parts{
		registry:   registrystore.NewPostgres(pool),
		compliance: compliancestore.NewPostgres(pool),
		locker:     lock.NewAdvisory(pool, lock.WithAdvisoryLogger(b.Logger)),
		cache:      cache,
	}, b.Operator, b.Logger)
	return ops, closeFn, nil
}

type parts struct {
	registry   registryservice.Store
	compliance complianceservice.Store
	locker     lock.Locker
	cache      complianceservice.StatusCache
}

// assemble wires the compliance service the way the server does, with the
// operator as the admin actor.
func assemble(p parts, operator id.ActorID, log *slog.Logger) *complianceservice.Service {
	if log == nil {
		log = slog.Default()
	}
	gate := authz.New(operator)
	registry := registryservice.New(p.registry, p.locker, gate, registryservice.WithLogger(log))
	opts := []complianceservice.Option{complianceservice.WithLogger(log)}
	if p.cache != nil {
		opts = append(opts, complianceservice.WithStatusCache(p.cache))
	}
	return complianceservice.New(p.compliance, complianceadapters.NewRegistryAdapter(registry), p.locker, gate, opts...)
}
