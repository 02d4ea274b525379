package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"

	"tracecore/internal/authz"
	complianceadapters "tracecore/internal/compliance/adapters"
	compliancecache "tracecore/internal/compliance/cache"
	compliancehandler "tracecore/internal/compliance/handler"
	compliancemetrics "tracecore/internal/compliance/metrics"
	complianceservice "tracecore/internal/compliance/service"
	compliancestore "tracecore/internal/compliance/store"
	"tracecore/internal/events"
	jwttoken "tracecore/internal/jwt_token"
	"tracecore/internal/platform/config"
	"tracecore/internal/platform/kafka"
	"tracecore/internal/platform/lock"
	"tracecore/internal/platform/metrics"
	"tracecore/internal/platform/postgres"
	"tracecore/internal/platform/redis"
	ratelimitmetrics "tracecore/internal/ratelimit/metrics"
	ratelimitmiddleware "tracecore/internal/ratelimit/middleware"
	ratelimitmodels "tracecore/internal/ratelimit/models"
	ratelimitservice "tracecore/internal/ratelimit/service"
	"tracecore/internal/ratelimit/store/bucket"
	registryhandler "tracecore/internal/registry/handler"
	registrymetrics "tracecore/internal/registry/metrics"
	registryservice "tracecore/internal/registry/service"
	registrystore "tracecore/internal/registry/store"
	httptransport "tracecore/internal/transport/http"
	id "tracecore/pkg/domain"
)

// infra holds the external connections. Every field may be nil when the
// corresponding dependency is not configured.
type infra struct {
	pool  *pgxpool.Pool
	redis *redis.Client
	kafka *kgo.Client
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	out := &infra{}
	if cfg.Storage.Backend == config.BackendPostgres {
		pool, err := postgres.Open(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		out.pool = pool
		if err := postgres.Migrate(ctx, pool); err != nil {
			out.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("postgres backend ready")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		out.Close()
		return nil, err
	}
	out.redis = rc

	kc, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		out.Close()
		return nil, err
	}
	if kc != nil {
		out.kafka = kc
		if err := kafka.EnsureTopic(ctx, kc, cfg.Kafka); err != nil {
			out.Close()
			return nil, err
		}
		log.Info("kafka event sink ready", "topic", cfg.Kafka.Topic)
	}
	return out, nil
}

func (i *infra) Close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.pool != nil {
		i.pool.Close()
	}
}

func (i *infra) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{}
	if i.pool != nil {
		checks["postgres"] = i.pool.Ping
	}
	if i.redis != nil {
		checks["redis"] = i.redis.Health
	}
	if i.kafka != nil {
		checks["kafka"] = i.kafka.Ping
	}
	return checks
}

type app struct {
	router http.Handler
	worker *events.Worker
}

func buildApp(cfg config.Server, log *slog.Logger, reg *prometheus.Registry, inf *infra) (*app, error) {
	eventMetrics := events.NewMetrics(reg)
	queue := events.NewQueue(cfg.Events.QueueCapacity)
	publisher := events.NewPublisher(queue, events.WithLogger(log), events.WithMetrics(eventMetrics))

	sinks := []events.Sink{events.NewLogSink(log)}
	if inf.kafka != nil {
		sinks = append(sinks, events.NewKafkaSink(inf.kafka, cfg.Kafka.Topic))
	}
	worker := events.NewWorker(queue, sinks,
		events.WithWorkerLogger(log),
		events.WithWorkerMetrics(eventMetrics),
		events.WithRetry(cfg.Events.MaxAttempts, cfg.Events.RetryBackoff),
	)

	gate := authz.New(id.ActorID(cfg.AdminActor))

	var (
		locker     lock.Locker
		regStore   registryservice.Store
		complStore complianceservice.Store
	)
	if inf.pool != nil {
		locker = lock.NewAdvisory(inf.pool, lock.WithAdvisoryLogger(log))
		regStore = registrystore.NewPostgres(inf.pool)
		complStore = compliancestore.NewPostgres(inf.pool)
	} else {
		locker = lock.NewSharded(0)
		regStore = registrystore.NewInMemory()
		complStore = compliancestore.NewInMemory()
	}

	registry := registryservice.New(regStore, locker, gate,
		registryservice.WithLogger(log),
		registryservice.WithPublisher(publisher),
		registryservice.WithMetrics(registrymetrics.New(reg)),
		registryservice.WithTracer(otel.Tracer("tracecore/registry")),
		registryservice.WithCheckpointEdits(cfg.AllowCheckpointEdits),
	)

	complianceOpts := []complianceservice.Option{
		complianceservice.WithLogger(log),
		complianceservice.WithPublisher(publisher),
		complianceservice.WithMetrics(compliancemetrics.New(reg)),
		complianceservice.WithTracer(otel.Tracer("tracecore/compliance")),
	}
	if inf.redis != nil {
		complianceOpts = append(complianceOpts,
			complianceservice.WithStatusCache(compliancecache.NewRedisStatusCache(inf.redis.Client, cfg.Redis.StatusTTL)))
	}
	compliance := complianceservice.New(complStore, complianceadapters.NewRegistryAdapter(registry), locker, gate, complianceOpts...)

	limiter := buildActorLimit(cfg, log, reg, inf)

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	router := httptransport.NewRouter(httptransport.Config{
		Logger:      log,
		Validator:   jwttoken.NewMiddlewareValidator(tokens),
		ActorLimit:  limiter.RateLimitActor,
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTP(reg),
		Handlers: []httptransport.DomainHandler{
			registryhandler.New(registry, log),
			compliancehandler.New(compliance, log),
		},
		HealthChecks: inf.healthChecks(),
	})

	return &app{router: router, worker: worker}, nil
}

// buildActorLimit shares windows through Redis when available and keeps an
// in-memory fallback for Redis outages.
func buildActorLimit(cfg config.Server, log *slog.Logger, reg *prometheus.Registry, inf *infra) *ratelimitmiddleware.Middleware {
	limit := ratelimitmodels.Limit{Requests: cfg.Limits.Requests, Window: cfg.Limits.Window}
	opts := []ratelimitservice.Option{
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithMetrics(ratelimitmetrics.New(reg)),
	}
	var primary ratelimitservice.BucketStore = bucket.NewInMemoryBucketStore()
	if inf.redis != nil {
		primary = bucket.NewRedisBucketStore(inf.redis.Client)
		opts = append(opts, ratelimitservice.WithFallback(bucket.NewInMemoryBucketStore()))
	}
	return ratelimitmiddleware.New(
		ratelimitservice.New(primary, limit, opts...),
		log,
		ratelimitmiddleware.WithDisabled(cfg.Limits.Disabled),
	)
}
