// Package service implements the compliance evaluator: the rule catalog,
// check recording under the confidence gate, and the status projection.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tracecore/internal/authz"
	compliancemetrics "tracecore/internal/compliance/metrics"
	"tracecore/internal/compliance/models"
	"tracecore/internal/compliance/ports"
	"tracecore/internal/events"
	"tracecore/internal/platform/lock"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/platform/sentinel"
	"tracecore/pkg/requestcontext"
)

// Store persists rules, check histories and status projections.
// AppendChecks must commit the checks and the status together.
type Store interface {
	CreateRule(ctx context.Context, r *models.Rule) error
	FindRule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error)
	UpdateRule(ctx context.Context, r *models.Rule) error
	ListRules(ctx context.Context) ([]*models.Rule, error)
	ListRulesByType(ctx context.Context, entityType string) ([]*models.Rule, error)

	AppendChecks(ctx context.Context, entityID id.EntityID, checks []*models.Check, status *models.Status) error
	ListChecks(ctx context.Context, entityID id.EntityID) ([]*models.Check, error)
	FindCheck(ctx context.Context, entityID id.EntityID, index uint64) (*models.Check, error)
	UpdateEvidence(ctx context.Context, c *models.Check) error

	FindStatus(ctx context.Context, entityID id.EntityID) (*models.Status, error)
	SaveStatus(ctx context.Context, status *models.Status) error
}

// StatusCache is an optional read-through cache in front of FindStatus. Set
// must not replace an entry holding a higher Version.
type StatusCache interface {
	Get(ctx context.Context, entityID id.EntityID) (*models.Status, bool, error)
	Set(ctx context.Context, status *models.Status) error
	Invalidate(ctx context.Context, entityID id.EntityID) error
}

// Publisher hands events to the outbound queue without blocking.
type Publisher interface {
	Emit(ctx context.Context, evts ...events.Event)
}

// Service evaluates compliance evidence. Mutations of an entity's history run
// under the same per-entity lock the registry uses.
type Service struct {
	store     Store
	registry  ports.RegistryPort
	locker    lock.Locker
	gate      *authz.Gate
	cache     StatusCache
	publisher Publisher
	logger    *slog.Logger
	metrics   *compliancemetrics.Metrics
	tracer    trace.Tracer
	clock     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithMetrics(m *compliancemetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithClock replaces the commit clock read under the entity lock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = now
	}
}

// WithStatusCache enables the status read-through cache.
func WithStatusCache(c StatusCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func New(store Store, registry ports.RegistryPort, locker lock.Locker, gate *authz.Gate, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		locker:   locker,
		gate:     gate,
		logger:   slog.Default(),
		tracer:   otel.Tracer("tracecore/compliance"),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withEntityLock(ctx context.Context, entityID id.EntityID, fn func(ctx context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, entityID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire entity lock")
	}
	defer unlock()
	return fn(ctx)
}

func (s *Service) startSpan(ctx context.Context, op string) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "compliance."+op)
	start := time.Now()
	return ctx, func(errp *error) {
		if err := *errp; err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
			switch dErrors.CodeOf(err) {
			case dErrors.CodeForbidden:
				s.metrics.IncAuthorizationDenied(op)
			case dErrors.CodeConfidenceThreshold:
				s.metrics.IncConfidenceRejection()
			}
		}
		span.End()
		s.metrics.ObserveOperation(op, start)
	}
}

func (s *Service) loadEntity(ctx context.Context, entityID id.EntityID) (*ports.EntityRef, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	return s.registry.Entity(ctx, entityID)
}

// requireMember applies the registry's authorization gate. Unknown entities
// are reported as not_found.
func (s *Service) requireMember(ctx context.Context, entityID id.EntityID, actor id.ActorID) error {
	if entityID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	ok, err := s.registry.IsAuthorized(ctx, entityID, actor)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeForbidden, "actor is not authorized for this entity")
	}
	return nil
}

func (s *Service) loadRule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error) {
	r, err := s.store.FindRule(ctx, ruleID)
	if err != nil {
		return nil, wrapStoreErr(err, "rule not found")
	}
	return r, nil
}

// cacheStatus writes st through to the cache. Callers hold the entity lock so
// that fills and write-throughs of one entity are ordered; the cache also
// refuses to replace a newer version. The store stays authoritative, so a
// cache failure only costs a later miss.
func (s *Service) cacheStatus(ctx context.Context, st *models.Status) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, st); err != nil {
		s.logger.WarnContext(ctx, "status cache write failed",
			"entity_id", st.EntityID,
			"error", err,
		)
		// drop the entry so a stale value is not served until the TTL runs out
		_ = s.cache.Invalidate(ctx, st.EntityID)
	}
}

func (s *Service) audit(ctx context.Context, t events.Type, attributes ...any) events.Event {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(t), "log_type", "audit")
	s.logger.InfoContext(ctx, string(t), args...)
	return events.FromAttrs(t, attributes...)
}

func (s *Service) publish(ctx context.Context, evts ...events.Event) {
	if s.publisher == nil || len(evts) == 0 {
		return
	}
	s.publisher.Emit(ctx, evts...)
}

func requireActor(actor id.ActorID) (id.ActorID, error) {
	return id.ParseActorID(string(actor))
}

func wrapStoreErr(err error, notFoundMsg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "record already exists")
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "compliance store failure")
	}
}
