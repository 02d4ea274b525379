// Package service implements the registry operations: entity lifecycle,
// checkpoint logs and authorization sets.
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
	"tracecore/internal/events"
	"tracecore/internal/platform/lock"
	registrymetrics "tracecore/internal/registry/metrics"
	"tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/platform/sentinel"
	"tracecore/pkg/requestcontext"
)

// Store persists entities, checkpoint logs and authorization sets.
type Store interface {
	CreateEntities(ctx context.Context, regs []models.Registration) error
	FindByID(ctx context.Context, entityID id.EntityID) (*models.Entity, error)
	FindByBatchKey(ctx context.Context, key string) (*models.Entity, error)
	ListByOwner(ctx context.Context, owner id.ActorID) ([]*models.Entity, error)
	ListByType(ctx context.Context, entityType string) ([]*models.Entity, error)
	ListByValidFrom(ctx context.Context, from, to time.Time) ([]*models.Entity, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, e *models.Entity) error

	AppendCheckpoints(ctx context.Context, entityID id.EntityID, cps []*models.Checkpoint) error
	ListCheckpoints(ctx context.Context, entityID id.EntityID) ([]*models.Checkpoint, error)
	FindCheckpoint(ctx context.Context, entityID id.EntityID, seq uint64) (*models.Checkpoint, error)
	LastCheckpoint(ctx context.Context, entityID id.EntityID) (*models.Checkpoint, error)
	UpdateCheckpoint(ctx context.Context, cp *models.Checkpoint) error

	AddActor(ctx context.Context, sh models.Stakeholder) error
	RemoveActor(ctx context.Context, entityID id.EntityID, actor id.ActorID) error
	ListActors(ctx context.Context, entityID id.EntityID) ([]models.Stakeholder, error)
}

// Publisher hands events to the outbound queue without blocking.
type Publisher interface {
	Emit(ctx context.Context, evts ...events.Event)
}

// Service orchestrates registry mutations. Every mutation on an existing
// entity runs under that entity's lock.
type Service struct {
	store                Store
	locker               lock.Locker
	gate                 *authz.Gate
	publisher            Publisher
	logger               *slog.Logger
	metrics              *registrymetrics.Metrics
	tracer               trace.Tracer
	clock                func() time.Time
	allowCheckpointEdits bool
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

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithClock replaces the commit clock. Mutations read it after taking the
// entity lock, not at request start.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = now
	}
}

// WithCheckpointEdits enables UpdateCheckpoint. Disabled by default.
func WithCheckpointEdits(allow bool) Option {
	return func(s *Service) {
		s.allowCheckpointEdits = allow
	}
}

// New constructs a Service.
func New(store Store, locker lock.Locker, gate *authz.Gate, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locker: locker,
		gate:   gate,
		logger: slog.Default(),
		tracer: otel.Tracer("tracecore/registry"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withEntityLock runs fn while holding the entity's lock.
func (s *Service) withEntityLock(ctx context.Context, entityID id.EntityID, fn func(ctx context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, entityID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire entity lock")
	}
	defer unlock()
	return fn(ctx)
}

func (s *Service) startSpan(ctx context.Context, op string) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "registry."+op)
	start := time.Now()
	return ctx, func(errp *error) {
		if err := *errp; err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
			if dErrors.HasCode(err, dErrors.CodeForbidden) {
				s.metrics.IncAuthorizationDenied(op)
			}
		}
		span.End()
		s.metrics.ObserveOperation(op, start)
	}
}

func (s *Service) loadEntity(ctx context.Context, entityID id.EntityID) (*models.Entity, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	e, err := s.store.FindByID(ctx, entityID)
	if err != nil {
		return nil, wrapStoreErr(err, "entity not found")
	}
	return e, nil
}

func (s *Service) loadSubject(ctx context.Context, e *models.Entity) (authz.Subject, error) {
	rows, err := s.store.ListActors(ctx, e.ID)
	if err != nil {
		return authz.Subject{}, wrapStoreErr(err, "entity not found")
	}
	return e.Subject(models.Members(rows)), nil
}

// audit logs a committed mutation and returns the event describing it.
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
		return dErrors.Wrap(err, dErrors.CodeInternal, "registry store failure")
	}
}

// invariantAs converts a model invariant violation into code.
func invariantAs(err error, code dErrors.Code) error {
	var de *dErrors.Error
	if errors.As(err, &de) && de.Code == dErrors.CodeInvariantViolation {
		return dErrors.New(code, de.Message)
	}
	return err
}
