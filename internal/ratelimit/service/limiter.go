// Package service decides whether an actor may perform another mutation.
package service

import (
	"context"
	"log/slog"

	"tracecore/internal/ratelimit/metrics"
	"tracecore/internal/ratelimit/models"
	id "tracecore/pkg/domain"
	"tracecore/pkg/platform/circuit"
)

// BucketStore is a sliding window store.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit models.Limit) (*models.Result, error)
}

// Limiter checks the primary store and falls back to a local store while the
// primary keeps failing.
type Limiter struct {
	primary  BucketStore
	fallback BucketStore
	breaker  *circuit.Breaker
	limit    models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Limiter)

func WithFallback(store BucketStore) Option {
	return func(l *Limiter) {
		l.fallback = store
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) {
		l.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func New(primary BucketStore, limit models.Limit, opts ...Option) *Limiter {
	l := &Limiter{
		primary: primary,
		limit:   limit,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.breaker == nil {
		l.breaker = circuit.New("ratelimit")
	}
	return l
}

// Check admits one mutation by actor. degraded reports that the answer came
// from the fallback store. An error means no store could answer.
func (l *Limiter) Check(ctx context.Context, actor id.ActorID) (res *models.Result, degraded bool, err error) {
	key := models.ActorKey(actor)

	res, err = l.primary.Allow(ctx, key, l.limit)
	if err == nil {
		if _, change := l.breaker.RecordSuccess(); change.Closed {
			l.logger.InfoContext(ctx, "rate limit store recovered", "breaker", l.breaker.Name())
			l.metrics.SetDegraded(false)
		}
		l.metrics.IncDecision(res.Allowed, "primary")
		return res, false, nil
	}

	l.metrics.IncStoreError()
	useFallback, change := l.breaker.RecordFailure()
	if change.Opened {
		l.logger.WarnContext(ctx, "rate limit store failing, switching to fallback",
			"breaker", l.breaker.Name(),
			"error", err,
		)
		l.metrics.SetDegraded(true)
	}
	if !useFallback || l.fallback == nil {
		return nil, false, err
	}

	res, err = l.fallback.Allow(ctx, key, l.limit)
	if err != nil {
		return nil, true, err
	}
	l.metrics.IncDecision(res.Allowed, "fallback")
	return res, true, nil
}
