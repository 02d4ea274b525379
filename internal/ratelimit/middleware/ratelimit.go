// Package middleware enforces the per-actor mutation limit over HTTP.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"tracecore/internal/ratelimit/models"
	id "tracecore/pkg/domain"
	"tracecore/pkg/platform/httputil"
	"tracecore/pkg/requestcontext"
)

type RateLimiter interface {
	Check(ctx context.Context, actor id.ActorID) (*models.Result, bool, error)
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns the middleware into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimitActor limits authenticated mutations per actor. It must run after
// actor authentication. Limiter failures let the request through.
func (m *Middleware) RateLimitActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor := requestcontext.Actor(ctx)
		if m.disabled || actor.IsNil() {
			next.ServeHTTP(w, r)
			return
		}

		result, degraded, err := m.limiter.Check(ctx, actor)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check actor rate limit",
				"error", err,
				"actor", actor,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if degraded {
			w.Header().Set("X-RateLimit-Status", "degraded")
		}
		if !result.Allowed {
			m.logger.WarnContext(ctx, "actor rate limit exceeded",
				"actor", actor,
				"retry_after", result.RetryAfter,
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "too many mutations by this actor, try again later",
				RetryAfter: result.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
