package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tracecore/internal/ratelimit/models"
	id "tracecore/pkg/domain"
	"tracecore/pkg/requestcontext"
)

type stubLimiter struct {
	result   *models.Result
	degraded bool
	err      error
	actors   []id.ActorID
}

func (s *stubLimiter) Check(_ context.Context, actor id.ActorID) (*models.Result, bool, error) {
	s.actors = append(s.actors, actor)
	return s.result, s.degraded, s.err
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func serve(m *Middleware, actor id.ActorID) *httptest.ResponseRecorder {
	h := m.RateLimitActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	req := httptest.NewRequest(http.MethodPost, "/entities", nil)
	if actor != "" {
		req = req.WithContext(requestcontext.WithActor(req.Context(), actor))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimitActor_Allowed(t *testing.T) {
	limiter := &stubLimiter{result: &models.Result{Allowed: true, Limit: 10, Remaining: 9, ResetAt: time.Unix(1700000000, 0)}}
	rr := serve(New(limiter, discard), "acme")

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000000", rr.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []id.ActorID{"acme"}, limiter.actors)
}

func TestRateLimitActor_Exceeded(t *testing.T) {
	limiter := &stubLimiter{result: &models.Result{Allowed: false, Limit: 10, RetryAfter: 12}, degraded: true}
	rr := serve(New(limiter, discard), "acme")

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "12", rr.Header().Get("Retry-After"))
	assert.Equal(t, "degraded", rr.Header().Get("X-RateLimit-Status"))
	assert.Contains(t, rr.Body.String(), "rate_limit_exceeded")
}

func TestRateLimitActor_FailsOpen(t *testing.T) {
	rr := serve(New(&stubLimiter{err: errors.New("down")}, discard), "acme")
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestRateLimitActor_SkipsWhenDisabledOrAnonymous(t *testing.T) {
	limiter := &stubLimiter{}
	assert.Equal(t, http.StatusCreated, serve(New(limiter, discard, WithDisabled(true)), "acme").Code)
	assert.Equal(t, http.StatusCreated, serve(New(limiter, discard), "").Code)
	assert.Empty(t, limiter.actors)
}
