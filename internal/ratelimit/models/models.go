// Package models holds the value types of per-actor rate limiting.
package models

import (
	"time"

	id "tracecore/pkg/domain"
)

// Limit is a sliding-window allowance: Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// ActorKey is the bucket key for mutations by actor.
func ActorKey(actor id.ActorID) string {
	return "actor:" + actor.String()
}

// RetryAfterSeconds rounds the wait until resetAt up to whole seconds, minimum 1.
func RetryAfterSeconds(now, resetAt time.Time) int {
	wait := resetAt.Sub(now)
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"error_description"`
	RetryAfter int    `json:"retry_after"`
}
