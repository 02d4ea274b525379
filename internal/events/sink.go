package events

import (
	"context"
	"log/slog"
	"sync"
)

// Sink accepts delivered batches. Deliver may be called again with the same
// batch after a failure, so implementations must tolerate duplicates.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, batch Batch) error
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, batch Batch) error {
	for _, e := range batch {
		s.logger.InfoContext(ctx, string(e.Type),
			"event_id", e.ID,
			"seq", e.Seq,
			"entity_id", e.EntityID,
			"rule_id", e.RuleID,
			"actor", e.Actor,
			"request_id", e.RequestID,
			"log_type", "event",
		)
	}
	return nil
}

// MemorySink keeps delivered events in memory. Used by tests and local runs.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Deliver(_ context.Context, batch Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

// Events returns a copy of everything delivered so far.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events...)
}

// Types returns the delivered event types in delivery order.
func (s *MemorySink) Types() []Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Type, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}
