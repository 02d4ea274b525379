package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tracecore/pkg/requestcontext"
)

// Publisher stamps events with an id and a process-wide sequence number and
// hands them to the outbound queue. It never blocks on delivery.
type Publisher struct {
	mu      sync.Mutex
	seq     uint64
	queue   *Queue
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithStartSeq resumes numbering after a restart so sequences keep increasing
// across process lifetimes.
func WithStartSeq(seq uint64) Option {
	return func(p *Publisher) {
		p.seq = seq
	}
}

// NewPublisher creates a publisher feeding queue.
func NewPublisher(queue *Queue, opts ...Option) *Publisher {
	p := &Publisher{queue: queue}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit enqueues evts as one batch. Zero timestamps default to the request
// time and the request id is taken from ctx.
func (p *Publisher) Emit(ctx context.Context, evts ...Event) {
	if p == nil || len(evts) == 0 {
		return
	}
	now := requestcontext.Now(ctx)
	requestID := requestcontext.RequestID(ctx)

	batch := make(Batch, len(evts))
	p.mu.Lock()
	for i, e := range evts {
		p.seq++
		e.Seq = p.seq
		e.ID = uuid.New()
		if e.OccurredAt.IsZero() {
			e.OccurredAt = now
		}
		if e.RequestID == "" {
			e.RequestID = requestID
		}
		batch[i] = e
	}
	dropped := p.queue.Enqueue(batch)
	p.mu.Unlock()

	for _, e := range batch {
		p.metrics.incEmitted(e.Type)
	}
	p.metrics.setDepth(p.queue.Len())
	if dropped {
		p.metrics.incDropped()
		if p.logger != nil {
			p.logger.WarnContext(ctx, "event queue full, dropped oldest batch",
				"dropped_total", p.queue.Dropped(),
			)
		}
	}
}

// LastSeq returns the most recently assigned sequence number.
func (p *Publisher) LastSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}
