package events

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 100 * time.Millisecond
	defaultPoll        = time.Second
	drainChunk         = 64
	shutdownFlush      = 5 * time.Second
)

// Worker drains the queue and delivers each batch to every sink. A sink error
// is retried with exponential backoff; a batch that still fails is logged at
// error level and counted so that alerting picks it up.
type Worker struct {
	queue       *Queue
	sinks       []Sink
	logger      *slog.Logger
	metrics     *Metrics
	maxAttempts int
	backoff     time.Duration
	poll        time.Duration
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithWorkerMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithRetry sets the attempt budget and initial backoff per sink.
func WithRetry(maxAttempts int, backoff time.Duration) WorkerOption {
	return func(w *Worker) {
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			w.backoff = backoff
		}
	}
}

func NewWorker(queue *Queue, sinks []Sink, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:       queue,
		sinks:       sinks,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		poll:        defaultPoll,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run delivers until ctx is cancelled, then flushes what is left with a
// bounded grace period.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlush)
			w.Drain(flushCtx)
			cancel()
			return ctx.Err()
		case <-w.queue.Ready():
			w.Drain(ctx)
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain delivers every queued batch.
func (w *Worker) Drain(ctx context.Context) {
	for {
		batches := w.queue.DequeueBatches(drainChunk)
		if len(batches) == 0 {
			w.metrics.setDepth(0)
			return
		}
		for _, b := range batches {
			w.deliver(ctx, b)
		}
		w.metrics.setDepth(w.queue.Len())
	}
}

func (w *Worker) deliver(ctx context.Context, batch Batch) {
	for _, sink := range w.sinks {
		if err := w.deliverWithRetry(ctx, sink, batch); err != nil {
			w.metrics.incDeliveryFailure(sink.Name())
			w.logger.ErrorContext(ctx, "CRITICAL: event delivery failed",
				"sink", sink.Name(),
				"first_seq", batch[0].Seq,
				"events", len(batch),
				"error", err,
			)
		}
	}
}

func (w *Worker) deliverWithRetry(ctx context.Context, sink Sink, batch Batch) error {
	backoff := w.backoff
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = sink.Deliver(ctx, batch); err == nil {
			return nil
		}
		if attempt == w.maxAttempts {
			break
		}
		w.metrics.incRetry()
		w.logger.WarnContext(ctx, "event delivery attempt failed",
			"sink", sink.Name(),
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
