package events_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tracecore/internal/events"
	"tracecore/internal/events/mocks"
	id "tracecore/pkg/domain"
	"tracecore/pkg/requestcontext"
)

//go:generate mockgen -source=sink.go -destination=mocks/mocks.go -package=mocks Sink

type EventsSuite struct {
	suite.Suite
	ctx    context.Context
	logger *slog.Logger
}

func TestEventsSuite(t *testing.T) {
	suite.Run(t, new(EventsSuite))
}

func (s *EventsSuite) SetupTest() {
	s.ctx = requestcontext.WithRequestID(context.Background(), "req-1")
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *EventsSuite) TestPublisherAssignsIncreasingSequence() {
	queue := events.NewQueue(8)
	pub := events.NewPublisher(queue, events.WithMetrics(events.NewMetrics(prometheus.NewRegistry())))

	pub.Emit(s.ctx,
		events.Event{Type: events.EntityRegistered, EntityID: 1},
		events.Event{Type: events.CheckpointAdded, EntityID: 1},
	)
	pub.Emit(s.ctx, events.Event{Type: events.ActorAdded, EntityID: 1})

	batches := queue.DequeueBatches(10)
	s.Require().Len(batches, 2)
	s.Require().Len(batches[0], 2, "events of one call travel as one batch")
	s.Equal(uint64(1), batches[0][0].Seq)
	s.Equal(uint64(2), batches[0][1].Seq)
	s.Equal(uint64(3), batches[1][0].Seq)
	s.Equal("req-1", batches[0][0].RequestID)
	s.NotEqual(batches[0][0].ID, batches[0][1].ID)
	s.False(batches[0][0].OccurredAt.IsZero())
	s.Equal(uint64(3), pub.LastSeq())
}

func (s *EventsSuite) TestQueueDropsOldestWhenFull() {
	queue := events.NewQueue(2)
	pub := events.NewPublisher(queue, events.WithLogger(s.logger))
	for i := 1; i <= 3; i++ {
		pub.Emit(s.ctx, events.Event{Type: events.CheckpointAdded, EntityID: id.EntityID(i)})
	}

	s.Equal(int64(1), queue.Dropped())
	batches := queue.DequeueBatches(10)
	s.Require().Len(batches, 2)
	s.Equal(id.EntityID(2), batches[0][0].EntityID)
	s.Equal(id.EntityID(3), batches[1][0].EntityID)
}

func (s *EventsSuite) TestWorkerRetriesThenSucceeds() {
	ctrl := gomock.NewController(s.T())
	sink := mocks.NewMockSink(ctrl)
	sink.EXPECT().Name().Return("mock").AnyTimes()
	gomock.InOrder(
		sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable")),
		sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil),
	)

	queue := events.NewQueue(4)
	events.NewPublisher(queue).Emit(s.ctx, events.Event{Type: events.RuleAdded, RuleID: "R1"})

	w := events.NewWorker(queue, []events.Sink{sink},
		events.WithWorkerLogger(s.logger),
		events.WithRetry(3, time.Millisecond),
	)
	w.Drain(s.ctx)
	s.Equal(0, queue.Len())
}

func (s *EventsSuite) TestWorkerCountsExhaustedDeliveries() {
	ctrl := gomock.NewController(s.T())
	failing := mocks.NewMockSink(ctrl)
	failing.EXPECT().Name().Return("failing").AnyTimes()
	failing.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(errors.New("down")).Times(2)

	healthy := events.NewMemorySink()
	reg := prometheus.NewRegistry()
	m := events.NewMetrics(reg)

	queue := events.NewQueue(4)
	events.NewPublisher(queue).Emit(s.ctx, events.Event{Type: events.EntityDeactivated, EntityID: 9})

	w := events.NewWorker(queue, []events.Sink{failing, healthy},
		events.WithWorkerLogger(s.logger),
		events.WithWorkerMetrics(m),
		events.WithRetry(2, time.Millisecond),
	)
	w.Drain(s.ctx)

	s.Equal([]events.Type{events.EntityDeactivated}, healthy.Types(), "one failing sink must not starve the others")
	families, err := reg.Gather()
	s.Require().NoError(err)
	found := false
	for _, f := range families {
		if f.GetName() == "tracecore_events_delivery_failures_total" {
			found = true
			s.Equal(float64(1), f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	s.True(found)
}

func (s *EventsSuite) TestRunFlushesOnShutdown() {
	sink := events.NewMemorySink()
	queue := events.NewQueue(4)
	pub := events.NewPublisher(queue)
	w := events.NewWorker(queue, []events.Sink{sink}, events.WithWorkerLogger(s.logger))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	pub.Emit(s.ctx, events.Event{Type: events.ComplianceChecked, EntityID: 1})
	s.Eventually(func() bool { return len(sink.Events()) == 1 }, time.Second, 5*time.Millisecond)

	pub.Emit(s.ctx, events.Event{Type: events.ComplianceStatusUpdated, EntityID: 1})
	cancel()
	s.ErrorIs(<-done, context.Canceled)
	s.Len(sink.Events(), 2)
}
