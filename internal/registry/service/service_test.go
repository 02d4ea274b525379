package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"tracecore/internal/authz"
	"tracecore/internal/events"
	"tracecore/internal/platform/lock"
	registrymetrics "tracecore/internal/registry/metrics"
	"tracecore/internal/registry/models"
	"tracecore/internal/registry/service"
	"tracecore/internal/registry/store"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/requestcontext"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]events.Event
}

func (p *recordingPublisher) Emit(_ context.Context, evts ...events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, evts)
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Type
	for _, b := range p.batches {
		for _, e := range b {
			out = append(out, e.Type)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = nil
}

const (
	owner    id.ActorID = "acme"
	carrier  id.ActorID = "carrier"
	admin    id.ActorID = "admin"
	outsider id.ActorID = "mallory"
)

// stepClock is a settable commit clock.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type RegistryServiceSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	clock     *stepClock
	locker    *lock.Sharded
	store     *store.InMemory
	publisher *recordingPublisher
	svc       *service.Service
}

func TestRegistryServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistryServiceSuite))
}

func (s *RegistryServiceSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.clock = &stepClock{t: s.now}
	s.locker = lock.NewSharded(time.Second)
	s.store = store.NewInMemory()
	s.publisher = &recordingPublisher{}
	s.svc = s.newService(false)
}

func (s *RegistryServiceSuite) newService(allowEdits bool) *service.Service {
	return service.New(s.store, s.locker, authz.New(admin),
		service.WithClock(s.clock.Now),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithPublisher(s.publisher),
		service.WithMetrics(registrymetrics.New(prometheus.NewRegistry())),
		service.WithCheckpointEdits(allowEdits),
	)
}

func (s *RegistryServiceSuite) request(key string) models.RegisterRequest {
	return models.RegisterRequest{
		Name:       "Widget",
		Type:       "textile",
		BatchKey:   key,
		ValidFrom:  s.now,
		ValidUntil: s.now.Add(90 * 24 * time.Hour),
	}
}

func (s *RegistryServiceSuite) register(key string) *models.Entity {
	e, err := s.svc.Register(s.ctx, s.request(key), owner)
	s.Require().NoError(err)
	return e
}

func (s *RegistryServiceSuite) TestRegisterWidgetScenario() {
	e := s.register("B-1")

	s.Equal(id.EntityID(1), e.ID)
	s.True(e.Active)

	actors, err := s.svc.GetActors(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal([]id.ActorID{owner}, models.Members(actors))

	cps, err := s.svc.GetCheckpoints(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(cps, 1)
	s.Equal(uint64(0), cps[0].Seq)
	s.Equal(models.StatusCreated, cps[0].Status)
	s.Equal(s.now, cps[0].Timestamp)

	s.Equal([]events.Type{events.EntityRegistered, events.CheckpointAdded}, s.publisher.types())
}

func (s *RegistryServiceSuite) TestRegisterValidation() {
	s.Run("duplicate batch key conflicts", func() {
		s.register("B-DUP")
		_, err := s.svc.Register(s.ctx, s.request("B-DUP"), carrier)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("reversed dates", func() {
		req := s.request("B-DATES")
		req.ValidUntil = req.ValidFrom.Add(-time.Hour)
		_, err := s.svc.Register(s.ctx, req, owner)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing actor", func() {
		_, err := s.svc.Register(s.ctx, s.request("B-NOACTOR"), "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *RegistryServiceSuite) TestRegisterIDsAreUnique() {
	const n = 30
	var wg sync.WaitGroup
	results := make(chan id.EntityID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := s.svc.Register(s.ctx, s.request(fmt.Sprintf("B-%d", i)), owner)
			if s.NoError(err) {
				results <- e.ID
			}
		}(i)
	}
	wg.Wait()
	close(results)

	seen := map[id.EntityID]bool{}
	for entityID := range results {
		s.False(seen[entityID], "duplicate id %d", entityID)
		seen[entityID] = true
	}
	s.Len(seen, n)
}

func (s *RegistryServiceSuite) TestBatchRegister() {
	s.Run("all or nothing on in-batch duplicate", func() {
		_, err := s.svc.BatchRegister(s.ctx, []models.RegisterRequest{s.request("B-A"), s.request("B-A")}, owner)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		n, _ := s.svc.Count(s.ctx)
		s.Equal(0, n)
	})

	s.Run("bounds", func() {
		_, err := s.svc.BatchRegister(s.ctx, nil, owner)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		reqs := make([]models.RegisterRequest, models.MaxBatchRegister+1)
		for i := range reqs {
			reqs[i] = s.request(fmt.Sprintf("B-MAX-%d", i))
		}
		_, err = s.svc.BatchRegister(s.ctx, reqs, owner)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("registers every item in one event batch", func() {
		s.publisher.reset()
		out, err := s.svc.BatchRegister(s.ctx, []models.RegisterRequest{s.request("B-X"), s.request("B-Y")}, owner)
		s.Require().NoError(err)
		s.Len(out, 2)
		s.Len(s.publisher.batches, 1)
		s.Len(s.publisher.batches[0], 4)
	})
}

func (s *RegistryServiceSuite) TestAddCheckpointAuthorization() {
	e := s.register("B-1")

	_, err := s.svc.AddCheckpoint(s.ctx, e.ID, models.CheckpointInput{Status: "shipped"}, outsider)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	cps, _ := s.svc.GetCheckpoints(s.ctx, e.ID)
	s.Len(cps, 1)

	s.Require().NoError(s.svc.AddActor(s.ctx, e.ID, carrier, owner))
	cp, err := s.svc.AddCheckpoint(s.ctx, e.ID, models.CheckpointInput{Status: "Shipped", Location: "Port"}, carrier)
	s.Require().NoError(err)
	s.Equal(uint64(1), cp.Seq)
	s.Equal("shipped", cp.Status)
	s.Equal(carrier, cp.Actor)

	_, err = s.svc.AddCheckpoint(s.ctx, e.ID, models.CheckpointInput{Status: "received"}, admin)
	s.NoError(err, "administrator bypasses the authorization set")
}

func (s *RegistryServiceSuite) TestAddCheckpointUnknownEntity() {
	_, err := s.svc.AddCheckpoint(s.ctx, 404, models.CheckpointInput{Status: "shipped"}, owner)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RegistryServiceSuite) TestDeactivatedEntityRejectsCheckpoints() {
	e := s.register("B-1")
	_, err := s.svc.Deactivate(s.ctx, e.ID, owner)
	s.Require().NoError(err)

	_, err = s.svc.AddCheckpoint(s.ctx, e.ID, models.CheckpointInput{Status: "shipped"}, owner)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	cps, _ := s.svc.GetCheckpoints(s.ctx, e.ID)
	s.Len(cps, 1)

	_, err = s.svc.Deactivate(s.ctx, e.ID, owner)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "deactivating twice is a state error")

	_, err = s.svc.Reactivate(s.ctx, e.ID, carrier)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.svc.Reactivate(s.ctx, e.ID, admin)
	s.Require().NoError(err)
	_, err = s.svc.AddCheckpoint(s.ctx, e.ID, models.CheckpointInput{Status: "shipped"}, owner)
	s.NoError(err)
}

func (s *RegistryServiceSuite) TestConcurrentCheckpointsAreGapless() {
	e := s.register("B-1")
	const writers = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.svc.AddCheckpoint(s.ctx, e.ID, models.CheckpointInput{Status: "moved", Location: fmt.Sprintf("dock-%d", i)}, owner)
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	cps, err := s.svc.GetCheckpoints(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(cps, writers+1)
	for i, cp := range cps {
		s.Equal(uint64(i), cp.Seq)
	}
}

func (s *RegistryServiceSuite) TestBatchAddCheckpoints() {
	e := s.register("B-1")

	_, err := s.svc.BatchAddCheckpoints(s.ctx, e.ID, []models.CheckpointInput{{Status: "packed"}, {Status: ""}}, owner)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	cps, _ := s.svc.GetCheckpoints(s.ctx, e.ID)
	s.Len(cps, 1, "invalid item rejects the whole batch")

	tooMany := make([]models.CheckpointInput, models.MaxBatchCheckpoints+1)
	for i := range tooMany {
		tooMany[i] = models.CheckpointInput{Status: "moved"}
	}
	_, err = s.svc.BatchAddCheckpoints(s.ctx, e.ID, tooMany, owner)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	out, err := s.svc.BatchAddCheckpoints(s.ctx, e.ID, []models.CheckpointInput{{Status: "packed"}, {Status: "shipped"}}, owner)
	s.Require().NoError(err)
	s.Equal(uint64(1), out[0].Seq)
	s.Equal(uint64(2), out[1].Seq)
}

func (s *RegistryServiceSuite) TestActorManagement() {
	e := s.register("B-1")

	s.True(dErrors.HasCode(s.svc.AddActor(s.ctx, e.ID, owner, owner), dErrors.CodeConflict), "self add")
	s.True(dErrors.HasCode(s.svc.AddActor(s.ctx, e.ID, carrier, outsider), dErrors.CodeForbidden))
	s.True(dErrors.HasCode(s.svc.AddActor(s.ctx, e.ID, "", owner), dErrors.CodeValidation))

	s.Require().NoError(s.svc.AddActor(s.ctx, e.ID, carrier, owner))
	s.True(dErrors.HasCode(s.svc.AddActor(s.ctx, e.ID, carrier, owner), dErrors.CodeConflict), "duplicate")

	ok, err := s.svc.IsAuthorized(s.ctx, e.ID, carrier)
	s.Require().NoError(err)
	s.True(ok)

	s.True(dErrors.HasCode(s.svc.RemoveActor(s.ctx, e.ID, owner, owner), dErrors.CodeConflict), "owner is never removable")
	s.True(dErrors.HasCode(s.svc.RemoveActor(s.ctx, e.ID, owner, admin), dErrors.CodeConflict))
	s.True(dErrors.HasCode(s.svc.RemoveActor(s.ctx, e.ID, carrier, carrier), dErrors.CodeForbidden))
	s.True(dErrors.HasCode(s.svc.RemoveActor(s.ctx, e.ID, outsider, owner), dErrors.CodeNotFound))

	s.Require().NoError(s.svc.RemoveActor(s.ctx, e.ID, carrier, owner))
	ok, _ = s.svc.IsAuthorized(s.ctx, e.ID, carrier)
	s.False(ok)
}

func (s *RegistryServiceSuite) TestUpdate() {
	e := s.register("B-1")
	name := "Widget v2"
	typ := "Apparel"

	_, err := s.svc.Update(s.ctx, e.ID, models.UpdateRequest{Name: &name}, carrier)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	bad := e.ValidFrom.Add(-time.Hour)
	_, err = s.svc.Update(s.ctx, e.ID, models.UpdateRequest{ValidUntil: &bad}, owner)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	out, err := s.svc.Update(s.ctx, e.ID, models.UpdateRequest{Name: &name, Type: &typ}, owner)
	s.Require().NoError(err)
	s.Equal("Widget v2", out.Name)
	s.Equal("apparel", out.Type)
	s.Equal(e.BatchKey, out.BatchKey)
	s.Equal(owner, out.Owner)

	byType, err := s.svc.GetByType(s.ctx, "APPAREL")
	s.Require().NoError(err)
	s.Len(byType, 1)
}

func (s *RegistryServiceSuite) TestUpdateCheckpointPolicy() {
	e := s.register("B-1")
	note := "seal replaced"

	_, err := s.svc.UpdateCheckpoint(s.ctx, e.ID, 0, models.CheckpointEdit{Note: &note}, owner)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "edits disabled by default")

	svc := s.newService(true)
	s.Require().NoError(svc.AddActor(s.ctx, e.ID, carrier, owner))

	_, err = svc.UpdateCheckpoint(s.ctx, e.ID, 0, models.CheckpointEdit{Note: &note}, carrier)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "only the original actor may edit")

	cp, err := svc.UpdateCheckpoint(s.ctx, e.ID, 0, models.CheckpointEdit{Note: &note}, owner)
	s.Require().NoError(err)
	s.Equal(note, cp.Note)
	s.Equal(models.StatusCreated, cp.Status)
	s.NotNil(cp.EditedAt)

	_, err = svc.UpdateCheckpoint(s.ctx, e.ID, 9, models.CheckpointEdit{Note: &note}, admin)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RegistryServiceSuite) TestQueries() {
	e1 := s.register("B-1")
	later := s.request("B-2")
	later.ValidFrom = s.now.Add(48 * time.Hour)
	later.ValidUntil = s.now.Add(72 * time.Hour)
	e2, err := s.svc.Register(s.ctx, later, carrier)
	s.Require().NoError(err)

	byKey, err := s.svc.GetByBatchKey(s.ctx, " B-2 ")
	s.Require().NoError(err)
	s.Equal(e2.ID, byKey.ID)

	mine, err := s.svc.GetByOwner(s.ctx, owner)
	s.Require().NoError(err)
	s.Len(mine, 1)
	s.Equal(e1.ID, mine[0].ID)

	inRange, err := s.svc.GetInDateRange(s.ctx, s.now.Add(time.Hour), s.now.Add(48*time.Hour))
	s.Require().NoError(err)
	s.Len(inRange, 1)
	s.Equal(e2.ID, inRange[0].ID)

	_, err = s.svc.GetInDateRange(s.ctx, s.now, s.now.Add(-time.Hour))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	expired, err := s.svc.IsExpired(s.ctx, e2.ID, s.now.Add(72*time.Hour))
	s.Require().NoError(err)
	s.True(expired)

	_, err = s.svc.Get(s.ctx, 99)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RegistryServiceSuite) TestSummaryAndTraceChain() {
	e := s.register("B-1")
	s.clock.Set(s.now.Add(2 * time.Hour))
	_, err := s.svc.AddCheckpoint(s.ctx, e.ID, models.CheckpointInput{
		Status:      "shipped",
		Location:    "Rotterdam",
		Environment: &models.Environment{Coordinates: &models.GeoPoint{Lat: 51.92, Lon: 4.48}},
	}, owner)
	s.Require().NoError(err)

	summary, err := s.svc.Summary(s.ctx, e.ID, s.now)
	s.Require().NoError(err)
	s.Equal(2, summary.CheckpointCount)
	s.Equal(1, summary.ActorCount)
	s.Equal("shipped", summary.Latest.Status)
	s.False(summary.Expired)

	chain, err := s.svc.GetTraceChain(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(chain.Links, 1)
	s.Equal(2*time.Hour, chain.Links[0].Elapsed)
	s.Nil(chain.Links[0].DistanceKm)

	_, err = s.svc.Summary(s.ctx, 42, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RegistryServiceSuite) TestCheckpointTimestampIsTakenUnderTheLock() {
	e := s.register("B-1")

	// the request was stamped at +1h but waits for the entity lock until +2h
	stamped := requestcontext.WithTime(s.ctx, s.now.Add(time.Hour))
	unlock, err := s.locker.Lock(s.ctx, e.ID)
	s.Require().NoError(err)

	done := make(chan *models.Checkpoint, 1)
	go func() {
		cp, err := s.svc.AddCheckpoint(stamped, e.ID, models.CheckpointInput{Status: "shipped"}, owner)
		s.NoError(err)
		done <- cp
	}()
	time.Sleep(20 * time.Millisecond)
	s.clock.Set(s.now.Add(2 * time.Hour))
	unlock()

	cp := <-done
	s.Require().NotNil(cp)
	s.Equal(s.now.Add(2*time.Hour), cp.Timestamp)
}

func (s *RegistryServiceSuite) TestCheckpointTimestampsFollowSeq() {
	e := s.register("B-1")

	s.clock.Set(s.now.Add(3 * time.Hour))
	_, err := s.svc.AddCheckpoint(s.ctx, e.ID, models.CheckpointInput{Status: "shipped"}, owner)
	s.Require().NoError(err)

	// a clock step backwards must not reorder the log
	s.clock.Set(s.now.Add(time.Hour))
	_, err = s.svc.BatchAddCheckpoints(s.ctx, e.ID, []models.CheckpointInput{
		{Status: "received"},
		{Status: "stored"},
	}, owner)
	s.Require().NoError(err)

	cps, err := s.svc.GetCheckpoints(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(cps, 4)
	for i := 1; i < len(cps); i++ {
		s.False(cps[i].Timestamp.Before(cps[i-1].Timestamp), "seq %d precedes seq %d", i, i-1)
	}

	chain, err := s.svc.GetTraceChain(s.ctx, e.ID)
	s.Require().NoError(err)
	for _, link := range chain.Links {
		s.GreaterOrEqual(link.Elapsed, time.Duration(0))
	}
}
