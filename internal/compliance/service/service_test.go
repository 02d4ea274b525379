package service_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"tracecore/internal/authz"
	"tracecore/internal/compliance/adapters"
	compliancemetrics "tracecore/internal/compliance/metrics"
	"tracecore/internal/compliance/models"
	"tracecore/internal/compliance/service"
	"tracecore/internal/compliance/store"
	"tracecore/internal/events"
	"tracecore/internal/platform/lock"
	registrymodels "tracecore/internal/registry/models"
	registryservice "tracecore/internal/registry/service"
	registrystore "tracecore/internal/registry/store"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/requestcontext"
)

const (
	owner    id.ActorID = "acme"
	auditor  id.ActorID = "auditor"
	admin    id.ActorID = "admin"
	stranger id.ActorID = "stranger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Emit(_ context.Context, evts ...events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// mapCache is an in-process StatusCache that keeps the higher version.
type mapCache struct {
	mu      sync.Mutex
	entries map[id.EntityID]*models.Status
}

func (c *mapCache) Get(_ context.Context, entityID id.EntityID) (*models.Status, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.entries[entityID]
	if !ok {
		return nil, false, nil
	}
	return st.Clone(), true, nil
}

func (c *mapCache) Set(_ context.Context, st *models.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[st.EntityID]; ok && cur.Version > st.Version {
		return nil
	}
	c.entries[st.EntityID] = st.Clone()
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, entityID id.EntityID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, entityID)
	return nil
}

// pausingStore blocks the next FindStatus until released.
type pausingStore struct {
	*store.InMemory
	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func (p *pausingStore) arm() (entered, release chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entered, p.release = make(chan struct{}), make(chan struct{})
	return p.entered, p.release
}

func (p *pausingStore) FindStatus(ctx context.Context, entityID id.EntityID) (*models.Status, error) {
	p.mu.Lock()
	entered, release := p.entered, p.release
	p.entered, p.release = nil, nil
	p.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}
	return p.InMemory.FindStatus(ctx, entityID)
}

type ComplianceServiceSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	locker    *lock.Sharded
	registry  *registryservice.Service
	store     *pausingStore
	cache     *mapCache
	metrics   *compliancemetrics.Metrics
	publisher *recordingPublisher
	svc       *service.Service
}

func TestComplianceServiceSuite(t *testing.T) {
	suite.Run(t, new(ComplianceServiceSuite))
}

func (s *ComplianceServiceSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.locker = lock.NewSharded(time.Second)
	gate := authz.New(admin)
	clock := func() time.Time { return s.now }

	s.registry = registryservice.New(registrystore.NewInMemory(), s.locker, gate,
		registryservice.WithLogger(logger),
		registryservice.WithClock(clock))
	s.store = &pausingStore{InMemory: store.NewInMemory()}
	s.cache = &mapCache{entries: make(map[id.EntityID]*models.Status)}
	s.metrics = compliancemetrics.New(prometheus.NewRegistry())
	s.publisher = &recordingPublisher{}
	s.svc = service.New(s.store, adapters.NewRegistryAdapter(s.registry), s.locker, gate,
		service.WithClock(clock),
		service.WithLogger(logger),
		service.WithPublisher(s.publisher),
		service.WithMetrics(s.metrics),
		service.WithStatusCache(s.cache),
	)
}

func (s *ComplianceServiceSuite) registerWidget() id.EntityID {
	e, err := s.registry.Register(s.ctx, registrymodels.RegisterRequest{
		Name:       "Widget",
		Type:       "textile",
		BatchKey:   "B-1",
		ValidFrom:  s.now,
		ValidUntil: s.now.Add(30 * 24 * time.Hour),
	}, owner)
	s.Require().NoError(err)
	s.Require().NoError(s.registry.AddActor(s.ctx, e.ID, auditor, owner))
	return e.ID
}

func (s *ComplianceServiceSuite) addRule(ruleID string, severity int) *models.Rule {
	r, err := s.svc.AddRule(s.ctx, models.RuleInput{
		ID: ruleID, Name: "rule " + ruleID, EntityType: "textile", Requirement: "documented", Severity: severity,
	}, admin)
	s.Require().NoError(err)
	return r
}

func (s *ComplianceServiceSuite) historyLen(entityID id.EntityID) int {
	h, err := s.svc.History(s.ctx, entityID)
	s.Require().NoError(err)
	return len(h)
}

func (s *ComplianceServiceSuite) TestRuleCatalog() {
	s.Run("admin only", func() {
		_, err := s.svc.AddRule(s.ctx, models.RuleInput{ID: "R1", Name: "n", EntityType: "textile", Severity: 1}, owner)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("severity range", func() {
		_, err := s.svc.AddRule(s.ctx, models.RuleInput{ID: "R1", Name: "n", EntityType: "textile", Severity: 6}, admin)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.addRule("R2", 2)
	s.addRule("R1", 4)

	s.Run("duplicate id", func() {
		_, err := s.svc.AddRule(s.ctx, models.RuleInput{ID: "R1", Name: "n", EntityType: "food", Severity: 1}, admin)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("indexed by type", func() {
		ids, err := s.svc.RulesForType(s.ctx, " Textile ")
		s.Require().NoError(err)
		s.Equal([]id.RuleID{"R1", "R2"}, ids)

		ids, err = s.svc.RulesForType(s.ctx, "food")
		s.Require().NoError(err)
		s.Empty(ids)
	})

	s.Run("deactivate", func() {
		r, err := s.svc.SetRuleActive(s.ctx, "R2", false, admin)
		s.Require().NoError(err)
		s.False(r.Active)

		_, err = s.svc.SetRuleActive(s.ctx, "R9", false, admin)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	rules, err := s.svc.Rules(s.ctx)
	s.Require().NoError(err)
	s.Len(rules, 2)
	s.Equal([]events.Type{events.RuleAdded, events.RuleAdded, events.RuleStatusChanged}, s.publisher.types())
}

func (s *ComplianceServiceSuite) TestCriticalRuleCompliant() {
	entityID := s.registerWidget()
	s.addRule("R1", 4)
	s.publisher.reset()

	res, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: true, Evidence: "certificate", Confidence: 95}, auditor)
	s.Require().NoError(err)
	s.Equal(uint64(0), res.Check.Index)
	s.Equal(uint64(1), res.Status.Passed)
	s.Equal(uint64(0), res.Status.Failed)
	s.True(res.Status.Compliant)

	s.Equal([]events.Type{events.ComplianceChecked, events.ComplianceStatusUpdated}, s.publisher.types())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ChecksRecorded.WithLabelValues("passed")))

	st, err := s.svc.Status(s.ctx, entityID)
	s.Require().NoError(err)
	s.True(st.Compliant)
}

func (s *ComplianceServiceSuite) TestConfidenceGate() {
	entityID := s.registerWidget()
	s.addRule("R5", 5)

	_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R5", Passed: true, Confidence: 50}, auditor)
	s.True(dErrors.HasCode(err, dErrors.CodeConfidenceThreshold))
	s.Equal(0, s.historyLen(entityID))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ConfidenceRejections))

	res, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R5", Passed: true, Confidence: 95}, auditor)
	s.Require().NoError(err)
	s.True(res.Status.Compliant)
	s.Equal(1, s.historyLen(entityID))
}

func (s *ComplianceServiceSuite) TestCheckPreconditions() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)

	s.Run("unknown rule", func() {
		_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "nope"}, auditor)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("inactive rule", func() {
		s.addRule("OLD", 1)
		_, err := s.svc.SetRuleActive(s.ctx, "OLD", false, admin)
		s.Require().NoError(err)
		_, err = s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "OLD"}, auditor)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown entity", func() {
		_, err := s.svc.Check(s.ctx, 99, models.CheckInput{RuleID: "R1"}, auditor)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("evidence too long", func() {
		long := make([]byte, models.MaxEvidenceLength+1)
		_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Evidence: string(long)}, auditor)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing actor", func() {
		_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1"}, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Equal(0, s.historyLen(entityID))
}

func (s *ComplianceServiceSuite) TestFailedCheckMakesNonCompliant() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)
	s.addRule("R2", 2)

	_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: true}, auditor)
	s.Require().NoError(err)
	res, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R2", Passed: false}, auditor)
	s.Require().NoError(err)

	s.False(res.Status.Compliant)
	s.Equal([]id.RuleID{"R2"}, res.Status.FailedRules)
	s.Equal(uint64(2), res.Status.Version)
	s.Equal(uint64(1), res.Check.Index)
}

func (s *ComplianceServiceSuite) TestBatchCheckSkipsUnknownAndInactiveRules() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)
	s.addRule("R2", 4)
	s.addRule("OLD", 1)
	_, err := s.svc.SetRuleActive(s.ctx, "OLD", false, admin)
	s.Require().NoError(err)
	s.publisher.reset()

	res, err := s.svc.BatchCheck(s.ctx, entityID, []models.CheckInput{
		{RuleID: "R1", Passed: true},
		{RuleID: "MISSING", Passed: true},
		{RuleID: "R2", Passed: true, Confidence: 90},
		{RuleID: "OLD", Passed: false},
	}, auditor)
	s.Require().NoError(err)

	s.Len(res.Applied, 2)
	s.Equal(uint64(0), res.Applied[0].Index)
	s.Equal(uint64(1), res.Applied[1].Index)
	s.Equal([]models.SkippedCheck{
		{Position: 1, RuleID: "MISSING", Reason: models.SkipUnknownRule},
		{Position: 3, RuleID: "OLD", Reason: models.SkipInactiveRule},
	}, res.Skipped)
	s.True(res.Status.Compliant)
	s.Equal(uint64(2), res.Status.Total)

	s.Equal([]events.Type{events.ComplianceChecked, events.ComplianceChecked, events.ComplianceStatusUpdated}, s.publisher.types())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ChecksSkipped.WithLabelValues(models.SkipUnknownRule)))
}

func (s *ComplianceServiceSuite) TestBatchCheckIsAtomic() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)
	s.addRule("R5", 5)

	s.Run("confidence gate aborts the batch", func() {
		_, err := s.svc.BatchCheck(s.ctx, entityID, []models.CheckInput{
			{RuleID: "R1", Passed: true},
			{RuleID: "R5", Passed: true, Confidence: 10},
		}, auditor)
		s.True(dErrors.HasCode(err, dErrors.CodeConfidenceThreshold))
		s.Equal(0, s.historyLen(entityID))
	})

	s.Run("invalid item aborts the batch", func() {
		_, err := s.svc.BatchCheck(s.ctx, entityID, []models.CheckInput{
			{RuleID: "R1", Passed: true},
			{RuleID: "R1", Confidence: 101},
		}, auditor)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(0, s.historyLen(entityID))
	})

	s.Run("bounds", func() {
		_, err := s.svc.BatchCheck(s.ctx, entityID, nil, auditor)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.svc.BatchCheck(s.ctx, entityID, make([]models.CheckInput, models.MaxBatchChecks+1), auditor)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("all skipped returns current status", func() {
		res, err := s.svc.BatchCheck(s.ctx, entityID, []models.CheckInput{{RuleID: "GONE"}}, auditor)
		s.Require().NoError(err)
		s.Empty(res.Applied)
		s.Len(res.Skipped, 1)
		s.False(res.Status.Compliant)
		s.Zero(res.Status.Total)
	})
}

func (s *ComplianceServiceSuite) TestConcurrentChecksGetDistinctIndices() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(passed bool) {
			defer wg.Done()
			_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: passed}, auditor)
			s.NoError(err)
		}(i%2 == 0)
	}
	wg.Wait()

	history, err := s.svc.History(s.ctx, entityID)
	s.Require().NoError(err)
	s.Require().Len(history, writers)
	for i, c := range history {
		s.Equal(uint64(i), c.Index)
	}
	st, err := s.svc.Status(s.ctx, entityID)
	s.Require().NoError(err)
	s.Equal(uint64(writers/2), st.Passed)
	s.Equal(uint64(writers/2), st.Failed)
}

func (s *ComplianceServiceSuite) TestRecomputeIsIdempotent() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)
	s.addRule("R2", 1)
	_, err := s.svc.BatchCheck(s.ctx, entityID, []models.CheckInput{
		{RuleID: "R2", Passed: false},
		{RuleID: "R1", Passed: true},
	}, auditor)
	s.Require().NoError(err)

	first, err := s.svc.Recompute(s.ctx, entityID, auditor)
	s.Require().NoError(err)
	second, err := s.svc.Recompute(s.ctx, entityID, auditor)
	s.Require().NoError(err)

	a, err := json.Marshal(first)
	s.Require().NoError(err)
	b, err := json.Marshal(second)
	s.Require().NoError(err)
	s.Equal(string(a), string(b))

	stored, err := s.store.FindStatus(s.ctx, entityID)
	s.Require().NoError(err)
	c, err := json.Marshal(stored)
	s.Require().NoError(err)
	s.Equal(string(a), string(c))
}

func (s *ComplianceServiceSuite) TestRecomputeRepairsDivergedProjection() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)
	_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: false}, auditor)
	s.Require().NoError(err)

	corrupt := models.Empty(entityID)
	corrupt.Compliant = true
	s.Require().NoError(s.store.SaveStatus(s.ctx, corrupt))

	v, err := s.svc.Verify(s.ctx, entityID)
	s.Require().NoError(err)
	s.False(v.Consistent)
	s.True(v.Stored.Compliant)
	s.False(v.Derived.Compliant)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ProjectionInconsistent))

	s.publisher.reset()
	st, err := s.svc.Recompute(s.ctx, entityID, auditor)
	s.Require().NoError(err)
	s.False(st.Compliant)
	s.Equal([]events.Type{events.ComplianceStatusUpdated}, s.publisher.types())

	v, err = s.svc.Verify(s.ctx, entityID)
	s.Require().NoError(err)
	s.True(v.Consistent)

	cached, ok, err := s.cache.Get(s.ctx, entityID)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.True(cached.Equal(st))
}

func (s *ComplianceServiceSuite) TestStatusOfUncheckedEntity() {
	entityID := s.registerWidget()

	st, err := s.svc.Status(s.ctx, entityID)
	s.Require().NoError(err)
	s.False(st.Compliant)
	s.Zero(st.Total)

	_, err = s.svc.Status(s.ctx, 404)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	v, err := s.svc.Verify(s.ctx, entityID)
	s.Require().NoError(err)
	s.True(v.Consistent)
	s.Nil(v.Stored)
}

func (s *ComplianceServiceSuite) TestStatusServedFromCache() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)
	_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: true}, auditor)
	s.Require().NoError(err)

	_, err = s.svc.Status(s.ctx, entityID)
	s.Require().NoError(err)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.StatusCacheLookups.WithLabelValues("hit")))

	s.Require().NoError(s.cache.Invalidate(s.ctx, entityID))
	st, err := s.svc.Status(s.ctx, entityID)
	s.Require().NoError(err)
	s.True(st.Compliant)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.StatusCacheLookups.WithLabelValues("miss")))
}

func (s *ComplianceServiceSuite) TestChecksAllowedOnInactiveEntity() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)
	_, err := s.registry.Deactivate(s.ctx, entityID, owner)
	s.Require().NoError(err)

	_, err = s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: true}, auditor)
	s.NoError(err)
}

func (s *ComplianceServiceSuite) TestUpdateEvidence() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)
	res, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: true, Evidence: "draft"}, auditor)
	s.Require().NoError(err)
	before := res.Status

	s.Run("other actor forbidden", func() {
		_, err := s.svc.UpdateEvidence(s.ctx, entityID, 0, models.EvidenceEdit{Evidence: "forged"}, owner)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown index", func() {
		_, err := s.svc.UpdateEvidence(s.ctx, entityID, 4, models.EvidenceEdit{Evidence: "x"}, auditor)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("recorder replaces text", func() {
		later := requestcontext.WithTime(s.ctx, s.now.Add(time.Hour))
		c, err := s.svc.UpdateEvidence(later, entityID, 0, models.EvidenceEdit{Evidence: "final report"}, auditor)
		s.Require().NoError(err)
		s.Equal("final report", c.Evidence)
		s.Require().NotNil(c.EvidenceUpdatedAt)
		s.True(c.Passed)
	})

	s.Run("admin may edit", func() {
		_, err := s.svc.UpdateEvidence(s.ctx, entityID, 0, models.EvidenceEdit{Evidence: "admin note"}, admin)
		s.NoError(err)
	})

	after, err := s.svc.Status(s.ctx, entityID)
	s.Require().NoError(err)
	s.True(before.Equal(after))
}

func (s *ComplianceServiceSuite) TestMutationsRequireAuthorization() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)
	_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: true}, auditor)
	s.Require().NoError(err)
	s.publisher.reset()

	s.Run("check", func() {
		_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: false, Confidence: 90}, stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("batch check", func() {
		_, err := s.svc.BatchCheck(s.ctx, entityID, []models.CheckInput{{RuleID: "R1", Passed: false}}, stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("recompute", func() {
		_, err := s.svc.Recompute(s.ctx, entityID, stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown entity is not found", func() {
		_, err := s.svc.Check(s.ctx, 99, models.CheckInput{RuleID: "R1"}, stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Equal(1, s.historyLen(entityID))
	st, err := s.svc.Status(s.ctx, entityID)
	s.Require().NoError(err)
	s.True(st.Compliant)
	s.Empty(s.publisher.types())
	for _, op := range []string{"Check", "BatchCheck", "Recompute"} {
		s.Equal(1.0, testutil.ToFloat64(s.metrics.AuthorizationDenied.WithLabelValues(op)), op)
	}

	s.Run("owner and admin are authorized", func() {
		_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: true}, owner)
		s.NoError(err)
		_, err = s.svc.Recompute(s.ctx, entityID, admin)
		s.NoError(err)
	})
}

func (s *ComplianceServiceSuite) TestCacheFillDoesNotOvertakeCommit() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)
	_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: true}, auditor)
	s.Require().NoError(err)
	s.Require().NoError(s.cache.Invalidate(s.ctx, entityID))

	entered, release := s.store.arm()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.svc.Status(s.ctx, entityID)
		s.NoError(err)
	}()
	<-entered
	go func() {
		defer wg.Done()
		_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: false}, auditor)
		s.NoError(err)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	stored, err := s.store.FindStatus(s.ctx, entityID)
	s.Require().NoError(err)
	s.Equal(uint64(2), stored.Total)

	served, err := s.svc.Status(s.ctx, entityID)
	s.Require().NoError(err)
	s.True(stored.Equal(served), "served %+v, stored %+v", served, stored)
	s.False(served.Compliant)
}

func (s *ComplianceServiceSuite) TestCheckTimestampsFollowIndex() {
	entityID := s.registerWidget()
	s.addRule("R1", 1)

	s.now = s.now.Add(2 * time.Hour)
	_, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: true}, auditor)
	s.Require().NoError(err)
	s.now = s.now.Add(-time.Hour)
	res, err := s.svc.Check(s.ctx, entityID, models.CheckInput{RuleID: "R1", Passed: true}, auditor)
	s.Require().NoError(err)

	history, err := s.svc.History(s.ctx, entityID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.False(history[1].Timestamp.Before(history[0].Timestamp))
	s.Equal(history[1].Timestamp, *res.Status.LastCheckedAt)
}
