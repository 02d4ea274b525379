//go:build e2e

// Package e2e runs the Gherkin features in features/ against a fully wired
// in-process server.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tracecore/internal/authz"
	complianceadapters "tracecore/internal/compliance/adapters"
	compliancehandler "tracecore/internal/compliance/handler"
	complianceservice "tracecore/internal/compliance/service"
	compliancestore "tracecore/internal/compliance/store"
	"tracecore/internal/events"
	jwttoken "tracecore/internal/jwt_token"
	"tracecore/internal/platform/lock"
	"tracecore/internal/platform/metrics"
	registryhandler "tracecore/internal/registry/handler"
	registryservice "tracecore/internal/registry/service"
	registrystore "tracecore/internal/registry/store"
	httptransport "tracecore/internal/transport/http"
	id "tracecore/pkg/domain"
)

// AdminActor may manage the rule catalog.
const AdminActor = "regulator"

// TestContext holds one scenario's server, identity and last response.
type TestContext struct {
	server *httptest.Server
	tokens *jwttoken.JWTService
	sink   *events.MemorySink
	worker *events.Worker

	actor      string
	lastStatus int
	lastBody   []byte
	vars       map[string]string
}

// NewTestContext starts a fresh server with empty in-memory stores.
func NewTestContext() *TestContext {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	queue := events.NewQueue(1024)
	publisher := events.NewPublisher(queue)
	sink := events.NewMemorySink()
	worker := events.NewWorker(queue, []events.Sink{sink})

	locker := lock.NewSharded(0)
	gate := authz.New(id.ActorID(AdminActor))
	registry := registryservice.New(registrystore.NewInMemory(), locker, gate,
		registryservice.WithLogger(log),
		registryservice.WithPublisher(publisher),
	)
	compliance := complianceservice.New(compliancestore.NewInMemory(),
		complianceadapters.NewRegistryAdapter(registry), locker, gate,
		complianceservice.WithLogger(log),
		complianceservice.WithPublisher(publisher),
	)

	tokens := jwttoken.NewJWTService("e2e-signing-key", "tracecore-e2e")
	router := httptransport.NewRouter(httptransport.Config{
		Logger:      log,
		Validator:   jwttoken.NewMiddlewareValidator(tokens),
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTP(reg),
		Handlers: []httptransport.DomainHandler{
			registryhandler.New(registry, log),
			compliancehandler.New(compliance, log),
		},
	})

	return &TestContext{
		server: httptest.NewServer(router),
		tokens: tokens,
		sink:   sink,
		worker: worker,
		vars:   map[string]string{},
	}
}

func (tc *TestContext) Close() {
	tc.server.Close()
}

// AuthenticateAs makes later requests carry a bearer token for actor. An
// empty actor sends no token.
func (tc *TestContext) AuthenticateAs(actor string) {
	tc.actor = actor
}

func (tc *TestContext) GET(path string) error {
	return tc.Do(http.MethodGet, path, nil)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.Do(http.MethodPost, path, body)
}

// Do sends one request and records the response. {name} placeholders in path
// are replaced by remembered values.
func (tc *TestContext) Do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.server.URL+tc.Expand(path), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.actor != "" {
		token, err := tc.tokens.IssueActorToken(id.ActorID(tc.actor), time.Hour)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.server.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField resolves a dotted path such as "status.compliant" or
// "items.0.seq" in the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	cur := doc
	for _, part := range strings.Split(field, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %q", part, field)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %q", field)
		}
	}
	return cur, nil
}

func (tc *TestContext) Remember(name, value string) {
	tc.vars[name] = value
}

func (tc *TestContext) Recall(name string) (string, bool) {
	v, ok := tc.vars[name]
	return v, ok
}

// Expand substitutes {name} placeholders with remembered values.
func (tc *TestContext) Expand(s string) string {
	for k, v := range tc.vars {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

// EventTypes drains the event queue and returns every delivered type in order.
func (tc *TestContext) EventTypes() []string {
	tc.worker.Drain(context.Background())
	types := tc.sink.Types()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
