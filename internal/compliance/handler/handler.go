package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tracecore/internal/compliance/models"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/platform/httputil"
	"tracecore/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the compliance operations exposed over HTTP.
type Service interface {
	AddRule(ctx context.Context, in models.RuleInput, actor id.ActorID) (*models.Rule, error)
	SetRuleActive(ctx context.Context, ruleID id.RuleID, active bool, actor id.ActorID) (*models.Rule, error)
	Rule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error)
	Rules(ctx context.Context) ([]*models.Rule, error)
	RulesByType(ctx context.Context, entityType string) ([]*models.Rule, error)

	Check(ctx context.Context, entityID id.EntityID, in models.CheckInput, actor id.ActorID) (*models.CheckResult, error)
	BatchCheck(ctx context.Context, entityID id.EntityID, ins []models.CheckInput, actor id.ActorID) (*models.BatchResult, error)
	UpdateEvidence(ctx context.Context, entityID id.EntityID, index uint64, edit models.EvidenceEdit, actor id.ActorID) (*models.Check, error)

	Status(ctx context.Context, entityID id.EntityID) (*models.Status, error)
	History(ctx context.Context, entityID id.EntityID) ([]*models.Check, error)
	Recompute(ctx context.Context, entityID id.EntityID, actor id.ActorID) (*models.Status, error)
	Verify(ctx context.Context, entityID id.EntityID) (*models.Verification, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts read endpoints on r and mutation endpoints on authed.
func (h *Handler) Register(r chi.Router, authed chi.Router) {
	r.Get("/rules", h.HandleListRules)
	r.Get("/rules/{id}", h.HandleGetRule)
	r.Get("/entities/{id}/compliance", h.HandleStatus)
	r.Get("/entities/{id}/compliance/checks", h.HandleHistory)
	r.Get("/entities/{id}/compliance/verify", h.HandleVerify)

	authed.Post("/rules", h.HandleAddRule)
	authed.Post("/rules/{id}/active", h.HandleSetRuleActive)
	authed.Post("/entities/{id}/compliance/checks", h.HandleCheck)
	authed.Post("/entities/{id}/compliance/checks/batch", h.HandleBatchCheck)
	authed.Patch("/entities/{id}/compliance/checks/{index}", h.HandleUpdateEvidence)
	authed.Post("/entities/{id}/compliance/recompute", h.HandleRecompute)
}

// setActiveRequest is the body of POST /rules/{id}/active.
type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (r *setActiveRequest) Validate() error {
	if r.Active == nil {
		return dErrors.New(dErrors.CodeValidation, "active is required")
	}
	return nil
}

// HandleAddRule handles POST /rules.
func (h *Handler) HandleAddRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.RuleInput](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rule, err := h.service.AddRule(ctx, *req, actor)
	if err != nil {
		h.fail(ctx, w, "add rule failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rule)
}

// HandleSetRuleActive handles POST /rules/{id}/active.
func (h *Handler) HandleSetRuleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[setActiveRequest](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rule, err := h.service.SetRuleActive(ctx, id.RuleID(chi.URLParam(r, "id")), *req.Active, actor)
	if err != nil {
		h.fail(ctx, w, "set rule active failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// HandleListRules handles GET /rules and GET /rules?type=.
func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		rules []*models.Rule
		err   error
	)
	if entityType := r.URL.Query().Get("type"); entityType != "" {
		rules, err = h.service.RulesByType(ctx, entityType)
	} else {
		rules, err = h.service.Rules(ctx)
	}
	if err != nil {
		h.fail(ctx, w, "list rules failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newListResponse(rules))
}

// HandleGetRule handles GET /rules/{id}.
func (h *Handler) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid rule id"))
		return
	}
	rule, err := h.service.Rule(ctx, ruleID)
	if err != nil {
		h.fail(ctx, w, "get rule failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// HandleCheck handles POST /entities/{id}/compliance/checks.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.CheckInput](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.Check(ctx, entityID, *req, actor)
	if err != nil {
		h.fail(ctx, w, "compliance check failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleBatchCheck handles POST /entities/{id}/compliance/checks/batch.
func (h *Handler) HandleBatchCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.BatchCheckRequest](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.BatchCheck(ctx, entityID, req.Items, actor)
	if err != nil {
		h.fail(ctx, w, "batch compliance check failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleUpdateEvidence handles PATCH /entities/{id}/compliance/checks/{index}.
func (h *Handler) HandleUpdateEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "index must be a non-negative integer"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.EvidenceEdit](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.UpdateEvidence(ctx, entityID, index, *req, actor)
	if err != nil {
		h.fail(ctx, w, "update evidence failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleRecompute handles POST /entities/{id}/compliance/recompute.
func (h *Handler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	st, err := h.service.Recompute(ctx, entityID, actor)
	if err != nil {
		h.fail(ctx, w, "recompute failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// HandleStatus handles GET /entities/{id}/compliance.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, ok := entityIDParam(w, r)
	if !ok {
		return
	}
	st, err := h.service.Status(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "get compliance status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// HandleHistory handles GET /entities/{id}/compliance/checks.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, ok := entityIDParam(w, r)
	if !ok {
		return
	}
	checks, err := h.service.History(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "get compliance history failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newListResponse(checks))
}

// HandleVerify handles GET /entities/{id}/compliance/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, ok := entityIDParam(w, r)
	if !ok {
		return
	}
	v, err := h.service.Verify(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "verify compliance failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (id.ActorID, bool) {
	actor := requestcontext.Actor(r.Context())
	if actor.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return actor, true
}

func (h *Handler) actorAndEntity(w http.ResponseWriter, r *http.Request) (id.ActorID, id.EntityID, bool) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return "", 0, false
	}
	entityID, ok := entityIDParam(w, r)
	return actor, entityID, ok
}

func entityIDParam(w http.ResponseWriter, r *http.Request) (id.EntityID, bool) {
	entityID, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid entity id"))
		return 0, false
	}
	return entityID, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"actor", requestcontext.Actor(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newListResponse[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}
