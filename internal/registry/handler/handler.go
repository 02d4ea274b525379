package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/platform/httputil"
	"tracecore/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, req models.RegisterRequest, actor id.ActorID) (*models.Entity, error)
	BatchRegister(ctx context.Context, reqs []models.RegisterRequest, actor id.ActorID) ([]*models.Entity, error)
	Update(ctx context.Context, entityID id.EntityID, req models.UpdateRequest, actor id.ActorID) (*models.Entity, error)
	Deactivate(ctx context.Context, entityID id.EntityID, actor id.ActorID) (*models.Entity, error)
	Reactivate(ctx context.Context, entityID id.EntityID, actor id.ActorID) (*models.Entity, error)
	AddCheckpoint(ctx context.Context, entityID id.EntityID, in models.CheckpointInput, actor id.ActorID) (*models.Checkpoint, error)
	BatchAddCheckpoints(ctx context.Context, entityID id.EntityID, ins []models.CheckpointInput, actor id.ActorID) ([]*models.Checkpoint, error)
	UpdateCheckpoint(ctx context.Context, entityID id.EntityID, seq uint64, edit models.CheckpointEdit, actor id.ActorID) (*models.Checkpoint, error)
	AddActor(ctx context.Context, entityID id.EntityID, newActor, actor id.ActorID) error
	RemoveActor(ctx context.Context, entityID id.EntityID, target, actor id.ActorID) error

	Get(ctx context.Context, entityID id.EntityID) (*models.Entity, error)
	GetByBatchKey(ctx context.Context, key string) (*models.Entity, error)
	GetByOwner(ctx context.Context, owner id.ActorID) ([]*models.Entity, error)
	GetByType(ctx context.Context, entityType string) ([]*models.Entity, error)
	GetInDateRange(ctx context.Context, from, to time.Time) ([]*models.Entity, error)
	GetCheckpoints(ctx context.Context, entityID id.EntityID) ([]*models.Checkpoint, error)
	GetActors(ctx context.Context, entityID id.EntityID) ([]models.Stakeholder, error)
	GetTraceChain(ctx context.Context, entityID id.EntityID) (*models.TraceChain, error)
	Summary(ctx context.Context, entityID id.EntityID, now time.Time) (*models.Summary, error)
}

// Handler wires registry endpoints to the registry service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a registry handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts read endpoints on r and mutation endpoints on authed, which
// must already carry the actor-identity middleware.
func (h *Handler) Register(r chi.Router, authed chi.Router) {
	r.Get("/entities", h.HandleList)
	r.Get("/entities/by-batch/{key}", h.HandleGetByBatchKey)
	r.Get("/entities/{id}", h.HandleGet)
	r.Get("/entities/{id}/checkpoints", h.HandleGetCheckpoints)
	r.Get("/entities/{id}/actors", h.HandleGetActors)
	r.Get("/entities/{id}/trace", h.HandleGetTrace)
	r.Get("/entities/{id}/summary", h.HandleSummary)

	authed.Post("/entities", h.HandleRegister)
	authed.Post("/entities/batch", h.HandleBatchRegister)
	authed.Patch("/entities/{id}", h.HandleUpdate)
	authed.Post("/entities/{id}/deactivate", h.HandleDeactivate)
	authed.Post("/entities/{id}/reactivate", h.HandleReactivate)
	authed.Post("/entities/{id}/checkpoints", h.HandleAddCheckpoint)
	authed.Post("/entities/{id}/checkpoints/batch", h.HandleBatchAddCheckpoints)
	authed.Patch("/entities/{id}/checkpoints/{seq}", h.HandleUpdateCheckpoint)
	authed.Post("/entities/{id}/actors", h.HandleAddActor)
	authed.Delete("/entities/{id}/actors/{actor}", h.HandleRemoveActor)
}

// HandleRegister handles POST /entities.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.RegisterRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	e, err := h.service.Register(ctx, *req, actor)
	if err != nil {
		h.fail(ctx, w, "register entity failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, e)
}

// HandleBatchRegister handles POST /entities/batch.
func (h *Handler) HandleBatchRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.BatchRegisterRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	entities, err := h.service.BatchRegister(ctx, req.Items, actor)
	if err != nil {
		h.fail(ctx, w, "batch register failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newListResponse(entities))
}

// HandleUpdate handles PATCH /entities/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateRequest](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	e, err := h.service.Update(ctx, entityID, *req, actor)
	if err != nil {
		h.fail(ctx, w, "update entity failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

// HandleDeactivate handles POST /entities/{id}/deactivate.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.Deactivate, "deactivate entity failed")
}

// HandleReactivate handles POST /entities/{id}/reactivate.
func (h *Handler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.service.Reactivate, "reactivate entity failed")
}

func (h *Handler) handleTransition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(context.Context, id.EntityID, id.ActorID) (*models.Entity, error),
	failMsg string,
) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	e, err := fn(ctx, entityID, actor)
	if err != nil {
		h.fail(ctx, w, failMsg, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

// HandleAddCheckpoint handles POST /entities/{id}/checkpoints.
func (h *Handler) HandleAddCheckpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.CheckpointInput](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	cp, err := h.service.AddCheckpoint(ctx, entityID, *req, actor)
	if err != nil {
		h.fail(ctx, w, "add checkpoint failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, cp)
}

// HandleBatchAddCheckpoints handles POST /entities/{id}/checkpoints/batch.
func (h *Handler) HandleBatchAddCheckpoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.BatchCheckpointRequest](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	cps, err := h.service.BatchAddCheckpoints(ctx, entityID, req.Items, actor)
	if err != nil {
		h.fail(ctx, w, "batch add checkpoints failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newListResponse(cps))
}

// HandleUpdateCheckpoint handles PATCH /entities/{id}/checkpoints/{seq}.
func (h *Handler) HandleUpdateCheckpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	seq, err := strconv.ParseUint(chi.URLParam(r, "seq"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "seq must be a non-negative integer"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.CheckpointEdit](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	cp, err := h.service.UpdateCheckpoint(ctx, entityID, seq, *req, actor)
	if err != nil {
		h.fail(ctx, w, "update checkpoint failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cp)
}

// HandleAddActor handles POST /entities/{id}/actors.
func (h *Handler) HandleAddActor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.AddActorRequest](w, r, h.logger, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.AddActor(ctx, entityID, id.ActorID(req.Actor), actor); err != nil {
		h.fail(ctx, w, "add actor failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveActor handles DELETE /entities/{id}/actors/{actor}.
func (h *Handler) HandleRemoveActor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, entityID, ok := h.actorAndEntity(w, r)
	if !ok {
		return
	}
	target := id.ActorID(chi.URLParam(r, "actor"))
	if err := h.service.RemoveActor(ctx, entityID, target, actor); err != nil {
		h.fail(ctx, w, "remove actor failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
