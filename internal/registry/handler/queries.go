package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
	"tracecore/pkg/platform/httputil"
	"tracecore/pkg/requestcontext"
)

// HandleList handles GET /entities?owner= | ?type= | ?from=&to=.
// Exactly one filter must be supplied.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	owner, typ, from, to := q.Get("owner"), q.Get("type"), q.Get("from"), q.Get("to")

	filters := 0
	for _, set := range []bool{owner != "", typ != "", from != "" || to != ""} {
		if set {
			filters++
		}
	}
	if filters != 1 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "exactly one of owner, type or from/to is required"))
		return
	}

	var (
		entities []*models.Entity
		err      error
	)
	switch {
	case owner != "":
		entities, err = h.service.GetByOwner(ctx, id.ActorID(owner))
	case typ != "":
		entities, err = h.service.GetByType(ctx, typ)
	default:
		fromT, perr := time.Parse(time.RFC3339, from)
		toT, perr2 := time.Parse(time.RFC3339, to)
		if perr != nil || perr2 != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "from and to must be RFC3339 timestamps"))
			return
		}
		entities, err = h.service.GetInDateRange(ctx, fromT, toT)
	}
	if err != nil {
		h.fail(ctx, w, "list entities failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newListResponse(entities))
}

// HandleGet handles GET /entities/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, ok := entityIDParam(w, r)
	if !ok {
		return
	}
	e, err := h.service.Get(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "get entity failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

// HandleGetByBatchKey handles GET /entities/by-batch/{key}.
func (h *Handler) HandleGetByBatchKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, err := h.service.GetByBatchKey(ctx, chi.URLParam(r, "key"))
	if err != nil {
		h.fail(ctx, w, "get entity by batch key failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

// HandleGetCheckpoints handles GET /entities/{id}/checkpoints.
func (h *Handler) HandleGetCheckpoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, ok := entityIDParam(w, r)
	if !ok {
		return
	}
	cps, err := h.service.GetCheckpoints(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "get checkpoints failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newListResponse(cps))
}

// HandleGetActors handles GET /entities/{id}/actors.
func (h *Handler) HandleGetActors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, ok := entityIDParam(w, r)
	if !ok {
		return
	}
	rows, err := h.service.GetActors(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "get actors failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newListResponse(rows))
}

// HandleGetTrace handles GET /entities/{id}/trace.
func (h *Handler) HandleGetTrace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, ok := entityIDParam(w, r)
	if !ok {
		return
	}
	chain, err := h.service.GetTraceChain(ctx, entityID)
	if err != nil {
		h.fail(ctx, w, "get trace chain failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, chain)
}

// HandleSummary handles GET /entities/{id}/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, ok := entityIDParam(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(ctx, entityID, requestcontext.Now(ctx))
	if err != nil {
		h.fail(ctx, w, "get summary failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}
