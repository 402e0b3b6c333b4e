package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"actarchive/internal/access"
	"actarchive/internal/platform/metrics"
	"actarchive/internal/platform/middleware"
	"actarchive/internal/reconciliation/models"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/platform/httputil"
	"actarchive/pkg/platform/middleware/request"
)

// Service defines the reconciliation reports the handler serves.
type Service interface {
	Compare(ctx context.Context, batchID id.BatchID, filter id.KeyFilter, scope access.Scope) (*models.ComparisonResult, error)
	Tree(ctx context.Context, batchID id.BatchID, filter id.KeyFilter, scope access.Scope) (*models.Tree, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
	metrics *metrics.Metrics
}

func New(service Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: m}
}

// Register mounts the report routes. Agents only see their own uploads, which
// makes an inventory comparison meaningless for them.
func (h *Handler) Register(r chi.Router) {
	r.Route("/reconciliation/{batchID}", func(r chi.Router) {
		r.Use(middleware.RequireRole(h.logger, h.metrics, access.RoleSupervisor, access.RoleAdmin))
		r.Get("/compare", h.handleCompare)
		r.Get("/tree", h.handleTree)
	})
}

func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, filter, ok := h.parse(w, r)
	if !ok {
		return
	}
	result, err := h.service.Compare(ctx, batchID, filter, access.ScopeFromContext(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "compare", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, filter, ok := h.parse(w, r)
	if !ok {
		return
	}
	tree, err := h.service.Tree(ctx, batchID, filter, access.ScopeFromContext(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "tree", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tree)
}

func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (id.BatchID, id.KeyFilter, bool) {
	batchID, err := id.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.BatchID{}, id.KeyFilter{}, false
	}
	q := r.URL.Query()
	filter, err := id.ParseKeyFilter(q.Get("bureau"), q.Get("registre_type"), q.Get("year"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.BatchID{}, id.KeyFilter{}, false
	}
	return batchID, filter, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, report string, err error) {
	if dErrors.IsClientSafe(dErrors.CodeOf(err)) {
		h.logger.WarnContext(ctx, "reconciliation request rejected",
			"report", report,
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
	} else {
		h.logger.ErrorContext(ctx, "reconciliation request failed",
			"report", report,
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
