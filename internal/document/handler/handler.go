package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"actarchive/internal/access"
	"actarchive/internal/document/models"
	"actarchive/internal/platform/metrics"
	"actarchive/internal/platform/middleware"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/platform/audit"
	"actarchive/pkg/platform/httputil"
	"actarchive/pkg/platform/middleware/request"
)

// Service defines the document workflow operations the handler calls.
type Service interface {
	Upload(ctx context.Context, req *models.UploadRequest, uploaderID id.UserID) (*models.Document, error)
	StartReview(ctx context.Context, documentID id.DocumentID, reviewerID id.UserID) (*models.Document, error)
	Approve(ctx context.Context, documentID id.DocumentID, reviewerID id.UserID) (*models.Document, error)
	Reject(ctx context.Context, documentID id.DocumentID, reviewerID id.UserID, errorType models.ErrorType, message string) (*models.Document, error)
	Reupload(ctx context.Context, documentID id.DocumentID, req *models.ReuploadRequest, actorID id.UserID) (*models.Document, error)
	Delete(ctx context.Context, documentID id.DocumentID, adminID id.UserID) error
	Get(ctx context.Context, documentID id.DocumentID, scope access.Scope) (*models.Document, error)
	List(ctx context.Context, filter models.ListFilter, scope access.Scope) (*models.ListResult, error)
	History(ctx context.Context, documentID id.DocumentID, scope access.Scope) ([]audit.Event, error)
}

// Handler serves the /documents endpoints.
type Handler struct {
	logger   *slog.Logger
	service  Service
	metrics  *metrics.Metrics
	reviewer []access.Role
}

// New creates a document Handler.
func New(service Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		metrics:  m,
		reviewer: []access.Role{access.RoleSupervisor, access.RoleAdmin},
	}
}

// Register mounts the document routes. Identity must already be resolved.
func (h *Handler) Register(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.handleUpload)
		r.Get("/", h.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/history", h.handleHistory)
			r.Post("/reupload", h.handleReupload)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(h.logger, h.metrics, h.reviewer...))
				r.Post("/review", h.handleStartReview)
				r.Post("/approve", h.handleApprove)
				r.Post("/reject", h.handleReject)
			})
			r.With(middleware.RequireAdmin(h.logger, h.metrics)).Delete("/", h.handleDelete)
		})
	})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req models.UploadRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid upload request",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.service.Upload(ctx, &req, identity.UserID)
	if err != nil {
		h.writeServiceError(ctx, w, "upload", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.identity(w, r); !ok {
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.List(ctx, filter, access.ScopeFromContext(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "list", err)
		return
	}
	if result.Documents == nil {
		result.Documents = []*models.Document{}
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.identity(w, r); !ok {
		return
	}
	documentID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.service.Get(ctx, documentID, access.ScopeFromContext(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.identity(w, r); !ok {
		return
	}
	documentID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	events, err := h.service.History(ctx, documentID, access.ScopeFromContext(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHistoryResponse(documentID, events))
}

func (h *Handler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start review", func(ctx context.Context, documentID id.DocumentID, actor access.Identity) (*models.Document, error) {
		return h.service.StartReview(ctx, documentID, actor.UserID)
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve", func(ctx context.Context, documentID id.DocumentID, actor access.Identity) (*models.Document, error) {
		return h.service.Approve(ctx, documentID, actor.UserID)
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.transition(w, r, "reject", func(ctx context.Context, documentID id.DocumentID, actor access.Identity) (*models.Document, error) {
		return h.service.Reject(ctx, documentID, actor.UserID, models.ErrorType(req.ErrorType), req.Message)
	})
}

func (h *Handler) handleReupload(w http.ResponseWriter, r *http.Request) {
	var req models.ReuploadRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.transition(w, r, "reupload", func(ctx context.Context, documentID id.DocumentID, actor access.Identity) (*models.Document, error) {
		return h.service.Reupload(ctx, documentID, &req, actor.UserID)
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	documentID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, documentID, identity.UserID); err != nil {
		h.writeServiceError(ctx, w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transition runs a workflow operation on a document the caller can see.
// Documents outside the caller's scope answer 404 before any mutation.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, id.DocumentID, access.Identity) (*models.Document, error)) {
	ctx := r.Context()
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	documentID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Get(ctx, documentID, access.ScopeFor(identity)); err != nil {
		h.writeServiceError(ctx, w, action, err)
		return
	}

	doc, err := fn(ctx, documentID, identity)
	if err != nil {
		h.writeServiceError(ctx, w, action, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (access.Identity, bool) {
	identity, ok := access.FromContext(r.Context())
	if !ok {
		// RequireIdentity is mounted ahead of every route.
		h.logger.ErrorContext(r.Context(), "identity missing from context",
			"request_id", request.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "identity required"))
		return access.Identity{}, false
	}
	return identity, true
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return documentID, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, action string, err error) {
	code := dErrors.CodeOf(err)
	if dErrors.IsClientSafe(code) {
		h.logger.WarnContext(ctx, "document request rejected",
			"action", action,
			"code", code,
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
	} else {
		h.logger.ErrorContext(ctx, "document request failed",
			"action", action,
			"code", code,
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

func parseListFilter(r *http.Request) (models.ListFilter, error) {
	q := r.URL.Query()
	filter := models.ListFilter{
		Bureau:       q.Get("bureau"),
		RegistreType: q.Get("registre_type"),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(q.Get("year")); raw != "" {
		year, err := id.ParseYear(raw)
		if err != nil {
			return filter, err
		}
		filter.Year = year
	}
	if raw := strings.TrimSpace(q.Get("uploaded_by")); raw != "" {
		uploadedBy, err := id.ParseUserID(raw)
		if err != nil {
			return filter, dErrors.Wrap(err, dErrors.CodeValidation, "invalid uploaded_by")
		}
		filter.UploadedBy = uploadedBy
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		return filter, dErrors.New(dErrors.CodeValidation, "limit must be an integer")
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		return filter, dErrors.New(dErrors.CodeValidation, "offset must be an integer")
	}
	return filter, nil
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
