package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"actarchive/internal/access"
	"actarchive/internal/inventory/importer"
	"actarchive/internal/inventory/models"
	"actarchive/internal/platform/metrics"
	"actarchive/internal/platform/middleware"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/platform/httputil"
	"actarchive/pkg/platform/middleware/request"
)

// maxUploadBytes bounds a spreadsheet upload.
const maxUploadBytes = 32 << 20

// Service defines the inventory operations the handler calls.
type Service interface {
	ImportBatch(ctx context.Context, uploaderID id.UserID, sourceFilename string, rows []models.Row) (*models.Batch, error)
	GetBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error)
	ListBatches(ctx context.Context) ([]*models.Batch, error)
	Records(ctx context.Context, batchID id.BatchID) ([]models.Record, error)
	DeleteBatch(ctx context.Context, batchID id.BatchID, adminID id.UserID) error
}

// Handler serves /inventory/batches. Inventory is office-wide data, so
// agents have no access.
type Handler struct {
	logger  *slog.Logger
	service Service
	metrics *metrics.Metrics
}

func New(service Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: m}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/inventory/batches", func(r chi.Router) {
		r.Use(middleware.RequireRole(h.logger, h.metrics, access.RoleSupervisor, access.RoleAdmin))
		r.Post("/", h.handleImport)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.With(middleware.RequireAdmin(h.logger, h.metrics)).Delete("/{id}", h.handleDelete)
	})
}

type batchResponse struct {
	*models.Batch
	Records []models.Record `json:"records,omitempty"`
}

type listResponse struct {
	Batches []*models.Batch `json:"batches"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := access.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "identity required"))
		return
	}

	sourceFilename, rows, err := h.readImport(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid inventory import",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	batch, err := h.service.ImportBatch(ctx, identity.UserID, sourceFilename, rows)
	if err != nil {
		h.writeServiceError(ctx, w, "import", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, batchResponse{Batch: batch})
}

// readImport accepts either a multipart upload with an xlsx "file" part and
// an optional "sheet" field, or a JSON ImportRequest.
func (h *Handler) readImport(w http.ResponseWriter, r *http.Request) (string, []models.Row, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req models.ImportRequest
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			return "", nil, err
		}
		return req.SourceFilename, req.Rows, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, dErrors.New(dErrors.CodeValidation, "spreadsheet is too large")
		}
		return "", nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart body")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "multipart field \"file\" is required")
	}
	defer file.Close()

	rows, err := importer.Read(file, importer.Options{SheetName: r.FormValue("sheet")})
	if err != nil {
		return "", nil, err
	}
	return header.Filename, rows, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batches, err := h.service.ListBatches(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "list", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Batches: batches})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, err := id.ParseBatchID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	batch, err := h.service.GetBatch(ctx, batchID)
	if err != nil {
		h.writeServiceError(ctx, w, "get", err)
		return
	}
	resp := batchResponse{Batch: batch}
	if r.URL.Query().Get("records") == "true" {
		if resp.Records, err = h.service.Records(ctx, batchID); err != nil {
			h.writeServiceError(ctx, w, "records", err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := access.FromContext(ctx)
	batchID, err := id.ParseBatchID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.DeleteBatch(ctx, batchID, identity.UserID); err != nil {
		h.writeServiceError(ctx, w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, action string, err error) {
	level := slog.LevelWarn
	if !dErrors.IsClientSafe(dErrors.CodeOf(err)) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "inventory request failed",
		"action", action,
		"error", err,
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteError(w, err)
}
