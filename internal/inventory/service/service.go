// Package service imports, lists and deletes inventory batches.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	inventorymetrics "actarchive/internal/inventory/metrics"
	"actarchive/internal/inventory/models"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/platform/sentinel"
	"actarchive/pkg/requestcontext"
)

// Store persists batches. CreateBatch must be atomic: either the batch and
// every record are written, or nothing is.
type Store interface {
	CreateBatch(ctx context.Context, batch *models.Batch, records []models.Record) error
	FindBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error)
	ListBatches(ctx context.Context) ([]*models.Batch, error)
	ListRecords(ctx context.Context, batchID id.BatchID) ([]models.Record, error)
	DeleteBatch(ctx context.Context, batchID id.BatchID) error
}

// Invalidator drops derived views of a batch, such as cached reconciliation
// reports.
type Invalidator interface {
	InvalidateBatch(ctx context.Context, batchID id.BatchID) error
}

type Service struct {
	store       Store
	invalidator Invalidator
	logger      *slog.Logger
	metrics     *inventorymetrics.Metrics
	tracer      trace.Tracer
	newID       func() id.BatchID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *inventorymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
	}
}

// WithIDGenerator pins batch IDs in tests.
func WithIDGenerator(fn func() id.BatchID) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("actarchive/internal/inventory/service"),
		newID:  id.NewBatchID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportBatch validates every row and stores them as one new batch.
func (s *Service) ImportBatch(ctx context.Context, uploaderID id.UserID, sourceFilename string, rows []models.Row) (*models.Batch, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.ImportBatch", trace.WithAttributes(
		attribute.Int("inventory.rows", len(rows)),
	))
	defer span.End()

	batch, records, err := models.NewBatch(s.newID(), uploaderID, sourceFilename, rows, requestcontext.Now(ctx))
	if err != nil {
		s.metrics.IncrementImportFailure(string(dErrors.CodeOf(err)))
		return nil, s.fail(span, err)
	}
	if err := s.store.CreateBatch(ctx, batch, records); err != nil {
		s.metrics.IncrementImportFailure(string(dErrors.CodeInternal))
		return nil, s.fail(span, wrapBatchErr(err, "store inventory batch"))
	}

	s.metrics.ObserveImport(batch.RecordCount)
	s.logger.InfoContext(ctx, "inventory batch imported",
		"event", "inventory_imported",
		"log_type", "audit",
		"batch_id", batch.ID.String(),
		"uploaded_by", uploaderID.String(),
		"source_filename", batch.SourceFilename,
		"record_count", batch.RecordCount,
		"request_id", requestcontext.RequestID(ctx),
	)
	return batch, nil
}

func (s *Service) GetBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error) {
	batch, err := s.store.FindBatch(ctx, batchID)
	if err != nil {
		return nil, wrapBatchErr(err, "load inventory batch")
	}
	return batch, nil
}

func (s *Service) ListBatches(ctx context.Context) ([]*models.Batch, error) {
	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		return nil, wrapBatchErr(err, "list inventory batches")
	}
	return batches, nil
}

func (s *Service) Records(ctx context.Context, batchID id.BatchID) ([]models.Record, error) {
	records, err := s.store.ListRecords(ctx, batchID)
	if err != nil {
		return nil, wrapBatchErr(err, "list inventory records")
	}
	return records, nil
}

// DeleteBatch removes a whole batch. Cached reports for it are dropped
// afterwards; a failed invalidation is logged and left to expire.
func (s *Service) DeleteBatch(ctx context.Context, batchID id.BatchID, adminID id.UserID) error {
	ctx, span := s.tracer.Start(ctx, "inventory.DeleteBatch")
	defer span.End()

	if err := s.store.DeleteBatch(ctx, batchID); err != nil {
		return s.fail(span, wrapBatchErr(err, "delete inventory batch"))
	}
	if s.invalidator != nil {
		if err := s.invalidator.InvalidateBatch(ctx, batchID); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate reconciliation cache",
				"batch_id", batchID.String(),
				"error", err,
			)
		}
	}
	s.logger.InfoContext(ctx, "inventory batch deleted",
		"event", "inventory_deleted",
		"log_type", "audit",
		"batch_id", batchID.String(),
		"performed_by", adminID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func wrapBatchErr(err error, action string) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "inventory batch not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "inventory batch already exists")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "failed to "+action+": timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
	}
}
