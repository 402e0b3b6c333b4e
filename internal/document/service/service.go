// Package service is the document workflow engine. Every transition is one
// read-modify-write inside RunInTx, guarded by a status compare-and-swap, and
// appends exactly one history event once it has committed.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"actarchive/internal/access"
	documentmetrics "actarchive/internal/document/metrics"
	"actarchive/internal/document/models"
	"actarchive/internal/document/storage"
	id "actarchive/pkg/domain"
	"actarchive/pkg/platform/audit"
)

// Store is the document record store as seen inside a transaction.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	FindByIDForUpdate(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	UpdateIfStatus(ctx context.Context, doc *models.Document, expected models.Status) error
	Delete(ctx context.Context, documentID id.DocumentID) error
	List(ctx context.Context, filter models.ListFilter, scope access.Scope) ([]*models.Document, int, error)
}

// FileStorage moves and removes scan files.
type FileStorage interface {
	Prepare(ctx context.Context, from, to string) (storage.PendingMove, error)
	DeleteFile(ctx context.Context, path string) error
}

// HistoryPublisher records history events.
type HistoryPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// HistoryReader reads a document's trail back.
type HistoryReader interface {
	ListByDocument(ctx context.Context, documentID id.DocumentID) ([]audit.Event, error)
}

// Service orchestrates the document workflow.
type Service struct {
	documents        Store
	files            FileStorage
	tx               DocumentStoreTx
	history          *historyEmitter
	historyReader    HistoryReader
	logger           *slog.Logger
	metrics          *documentmetrics.Metrics
	tracer           trace.Tracer
	minRejectMessage int
}

type serviceConfig struct {
	tx               DocumentStoreTx
	logger           *slog.Logger
	publisher        HistoryPublisher
	historyReader    HistoryReader
	metrics          *documentmetrics.Metrics
	minRejectMessage int
}

type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithHistoryPublisher(publisher HistoryPublisher) Option {
	return func(c *serviceConfig) {
		c.publisher = publisher
	}
}

func WithHistoryReader(reader HistoryReader) Option {
	return func(c *serviceConfig) {
		c.historyReader = reader
	}
}

func WithMetrics(m *documentmetrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

// WithTx replaces the default in-memory transaction with tx, typically a
// Postgres-backed one.
func WithTx(tx DocumentStoreTx) Option {
	return func(c *serviceConfig) {
		c.tx = tx
	}
}

// WithMinRejectMessageLength overrides the shortest accepted rejection reason.
func WithMinRejectMessageLength(n int) Option {
	return func(c *serviceConfig) {
		if n > 0 {
			c.minRejectMessage = n
		}
	}
}

// New constructs a Service. Without WithTx, transactions are sharded
// in-memory locks around documents.
func New(documents Store, files FileStorage, opts ...Option) *Service {
	cfg := &serviceConfig{minRejectMessage: models.DefaultMinRejectMessageLength}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	tx := cfg.tx
	if tx == nil {
		tx = NewInMemoryTx(documents)
	}
	return &Service{
		documents:        documents,
		files:            files,
		tx:               tx,
		history:          newHistoryEmitter(cfg.logger, cfg.publisher),
		historyReader:    cfg.historyReader,
		logger:           cfg.logger,
		metrics:          cfg.metrics,
		tracer:           otel.Tracer("actarchive/internal/document/service"),
		minRejectMessage: cfg.minRejectMessage,
	}
}
