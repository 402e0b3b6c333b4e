// Package service produces reconciliation reports for an inventory batch.
// It only reads: inventory keys and stored document keys are loaded
// concurrently, with no isolation between the two reads.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"actarchive/internal/access"
	reconmetrics "actarchive/internal/reconciliation/metrics"
	"actarchive/internal/reconciliation/models"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/platform/sentinel"
	"actarchive/pkg/requestcontext"
)

const (
	reportCompare = "compare"
	reportTree    = "tree"
)

// InventoryReader loads the keys of a batch. Unknown batches return
// sentinel.ErrNotFound.
type InventoryReader interface {
	ListKeys(ctx context.Context, batchID id.BatchID, filter id.KeyFilter, scope access.Scope) ([]id.ClassificationKey, error)
}

// DocumentReader loads the keys of documents in status stored.
type DocumentReader interface {
	ListStoredKeys(ctx context.Context, filter id.KeyFilter, scope access.Scope) ([]id.ClassificationKey, error)
}

// Cache holds finished reports for a short time.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, batchID id.BatchID, key string, v any) error
}

// KeyFunc names a cached report.
type KeyFunc func(batchID id.BatchID, kind, fingerprint string) string

type Service struct {
	inventory InventoryReader
	documents DocumentReader
	cache     Cache
	cacheKey  KeyFunc
	logger    *slog.Logger
	metrics   *reconmetrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *reconmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache enables report caching; key names each entry.
func WithCache(c Cache, key KeyFunc) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheKey = key
	}
}

func New(inventory InventoryReader, documents DocumentReader, opts ...Option) *Service {
	s := &Service{
		inventory: inventory,
		documents: documents,
		logger:    slog.Default(),
		tracer:    otel.Tracer("actarchive/internal/reconciliation/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compare diffs the batch against stored documents by exact key.
func (s *Service) Compare(ctx context.Context, batchID id.BatchID, filter id.KeyFilter, scope access.Scope) (*models.ComparisonResult, error) {
	ctx, span := s.startSpan(ctx, "reconciliation.Compare", batchID, filter)
	defer span.End()
	defer s.metrics.ObserveReport(reportCompare, time.Now())

	cacheKey := s.key(batchID, reportCompare, filter, scope)
	var cached models.ComparisonResult
	if s.lookup(ctx, cacheKey, &cached) {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return &cached, nil
	}

	inventory, documents, err := s.load(ctx, batchID, filter, scope)
	if err != nil {
		return nil, s.fail(span, err)
	}

	matched, missing, extra, summary := models.Diff(inventory, documents)
	result := &models.ComparisonResult{
		BatchID:     batchID,
		Filters:     filter,
		Matched:     matched,
		Missing:     missing,
		Extra:       extra,
		Summary:     summary,
		GeneratedAt: requestcontext.Now(ctx),
	}
	span.SetAttributes(
		attribute.Int("reconciliation.matched", summary.MatchedCount),
		attribute.Int("reconciliation.missing", summary.MissingCount),
		attribute.Int("reconciliation.extra", summary.ExtraCount),
	)
	if filter.IsZero() && scope.All() {
		s.metrics.SetMatchRate(batchID.String(), summary.MatchRate)
	}
	s.store(ctx, batchID, cacheKey, result)
	return result, nil
}

// Tree builds the count-based hierarchical statistics for the batch.
func (s *Service) Tree(ctx context.Context, batchID id.BatchID, filter id.KeyFilter, scope access.Scope) (*models.Tree, error) {
	ctx, span := s.startSpan(ctx, "reconciliation.Tree", batchID, filter)
	defer span.End()
	defer s.metrics.ObserveReport(reportTree, time.Now())

	cacheKey := s.key(batchID, reportTree, filter, scope)
	var cached models.Tree
	if s.lookup(ctx, cacheKey, &cached) {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return &cached, nil
	}

	inventory, documents, err := s.load(ctx, batchID, filter, scope)
	if err != nil {
		return nil, s.fail(span, err)
	}

	summary, bureaux := models.BuildTree(inventory, documents)
	if bureaux == nil {
		bureaux = map[string]*models.Node{}
	}
	tree := &models.Tree{
		BatchID:       batchID,
		Filters:       filter,
		Approximation: models.ApproximationCountBased,
		Summary:       summary,
		Bureaux:       bureaux,
		GeneratedAt:   requestcontext.Now(ctx),
	}
	s.store(ctx, batchID, cacheKey, tree)
	return tree, nil
}

func (s *Service) load(ctx context.Context, batchID id.BatchID, filter id.KeyFilter, scope access.Scope) ([]id.ClassificationKey, []id.ClassificationKey, error) {
	var inventory, documents []id.ClassificationKey
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keys, err := s.inventory.ListKeys(gctx, batchID, filter, scope)
		if err != nil {
			return wrapReadErr(err, "load inventory")
		}
		inventory = keys
		return nil
	})
	g.Go(func() error {
		keys, err := s.documents.ListStoredKeys(gctx, filter, scope)
		if err != nil {
			return wrapReadErr(err, "load stored documents")
		}
		documents = keys
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return inventory, documents, nil
}

func (s *Service) key(batchID id.BatchID, kind string, filter id.KeyFilter, scope access.Scope) string {
	if s.cache == nil {
		return ""
	}
	return s.cacheKey(batchID, kind, fingerprint(filter, scope))
}

func (s *Service) lookup(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dst)
	switch {
	case err != nil:
		s.metrics.IncrementCacheLookup("error")
		s.logger.WarnContext(ctx, "reconciliation cache read failed", "key", key, "error", err)
		return false
	case hit:
		s.metrics.IncrementCacheLookup("hit")
		return true
	default:
		s.metrics.IncrementCacheLookup("miss")
		return false
	}
}

func (s *Service) store(ctx context.Context, batchID id.BatchID, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, batchID, key, v); err != nil {
		s.logger.WarnContext(ctx, "reconciliation cache write failed", "key", key, "error", err)
	}
}

func (s *Service) startSpan(ctx context.Context, name string, batchID id.BatchID, filter id.KeyFilter) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("batch.id", batchID.String()),
		attribute.String("filter.bureau", filter.Bureau),
		attribute.String("filter.registre_type", filter.RegistreType),
		attribute.Int("filter.year", filter.Year),
	))
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// fingerprint identifies the filter and the visible slice of data.
func fingerprint(filter id.KeyFilter, scope access.Scope) string {
	var b strings.Builder
	b.WriteString(filter.Bureau)
	b.WriteByte('|')
	b.WriteString(filter.RegistreType)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(filter.Year))
	b.WriteByte('|')
	switch owner, ownerOnly := scope.OwnerID(); {
	case scope.All():
		b.WriteString("all")
	case ownerOnly:
		b.WriteString("owner=" + owner.String())
	default:
		bureaux := scope.Bureaux()
		slices.Sort(bureaux)
		b.WriteString("bureaux=" + strings.Join(bureaux, ","))
	}
	return b.String()
}

func wrapReadErr(err error, action string) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "inventory batch not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "failed to "+action+": timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
	}
}
