package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"actarchive/internal/access"
	"actarchive/internal/document/models"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/platform/audit"
)

// Get returns a document visible in scope. Documents outside the scope are
// reported as not found.
func (s *Service) Get(ctx context.Context, documentID id.DocumentID, scope access.Scope) (*models.Document, error) {
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		return nil, wrapDocumentErr(err, "load document")
	}
	if !scope.Allows(doc.UploadedBy, doc.Bureau) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return doc, nil
}

// List returns one page of documents visible in scope.
func (s *Service) List(ctx context.Context, filter models.ListFilter, scope access.Scope) (*models.ListResult, error) {
	ctx, span := s.startSpan(ctx, "document.List")
	defer span.End()
	defer s.observe("list", time.Now())

	filter.Normalize()
	docs, total, err := s.documents.List(ctx, filter, scope)
	if err != nil {
		return nil, s.fail(span, wrapDocumentErr(err, "list documents"))
	}
	span.SetAttributes(attribute.Int("documents.total", total))
	return &models.ListResult{Documents: docs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// History returns the document's trail, oldest first.
func (s *Service) History(ctx context.Context, documentID id.DocumentID, scope access.Scope) ([]audit.Event, error) {
	if _, err := s.Get(ctx, documentID, scope); err != nil {
		return nil, err
	}
	if s.historyReader == nil {
		return []audit.Event{}, nil
	}
	events, err := s.historyReader.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document history")
	}
	return events, nil
}
