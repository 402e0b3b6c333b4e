package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"actarchive/internal/document/models"
	"actarchive/internal/document/storage"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/platform/audit"
	"actarchive/pkg/platform/sentinel"
	"actarchive/pkg/requestcontext"
)

// Upload registers a scanned act as pending.
func (s *Service) Upload(ctx context.Context, req *models.UploadRequest, uploaderID id.UserID) (*models.Document, error) {
	ctx, span := s.startSpan(ctx, "document.Upload")
	defer span.End()
	defer s.observe("upload", time.Now())

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, s.fail(span, err)
	}
	key, err := req.Key()
	if err != nil {
		return nil, s.fail(span, err)
	}
	doc, err := models.NewDocument(key, req.FilePath, req.OriginalFilename, req.FileSize, uploaderID, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, err.Error()))
		}
		return nil, s.fail(span, err)
	}

	err = s.tx.RunInTx(ctx, func(store Store) error {
		return store.Create(ctx, doc)
	})
	if err != nil {
		return nil, s.fail(span, wrapDocumentErr(err, "create document"))
	}
	span.SetAttributes(attribute.Int64("document.id", int64(doc.ID)))

	s.history.emit(ctx, doc.ID, audit.ActionUploaded, uploaderID, map[string]string{
		"to_status":   string(doc.Status),
		"file_path":   doc.FilePath,
		"bureau":      doc.Bureau,
		"registre":    doc.RegistreType + "/" + strconv.Itoa(doc.Year) + "/" + doc.RegistreNumber,
		"acte_number": doc.ActeNumber,
	})
	s.incrementTransition(audit.ActionUploaded)
	return doc, nil
}

// StartReview claims a pending document for reviewerID. Of two concurrent
// callers exactly one succeeds; the other gets an invalid_state error.
func (s *Service) StartReview(ctx context.Context, documentID id.DocumentID, reviewerID id.UserID) (*models.Document, error) {
	ctx, span := s.startSpan(ctx, "document.StartReview", attribute.Int64("document.id", int64(documentID)))
	defer span.End()
	defer s.observe("start_review", time.Now())

	now := requestcontext.Now(ctx)
	doc, from, err := s.transition(ctx, documentID, "start review", func(d *models.Document) error {
		if err := d.CanStartReview(); err != nil {
			return err
		}
		d.ApplyReviewStart(reviewerID, now)
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.history.emit(ctx, doc.ID, audit.ActionReviewStarted, reviewerID, map[string]string{
		"from_status": string(from),
		"to_status":   string(doc.Status),
	})
	s.incrementTransition(audit.ActionReviewStarted)
	return doc, nil
}

// Approve archives the document at its virtual path. The file is staged and
// promoted before the status commits; if the commit fails the promoted copy
// is removed and the source remains.
func (s *Service) Approve(ctx context.Context, documentID id.DocumentID, reviewerID id.UserID) (*models.Document, error) {
	ctx, span := s.startSpan(ctx, "document.Approve", attribute.Int64("document.id", int64(documentID)))
	defer span.End()
	defer s.observe("approve", time.Now())

	now := requestcontext.Now(ctx)
	var (
		pending    storage.PendingMove
		sourcePath string
	)
	doc, from, err := s.transition(ctx, documentID, "approve document", func(d *models.Document) error {
		if err := d.CanApprove(); err != nil {
			return err
		}
		sourcePath = d.FilePath
		move, err := s.files.Prepare(ctx, d.FilePath, d.ClassificationKey.VirtualPath())
		if err != nil {
			s.incrementStorageFailure("prepare")
			return wrapStorageErr(err, "failed to move file to its virtual path")
		}
		pending = move
		d.ApplyApproval(reviewerID, now)
		return nil
	})
	if err != nil {
		if pending != nil {
			if abortErr := pending.Abort(context.WithoutCancel(ctx)); abortErr != nil {
				s.incrementStorageFailure("abort")
				s.logger.ErrorContext(ctx, "failed to remove promoted file after aborted approval",
					"document_id", documentID,
					"request_id", requestcontext.RequestID(ctx),
					"error", abortErr,
				)
			}
		}
		return nil, s.fail(span, err)
	}

	if err := pending.Commit(context.WithoutCancel(ctx)); err != nil {
		s.incrementStorageFailure("finalize")
		s.logger.WarnContext(ctx, "approved document left its source file behind",
			"document_id", doc.ID,
			"source_path", sourcePath,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}

	s.history.emit(ctx, doc.ID, audit.ActionApproved, reviewerID, map[string]string{
		"from_status":   string(from),
		"to_status":     string(doc.Status),
		"previous_path": sourcePath,
		"virtual_path":  doc.VirtualPath,
	})
	s.incrementTransition(audit.ActionApproved)
	return doc, nil
}

// Reject sends the document back to its uploader with a reason.
func (s *Service) Reject(ctx context.Context, documentID id.DocumentID, reviewerID id.UserID, errorType models.ErrorType, message string) (*models.Document, error) {
	ctx, span := s.startSpan(ctx, "document.Reject", attribute.Int64("document.id", int64(documentID)))
	defer span.End()
	defer s.observe("reject", time.Now())

	now := requestcontext.Now(ctx)
	rejection, err := models.NewRejection(errorType, message, s.minRejectMessage, now)
	if err != nil {
		return nil, s.fail(span, err)
	}

	doc, from, err := s.transition(ctx, documentID, "reject document", func(d *models.Document) error {
		if err := d.CanReject(); err != nil {
			return err
		}
		d.ApplyRejection(reviewerID, rejection)
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.history.emit(ctx, doc.ID, audit.ActionRejected, reviewerID, map[string]string{
		"from_status": string(from),
		"to_status":   string(doc.Status),
		"error_type":  string(rejection.ErrorType),
		"message":     rejection.Message,
	})
	s.incrementTransition(audit.ActionRejected)
	return doc, nil
}

// Reupload replaces the scan of a rejected document and puts it back in the
// queue. The old file is removed after commit; failing to remove it is
// logged only, since the new file is already in place.
func (s *Service) Reupload(ctx context.Context, documentID id.DocumentID, req *models.ReuploadRequest, actorID id.UserID) (*models.Document, error) {
	ctx, span := s.startSpan(ctx, "document.Reupload", attribute.Int64("document.id", int64(documentID)))
	defer span.End()
	defer s.observe("reupload", time.Now())

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, s.fail(span, err)
	}

	now := requestcontext.Now(ctx)
	var previousPath string
	doc, from, err := s.transition(ctx, documentID, "reupload document", func(d *models.Document) error {
		if err := d.CanReupload(); err != nil {
			return err
		}
		previousPath = d.ApplyReupload(req.FilePath, req.OriginalFilename, req.FileSize, now)
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	if previousPath != "" && previousPath != doc.FilePath {
		if err := s.files.DeleteFile(context.WithoutCancel(ctx), previousPath); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.incrementStorageFailure("delete")
			s.logger.WarnContext(ctx, "failed to delete replaced scan",
				"document_id", doc.ID,
				"path", previousPath,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}

	s.history.emit(ctx, doc.ID, audit.ActionReuploaded, actorID, map[string]string{
		"from_status":   string(from),
		"to_status":     string(doc.Status),
		"previous_path": previousPath,
		"file_path":     doc.FilePath,
	})
	s.incrementTransition(audit.ActionReuploaded)
	return doc, nil
}

// Delete hard-deletes a document and its file. The record goes first and
// the file is removed after commit, so a failed commit never leaves a
// record without its scan. A file that cannot be removed is logged and left
// behind as an orphan. Callers are responsible for restricting this to
// administrators.
func (s *Service) Delete(ctx context.Context, documentID id.DocumentID, adminID id.UserID) error {
	ctx, span := s.startSpan(ctx, "document.Delete", attribute.Int64("document.id", int64(documentID)))
	defer span.End()
	defer s.observe("delete", time.Now())

	var deleted *models.Document
	err := s.tx.RunInTx(withTxDocument(ctx, documentID), func(store Store) error {
		doc, err := store.FindByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		if err := store.Delete(ctx, documentID); err != nil {
			return err
		}
		deleted = doc
		return nil
	})
	if err != nil {
		return s.fail(span, wrapDocumentErr(err, "delete document"))
	}

	if err := s.files.DeleteFile(context.WithoutCancel(ctx), deleted.FilePath); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "deleted document had no file on storage",
				"document_id", documentID,
				"path", deleted.FilePath,
			)
		} else {
			s.incrementStorageFailure("delete")
			s.logger.ErrorContext(ctx, "deleted document left its file behind",
				"document_id", documentID,
				"path", deleted.FilePath,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}

	s.history.emit(ctx, documentID, audit.ActionDeleted, adminID, map[string]string{
		"from_status": string(deleted.Status),
		"file_path":   deleted.FilePath,
	})
	s.incrementTransition(audit.ActionDeleted)
	return nil
}

// transition loads the document under lock, lets apply mutate it and writes
// it back only if its status is still the one it was loaded with.
func (s *Service) transition(ctx context.Context, documentID id.DocumentID, action string, apply func(d *models.Document) error) (*models.Document, models.Status, error) {
	var (
		doc  *models.Document
		from models.Status
	)
	err := s.tx.RunInTx(withTxDocument(ctx, documentID), func(store Store) error {
		d, err := store.FindByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		from = d.Status
		if err := apply(d); err != nil {
			return err
		}
		if err := store.UpdateIfStatus(ctx, d, from); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				s.incrementCASConflict()
			}
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, "", wrapDocumentErr(err, action)
	}
	return doc, from, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
}

func (s *Service) incrementTransition(action audit.Action) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(action))
	}
}

func (s *Service) incrementStorageFailure(phase string) {
	if s.metrics != nil {
		s.metrics.IncrementStorageFailure(phase)
	}
}

func (s *Service) incrementCASConflict() {
	if s.metrics != nil {
		s.metrics.IncrementCASConflict()
	}
}
