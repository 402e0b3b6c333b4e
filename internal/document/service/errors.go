package service

import (
	"context"
	"errors"

	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/platform/sentinel"
)

// wrapDocumentErr translates store sentinels into domain errors. Coded
// errors pass through unchanged.
func wrapDocumentErr(err error, action string) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, "document status changed concurrently")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "virtual path is already assigned to another document")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "failed to "+action+": timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
	}
}

// wrapStorageErr classifies a file storage failure. A taken destination is a
// conflict; anything else is a storage error.
func wrapStorageErr(err error, message string) error {
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "a file already exists at the virtual path")
	}
	return dErrors.Wrap(err, dErrors.CodeStorage, message)
}
