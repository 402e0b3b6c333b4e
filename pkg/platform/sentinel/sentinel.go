package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the file storage layer
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
//   - ErrNotFound: document, batch or file does not exist
//   - ErrConflict: a unique slot (virtual path, batch id) is already taken
//   - ErrInvalidState: a compare-and-swap on status lost the race
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
