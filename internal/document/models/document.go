package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
)

// DefaultMinRejectMessageLength is the shortest accepted rejection reason,
// counted in characters after trimming.
const DefaultMinRejectMessageLength = 10

// Document is the aggregate root for a scanned civil-registry act.
//
// Invariants:
//   - ClassificationKey fields are non-empty; Year is a 4-digit year
//   - VirtualPath is empty until approval and equals Key.VirtualPath() after
//   - FilePath == VirtualPath once stored
//   - Rejection is non-nil iff Status == rejected_for_update
//   - Status only changes through the Can*/Apply* pairs below
type Document struct {
	ID id.DocumentID `json:"id"`
	id.ClassificationKey
	Status           Status     `json:"status"`
	FilePath         string     `json:"file_path"`
	VirtualPath      string     `json:"virtual_path,omitempty"`
	OriginalFilename string     `json:"original_filename,omitempty"`
	FileSize         int64      `json:"file_size"`
	UploadedBy       id.UserID  `json:"uploaded_by"`
	ReviewedBy       *id.UserID `json:"reviewed_by,omitempty"`
	UploadedAt       time.Time  `json:"uploaded_at"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	StoredAt         *time.Time `json:"stored_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Rejection        *Rejection `json:"rejection,omitempty"`
}

// Rejection is the reviewer's reason for sending a scan back.
type Rejection struct {
	ErrorType  ErrorType `json:"error_type"`
	Message    string    `json:"reason_message"`
	RejectedAt time.Time `json:"rejected_at"`
}

// NewDocument builds a pending document. The ID is assigned by the store.
func NewDocument(key id.ClassificationKey, filePath, originalFilename string, fileSize int64, uploadedBy id.UserID, now time.Time) (*Document, error) {
	if err := key.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "invalid classification")
	}
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "file_path is required")
	}
	if fileSize < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "file_size cannot be negative")
	}
	if uploadedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "uploader is required")
	}
	return &Document{
		ClassificationKey: key,
		Status:            StatusPending,
		FilePath:          filePath,
		OriginalFilename:  strings.TrimSpace(originalFilename),
		FileSize:          fileSize,
		UploadedBy:        uploadedBy,
		UploadedAt:        now,
		UpdatedAt:         now,
	}, nil
}

// NewRejection validates a reviewer's rejection reason.
func NewRejection(errorType ErrorType, message string, minMessageLength int, now time.Time) (Rejection, error) {
	errorType = ErrorType(strings.TrimSpace(string(errorType)))
	if errorType == "" {
		return Rejection{}, dErrors.New(dErrors.CodeValidation, "error_type is required")
	}
	if !errorType.IsValid() {
		return Rejection{}, dErrors.New(dErrors.CodeValidation, "unknown error_type: "+string(errorType))
	}
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) < minMessageLength {
		return Rejection{}, dErrors.New(dErrors.CodeValidation, "reason message is too short")
	}
	return Rejection{ErrorType: errorType, Message: message, RejectedAt: now}, nil
}

// CanStartReview checks the document is waiting for a reviewer.
func (d *Document) CanStartReview() error {
	if !d.Status.CanTransitionTo(StatusReviewing) {
		return invalidTransition(d.Status, "start review")
	}
	return nil
}

// ApplyReviewStart claims the document for reviewer.
// Must only be called after CanStartReview returns nil.
func (d *Document) ApplyReviewStart(reviewer id.UserID, now time.Time) {
	d.Status = StatusReviewing
	d.ReviewedBy = &reviewer
	d.ReviewedAt = &now
	d.UpdatedAt = now
}

// CanApprove checks the document may be archived.
func (d *Document) CanApprove() error {
	if !d.Status.CanTransitionTo(StatusStored) {
		return invalidTransition(d.Status, "approve")
	}
	return nil
}

// ApplyApproval assigns the virtual path and marks the document stored.
// The file must already be at the returned path when the change commits.
func (d *Document) ApplyApproval(reviewer id.UserID, now time.Time) string {
	virtualPath := d.ClassificationKey.VirtualPath()
	d.Status = StatusStored
	d.VirtualPath = virtualPath
	d.FilePath = virtualPath
	d.ReviewedBy = &reviewer
	if d.ReviewedAt == nil {
		d.ReviewedAt = &now
	}
	d.StoredAt = &now
	d.UpdatedAt = now
	return virtualPath
}

// CanReject checks the document is still under the reviewer's control.
func (d *Document) CanReject() error {
	if !d.Status.CanTransitionTo(StatusRejectedForUpdate) {
		return invalidTransition(d.Status, "reject")
	}
	return nil
}

// ApplyRejection sends the document back to its uploader.
func (d *Document) ApplyRejection(reviewer id.UserID, rejection Rejection) {
	d.Status = StatusRejectedForUpdate
	d.Rejection = &rejection
	d.ReviewedBy = &reviewer
	rejectedAt := rejection.RejectedAt
	d.ReviewedAt = &rejectedAt
	d.UpdatedAt = rejectedAt
}

// CanReupload checks a corrected scan is expected.
func (d *Document) CanReupload() error {
	if !d.Status.CanTransitionTo(StatusPending) {
		return invalidTransition(d.Status, "reupload")
	}
	return nil
}

// ApplyReupload points the document at the replacement scan and puts it back
// in the queue. Returns the previous file path so the caller can remove it.
func (d *Document) ApplyReupload(filePath, originalFilename string, fileSize int64, now time.Time) string {
	previous := d.FilePath
	d.Status = StatusPending
	d.FilePath = filePath
	d.OriginalFilename = originalFilename
	d.FileSize = fileSize
	d.Rejection = nil
	d.ReviewedBy = nil
	d.ReviewedAt = nil
	d.UpdatedAt = now
	return previous
}

// Clone returns a deep copy, so stores never share pointers with callers.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.ReviewedBy != nil {
		reviewer := *d.ReviewedBy
		c.ReviewedBy = &reviewer
	}
	if d.ReviewedAt != nil {
		t := *d.ReviewedAt
		c.ReviewedAt = &t
	}
	if d.StoredAt != nil {
		t := *d.StoredAt
		c.StoredAt = &t
	}
	if d.Rejection != nil {
		r := *d.Rejection
		c.Rejection = &r
	}
	return &c
}

func invalidTransition(from Status, action string) error {
	return dErrors.New(dErrors.CodeInvalidState, "cannot "+action+" a document in status "+string(from))
}
