package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "actarchive/pkg/domain"
)

// Action names one document lifecycle step recorded in the history trail.
type Action string

const (
	ActionUploaded      Action = "uploaded"
	ActionReviewStarted Action = "review_started"
	ActionApproved      Action = "approved"
	ActionRejected      Action = "rejected"
	ActionReuploaded    Action = "reuploaded"
	ActionDeleted       Action = "deleted"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionUploaded, ActionReviewStarted, ActionApproved, ActionRejected, ActionReuploaded, ActionDeleted:
		return true
	}
	return false
}

// Event is one immutable history entry. Keep it transport-agnostic so stores
// and sinks can fan out.
type Event struct {
	ID          uuid.UUID
	DocumentID  id.DocumentID
	Action      Action
	PerformedBy id.UserID
	// Details holds the before/after values that make the entry reconstructable
	// (from_status, to_status, virtual_path, error_type, ...).
	Details   map[string]string
	RequestID string
	Timestamp time.Time
}

// Appender accepts history events. Implementations must never mutate or
// reorder previously appended events.
type Appender interface {
	Append(ctx context.Context, event Event) error
}

// Store is an Appender that can also read a document's trail back.
type Store interface {
	Appender
	ListByDocument(ctx context.Context, documentID id.DocumentID) ([]Event, error)
}
