package service

import (
	"context"
	"log/slog"

	id "actarchive/pkg/domain"
	"actarchive/pkg/platform/audit"
	"actarchive/pkg/requestcontext"
)

// historyEmitter writes the audit log line and forwards the event to the
// publisher. Publishing happens after commit and never fails the operation.
type historyEmitter struct {
	logger    *slog.Logger
	publisher HistoryPublisher
}

func newHistoryEmitter(logger *slog.Logger, publisher HistoryPublisher) *historyEmitter {
	return &historyEmitter{logger: logger, publisher: publisher}
}

func (e *historyEmitter) emit(ctx context.Context, documentID id.DocumentID, action audit.Action, performedBy id.UserID, details map[string]string) {
	args := []any{
		"event", string(action),
		"log_type", "audit",
		"document_id", documentID,
		"performed_by", performedBy.String(),
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	for k, v := range details {
		args = append(args, k, v)
	}
	if e.logger != nil {
		e.logger.InfoContext(ctx, string(action), args...)
	}
	if e.publisher == nil {
		return
	}
	err := e.publisher.Emit(ctx, audit.Event{
		DocumentID:  documentID,
		Action:      action,
		PerformedBy: performedBy,
		Details:     details,
	})
	if err != nil && e.logger != nil {
		e.logger.ErrorContext(ctx, "failed to record history event",
			"document_id", documentID,
			"action", string(action),
			"error", err,
		)
	}
}
