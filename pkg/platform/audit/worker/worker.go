package worker

import (
	"context"
	"log/slog"

	audit "actarchive/pkg/platform/audit"
)

// Worker consumes history events from a channel and appends them to a sink.
// A failed append is logged and the worker moves on, so one bad event never
// stalls the trail behind it.
type Worker struct {
	sink   audit.Appender
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(sink audit.Appender, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run appends events until the inbox is closed. Cancelling ctx stops the loop
// early; events still queued at that point are left in the channel.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Append(context.WithoutCancel(ctx), event); err != nil {
				w.logger.ErrorContext(ctx, "failed to append history event",
					"document_id", event.DocumentID,
					"action", string(event.Action),
					"event_id", event.ID.String(),
					"error", err,
				)
			}
		}
	}
}
