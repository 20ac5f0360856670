package worker

import (
	"context"
	"log/slog"

	audit "instahelp/pkg/platform/audit"
)

// Worker drains an event channel into a store. Append failures are logged
// and the worker keeps going: audit persistence never stops the pipeline.
type Worker struct {
	store  audit.Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Sink, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run processes events until the inbox is closed or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil && w.logger != nil {
				w.logger.ErrorContext(ctx, "failed to persist audit event",
					"error", err,
					"action", event.Action,
					"resource_type", event.ResourceType,
					"resource_id", event.ResourceID,
				)
			}
		}
	}
}
