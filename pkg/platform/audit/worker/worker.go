package worker

import (
	"context"

	audit "ralphbot/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. It exists
// for wiring that produces events on a shared channel (the update
// dispatcher) rather than through the publisher directly.
type Worker struct {
	store audit.Store
	inbox <-chan audit.Event
}

func NewWorker(store audit.Store, inbox <-chan audit.Event) *Worker {
	return &Worker{store: store, inbox: inbox}
}

// Run appends events until the context is cancelled or a store write fails.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
		}
	}
}
