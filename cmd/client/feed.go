package main

import (
	"context"
	"log/slog"

	"pixel-chat/services"
)

// feed keeps a subscription open. A broken stream is returned as an error
// so that the supervisor subscribes again after its restart delay.
type feed struct {
	synchronizer services.ISynchronizer
	log          *slog.Logger
}

func (f *feed) Run(ctx context.Context) error {
	sub := f.synchronizer.Subscribe(ctx)
	defer sub.Cancel()
	for range sub.Views() {
		// Rendering goes through the sinks
	}
	if err := sub.Err(); err != nil {
		f.log.Warn("Message stream lost", "error", err)
		return err
	}
	return ctx.Err()
}
