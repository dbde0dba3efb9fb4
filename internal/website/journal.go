package website

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/eventstore"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// SubscribeJournal records the runs of a website in j. Journal failures are
// logged and never affect the run.
func SubscribeJournal(h *Hooks, j *eventstore.Journal, logger *slog.Logger, output string) {
	if logger == nil {
		logger = slog.Default()
	}
	record := func(ctx context.Context, runID string, p eventstore.Payload) {
		if err := j.Record(ctx, runID, p); err != nil {
			logger.Warn("Cannot record run event",
				logfields.RunID(runID),
				slog.String("event_type", p.EventType()),
				logfields.Error(err))
		}
	}

	h.On(HookRunStarted, func(ctx context.Context, ev *HookEvent) {
		record(ctx, ev.RunID, eventstore.RunStarted{Output: output})
	})
	h.On(HookAfterNodeCreated, func(ctx context.Context, ev *HookEvent) {
		if ev.Err == nil {
			return
		}
		record(ctx, ev.RunID, eventstore.NodeCreationFailed{Path: ev.Path, Handler: ev.Handler, Error: ev.Err.Error()})
	})
	h.On(HookAfterNodeWritten, func(ctx context.Context, ev *HookEvent) {
		switch {
		case ev.Err != nil:
			record(ctx, ev.RunID, eventstore.NodeFailed{ALCN: ev.Node.ALCN(), Handler: ev.Handler, Error: ev.Err.Error()})
		case ev.Written:
			record(ctx, ev.RunID, eventstore.NodeWritten{
				ALCN:       ev.Node.ALCN(),
				DestPath:   ev.Node.DestPath(),
				Handler:    ev.Handler,
				DurationMS: ev.Duration.Milliseconds(),
			})
		}
	})
	h.On(HookWebsiteGenerated, func(ctx context.Context, ev *HookEvent) {
		r := ev.Result
		// The run context may already be canceled; the summary is still recorded.
		record(context.WithoutCancel(ctx), ev.RunID, eventstore.WebsiteGenerated{
			Status:         string(r.Status),
			Written:        len(r.Written),
			Skipped:        len(r.Skipped),
			Failed:         len(r.Failed),
			CreationErrors: len(r.CreationErrors),
			DurationMS:     r.Duration.Milliseconds(),
		})
	})
}
