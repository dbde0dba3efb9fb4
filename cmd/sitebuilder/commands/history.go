package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/eventstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int    `short:"n" help:"Number of runs to show" default:"10"`
	Since string `help:"Only runs newer than this duration (e.g. 24h)" default:"720h"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	since, err := time.ParseDuration(h.Since)
	if err != nil {
		return fmt.Errorf("invalid --since: %w", err)
	}
	store, err := openJournal(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	events, err := store.GetRange(ctx, time.Now().Add(-since), time.Now().Add(time.Minute))
	if err != nil {
		return err
	}
	proj := eventstore.NewRunHistoryProjection(store, h.Limit)
	for _, e := range events {
		proj.Apply(e)
	}

	tw := tabwriter.NewWriter(root.stdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tWRITTEN\tSKIPPED\tFAILED")
	for _, r := range proj.History() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			r.RunID, r.StartedAt.Format(time.RFC3339), r.Status,
			r.Written, r.Skipped, r.Failed+r.CreationErrors)
	}
	return tw.Flush()
}
