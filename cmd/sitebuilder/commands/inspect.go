package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/tracker"
)

// InspectCmd implements the 'inspect' command.
type InspectCmd struct {
	Node string `arg:"" optional:"" help:"Show the recorded items of this node (alcn)"`
	JSON bool   `help:"Print the ledger as JSON"`
}

func (i *InspectCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	store, err := openCache(cfg, root.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Load(context.Background()); err != nil {
		return err
	}
	var ledger tracker.Ledger
	found, err := store.Previous(tracker.LedgerKey, &ledger)
	if err != nil {
		return err
	}
	if !found {
		return errors.NotFoundError("no previous run recorded").
			WithContext("cache", cfg.Cache.Path).
			Build()
	}

	out := root.stdout()
	if i.Node != "" {
		entry, ok := ledger[i.Node]
		if !ok {
			return errors.NotFoundError("node not in ledger").WithContext("alcn", i.Node).Build()
		}
		ledger = tracker.Ledger{i.Node: entry}
	}
	if i.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ledger)
	}

	alcns := make([]string, 0, len(ledger))
	for alcn := range ledger {
		alcns = append(alcns, alcn)
	}
	sort.Strings(alcns)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if i.Node == "" {
		_, _ = fmt.Fprintln(tw, "NODE\tCREATION\tRENDER")
		for _, alcn := range alcns {
			e := ledger[alcn]
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\n", alcn, len(e.Creation), len(e.Render))
		}
		return tw.Flush()
	}
	e := ledger[i.Node]
	_, _ = fmt.Fprintln(tw, "PHASE\tKIND\tKEY")
	for _, r := range e.Creation {
		_, _ = fmt.Fprintf(tw, "creation\t%s\t%s\n", r.Kind, r.Key)
	}
	for _, r := range e.Render {
		_, _ = fmt.Fprintf(tw, "render\t%s\t%s\n", r.Kind, r.Key)
	}
	return tw.Flush()
}
