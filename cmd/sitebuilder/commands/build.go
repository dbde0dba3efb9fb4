package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/website"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output string `short:"o" help:"Override the output directory"`
	Drafts bool   `help:"Include pages marked as draft"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Output.Directory = b.Output
	}
	if b.Drafts {
		cfg.Website.IncludeDrafts = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, root.Logger(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.site.Render(ctx)
	if res != nil {
		printResult(root.stdout(), res)
	}
	if err != nil {
		return err
	}
	if res.HasFailures() {
		return errors.RenderError("website generated with failures").
			WithContext("failed", len(res.Failed)).
			WithContext("creation_errors", len(res.CreationErrors)).
			Build()
	}
	return nil
}

func printResult(w io.Writer, res *website.Result) {
	_, _ = fmt.Fprintf(w, "Run %s: %s (%d written, %d skipped, %d failed) in %s\n",
		res.RunID, res.Status, len(res.Written), len(res.Skipped),
		len(res.Failed)+len(res.CreationErrors), res.Duration.Round(time.Millisecond))
	for _, f := range res.Failed {
		_, _ = fmt.Fprintf(w, "  failed %s (%s): %v\n", f.ALCN, f.Handler, f.Err)
	}
	for _, err := range res.CreationErrors {
		_, _ = fmt.Fprintf(w, "  not created: %v\n", err)
	}
}
