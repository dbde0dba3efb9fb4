package commands

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"git.home.luguber.info/inful/sitebuilder/internal/watch"
	"git.home.luguber.info/inful/sitebuilder/internal/website"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Metrics bool `help:"Serve Prometheus metrics even when disabled in the configuration"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	withMetrics := cfg.Metrics.Enabled || w.Metrics
	a, err := newApp(ctx, cfg, root.Logger(), withMetrics)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := watch.Options{
		Excludes: []string{cfg.Output.Directory},
		Debounce: cfg.WatchDebounce(),
		Interval: cfg.WatchInterval(),
	}
	for _, p := range []string{cfg.Cache.Path, cfg.Journal.Path} {
		if dir := filepath.Dir(p); p != "" && dir != "." {
			opts.Excludes = append(opts.Excludes, dir)
		}
	}
	for _, s := range cfg.Sources {
		opts.Roots = append(opts.Roots, s.Path)
	}
	if withMetrics {
		opts.MetricsListen = cfg.Metrics.Listen
		opts.MetricsPath = cfg.Metrics.Path
		opts.Registry = a.registry
	}

	svc := watch.NewService(a.site, opts, root.Logger())
	out := root.stdout()
	svc.Builder().OnResult(func(res *website.Result, _ error) {
		if res != nil {
			printResult(out, res)
		}
	})
	return svc.Run(ctx)
}
