package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/eventstore"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/notify"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
	"git.home.luguber.info/inful/sitebuilder/internal/source"
	"git.home.luguber.info/inful/sitebuilder/internal/website"
)

// app is a website assembled from a configuration, together with the
// optional journal and notifier attached to it.
type app struct {
	cfg      *config.Config
	site     *website.Website
	store    *cache.Store
	journal  eventstore.Store
	nats     *notify.NATSPublisher
	registry *prometheus.Registry
	logger   *slog.Logger
}

// websiteOptions maps the configuration onto website options.
func websiteOptions(cfg *config.Config) website.Options {
	sources := make([]source.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		fs := source.NewFileSystem(s.Path, s.Mount)
		fs.Glob = s.Glob
		sources = append(sources, fs)
	}
	var src source.Source = &source.Stacked{Sources: sources}
	if len(sources) == 1 {
		src = sources[0]
	}

	handlerMeta := make(map[string]metainfo.Info, len(cfg.Handlers))
	for name, m := range cfg.Handlers {
		handlerMeta[name] = metainfo.Info(m)
	}
	patterns := make(map[string]website.PatternOverride, len(cfg.Patterns))
	for name, p := range cfg.Patterns {
		patterns[name] = website.PatternOverride{Patterns: p.Patterns, Rank: p.Rank}
	}

	return website.Options{
		Source:        src,
		Ignore:        cfg.Ignore,
		Destination:   website.NewFileSystemDestination(cfg.Output.Directory),
		DefaultLang:   cfg.Website.DefaultLang,
		OutputStyle:   cfg.Website.OutputPathStyle,
		HandlerMeta:   handlerMeta,
		Patterns:      patterns,
		RenderWorkers: cfg.Render.Workers,
		RenderTimeout: cfg.RenderTimeout(),
		IncludeDrafts: cfg.Website.IncludeDrafts,
		FileMode:      cfg.Render.FileMode,
	}
}

func openCache(cfg *config.Config, logger *slog.Logger) (*cache.Store, error) {
	if dir := filepath.Dir(cfg.Cache.Path); cfg.Cache.Path != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.FileSystemError("cannot create cache directory").
				WithCause(err).
				WithContext("path", dir).
				Build()
		}
	}
	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	return store.WithLogger(logger), nil
}

func openJournal(path string) (eventstore.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.FileSystemError("cannot create journal directory").
				WithCause(err).
				WithContext("path", dir).
				Build()
		}
	}
	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newApp assembles the website. withMetrics registers a Prometheus recorder.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, withMetrics bool) (*app, error) {
	store, err := openCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: store, logger: logger}
	a.site = website.New(websiteOptions(cfg), store).WithLogger(logger)

	if withMetrics {
		a.registry = prometheus.NewRegistry()
		a.site.WithRecorder(metrics.NewPrometheusRecorder(a.registry))
	}

	if cfg.Journal.Enabled {
		j, err := openJournal(cfg.Journal.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = j
		website.SubscribeJournal(a.site.Hooks(), eventstore.NewJournal(j), logger, cfg.Output.Directory)
	}

	if cfg.Notify.Enabled {
		pub, err := notify.NewNATSPublisher(ctx, notify.Config{
			URL:       cfg.Notify.URL,
			Subject:   cfg.Notify.Subject,
			JetStream: cfg.Notify.JetStream,
			KVBucket:  cfg.Notify.KVBucket,
			Site:      cfg.Website.Name,
		})
		if err != nil {
			// Notifications are best effort; the build still runs.
			logger.Warn("Notifications disabled", logfields.Error(err))
		} else {
			a.nats = pub
			policy := retry.NewPolicy(retry.BackoffMode(cfg.Notify.Backoff), 0, 0, cfg.Notify.MaxRetries)
			notify.NewNotifier(pub, cfg.Notify.Subject, cfg.Website.Name).
				WithLogger(logger).
				WithRetry(policy).
				Subscribe(a.site.Hooks())
		}
	}
	return a, nil
}

// Close releases the stores and connections of the app.
func (a *app) Close() {
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			a.logger.Warn("Failed to close NATS connection", logfields.Error(err))
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("Failed to close journal", logfields.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close cache", logfields.Error(err))
		}
	}
}
