// Package website wires the components of one site together and runs the
// render orchestrator over them.
package website

import (
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/handler"
	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/pathstyle"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/source"
	"git.home.luguber.info/inful/sitebuilder/internal/tracker"
)

// Defaults used for zero Options fields.
const (
	DefaultRenderWorkers = 4
	DefaultRenderTimeout = 30 * time.Second
	DefaultLang          = "en"
)

// PatternOverride replaces the patterns or the rank of a registered handler.
type PatternOverride struct {
	Patterns []string
	Rank     *int
}

// Options configures a website.
type Options struct {
	Source      source.Source
	Ignore      []string
	Destination Destination

	DefaultLang string
	OutputStyle pathstyle.Style
	// HandlerMeta is the per-handler meta information override table.
	HandlerMeta map[string]metainfo.Info
	Patterns    map[string]PatternOverride

	RenderWorkers int
	RenderTimeout time.Duration
	IncludeDrafts bool
	// FileMode selects how source files are compared between runs
	// (tracker.FileModeMTime or tracker.FileModeContent).
	FileMode string
}

func (o *Options) applyDefaults() {
	if o.DefaultLang == "" {
		o.DefaultLang = DefaultLang
	}
	if len(o.OutputStyle) == 0 {
		o.OutputStyle = pathstyle.Default()
	}
	if o.RenderWorkers <= 0 {
		o.RenderWorkers = DefaultRenderWorkers
	}
	if o.RenderTimeout <= 0 {
		o.RenderTimeout = DefaultRenderTimeout
	}
	if o.FileMode == "" {
		o.FileMode = tracker.FileModeMTime
	}
	if o.Destination == nil {
		o.Destination = NewMemoryDestination()
	}
}

// Website owns the registries, the cache and the tracker of one site. Runs
// of a website are serialized; separate websites share nothing.
type Website struct {
	opts     Options
	logger   *slog.Logger
	recorder metrics.Recorder
	hooks    *Hooks
	now      func() time.Time

	store      *cache.Store
	kinds      *tracker.Kinds
	tracker    *tracker.Tracker
	tags       *content.TagRegistry
	processors *content.Registry
	set        *handler.Set
	handlers   *handler.Registry
	renderer   *handler.Renderer
	env        *site.Env

	runMu   sync.Mutex
	stateMu sync.RWMutex
	state   State
	loaded  bool
}

// New creates a website persisting its cache in store. A nil store keeps
// the cache in memory.
func New(opts Options, store *cache.Store) *Website {
	opts.applyDefaults()
	if store == nil {
		store = cache.New(cache.NewMemoryBackend())
	}
	w := &Website{
		opts:     opts,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		hooks:    NewHooks(),
		now:      time.Now,
		store:    store,
		state:    StateIdle,
	}
	w.kinds = tracker.DefaultKinds(opts.FileMode)
	w.tracker = tracker.New(w.kinds, store)
	w.tags = content.DefaultTags()
	w.processors = content.NewRegistry(w.tags)

	w.env = &site.Env{
		Tracker:     w.tracker,
		Cache:       store,
		DefaultLang: opts.DefaultLang,
		OutputStyle: opts.OutputStyle,
		Now:         func() time.Time { return w.now() },
	}
	w.renderer = handler.NewRenderer(w.processors, w.env)
	w.set = handler.NewSet(w.renderer)
	w.handlers = handler.NewRegistry(w.set)
	w.env.Renderer = w.renderer
	w.env.Indexer = w.set.Directory
	w.applyPatternOverrides()
	w.WithLogger(slog.Default())
	return w
}

func (w *Website) applyPatternOverrides() {
	for name, o := range w.opts.Patterns {
		reg, ok := w.handlers.Get(name)
		if !ok {
			w.logger.Warn("Pattern override for unknown handler", slog.String("handler", name))
			continue
		}
		if o.Patterns != nil {
			reg.Patterns = append([]string(nil), o.Patterns...)
		}
		if o.Rank != nil {
			reg.Rank = *o.Rank
		}
		w.handlers.Register(name, reg)
	}
}

// WithLogger sets the logger of the website and its components.
func (w *Website) WithLogger(logger *slog.Logger) *Website {
	w.logger = logger
	w.env.Logger = logger
	w.tracker.WithLogger(logger)
	w.store.WithLogger(logger)
	return w
}

// WithRecorder sets the metrics recorder.
func (w *Website) WithRecorder(r metrics.Recorder) *Website {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	w.recorder = r
	return w
}

// WithClock replaces the time source.
func (w *Website) WithClock(now func() time.Time) *Website {
	w.now = now
	return w
}

// Hooks returns the blackboard listeners subscribe to.
func (w *Website) Hooks() *Hooks { return w.hooks }

// Handlers returns the path handler registry.
func (w *Website) Handlers() *handler.Registry { return w.handlers }

// Processors returns the content processor registry.
func (w *Website) Processors() *content.Registry { return w.processors }

// Tags returns the tag registry of the tags processor.
func (w *Website) Tags() *content.TagRegistry { return w.tags }

// ItemKinds returns the item kind registry of the tracker.
func (w *Website) ItemKinds() *tracker.Kinds { return w.kinds }

// Tracker returns the item tracker.
func (w *Website) Tracker() *tracker.Tracker { return w.tracker }

// Cache returns the cache store.
func (w *Website) Cache() *cache.Store { return w.store }

// Env returns the environment of the latest run.
func (w *Website) Env() *site.Env { return w.env }

// State returns the current phase.
func (w *Website) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

func (w *Website) setState(s State) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
	w.logger.Debug("Website state", slog.String("state", string(s)))
}
