package watch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

// Options configures a Service.
type Options struct {
	// Roots are the source directories to watch.
	Roots []string
	// Excludes are never watched, typically the output and cache directories.
	Excludes []string
	Debounce time.Duration
	// Interval enables periodic rebuilds when positive.
	Interval time.Duration
	// MetricsListen enables the Prometheus endpoint when not empty.
	MetricsListen string
	MetricsPath   string
	// Registry holds the metrics served on MetricsPath.
	Registry *prometheus.Registry
}

// Service keeps a website up to date until its context is canceled.
type Service struct {
	opts    Options
	builder *Builder
	logger  *slog.Logger
}

// NewService returns a Service rebuilding r.
func NewService(r Renderer, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Service{opts: opts, builder: NewBuilder(r, logger), logger: logger}
}

// Builder returns the build loop of the service.
func (s *Service) Builder() *Builder { return s.builder }

// Run builds once and then rebuilds on every change until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if err := s.opts.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	debouncer, err := NewDebouncer(DebouncerConfig{QuietWindow: s.opts.Debounce}, func(reason string) {
		s.builder.Trigger(reason)
	})
	if err != nil {
		return err
	}
	fw, err := NewFSWatcher(s.opts.Roots, s.opts.Excludes, func(path string) {
		debouncer.Request("change: " + path)
	})
	if err != nil {
		return err
	}
	fw.WithLogger(s.logger)
	defer func() { _ = fw.Close() }()
	if err := fw.Start(); err != nil {
		return err
	}

	if s.opts.Interval > 0 {
		sched, err := NewScheduler(s.logger)
		if err != nil {
			return err
		}
		if _, err := sched.SchedulePeriodicBuild(s.opts.Interval, s.builder.Trigger); err != nil {
			return err
		}
		sched.Start()
		defer func() { _ = sched.Stop() }()
	}

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	run(s.builder.Run)
	run(debouncer.Run)
	run(fw.Run)

	var srv *http.Server
	if s.opts.MetricsListen != "" {
		srv = s.metricsServer()
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("Metrics server failed", logfields.Error(err))
			}
		}()
	}

	s.builder.Trigger("startup")
	<-ctx.Done()

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Metrics server shutdown failed", logfields.Error(err))
		}
		done()
	}
	_ = fw.Close()
	wg.Wait()
	s.logger.Info("Watch stopped")
	return nil
}

func (s *Service) metricsServer() *http.Server {
	reg := s.opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	mux := http.NewServeMux()
	mux.Handle(s.opts.MetricsPath, metrics.HTTPHandler(reg))
	s.logger.Info("Serving metrics", slog.String("listen", s.opts.MetricsListen), logfields.Path(s.opts.MetricsPath))
	return &http.Server{
		Addr:              s.opts.MetricsListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ErrNoRoots is returned by Validate when nothing would be watched.
var ErrNoRoots = ferrors.ValidationError("no directories to watch").Build()

// Validate checks the options before Run.
func (o Options) Validate() error {
	if len(o.Roots) == 0 {
		return ErrNoRoots
	}
	if o.Debounce < 0 {
		return ferrors.ValidationError("debounce must be >= 0").Build()
	}
	return nil
}
