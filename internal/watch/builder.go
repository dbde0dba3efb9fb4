package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/website"
)

// Renderer is the part of a website a Builder drives.
type Renderer interface {
	Render(ctx context.Context) (*website.Result, error)
}

// Builder serializes renders. Trigger never blocks; pending requests
// collapse into a single follow-up build.
type Builder struct {
	renderer Renderer
	logger   *slog.Logger
	requests chan string
	running  atomic.Bool

	mu       sync.Mutex
	last     *website.Result
	onResult func(*website.Result, error)
}

// NewBuilder returns a Builder for r.
func NewBuilder(r Renderer, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{renderer: r, logger: logger, requests: make(chan string, 1)}
}

// OnResult registers fn to be called after every build.
func (b *Builder) OnResult(fn func(*website.Result, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onResult = fn
}

// Trigger requests a build. It returns false when one was already pending.
func (b *Builder) Trigger(reason string) bool {
	select {
	case b.requests <- reason:
		return true
	default:
		b.logger.Debug("Build already pending", slog.String("reason", reason))
		return false
	}
}

// Running reports whether a build is in progress.
func (b *Builder) Running() bool { return b.running.Load() }

// Last returns the result of the most recent build.
func (b *Builder) Last() *website.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Run processes build requests until ctx is done.
func (b *Builder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-b.requests:
			b.build(ctx, reason)
		}
	}
}

func (b *Builder) build(ctx context.Context, reason string) {
	b.running.Store(true)
	defer b.running.Store(false)

	b.logger.Info("Rebuilding website", slog.String("reason", reason))
	res, err := b.renderer.Render(ctx)
	switch {
	case err != nil:
		b.logger.Error("Build failed", logfields.Error(err))
	case res.HasFailures():
		b.logger.Warn("Build finished with failures",
			logfields.RunID(res.RunID),
			slog.Int("failed", len(res.Failed)),
			slog.Int("creation_errors", len(res.CreationErrors)))
	default:
		b.logger.Info("Build finished",
			logfields.RunID(res.RunID),
			slog.String("status", string(res.Status)),
			slog.Int("written", len(res.Written)))
	}

	b.mu.Lock()
	if res != nil {
		b.last = res
	}
	fn := b.onResult
	b.mu.Unlock()
	if fn != nil {
		fn(res, err)
	}
}
