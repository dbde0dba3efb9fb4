package website

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/handler"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
	"git.home.luguber.info/inful/sitebuilder/internal/source"
	"git.home.luguber.info/inful/sitebuilder/internal/tracker"
)

// emptyOutputsKey lists the nodes whose content was nil in the previous run;
// their missing destination does not make them dirty.
const emptyOutputsKey = "website.empty_outputs"

const (
	stageLoad   = "load"
	stageBuild  = "build"
	stageOutput = "output_backing"
	stageDirty  = "dirty_check"
	stageWrite  = "write"
	stageCommit = "commit"
)

// Render runs the website once: it builds the node tree from the sources,
// writes every dirty node and commits the dependency ledger. Node and path
// failures are reported in the result; the returned error is reserved for
// fatal failures and cancellation, in which case nothing is committed.
func (w *Website) Render(ctx context.Context) (*Result, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	res := &Result{RunID: uuid.NewString(), StartTime: w.now()}
	ctx = observability.WithRunID(ctx, res.RunID)
	defer w.setState(StateIdle)

	err := w.render(ctx, res)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		res.Status = StatusCanceled
	default:
		res.Status = StatusFailed
	}
	res.finish(w.now())
	w.recordOutcome(res)
	w.setState(StateDone)
	w.hooks.Dispatch(ctx, &HookEvent{Point: HookWebsiteGenerated, RunID: res.RunID, Result: res, Err: err, Duration: res.Duration})

	observability.InfoContext(ctx, w.logger, "Website generated",
		slog.String("status", string(res.Status)),
		slog.Int("written", len(res.Written)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("creation_errors", len(res.CreationErrors)),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, err
}

func (w *Website) recordOutcome(res *Result) {
	switch res.Status {
	case StatusSuccess:
		w.recorder.IncRunOutcome(metrics.RunOutcomeSuccess)
	case StatusNoop:
		w.recorder.IncRunOutcome(metrics.RunOutcomeNoop)
	case StatusCanceled:
		w.recorder.IncRunOutcome(metrics.RunOutcomeCanceled)
	default:
		w.recorder.IncRunOutcome(metrics.RunOutcomeFailed)
	}
	w.recorder.ObserveRunDuration(res.Duration)
}

func (w *Website) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	ctx = observability.WithStage(ctx, name)
	err := fn(ctx)
	w.recorder.ObserveStageDuration(name, time.Since(start))
	switch {
	case err == nil:
		w.recorder.IncStageResult(name, metrics.ResultSuccess)
	case ctx.Err() != nil:
		w.recorder.IncStageResult(name, metrics.ResultCanceled)
	default:
		w.recorder.IncStageResult(name, metrics.ResultFatal)
	}
	return err
}

func (w *Website) render(ctx context.Context, res *Result) error {
	if err := w.stage(ctx, stageLoad, w.load); err != nil {
		return err
	}
	w.beginRun()
	w.hooks.Dispatch(ctx, &HookEvent{Point: HookRunStarted, RunID: res.RunID})

	w.setState(StateBuilding)
	if err := w.stage(ctx, stageBuild, func(ctx context.Context) error { return w.build(ctx, res) }); err != nil {
		return err
	}
	if err := w.stage(ctx, stageOutput, func(ctx context.Context) error { return w.applyOutputBackings(ctx, res) }); err != nil {
		return err
	}
	w.tracker.TreeBuilt()
	res.Nodes = w.env.Tree.Len()
	w.recorder.SetTreeSize(res.Nodes)
	w.setState(StateBuilt)

	var dirty []*node.Node
	var keptEmpty []string
	if err := w.stage(ctx, stageDirty, func(ctx context.Context) error {
		var err error
		dirty, keptEmpty, err = w.dirtyNodes(ctx, res)
		return err
	}); err != nil {
		return err
	}

	w.setState(StateWriting)
	w.hooks.Dispatch(ctx, &HookEvent{Point: HookBeforeAllWritten, RunID: res.RunID})
	var empty []string
	_ = w.stage(ctx, stageWrite, func(ctx context.Context) error {
		empty = w.write(ctx, res, dirty)
		return ctx.Err()
	})
	sort.Strings(res.Written)
	sort.Strings(res.Skipped)
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].ALCN < res.Failed[j].ALCN })
	if err := ctx.Err(); err != nil {
		observability.WarnContext(ctx, w.logger, "Run canceled, keeping previous cache", logfields.Error(err))
		return err
	}
	w.hooks.Dispatch(ctx, &HookEvent{Point: HookAfterAllWritten, RunID: res.RunID, Result: res})

	empty = append(empty, keptEmpty...)
	return w.stage(ctx, stageCommit, func(ctx context.Context) error { return w.commit(ctx, empty) })
}

// load reads the cache store once per website.
func (w *Website) load(ctx context.Context) error {
	if w.loaded {
		return nil
	}
	if err := w.store.Load(ctx); err != nil {
		return err
	}
	w.loaded = true
	return nil
}

// beginRun replaces the tree and the resolver and resets the per-run state
// of the cache and the tracker.
func (w *Website) beginRun() {
	w.store.BeginRun()
	tree := node.NewTree()
	resolver := metainfo.NewResolver(w.opts.HandlerMeta).WithLogger(w.logger)
	for _, name := range w.handlers.Names() {
		reg, _ := w.handlers.Get(name)
		if d, ok := reg.Handler.(handler.Defaulter); ok {
			resolver.SetDefaults(name, d.DefaultMeta())
		}
	}
	w.env.Tree = tree
	w.env.Resolver = resolver
	w.tracker.BeginRun(tree)
}

type job struct {
	path *source.Path
	reg  handler.Registration
}

// build creates the nodes for all source paths in rank order, then path
// length, then lexical order.
func (w *Website) build(ctx context.Context, res *Result) error {
	if w.opts.Source == nil {
		return errors.ConfigError("website has no source").Fatal().Build()
	}
	catalog := &source.Catalog{Source: w.opts.Source, Ignore: w.opts.Ignore}
	paths, err := catalog.Paths(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.FileSystemError("cannot enumerate source paths").WithCause(err).Fatal().Build()
	}

	var jobs []job
	for _, p := range paths {
		reg, ok := handler.Match(w.handlers, p.Path)
		if !ok {
			observability.DebugContext(ctx, w.logger, "No handler for path", logfields.Path(p.Path))
			continue
		}
		jobs = append(jobs, job{path: p, reg: reg})
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.reg.Rank != b.reg.Rank {
			return a.reg.Rank < b.reg.Rank
		}
		if len(a.path.Path) != len(b.path.Path) {
			return len(a.path.Path) < len(b.path.Path)
		}
		return a.path.Path < b.path.Path
	})
	observability.InfoContext(ctx, w.logger, "Building node tree", logfields.Count(len(jobs)))

	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.createNodes(ctx, res, j); err != nil {
			return err
		}
	}
	if w.env.Tree.Root() == nil {
		return errors.FatalError("no root directory node was created").
			WithContext("handler", w.set.Directory.Name()).
			Build()
	}
	return nil
}

// createNodes runs the handler of one path. Path scoped failures are
// collected; only fatal errors are returned.
func (w *Website) createNodes(ctx context.Context, res *Result, j job) error {
	h := j.reg.Handler
	in := &handler.Input{Path: j.path}
	var embedded metainfo.Info
	if pp, ok := h.(handler.PageParser); ok {
		page, err := pp.ParsePage(j.path)
		if err != nil {
			w.creationFailed(ctx, res, j.path.Path, h.Name(), handler.NewNodeCreationError(j.path.Path, h.Name(), err))
			return nil
		}
		in.Page = page
		embedded = page.Meta
	}
	in.Meta, in.Backings = w.env.Resolver.Resolve(h.Name(), j.path, embedded)
	if in.Meta.Bool(handler.MetaDraft) && !w.opts.IncludeDrafts {
		observability.DebugContext(ctx, w.logger, "Skipping draft", logfields.Path(j.path.Path))
		return nil
	}

	w.hooks.Dispatch(ctx, &HookEvent{Point: HookBeforeNodeCreated, RunID: runID(ctx), Path: j.path.Path, Handler: h.Name()})
	nodes, err := h.CreateNodes(ctx, w.env, in)
	if err != nil {
		if errors.IsFatal(err) {
			return err
		}
		w.creationFailed(ctx, res, j.path.Path, h.Name(), err)
		return nil
	}
	for _, n := range nodes {
		w.hooks.Dispatch(ctx, &HookEvent{Point: HookAfterNodeCreated, RunID: runID(ctx), Path: j.path.Path, Handler: h.Name(), Node: n})
	}
	return nil
}

func (w *Website) creationFailed(ctx context.Context, res *Result, p, h string, err error) {
	observability.ErrorContext(ctx, w.logger, "Node creation failed",
		logfields.Path(p),
		logfields.Handler(h),
		logfields.Error(err))
	res.CreationErrors = append(res.CreationErrors, err)
	w.hooks.Dispatch(ctx, &HookEvent{Point: HookAfterNodeCreated, RunID: runID(ctx), Path: p, Handler: h, Err: err})
}

// applyOutputBackings assigns output backing entries to the nodes they name
// by alcn or destination path. Entries naming no node become virtual nodes,
// created by the handler named in the entry or the virtual handler.
func (w *Website) applyOutputBackings(ctx context.Context, res *Result) error {
	for _, e := range w.env.Resolver.OutputEntries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := w.env.Tree.Node(e.Key)
		if n == nil {
			n = w.env.Tree.NodeByDest(e.Key)
		}
		if n != nil {
			n.MergeMeta(e.Info)
			if e.File != "" {
				w.env.Track(n, tracker.KindFile, e.File)
			}
			continue
		}

		h := handler.Handler(w.set.Virtual)
		if name := e.Info.String(handler.MetaHandler); name != "" {
			if reg, ok := w.handlers.Get(name); ok {
				h = reg.Handler
			} else {
				w.creationFailed(ctx, res, e.Key, name, handler.NewNodeCreationError(e.Key, name,
					errors.ConfigError(fmt.Sprintf("unknown handler %q", name)).Build()))
				continue
			}
		}
		sp := source.NewPath(e.Key, nil)
		info := e.Info.Clone()
		delete(info, handler.MetaHandler)
		in := &handler.Input{Path: sp}
		in.Meta, in.Backings = w.env.Resolver.Resolve(h.Name(), sp, info)
		in.Backings = append(in.Backings, &metainfo.Backing{Source: e.Source, File: e.File})

		w.hooks.Dispatch(ctx, &HookEvent{Point: HookBeforeNodeCreated, RunID: runID(ctx), Path: e.Key, Handler: h.Name()})
		nodes, err := h.CreateNodes(ctx, w.env, in)
		if err != nil {
			if errors.IsFatal(err) {
				return err
			}
			w.creationFailed(ctx, res, e.Key, h.Name(), err)
			continue
		}
		for _, n := range nodes {
			w.hooks.Dispatch(ctx, &HookEvent{Point: HookAfterNodeCreated, RunID: runID(ctx), Path: e.Key, Handler: h.Name(), Node: n})
		}
	}
	return nil
}

// dirtyNodes walks the tree depth first and returns the nodes that have to
// be written: the tracker reports a change or the destination is missing.
// Clean nodes are recorded as skipped. The second result lists the clean
// nodes that had no content in the previous run, so they stay listed.
func (w *Website) dirtyNodes(ctx context.Context, res *Result) ([]*node.Node, []string, error) {
	var prevEmpty []string
	if _, err := w.store.Previous(emptyOutputsKey, &prevEmpty); err != nil {
		observability.DebugContext(ctx, w.logger, "Ignoring undecodable empty output list", logfields.Error(err))
	}
	wasEmpty := make(map[string]bool, len(prevEmpty))
	for _, alcn := range prevEmpty {
		wasEmpty[alcn] = true
	}

	var (
		dirty     []*node.Node
		keptEmpty []string
	)
	for _, n := range w.env.Tree.Nodes() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if !writable(n) {
			continue
		}
		if w.tracker.Changed(n) {
			dirty = append(dirty, n)
			continue
		}
		if wasEmpty[n.ALCN()] {
			keptEmpty = append(keptEmpty, n.ALCN())
		} else {
			exists, err := w.opts.Destination.Exists(ctx, n.DestPath())
			if err != nil || !exists {
				observability.DebugContext(ctx, w.logger, "Destination missing", logfields.ALCN(n.ALCN()), logfields.DestPath(n.DestPath()))
				dirty = append(dirty, n)
				continue
			}
		}
		res.Skipped = append(res.Skipped, n.ALCN())
		w.recorder.IncNodeResult(n.Processor().Name(), metrics.NodeSkipped)
	}
	observability.InfoContext(ctx, w.logger, "Dirty nodes determined",
		logfields.Count(len(dirty)),
		slog.Int("skipped", len(res.Skipped)))
	return dirty, keptEmpty, nil
}

// writable reports whether n produces a destination file.
func writable(n *node.Node) bool {
	if n.NoOutput() || n.IsFragment() || strings.Contains(n.DestPath(), "://") {
		return false
	}
	_, ok := n.Processor().(handler.Renderable)
	return ok
}

// write renders and writes the dirty nodes on a bounded worker pool. It
// returns the alcns of nodes whose content was nil.
func (w *Website) write(ctx context.Context, res *Result, dirty []*node.Node) []string {
	workers := w.opts.RenderWorkers
	if workers > len(dirty) {
		workers = len(dirty)
	}
	w.recorder.SetRenderConcurrency(workers)

	var (
		mu    sync.Mutex
		empty []string
		wg    sync.WaitGroup
	)
	queue := make(chan *node.Node)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range queue {
				written, isEmpty, failure := w.writeNode(ctx, n)
				mu.Lock()
				switch {
				case failure != nil:
					res.Failed = append(res.Failed, *failure)
				case isEmpty:
					empty = append(empty, n.ALCN())
					res.Skipped = append(res.Skipped, n.ALCN())
				case written:
					res.Written = append(res.Written, n.ALCN())
				}
				mu.Unlock()
			}
		}()
	}
	for _, n := range dirty {
		if ctx.Err() != nil {
			break
		}
		queue <- n
	}
	close(queue)
	wg.Wait()
	return empty
}

type contentResult struct {
	data []byte
	err  error
}

// writeNode renders one node within the render timeout and writes it.
func (w *Website) writeNode(ctx context.Context, n *node.Node) (written, empty bool, failure *NodeFailure) {
	name := n.Processor().Name()
	start := time.Now()
	w.hooks.Dispatch(ctx, &HookEvent{Point: HookBeforeNodeWritten, RunID: runID(ctx), Node: n, Handler: name})

	w.tracker.StartRender(n)
	data, err := w.content(ctx, n)
	if err == nil && data != nil {
		err = w.opts.Destination.Write(ctx, n.DestPath(), data)
	}
	elapsed := time.Since(start)
	w.recorder.ObserveNodeRenderDuration(name, elapsed)

	if err != nil {
		w.tracker.Failed(n)
		w.recorder.IncNodeResult(name, metrics.NodeFailed)
		observability.ErrorContext(ctx, w.logger, "Node failed",
			logfields.ALCN(n.ALCN()),
			logfields.Handler(name),
			logfields.Error(err))
		w.hooks.Dispatch(ctx, &HookEvent{Point: HookAfterNodeWritten, RunID: runID(ctx), Node: n, Handler: name, Duration: elapsed, Err: err})
		return false, false, &NodeFailure{ALCN: n.ALCN(), Handler: name, Err: err}
	}

	w.tracker.Rendered(n)
	if data == nil {
		w.recorder.IncNodeResult(name, metrics.NodeSkipped)
		w.hooks.Dispatch(ctx, &HookEvent{Point: HookAfterNodeWritten, RunID: runID(ctx), Node: n, Handler: name, Duration: elapsed})
		return false, true, nil
	}
	w.recorder.IncNodeResult(name, metrics.NodeWritten)
	observability.DebugContext(ctx, w.logger, "Node written",
		logfields.ALCN(n.ALCN()),
		logfields.DestPath(n.DestPath()),
		logfields.DurationMS(float64(elapsed.Milliseconds())))
	w.hooks.Dispatch(ctx, &HookEvent{Point: HookAfterNodeWritten, RunID: runID(ctx), Node: n, Handler: name, Duration: elapsed, Written: true})
	return true, false, nil
}

// content asks the owning handler for the node content. A handler that does
// not return within the render timeout fails the node; its goroutine is
// abandoned. Canceling ctx abandons it the same way but is not reported as a
// timeout.
func (w *Website) content(ctx context.Context, n *node.Node) ([]byte, error) {
	r, ok := n.Processor().(handler.Renderable)
	if !ok {
		return nil, nil
	}
	renderCtx, cancel := context.WithTimeout(ctx, w.opts.RenderTimeout)
	defer cancel()

	done := make(chan contentResult, 1)
	go func() {
		data, err := r.Content(renderCtx, w.env, n)
		done <- contentResult{data: data, err: err}
	}()
	select {
	case out := <-done:
		return out.data, out.err
	case <-renderCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, errors.RenderError("render canceled").
				WithCause(err).
				WithContext("alcn", n.ALCN()).
				Build()
		}
		return nil, errors.RenderError("render timed out").
			WithCause(renderCtx.Err()).
			WithContext("alcn", n.ALCN()).
			WithContext("timeout", w.opts.RenderTimeout.String()).
			Build()
	}
}

// commit persists the ledger and the empty output list.
func (w *Website) commit(ctx context.Context, empty []string) error {
	if err := w.tracker.Commit(); err != nil {
		return err
	}
	sort.Strings(empty)
	if err := w.store.Put(cache.Standard, emptyOutputsKey, empty); err != nil {
		return err
	}
	if err := w.store.Commit(ctx); err != nil {
		return err
	}
	observability.DebugContext(ctx, w.logger, "Cache committed")
	return nil
}

func runID(ctx context.Context) string {
	return observability.GetContext(ctx).RunID
}
