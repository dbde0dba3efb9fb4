package website

import (
	"context"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/node"
)

// HookPoint names a point in a run where listeners are called.
type HookPoint string

const (
	HookRunStarted        HookPoint = "run_started"
	HookBeforeNodeCreated HookPoint = "before_node_created"
	HookAfterNodeCreated  HookPoint = "after_node_created"
	HookBeforeAllWritten  HookPoint = "before_all_written"
	HookBeforeNodeWritten HookPoint = "before_node_written"
	HookAfterNodeWritten  HookPoint = "after_node_written"
	HookAfterAllWritten   HookPoint = "after_all_written"
	HookWebsiteGenerated  HookPoint = "website_generated"
)

// HookEvent carries the data of one dispatch. Fields that do not apply to
// a hook point are zero.
type HookEvent struct {
	Point   HookPoint
	RunID   string
	Path    string
	Handler string
	// Node is the node created or written.
	Node *node.Node
	// Written is set by after_node_written when bytes reached the destination.
	Written  bool
	Duration time.Duration
	Err      error
	// Result is set by after_all_written and website_generated.
	Result *Result
}

// HookFunc is a side-effecting listener.
type HookFunc func(ctx context.Context, ev *HookEvent)

// Hooks is the blackboard run listeners subscribe to. Dispatch is
// synchronous and listeners of one point run in subscription order; the
// write pass dispatches from several workers, one event at a time.
type Hooks struct {
	mu        sync.RWMutex
	listeners map[HookPoint][]HookFunc

	dispatchMu sync.Mutex
}

// NewHooks creates an empty blackboard.
func NewHooks() *Hooks {
	return &Hooks{listeners: map[HookPoint][]HookFunc{}}
}

// On subscribes fn to p.
func (h *Hooks) On(p HookPoint, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[p] = append(h.listeners[p], fn)
}

// Dispatch calls the listeners of ev.Point.
func (h *Hooks) Dispatch(ctx context.Context, ev *HookEvent) {
	h.mu.RLock()
	fns := append([]HookFunc(nil), h.listeners[ev.Point]...)
	h.mu.RUnlock()
	if len(fns) == 0 {
		return
	}
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	for _, fn := range fns {
		fn(ctx, ev)
	}
}
