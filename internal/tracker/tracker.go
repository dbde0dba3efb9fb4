// Package tracker implements the dependency ledger behind incremental
// builds.
//
// While nodes are created and rendered, components record the items (files,
// other nodes' meta information, query results, ...) they consumed. On the
// next run a node is dirty when any item recorded for it changed. The ledger
// is advisory: whenever the answer is uncertain the node is dirty.
package tracker

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
)

// LedgerKey is the standard cache key holding the committed ledger.
const LedgerKey = "item_tracker"

// ItemID identifies an item.
type ItemID struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

func (id ItemID) String() string { return id.Kind + ":" + id.Key }

// Record is an item with the snapshot taken in the run that recorded it.
type Record struct {
	ItemID
	Snapshot string `json:"snapshot"`
}

// Entry is the ledger entry of one node. Creation items were consumed while
// the node was created, render items while its content was produced.
type Entry struct {
	Creation []Record `json:"creation,omitempty"`
	Render   []Record `json:"render,omitempty"`
}

// Ledger maps alcns to their entries.
type Ledger map[string]Entry

type phase int

const (
	phaseCreation phase = iota
	phaseRender
)

type itemSet struct {
	order []ItemID
	seen  map[ItemID]bool
}

func (s *itemSet) add(id ItemID) bool {
	if s.seen == nil {
		s.seen = map[ItemID]bool{}
	}
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	s.order = append(s.order, id)
	return true
}

type pending struct {
	creation itemSet
	render   itemSet
}

type snapshot struct {
	value string
	err   error
}

// Tracker records items per node and answers whether nodes changed.
type Tracker struct {
	kinds  *Kinds
	store  *cache.Store
	logger *slog.Logger

	mu        sync.Mutex
	tree      *node.Tree
	phase     phase
	previous  Ledger
	current   map[string]*pending
	rendered  map[string]bool
	failed    map[string]bool
	snapshots map[ItemID]snapshot

	changeMu    sync.Mutex
	changed     map[string]bool
	inProgress  map[string]int
	provisional []string
}

// New creates a tracker persisting its ledger in store.
func New(kinds *Kinds, store *cache.Store) *Tracker {
	return &Tracker{
		kinds:  kinds,
		store:  store,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (t *Tracker) WithLogger(logger *slog.Logger) *Tracker {
	t.logger = logger
	return t
}

// Kinds returns the registry of item kinds.
func (t *Tracker) Kinds() *Kinds { return t.kinds }

// BeginRun resets all per-run state and loads the previous ledger. A missing
// or undecodable ledger leaves the previous ledger empty, so every node is
// dirty.
func (t *Tracker) BeginRun(tree *node.Tree) {
	t.mu.Lock()
	t.tree = tree
	t.phase = phaseCreation
	t.previous = nil
	t.current = map[string]*pending{}
	t.rendered = map[string]bool{}
	t.failed = map[string]bool{}
	t.snapshots = map[ItemID]snapshot{}
	t.mu.Unlock()

	t.changeMu.Lock()
	t.changed = map[string]bool{}
	t.inProgress = map[string]int{}
	t.provisional = nil
	t.changeMu.Unlock()

	if t.store == nil {
		return
	}
	var prev Ledger
	ok, err := t.store.Previous(LedgerKey, &prev)
	switch {
	case err != nil:
		t.logger.Warn("Ignoring undecodable dependency ledger", logfields.Error(err))
	case ok:
		t.mu.Lock()
		t.previous = prev
		t.mu.Unlock()
	}
}

// Tree returns the tree of the current run.
func (t *Tracker) Tree() *node.Tree {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree
}

// TreeBuilt ends the creation phase. Items added from now on are render
// items, and creation items recorded so far are snapshotted against the
// complete tree.
func (t *Tracker) TreeBuilt() {
	t.mu.Lock()
	t.phase = phaseRender
	var ids []ItemID
	for _, p := range t.current {
		ids = append(ids, p.creation.order...)
	}
	t.mu.Unlock()
	for _, id := range ids {
		t.snapshot(id)
	}
}

// Add records that n consumed the item identified by kind and ref. Repeated
// calls for the same item are cheap no-ops; each item is snapshotted once
// per run.
func (t *Tracker) Add(n *node.Node, kind, ref string) error {
	k, ok := t.kinds.Get(kind)
	if !ok {
		return errors.InternalError(fmt.Sprintf("unknown item kind %q", kind)).
			WithContext("alcn", n.ALCN()).
			Build()
	}
	key, err := k.Identify(t, n, ref)
	if err != nil {
		return err
	}
	id := ItemID{Kind: kind, Key: key}

	t.mu.Lock()
	p := t.current[n.ALCN()]
	if p == nil {
		p = &pending{}
		t.current[n.ALCN()] = p
	}
	var added bool
	render := t.phase == phaseRender
	if render {
		added = p.render.add(id)
	} else {
		added = p.creation.add(id)
	}
	t.mu.Unlock()

	if added {
		t.logger.Debug("Tracked item",
			logfields.ALCN(n.ALCN()),
			logfields.ItemKind(kind),
			logfields.ItemID(key))
	}
	if added && render {
		t.snapshot(id)
	}
	return nil
}

// StartRender discards render items recorded for n earlier in this run.
func (t *Tracker) StartRender(n *node.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p := t.current[n.ALCN()]; p != nil {
		p.render = itemSet{}
	}
}

// Rendered marks n as rendered successfully this run.
func (t *Tracker) Rendered(n *node.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rendered[n.ALCN()] = true
	delete(t.failed, n.ALCN())
}

// Failed marks n as failed; it is left out of the committed ledger so the
// next run retries it.
func (t *Tracker) Failed(n *node.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed[n.ALCN()] = true
	delete(t.rendered, n.ALCN())
}

func (t *Tracker) snapshot(id ItemID) (string, error) {
	t.mu.Lock()
	if s, ok := t.snapshots[id]; ok {
		t.mu.Unlock()
		return s.value, s.err
	}
	t.mu.Unlock()

	var s snapshot
	if k, ok := t.kinds.Get(id.Kind); ok {
		s.value, s.err = k.Snapshot(t, id.Key)
	} else {
		s.err = fmt.Errorf("unknown item kind %q", id.Kind)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if prior, ok := t.snapshots[id]; ok {
		return prior.value, prior.err
	}
	t.snapshots[id] = s
	return s.value, s.err
}

// ChangeContext is handed to kinds deciding changes themselves.
type ChangeContext struct {
	tracker *Tracker
	low     int
}

// Tracker returns the tracker the check runs on.
func (c *ChangeContext) Tracker() *Tracker { return c.tracker }

// NodeChanged reports whether another node changed. A node whose check is
// already in progress counts as unchanged for now; answers depending on such
// a node are settled once the outermost node of the cycle is decided.
func (c *ChangeContext) NodeChanged(n *node.Node) bool {
	changed, low := c.tracker.changedLocked(n)
	if low < c.low {
		c.low = low
	}
	return changed
}

// Changed reports whether anything n consumed in the previous run changed.
// Nodes unknown to the previous ledger are changed. The answer is memoized
// for the rest of the run.
func (t *Tracker) Changed(n *node.Node) bool {
	t.changeMu.Lock()
	defer t.changeMu.Unlock()
	changed, _ := t.changedLocked(n)
	return changed
}

// changedLocked also returns the lowest check depth the answer relied on.
// An unchanged answer relying on a node still in progress is provisional:
// it is not memoized until that node is decided, since a change found later
// in the cycle reaches every node of it.
func (t *Tracker) changedLocked(n *node.Node) (bool, int) {
	alcn := n.ALCN()
	if v, ok := t.changed[alcn]; ok {
		return v, math.MaxInt
	}
	if depth, ok := t.inProgress[alcn]; ok {
		return false, depth
	}
	depth := len(t.inProgress)
	mark := len(t.provisional)
	t.inProgress[alcn] = depth
	result, low := t.computeChanged(n)
	delete(t.inProgress, alcn)

	switch {
	case result:
		t.changed[alcn] = true
	case low < depth:
		t.provisional = append(t.provisional, alcn)
		return false, low
	default:
		t.changed[alcn] = false
	}
	for _, p := range t.provisional[mark:] {
		t.changed[p] = result
		if result {
			t.logger.Debug("Node changed", logfields.ALCN(p))
		}
	}
	t.provisional = t.provisional[:mark]
	if result {
		t.logger.Debug("Node changed", logfields.ALCN(alcn))
	}
	return result, math.MaxInt
}

func (t *Tracker) computeChanged(n *node.Node) (bool, int) {
	t.mu.Lock()
	entry, ok := t.previous[n.ALCN()]
	t.mu.Unlock()
	if !ok {
		return true, math.MaxInt
	}
	ctx := &ChangeContext{tracker: t, low: math.MaxInt}
	for _, records := range [][]Record{entry.Creation, entry.Render} {
		for _, r := range records {
			if t.itemChanged(ctx, n, r) {
				return true, ctx.low
			}
		}
	}
	return false, ctx.low
}

func (t *Tracker) itemChanged(ctx *ChangeContext, n *node.Node, r Record) bool {
	k, ok := t.kinds.Get(r.Kind)
	if !ok {
		t.logger.Debug("Unknown item kind in ledger", logfields.ALCN(n.ALCN()), logfields.ItemKind(r.Kind))
		return true
	}
	if d, ok := k.(ChangeDetector); ok {
		changed, err := d.ItemChanged(ctx, r.Key, r.Snapshot)
		return err != nil || changed
	}
	current, err := t.snapshot(r.ItemID)
	if err != nil {
		t.logger.Debug("Item snapshot failed",
			logfields.ALCN(n.ALCN()),
			logfields.ItemKind(r.Kind),
			logfields.ItemID(r.Key),
			logfields.Error(err))
		return true
	}
	if current != r.Snapshot {
		t.logger.Debug("Item changed",
			logfields.ALCN(n.ALCN()),
			logfields.ItemKind(r.Kind),
			logfields.ItemID(r.Key))
		return true
	}
	return false
}

// Ledger builds the ledger of the current run: every node of the tree
// except failed ones, with render items of nodes not rendered this run
// carried over from the previous run. Nodes with an item that cannot be
// snapshotted are left out, which makes them dirty on the next run.
func (t *Tracker) Ledger() Ledger {
	tree := t.Tree()
	out := Ledger{}
	if tree == nil {
		return out
	}
	for _, n := range tree.Nodes() {
		alcn := n.ALCN()
		t.mu.Lock()
		failed := t.failed[alcn]
		rendered := t.rendered[alcn]
		p := t.current[alcn]
		prev, hadPrev := t.previous[alcn]
		t.mu.Unlock()
		if failed {
			continue
		}

		var creation, render []ItemID
		if p != nil {
			creation = p.creation.order
			if rendered {
				render = p.render.order
			}
		}
		if !rendered && hadPrev {
			for _, r := range prev.Render {
				render = append(render, r.ItemID)
			}
		}

		var entry Entry
		var err error
		if entry.Creation, err = t.records(creation); err == nil {
			entry.Render, err = t.records(render)
		}
		if err != nil {
			t.logger.Debug("Leaving node out of ledger", logfields.ALCN(alcn), logfields.Error(err))
			continue
		}
		out[alcn] = entry
	}
	return out
}

func (t *Tracker) records(ids []ItemID) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		s, err := t.snapshot(id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		out = append(out, Record{ItemID: id, Snapshot: s})
	}
	return out, nil
}

// Commit stores the ledger of the current run in the standard cache tier.
// The cache store itself is persisted by the caller.
func (t *Tracker) Commit() error {
	ledger := t.Ledger()
	if t.store == nil {
		return nil
	}
	if err := t.store.Put(cache.Standard, LedgerKey, ledger); err != nil {
		return err
	}
	t.logger.Debug("Dependency ledger prepared", logfields.Count(len(ledger)))
	return nil
}

// Previous returns the ledger loaded at the start of the run.
func (t *Tracker) Previous() Ledger {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(Ledger, len(t.previous))
	for k, v := range t.previous {
		out[k] = v
	}
	return out
}

// ReferencedNodes returns the alcns of nodes n references through the items
// it recorded in this run.
func (t *Tracker) ReferencedNodes(n *node.Node) []string {
	t.mu.Lock()
	p := t.current[n.ALCN()]
	var ids []ItemID
	if p != nil {
		ids = append(append(ids, p.creation.order...), p.render.order...)
	}
	t.mu.Unlock()

	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		k, ok := t.kinds.Get(id.Kind)
		if !ok {
			continue
		}
		for _, alcn := range k.ReferencedNodes(t, id.Key) {
			if alcn != n.ALCN() && !seen[alcn] {
				seen[alcn] = true
				out = append(out, alcn)
			}
		}
	}
	sort.Strings(out)
	return out
}
