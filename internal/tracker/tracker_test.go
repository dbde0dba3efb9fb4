package tracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
)

// site builds a fresh tree per run, the way the orchestrator does.
type site struct {
	titles map[string]string
}

func (s site) build(t *testing.T) (*node.Tree, map[string]*node.Node) {
	t.Helper()
	tree := node.NewTree()
	root := node.New(nil, "/", "", "/", nil, nil)
	require.NoError(t, tree.Register(root))
	nodes := map[string]*node.Node{"/": root}
	for _, name := range []string{"index.html", "about.html", "contact.html"} {
		meta := metainfo.Info{"title": s.titles[name]}
		n := node.New(root, name, "", "/"+name, meta, nil)
		require.NoError(t, tree.Register(n))
		nodes["/"+name] = n
	}
	return tree, nodes
}

type harness struct {
	t     *testing.T
	store *cache.Store
	kinds *Kinds
}

func newHarness(t *testing.T) *harness {
	store := cache.New(cache.NewMemoryBackend())
	require.NoError(t, store.Load(context.Background()))
	return &harness{t: t, store: store, kinds: DefaultKinds(FileModeMTime)}
}

// run performs one build run: create, decide dirtiness, render dirty nodes
// through renderFn, commit. It returns the alcns that were dirty.
func (h *harness) run(tree *node.Tree, create func(*Tracker), renderFn func(*Tracker, *node.Node) error) []string {
	h.t.Helper()
	h.store.BeginRun()
	tr := New(h.kinds, h.store)
	tr.BeginRun(tree)
	if create != nil {
		create(tr)
	}
	tr.TreeBuilt()

	var dirty []string
	for _, n := range tree.Nodes() {
		if !tr.Changed(n) {
			continue
		}
		dirty = append(dirty, n.ALCN())
		tr.StartRender(n)
		if err := renderFn(tr, n); err != nil {
			tr.Failed(n)
			continue
		}
		tr.Rendered(n)
	}
	require.NoError(h.t, tr.Commit())
	require.NoError(h.t, h.store.Commit(context.Background()))
	return dirty
}

func indexEmbedsAboutTitle(tr *Tracker, n *node.Node) error {
	if n.ALCN() == "/index.html" {
		return tr.Add(n, KindNodeMetaInfo, MetaInfoKey("/about.html", "title"))
	}
	return nil
}

func TestTracker_DependencyPropagation(t *testing.T) {
	h := newHarness(t)
	s := site{titles: map[string]string{"index.html": "Home", "about.html": "About", "contact.html": "Contact"}}

	tree, _ := s.build(t)
	dirty := h.run(tree, nil, indexEmbedsAboutTitle)
	assert.Equal(t, []string{"/", "/about.html", "/contact.html", "/index.html"}, dirty)

	tree, _ = s.build(t)
	dirty = h.run(tree, nil, indexEmbedsAboutTitle)
	assert.Empty(t, dirty, "second run without changes must be a no-op")

	s.titles["about.html"] = "About us"
	tree, _ = s.build(t)
	dirty = h.run(tree, nil, indexEmbedsAboutTitle)
	assert.Equal(t, []string{"/index.html"}, dirty)

	// unrendered nodes carry their render items forward
	tree, _ = s.build(t)
	assert.Empty(t, h.run(tree, nil, indexEmbedsAboutTitle))
	s.titles["about.html"] = "About again"
	tree, _ = s.build(t)
	assert.Equal(t, []string{"/index.html"}, h.run(tree, nil, indexEmbedsAboutTitle))
}

func TestTracker_OtherMetaKeysDoNotPropagate(t *testing.T) {
	h := newHarness(t)
	tree, nodes := site{titles: map[string]string{"about.html": "About"}}.build(t)
	h.run(tree, nil, indexEmbedsAboutTitle)

	tree, nodes = site{titles: map[string]string{"about.html": "About"}}.build(t)
	nodes["/about.html"].MergeMeta(metainfo.Info{"author": "someone"})
	assert.Empty(t, h.run(tree, nil, indexEmbedsAboutTitle))
}

func TestTracker_FileItems(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "about.page")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o600))

	h := newHarness(t)
	s := site{titles: map[string]string{}}
	create := func(tr *Tracker) {
		n := tr.Tree().Node("/about.html")
		require.NoError(t, tr.Add(n, KindFile, file))
	}
	noop := func(*Tracker, *node.Node) error { return nil }

	tree, _ := s.build(t)
	h.run(tree, create, noop)
	tree, _ = s.build(t)
	assert.Empty(t, h.run(tree, create, noop))

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(file, later, later))
	tree, _ = s.build(t)
	assert.Equal(t, []string{"/about.html"}, h.run(tree, create, noop))

	require.NoError(t, os.Remove(file))
	tree, _ = s.build(t)
	h.store.BeginRun()
	tr := New(h.kinds, h.store)
	tr.BeginRun(tree)
	tr.TreeBuilt()
	assert.True(t, tr.Changed(tree.Node("/about.html")), "deleted referent makes the node dirty")
}

func TestTracker_ContentKindIsTransitive(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "contact.page")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	h := newHarness(t)
	s := site{titles: map[string]string{}}
	create := func(tr *Tracker) {
		require.NoError(t, tr.Add(tr.Tree().Node("/contact.html"), KindFile, file))
	}
	render := func(tr *Tracker, n *node.Node) error {
		switch n.ALCN() {
		case "/about.html":
			return tr.Add(n, KindNodeContent, "/contact.html")
		case "/index.html":
			return tr.Add(n, KindNodeContent, "about.html")
		}
		return nil
	}

	tree, _ := s.build(t)
	h.run(tree, create, render)
	tree, _ = s.build(t)
	assert.Empty(t, h.run(tree, create, render))

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(file, later, later))
	tree, _ = s.build(t)
	assert.Equal(t, []string{"/about.html", "/contact.html", "/index.html"}, h.run(tree, create, render))
}

func TestTracker_ContentCycleTerminates(t *testing.T) {
	h := newHarness(t)
	s := site{titles: map[string]string{}}
	render := func(tr *Tracker, n *node.Node) error {
		switch n.ALCN() {
		case "/about.html":
			return tr.Add(n, KindNodeContent, "/index.html")
		case "/index.html":
			return tr.Add(n, KindNodeContent, "/about.html")
		}
		return nil
	}
	tree, _ := s.build(t)
	h.run(tree, nil, render)
	tree, _ = s.build(t)
	assert.Empty(t, h.run(tree, nil, render))
}

func TestTracker_ContentCycleSeesChangeBehindCycle(t *testing.T) {
	h := newHarness(t)
	s := site{titles: map[string]string{"contact.html": "Contact"}}
	render := func(tr *Tracker, n *node.Node) error {
		switch n.ALCN() {
		case "/about.html":
			if err := tr.Add(n, KindNodeContent, "/index.html"); err != nil {
				return err
			}
			return tr.Add(n, KindNodeMetaInfo, MetaInfoKey("/contact.html", "title"))
		case "/index.html":
			return tr.Add(n, KindNodeContent, "/about.html")
		}
		return nil
	}

	tree, _ := s.build(t)
	h.run(tree, nil, render)
	tree, _ = s.build(t)
	assert.Empty(t, h.run(tree, nil, render))

	s.titles["contact.html"] = "Reach us"
	tree, _ = s.build(t)
	dirty := h.run(tree, nil, render)
	assert.Contains(t, dirty, "/about.html")
	assert.Contains(t, dirty, "/index.html", "index embeds about, which changed through the cycle")
	assert.NotContains(t, dirty, "/contact.html")

	tree, _ = s.build(t)
	assert.Empty(t, h.run(tree, nil, render))
}

func TestTracker_NestedContentCyclesSettle(t *testing.T) {
	h := newHarness(t)
	s := site{titles: map[string]string{"contact.html": "Contact"}}
	// index -> about -> contact -> about, and contact -> index
	render := func(tr *Tracker, n *node.Node) error {
		switch n.ALCN() {
		case "/index.html":
			return tr.Add(n, KindNodeContent, "/about.html")
		case "/about.html":
			return tr.Add(n, KindNodeContent, "/contact.html")
		case "/contact.html":
			if err := tr.Add(n, KindNodeContent, "/about.html"); err != nil {
				return err
			}
			return tr.Add(n, KindNodeContent, "/index.html")
		}
		return nil
	}

	tree, _ := s.build(t)
	h.run(tree, nil, render)
	tree, _ = s.build(t)
	assert.Empty(t, h.run(tree, nil, render))

	tree, nodes := s.build(t)
	h.store.BeginRun()
	tr := New(h.kinds, h.store)
	tr.BeginRun(tree)
	tr.TreeBuilt()
	assert.False(t, tr.Changed(nodes["/index.html"]))
	assert.False(t, tr.Changed(nodes["/contact.html"]))
	assert.False(t, tr.Changed(nodes["/about.html"]))
	assert.Empty(t, tr.provisional)
}

func TestTracker_FailedNodesAreRetried(t *testing.T) {
	h := newHarness(t)
	s := site{titles: map[string]string{}}
	failAbout := func(_ *Tracker, n *node.Node) error {
		if n.ALCN() == "/about.html" {
			return os.ErrInvalid
		}
		return nil
	}
	tree, _ := s.build(t)
	h.run(tree, nil, failAbout)

	tree, _ = s.build(t)
	assert.Equal(t, []string{"/about.html"}, h.run(tree, nil, func(*Tracker, *node.Node) error { return nil }))
}

func TestTracker_ExistenceItems(t *testing.T) {
	h := newHarness(t)
	s := site{titles: map[string]string{}}
	linkToFaq := func(tr *Tracker, n *node.Node) error {
		if n.ALCN() == "/index.html" {
			return tr.Add(n, KindNodeExistence, "faq.html")
		}
		return nil
	}

	tree, _ := s.build(t)
	h.run(tree, nil, linkToFaq)
	tree, _ = s.build(t)
	assert.Empty(t, h.run(tree, nil, linkToFaq))

	tree, nodes := s.build(t)
	require.NoError(t, tree.Register(node.New(nodes["/"], "faq.html", "", "/faq.html", nil, nil)))
	assert.Equal(t, []string{"/faq.html", "/index.html"}, h.run(tree, nil, linkToFaq))
}

func TestTracker_FinderItems(t *testing.T) {
	h := newHarness(t)
	titles := map[string]string{"about.html": "About", "contact.html": "Contact"}
	menu := Query{Kind: QueryMenu}.Key()
	render := func(tr *Tracker, n *node.Node) error {
		if n.ALCN() == "/index.html" {
			return tr.Add(n, KindNodeFinder, menu)
		}
		return nil
	}
	build := func(inMenu ...string) *node.Tree {
		tree, nodes := site{titles: titles}.build(t)
		for _, alcn := range inMenu {
			nodes[alcn].MergeMeta(metainfo.Info{"in_menu": true})
		}
		return tree
	}

	h.run(build("/about.html"), nil, render)
	assert.Empty(t, h.run(build("/about.html"), nil, render))
	assert.Equal(t, []string{"/index.html"}, h.run(build("/about.html", "/contact.html"), nil, render))

	titles["contact.html"] = "Reach us"
	assert.Equal(t, []string{"/index.html"}, h.run(build("/about.html", "/contact.html"), nil, render))
}

func TestTracker_AddIsIdempotent(t *testing.T) {
	h := newHarness(t)
	tree, nodes := site{titles: map[string]string{"about.html": "About"}}.build(t)
	tr := New(h.kinds, h.store)
	tr.BeginRun(tree)
	tr.TreeBuilt()
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Add(nodes["/index.html"], KindNodeMetaInfo, "/about.html"))
	}
	tr.Rendered(nodes["/index.html"])
	ledger := tr.Ledger()
	require.Len(t, ledger["/index.html"].Render, 1)
	assert.Equal(t, []string{"/about.html"}, tr.ReferencedNodes(nodes["/index.html"]))

	err := tr.Add(nodes["/index.html"], "bogus", "x")
	require.Error(t, err)
	err = tr.Add(nodes["/index.html"], KindNodeMetaInfo, "/missing.html")
	require.ErrorIs(t, err, ErrUnresolvable)
}

func TestTracker_UndecodableLedgerMakesEverythingDirty(t *testing.T) {
	h := newHarness(t)
	s := site{titles: map[string]string{}}
	tree, _ := s.build(t)
	h.run(tree, nil, func(*Tracker, *node.Node) error { return nil })

	h.store.BeginRun()
	require.NoError(t, h.store.Put(cache.Standard, LedgerKey, "not a ledger"))
	require.NoError(t, h.store.Commit(context.Background()))

	tree, _ = s.build(t)
	tr := New(h.kinds, h.store)
	tr.BeginRun(tree)
	tr.TreeBuilt()
	for _, n := range tree.Nodes() {
		assert.True(t, tr.Changed(n), n.ALCN())
	}
}

func TestTracker_UnknownKindInLedgerIsDirty(t *testing.T) {
	h := newHarness(t)
	h.store.BeginRun()
	require.NoError(t, h.store.Put(cache.Standard, LedgerKey, Ledger{
		"/index.html": {Creation: []Record{{ItemID: ItemID{Kind: "retired_kind", Key: "x"}}}},
		"/about.html": {},
	}))
	require.NoError(t, h.store.Commit(context.Background()))

	tree, nodes := site{titles: map[string]string{}}.build(t)
	tr := New(h.kinds, h.store)
	tr.BeginRun(tree)
	tr.TreeBuilt()
	assert.True(t, tr.Changed(nodes["/index.html"]))
	assert.False(t, tr.Changed(nodes["/about.html"]))
}
