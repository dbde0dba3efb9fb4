package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/pathstyle"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/source"
	"git.home.luguber.info/inful/sitebuilder/internal/tracker"
)

type testSite struct {
	env      *site.Env
	set      *Set
	renderer *Renderer
}

func newTestSite(t *testing.T, overrides map[string]metainfo.Info) *testSite {
	t.Helper()
	store := cache.New(cache.NewMemoryBackend())
	require.NoError(t, store.Load(context.Background()))
	store.BeginRun()
	tree := node.NewTree()
	tr := tracker.New(tracker.DefaultKinds(tracker.FileModeMTime), store)
	tr.BeginRun(tree)

	env := &site.Env{
		Tree:        tree,
		Tracker:     tr,
		Resolver:    metainfo.NewResolver(overrides),
		Cache:       store,
		DefaultLang: "en",
		OutputStyle: pathstyle.Default(),
	}
	r := NewRenderer(content.NewRegistry(nil), env)
	set := NewSet(r)
	env.Renderer = r
	env.Indexer = set.Directory
	for _, h := range []Handler{set.Directory, set.MetaInfo, set.Template, set.Page, set.Copy, set.Virtual} {
		if d, ok := h.(Defaulter); ok {
			env.Resolver.SetDefaults(h.Name(), d.DefaultMeta())
		}
	}
	return &testSite{env: env, set: set, renderer: r}
}

func opener(data string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader([]byte(data))), nil }
}

// create runs h for path p the way the website does.
func (s *testSite) create(t *testing.T, h Handler, p, data string) ([]*node.Node, error) {
	t.Helper()
	sp := source.NewPath(p, opener(data))
	in := &Input{Path: sp}
	var embedded metainfo.Info
	if pp, ok := h.(PageParser); ok {
		page, err := pp.ParsePage(sp)
		require.NoError(t, err)
		in.Page = page
		embedded = page.Meta
	}
	in.Meta, in.Backings = s.env.Resolver.Resolve(h.Name(), sp, embedded)
	return h.CreateNodes(context.Background(), s.env, in)
}

func (s *testSite) mustCreate(t *testing.T, h Handler, p, data string) []*node.Node {
	t.Helper()
	nodes, err := s.create(t, h, p, data)
	require.NoError(t, err)
	return nodes
}

func (s *testSite) dirs(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		s.mustCreate(t, s.set.Directory, p, "")
	}
}

func TestDirectory_CreatesTreeAndLazyIndex(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/", "/sub/")

	sub := s.env.Tree.Node("/sub/")
	require.NotNil(t, sub)
	assert.Equal(t, "/sub/", sub.DestPath())
	assert.Equal(t, "/", s.env.Tree.Root().DestPath())

	idx, ref := s.set.Directory.IndexNode(sub, "en")
	assert.Nil(t, idx)
	assert.Equal(t, "/sub/index.html", ref)

	s.mustCreate(t, s.set.Page, "/sub/index.page", "---\ntitle: Sub\n---\nbody\n")
	idx, _ = s.set.Directory.IndexNode(sub, "en")
	require.NotNil(t, idx)
	assert.Equal(t, "/sub/index.en.html", idx.ALCN())
}

func TestDirectory_IndexPathMetaInfo(t *testing.T) {
	s := newTestSite(t, map[string]metainfo.Info{"directory": {MetaIndexPath: "start.html"}})
	s.dirs(t, "/")
	s.mustCreate(t, s.set.Page, "/start.page", "hello\n")

	idx, ref := s.set.Directory.IndexNode(s.env.Tree.Root(), "en")
	require.NotNil(t, idx)
	assert.Equal(t, "/start.html", ref)
}

func TestPage_NodeAndFragments(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	nodes := s.mustCreate(t, s.set.Page, "/index.page",
		"---\ntitle: Home\n---\n# Intro\n\ntext\n\n## Team\n\nmore\n\n# Outro\n")
	require.Len(t, nodes, 4)

	page := nodes[0]
	assert.Equal(t, "/index.en.html", page.ALCN())
	assert.Equal(t, "/index.html", page.DestPath())
	assert.Equal(t, "en", page.Lang())
	assert.Equal(t, "Home", page.Title())

	intro := s.env.Tree.Node("/index.en.html#intro")
	require.NotNil(t, intro)
	assert.True(t, intro.IsFragment())
	assert.True(t, intro.NoOutput())
	assert.Equal(t, "/index.html#intro", intro.DestPath())

	team := s.env.Tree.Node("/index.en.html#team")
	require.NotNil(t, team)
	assert.Same(t, intro, team.Parent())
	assert.Equal(t, "Team", team.Title())

	outro := s.env.Tree.Node("/index.en.html#outro")
	require.NotNil(t, outro)
	assert.Same(t, page, outro.Parent())
}

func TestPage_IdempotentAndConflicts(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	first := s.mustCreate(t, s.set.Page, "/about.page", "---\ntitle: About\n---\nbody\n")
	again := s.mustCreate(t, s.set.Page, "/about.page", "---\ntitle: About\n---\nbody\n")
	assert.Same(t, first[0], again[0])

	_, err := s.create(t, s.set.Page, "/about.page", "---\ntitle: Other\n---\nbody\n")
	var nce *NodeCreationError
	require.True(t, errors.As(err, &nce))
	assert.Equal(t, "/about.page", nce.Path)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNodeCreation))
}

func TestPage_MissingParentIsCreationError(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	_, err := s.create(t, s.set.Page, "/missing/a.page", "body\n")
	var nce *NodeCreationError
	require.True(t, errors.As(err, &nce))
	assert.Contains(t, err.Error(), "/missing/")
}

func TestPage_LanguageDisambiguation(t *testing.T) {
	s := newTestSite(t, map[string]metainfo.Info{"page": {MetaLangInDestPath: pathstyle.LangNever}})
	s.dirs(t, "/")
	en := s.mustCreate(t, s.set.Page, "/about.page", "english\n")
	de := s.mustCreate(t, s.set.Page, "/about.de.page", "deutsch\n")

	assert.Equal(t, "/about.html", en[0].DestPath())
	assert.Equal(t, "/about.de.html", de[0].DestPath())
	assert.Equal(t, "/about.de.html", de[0].ALCN())
}

func TestPage_ExplicitDestPath(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/", "/blog/")
	nodes := s.mustCreate(t, s.set.Page, "/blog/post.page", "---\ndest_path: first-post.html\n---\nbody\n")
	assert.Equal(t, "/blog/first-post.html", nodes[0].DestPath())
}

func TestPage_TracksCreationItems(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	dir := t.TempDir()
	backingFile := filepath.Join(dir, "metainfo")
	pageFile := filepath.Join(dir, "a.page")
	require.NoError(t, os.WriteFile(backingFile, []byte("/*.page:\n  title: From backing\n"), 0o600))
	require.NoError(t, os.WriteFile(pageFile, []byte("body\n"), 0o600))

	fs := source.NewFileSystem(dir, "/")
	paths, err := fs.Paths(context.Background())
	require.NoError(t, err)
	byPath := map[string]*source.Path{}
	for _, p := range paths {
		byPath[p.Path] = p
	}
	require.Contains(t, byPath, "/metainfo")
	require.Contains(t, byPath, "/a.page")

	_, err = s.set.MetaInfo.CreateNodes(context.Background(), s.env, &Input{Path: byPath["/metainfo"]})
	require.NoError(t, err)

	sp := byPath["/a.page"]
	page, err := s.set.Page.ParsePage(sp)
	require.NoError(t, err)
	meta, backings := s.env.Resolver.Resolve("page", sp, page.Meta)
	require.Len(t, backings, 1)
	assert.Equal(t, backingFile, backings[0].File)
	nodes, err := s.set.Page.CreateNodes(context.Background(), s.env, &Input{Path: sp, Meta: meta, Page: page, Backings: backings})
	require.NoError(t, err)
	assert.Equal(t, "From backing", nodes[0].Title())

	s.env.Tracker.TreeBuilt()
	entry, ok := s.env.Tracker.Ledger()[nodes[0].ALCN()]
	require.True(t, ok)
	var ids []tracker.ItemID
	for _, r := range entry.Creation {
		ids = append(ids, r.ItemID)
	}
	assert.Contains(t, ids, tracker.ItemID{Kind: tracker.KindFile, Key: pageFile})
	assert.Contains(t, ids, tracker.ItemID{Kind: tracker.KindFile, Key: backingFile})
	assert.Contains(t, ids, tracker.ItemID{Kind: tracker.KindNodeMetaInfo, Key: nodes[0].ALCN()})
}

func TestTemplate_ChainAndRendering(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/", "/sub/")
	s.mustCreate(t, s.set.Template, "/default.template", "<html>{block: content}</html>")
	s.mustCreate(t, s.set.Template, "/sub/default.template", "<main>{block: content}</main>")
	nodes := s.mustCreate(t, s.set.Page, "/sub/page.page", "Hello\n")
	page := nodes[0]

	chain := s.set.Page.TemplateChain(s.env, page)
	require.Len(t, chain, 2)
	assert.Equal(t, "/sub/default.template", chain[0].ALCN())
	assert.Equal(t, "/default.template", chain[1].ALCN())
	assert.True(t, chain[0].NoOutput())

	out, err := s.set.Page.Content(context.Background(), s.env, page)
	require.NoError(t, err)
	assert.Equal(t, "<html><main><p>Hello</p>\n</main></html>", string(out))
}

func TestTemplate_ExplicitAndDisabled(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	s.mustCreate(t, s.set.Template, "/default.template", "[{block: content}]")
	s.mustCreate(t, s.set.Template, "/plain.template", "---\ntemplate: ~\n---\n({block: content})")

	none := s.mustCreate(t, s.set.Page, "/none.page", "---\ntemplate: ~\n---\nx\n")[0]
	assert.Empty(t, s.set.Page.TemplateChain(s.env, none))

	plain := s.mustCreate(t, s.set.Page, "/plain.page", "---\ntemplate: plain.template\n---\nx\n")[0]
	chain := s.set.Page.TemplateChain(s.env, plain)
	require.Len(t, chain, 1)
	assert.Equal(t, "/plain.template", chain[0].ALCN())

	missing := s.mustCreate(t, s.set.Page, "/missing.page", "---\ntemplate: nope.template\n---\nx\n")[0]
	assert.Empty(t, s.set.Page.TemplateChain(s.env, missing))
	out, err := s.set.Page.Content(context.Background(), s.env, missing)
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>\n", string(out))
}

func TestTemplate_CycleStops(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	s.mustCreate(t, s.set.Template, "/a.template", "---\ntemplate: b.template\n---\na{block: content}")
	s.mustCreate(t, s.set.Template, "/b.template", "---\ntemplate: a.template\n---\nb{block: content}")
	page := s.mustCreate(t, s.set.Page, "/p.page", "---\ntemplate: a.template\n---\nx\n")[0]

	chain := s.set.Page.TemplateChain(s.env, page)
	require.Len(t, chain, 2)
	out, err := s.set.Page.Content(context.Background(), s.env, page)
	require.NoError(t, err)
	assert.Equal(t, "ba<p>x</p>\n", string(out))
}

func TestTemplate_MemoFollowsTreeGeneration(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/", "/sub/")
	s.mustCreate(t, s.set.Template, "/default.template", "{block: content}")
	page := s.mustCreate(t, s.set.Page, "/sub/p.page", "x\n")[0]
	require.Len(t, s.set.Page.TemplateChain(s.env, page), 1)

	s.mustCreate(t, s.set.Template, "/sub/default.template", "{block: content}")
	assert.Len(t, s.set.Page.TemplateChain(s.env, page), 2)

	s.env.Tree.Delete(s.env.Tree.Node("/sub/default.template"))
	assert.Len(t, s.set.Page.TemplateChain(s.env, page), 1)
}

func TestRenderer_BlockErrors(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	page := s.mustCreate(t, s.set.Page, "/p.page", "---\ntemplate: ~\n---\nx\n")[0]

	_, err := s.renderer.RenderBlock(context.Background(), page, "sidebar", page, false)
	var re *site.RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, page.ALCN(), re.ALCN)

	bad := s.mustCreate(t, s.set.Page, "/bad.page", "---\ntemplate: ~\n---\n{unknown_tag: x}\n")[0]
	_, err = s.set.Page.Content(context.Background(), s.env, bad)
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "tags", re.Processor)
}

func TestRenderer_BlockPipelineSelection(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	page := s.mustCreate(t, s.set.Page, "/p.page",
		"---\ntemplate: ~\nblocks:\n  default:\n    pipeline: tags\n---\n*x*\n--- name:raw pipeline:markdown\n*y*\n")[0]

	out, err := s.renderer.RenderBlock(context.Background(), page, "content", page, false)
	require.NoError(t, err)
	assert.Equal(t, "*x*\n", out)

	out, err = s.renderer.RenderBlock(context.Background(), page, "raw", page, false)
	require.NoError(t, err)
	assert.Equal(t, "<p><em>y</em></p>\n", out)
}

func TestCopy_Content(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/", "/css/")
	n := s.mustCreate(t, s.set.Copy, "/css/site.css", "body{}")[0]
	assert.Equal(t, "/css/site.css", n.ALCN())
	assert.Equal(t, "/css/site.css", n.DestPath())

	out, err := s.set.Copy.Content(context.Background(), s.env, n)
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(out))
}

func TestVirtual_Reinitializes(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	create := func(body string) *node.Node {
		sp := source.NewPath("/robots.txt", nil)
		nodes, err := s.set.Virtual.CreateNodes(context.Background(), s.env,
			&Input{Path: sp, Meta: metainfo.Info{MetaContent: body}})
		require.NoError(t, err)
		return nodes[0]
	}
	first := create("User-agent: *")
	second := create("Disallow: /")
	assert.NotSame(t, first, second)
	assert.Same(t, second, s.env.Tree.Node("/robots.txt"))

	out, err := s.set.Virtual.Content(context.Background(), s.env, second)
	require.NoError(t, err)
	assert.Equal(t, "Disallow: /", string(out))
}

func TestMetaInfo_RegistersBacking(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	nodes, err := s.create(t, s.set.MetaInfo, "/metainfo", "/*.page:\n  title: Backed\n---\n/feed.xml:\n  content: x\n")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	page := s.mustCreate(t, s.set.Page, "/a.page", "body\n")[0]
	assert.Equal(t, "Backed", page.Title())
	require.Len(t, s.env.Resolver.OutputEntries(), 1)
	assert.Equal(t, "/feed.xml", s.env.Resolver.OutputEntries()[0].Key)
}

func TestMetaInfo_MalformedBackingDegrades(t *testing.T) {
	s := newTestSite(t, nil)
	s.dirs(t, "/")
	_, err := s.create(t, s.set.MetaInfo, "/metainfo", "- not\n- a map\n")
	require.NoError(t, err)
	page := s.mustCreate(t, s.set.Page, "/a.page", "body\n")[0]
	assert.Equal(t, "a.html", page.Title())
}

func TestRegistry_MatchByRank(t *testing.T) {
	reg := NewRegistry(NewSet(nil))
	cases := map[string]string{
		"/":                 "directory",
		"/sub/":             "directory",
		"/metainfo":         "metainfo",
		"/x/y.metainfo":     "metainfo",
		"/default.template": "template",
		"/index.page":       "page",
		"/css/site.CSS":     "copy",
		"/img/logo.png":     "copy",
	}
	for p, want := range cases {
		r, ok := Match(reg, p)
		require.True(t, ok, p)
		assert.Equal(t, want, r.Handler.Name(), p)
	}
	_, ok := Match(reg, "/notes.unknown")
	assert.False(t, ok)
}
