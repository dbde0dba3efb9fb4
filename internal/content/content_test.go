package content

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/tracker"
)

type indexer struct{ tree *node.Tree }

func (i indexer) IndexNode(dir *node.Node, lang string) (*node.Node, string) {
	ref := dir.ACN() + "index.html"
	return i.tree.Resolve(ref, lang, true), ref
}

type stubRenderer func(ctx context.Context, n *node.Node, block string, dest *node.Node, withTemplate bool) (string, error)

func (f stubRenderer) RenderBlock(ctx context.Context, n *node.Node, block string, dest *node.Node, withTemplate bool) (string, error) {
	return f(ctx, n, block, dest, withTemplate)
}

type fixture struct {
	env   *site.Env
	nodes map[string]*node.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tree := node.NewTree()
	nodes := map[string]*node.Node{}
	add := func(parent, cn, lang, dest string, meta metainfo.Info) *node.Node {
		var p *node.Node
		if parent != "" {
			p = nodes[parent]
		}
		n := node.New(p, cn, lang, dest, meta, nil)
		require.NoError(t, tree.Register(n))
		nodes[n.ALCN()] = n
		return n
	}
	add("", "/", "", "/", nil)
	add("/", "index.html", "", "/index.html", metainfo.Info{"title": "Home", "in_menu": true, "sort_info": 1})
	add("/", "sub/", "", "/sub/", metainfo.Info{"title": "Sub"})
	add("/sub/", "index.html", "", "/sub/index.html", metainfo.Info{"title": "Sub Home"})
	add("/sub/", "about.html", "", "/sub/about.html", metainfo.Info{"title": "About & Co", "in_menu": true, "sort_info": 2})
	add("/sub/", "about.html", "de", "/sub/about.de.html", metainfo.Info{"title": "Über"})
	add("/sub/about.html", "#team", "", "/sub/about.html#team", metainfo.Info{"title": "Team", node.MetaFragment: true})

	tr := tracker.New(tracker.DefaultKinds(tracker.FileModeMTime), nil)
	tr.BeginRun(tree)
	tr.TreeBuilt()

	env := &site.Env{
		Tree:        tree,
		Tracker:     tr,
		Indexer:     indexer{tree: tree},
		DefaultLang: "en",
		Now:         func() time.Time { return time.Date(2024, 5, 17, 8, 30, 0, 0, time.UTC) },
		Renderer: stubRenderer(func(_ context.Context, n *node.Node, block string, dest *node.Node, withTemplate bool) (string, error) {
			return "[" + block + " of " + n.ALCN() + " for " + dest.ALCN() + "]", nil
		}),
	}
	return &fixture{env: env, nodes: nodes}
}

func (f *fixture) expand(t *testing.T, dest, content string) (string, error) {
	t.Helper()
	c := &Context{Content: content, DestNode: f.nodes[dest], RefNode: f.nodes[dest], Block: "content", Env: f.env}
	err := NewTags(DefaultTags()).Process(context.Background(), c)
	return c.Content, err
}

func (f *fixture) mustExpand(t *testing.T, dest, content string) string {
	t.Helper()
	out, err := f.expand(t, dest, content)
	require.NoError(t, err)
	return out
}

func TestTags_MetaInfo(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Title: About &amp; Co", f.mustExpand(t, "/sub/about.html", "Title: {meta_info: title}"))
	assert.Equal(t, "About & Co", f.mustExpand(t, "/sub/about.html", "{meta_info: {key: title, escape_html: false}}"))
	assert.Equal(t, "About &amp; Co", f.mustExpand(t, "/index.html", "{meta_info: {key: title, node: sub/about.html}}"))
	assert.Equal(t, "", f.mustExpand(t, "/index.html", "{meta_info: author}"))

	assert.Contains(t, f.env.Tracker.ReferencedNodes(f.nodes["/index.html"]), "/sub/about.html")
}

func TestTags_Link(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, `<a href="sub/about.html">About &amp; Co</a>`, f.mustExpand(t, "/index.html", "{link: sub/about.html}"))
	assert.Equal(t, `<a href="../index.html">Home</a>`, f.mustExpand(t, "/sub/about.de.html", "{link: ../index.html}"))
	assert.Equal(t, `<a href="sub/index.html">Sub Home</a>`, f.mustExpand(t, "/index.html", "{link: sub/}"))
	assert.Equal(t, `<a href="sub/about.html" class="x">About &amp; Co</a>`,
		f.mustExpand(t, "/index.html", "{link: {path: sub/about.html, attr: {class: x}}}"))
	assert.Equal(t, `<a href="sub/about.html#team">Team</a>`, f.mustExpand(t, "/index.html", "{link: sub/about.html#team}"))
	assert.Equal(t, "nope.html", f.mustExpand(t, "/index.html", "{link: nope.html}"))
}

func TestTags_Relocatable(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "../index.html", f.mustExpand(t, "/sub/about.html", "{relocatable: ../index.html}"))
	assert.Equal(t, "http://example.org/a", f.mustExpand(t, "/sub/about.html", "{relocatable: http://example.org/a}"))
	assert.Equal(t, "img/missing.png", f.mustExpand(t, "/sub/about.html", "{relocatable: img/missing.png}"))
}

func TestTags_BreadcrumbMenuLangbar(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t,
		`<ul class="breadcrumb"><li><a href="../index.html">Home</a></li><li><a href="index.html">Sub Home</a></li><li>About &amp; Co</li></ul>`,
		f.mustExpand(t, "/sub/about.html", "{breadcrumb_trail: }"))

	assert.Equal(t,
		`<ul class="menu"><li class="active"><span>Home</span></li><li><a href="sub/about.html">About &amp; Co</a></li></ul>`,
		f.mustExpand(t, "/index.html", "{menu: }"))

	assert.Equal(t,
		`<span>en</span> | <a href="about.de.html" hreflang="de">de</a>`,
		f.mustExpand(t, "/sub/about.html", "{langbar: }"))
	assert.Equal(t, "", f.mustExpand(t, "/index.html", "{langbar: }"))
}

func TestTags_DateAndBlock(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "2024-05-17", f.mustExpand(t, "/index.html", `{date: {format: "2006-01-02"}}`))
	assert.Equal(t, "2024-05-17 08:30:00", f.mustExpand(t, "/index.html", "{date: }"))

	assert.Equal(t, "[sidebar of /sub/about.html for /sub/about.html]", f.mustExpand(t, "/sub/about.html", "{block: sidebar}"))
	assert.Equal(t, "[content of /index.html for /sub/about.html]",
		f.mustExpand(t, "/sub/about.html", "{block: {node: ../index.html}}"))
	assert.Contains(t, f.env.Tracker.ReferencedNodes(f.nodes["/sub/about.html"]), "/index.html")
}

func TestTags_RecursiveBlockIsAnError(t *testing.T) {
	f := newFixture(t)
	tags := NewTags(DefaultTags())
	f.env.Renderer = stubRenderer(func(ctx context.Context, n *node.Node, _ string, dest *node.Node, _ bool) (string, error) {
		c := &Context{Content: "{block: content}", DestNode: dest, RefNode: n, Env: f.env}
		err := tags.Process(ctx, c)
		return c.Content, err
	})
	_, err := f.expand(t, "/index.html", "{block: content}")
	var re *site.RenderError
	require.True(t, errors.As(err, &re))
	assert.Contains(t, err.Error(), "nesting")
}

func TestTags_Parsing(t *testing.T) {
	f := newFixture(t)
	reg := DefaultTags()
	reg.Register("echo", TagFunc(func(_ context.Context, call *TagCall, _ *Context) (string, error) {
		return "<" + call.Body + ">", nil
	}))
	tags := NewTags(reg)
	run := func(content string) (string, error) {
		c := &Context{Content: content, DestNode: f.nodes["/index.html"], RefNode: f.nodes["/index.html"], Env: f.env, Line: 10}
		err := tags.Process(context.Background(), c)
		return c.Content, err
	}

	out, err := run(`a \{meta_info: title} b {not a tag} {"json": 1}`)
	require.NoError(t, err)
	assert.Equal(t, `a {meta_info: title} b {not a tag} {"json": 1}`, out)

	out, err = run("{echo::}abc {echo::}x{echo} d{echo} tail")
	require.NoError(t, err)
	assert.Equal(t, "<abc {echo::}x{echo} d> tail", out)

	_, err = run("line one\nline two {nope: x}")
	var re *site.RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 11, re.Line)
	assert.Equal(t, "/index.html", re.ALCN)

	_, err = run("{meta_info: title")
	require.ErrorIs(t, err, ErrUnclosedTag)

	_, err = run("{echo::}never closed")
	require.ErrorIs(t, err, ErrUnclosedBody)

	_, err = run("{meta_info: [unbalanced}")
	require.Error(t, err)
}

func TestMarkdown(t *testing.T) {
	c := &Context{Content: "# Hello World\n\nSome *text* and <span>html</span>.\n"}
	require.NoError(t, NewMarkdown().Process(context.Background(), c))
	assert.Contains(t, c.Content, `<h1 id="hello-world">Hello World</h1>`)
	assert.Contains(t, c.Content, `<em>text</em>`)
	assert.Contains(t, c.Content, `<span>html</span>`)

	headings := Headings([]byte("# Hello World\n\ntext\n\n## Sub *part*\n"))
	require.Len(t, headings, 2)
	assert.Equal(t, Heading{Level: 1, ID: "hello-world", Title: "Hello World"}, headings[0])
	assert.Equal(t, 2, headings[1].Level)
	assert.Equal(t, "Sub part", headings[1].Title)
}

func TestHTMLLinks(t *testing.T) {
	f := newFixture(t)
	about := f.nodes["/sub/about.html"]
	in := `<p><a href="../index.html">Home</a> <img src="about.html#team"> <a href="https://x.org">x</a> <a href="#local">l</a> <a href="missing.html">m</a></p>`
	c := &Context{Content: in, DestNode: about, RefNode: about, Env: f.env}
	require.NoError(t, HTMLLinks{}.Process(context.Background(), c))
	assert.Equal(t, strings.Replace(in, `src="about.html#team"`, `src="#team"`, 1), c.Content)

	// the same content embedded in the German page points back to the shared nodes
	de := f.nodes["/sub/about.de.html"]
	c = &Context{Content: `<a href="index.html">x</a>`, DestNode: de, RefNode: about, Env: f.env}
	require.NoError(t, HTMLLinks{}.Process(context.Background(), c))
	assert.Equal(t, `<a href="index.html">x</a>`, c.Content)
}

func TestRun_Pipeline(t *testing.T) {
	f := newFixture(t)
	reg := NewRegistry(nil)
	c := &Context{Content: "# {meta_info: title}\n", DestNode: f.nodes["/index.html"], RefNode: f.nodes["/index.html"], Env: f.env}
	require.NoError(t, Run(context.Background(), reg, ParsePipeline(DefaultPipeline), c))
	assert.Equal(t, "<h1 id=\"home\">Home</h1>\n", c.Content)

	err := Run(context.Background(), reg, []string{"nope"}, c)
	var re *site.RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "nope", re.Processor)

	assert.Equal(t, []string{"tags", "markdown"}, ParsePipeline(" tags, ,markdown "))
}
