package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitebuilder/internal/extension"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/tracker"
)

// DefaultDateLayout is the layout of the date tag without format parameter.
const DefaultDateLayout = "2006-01-02 15:04:05"

const maxBlockDepth = 16

type blockDepthKey struct{}

// DefaultTags returns a registry with the built-in tags.
func DefaultTags() *TagRegistry {
	r := extension.New[Tag]("tag")
	r.Register("meta_info", TagFunc(metaInfoTag))
	r.Register("link", TagFunc(linkTag))
	r.Register("relocatable", TagFunc(relocatableTag))
	r.Register("breadcrumb_trail", TagFunc(breadcrumbTag))
	r.Register("menu", TagFunc(menuTag))
	r.Register("langbar", TagFunc(langbarTag))
	r.Register("block", TagFunc(blockTag))
	r.Register("date", TagFunc(dateTag))
	return r
}

// resolve looks up ref relative to the reference node in the destination
// language and records the lookup so broken or newly resolvable references
// are noticed on the next run.
func resolve(c *Context, ref string) *node.Node {
	if c.Env == nil || c.Env.Tree == nil || c.RefNode == nil {
		return nil
	}
	abs := c.RefNode.AbsoluteRef(ref)
	lang := ""
	if c.DestNode != nil {
		lang = c.DestNode.Lang()
	}
	c.Env.Track(c.DestNode, tracker.KindNodeExistence, tracker.ExistenceKey(abs, lang))
	return c.Env.Tree.Resolve(abs, lang, true)
}

// linkTarget maps directories to their index node in the destination
// language.
func linkTarget(c *Context, n *node.Node) *node.Node {
	if n == nil || !n.IsDirectory() || c.Env == nil || c.Env.Indexer == nil {
		return n
	}
	idx, ref := c.Env.Indexer.IndexNode(n, c.DestNode.Lang())
	if ref != "" {
		c.Env.Track(c.DestNode, tracker.KindNodeExistence, tracker.ExistenceKey(ref, c.DestNode.Lang()))
	}
	if idx == nil {
		return n
	}
	return idx
}

// title returns the title of n and records the dependency on it.
func title(c *Context, n *node.Node) string {
	if n != c.DestNode {
		c.Env.Track(c.DestNode, tracker.KindNodeMetaInfo, tracker.MetaInfoKey(n.ALCN(), node.MetaTitle))
	}
	return n.Title()
}

func anchor(href, text string, attrs map[string]any) string {
	var b strings.Builder
	b.WriteString(`<a href="`)
	b.WriteString(html.EscapeString(href))
	b.WriteByte('"')
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ` %s="%s"`, k, html.EscapeString(fmt.Sprint(attrs[k])))
	}
	b.WriteByte('>')
	b.WriteString(text)
	b.WriteString("</a>")
	return b.String()
}

func metaInfoTag(_ context.Context, call *TagCall, c *Context) (string, error) {
	key := call.stringParam("key", "key", "")
	if key == "" {
		return "", errors.New("missing key parameter")
	}
	target := c.DestNode
	if ref := call.stringParam("node", "", ""); ref != "" {
		target = resolve(c, ref)
		if target == nil {
			return "", fmt.Errorf("cannot resolve node %q", ref)
		}
	}
	c.Env.Track(c.DestNode, tracker.KindNodeMetaInfo, tracker.MetaInfoKey(target.ALCN(), key))
	v, ok := target.MetaValue(key)
	if !ok || v == nil {
		return "", nil
	}
	out := fmt.Sprint(v)
	if call.boolParam("escape_html", true) {
		out = html.EscapeString(out)
	}
	return out, nil
}

func linkTag(_ context.Context, call *TagCall, c *Context) (string, error) {
	ref := call.stringParam("path", "path", "")
	if ref == "" {
		return "", errors.New("missing path parameter")
	}
	var attrs map[string]any
	if v, ok := call.param("attr", ""); ok {
		attrs, _ = v.(map[string]any)
	}
	target := linkTarget(c, resolve(c, ref))
	if target == nil {
		c.Env.Log().Warn("Cannot resolve link target",
			logfields.ALCN(c.DestNode.ALCN()),
			slog.String("ref", ref))
		return html.EscapeString(call.stringParam("text", "", ref)), nil
	}
	text := call.stringParam("text", "", "")
	if text == "" {
		text = html.EscapeString(title(c, target))
	}
	return anchor(c.DestNode.RouteTo(target), text, attrs), nil
}

func relocatableTag(_ context.Context, call *TagCall, c *Context) (string, error) {
	ref := call.stringParam("path", "path", "")
	if ref == "" {
		return "", errors.New("missing path parameter")
	}
	if strings.Contains(ref, "://") || strings.HasPrefix(ref, "mailto:") {
		return ref, nil
	}
	target := resolve(c, ref)
	if target == nil {
		c.Env.Log().Warn("Cannot resolve relocatable path",
			logfields.ALCN(c.DestNode.ALCN()),
			slog.String("ref", ref))
		return ref, nil
	}
	return c.DestNode.RouteTo(target), nil
}

func breadcrumbTag(_ context.Context, call *TagCall, c *Context) (string, error) {
	q := tracker.Query{Kind: tracker.QueryAncestors, ALCN: c.DestNode.ALCN()}
	c.Env.Track(c.DestNode, tracker.KindNodeFinder, q.Key())
	separator := call.stringParam("separator", "separator", "")

	var items []string
	for _, dir := range tracker.Find(c.Env.Tree, q) {
		target := linkTarget(c, dir)
		if target == c.DestNode {
			continue
		}
		items = append(items, anchor(c.DestNode.RouteTo(target), html.EscapeString(title(c, target)), nil))
	}
	items = append(items, html.EscapeString(c.DestNode.Title()))

	var b strings.Builder
	b.WriteString(`<ul class="breadcrumb">`)
	for i, item := range items {
		if i > 0 && separator != "" {
			b.WriteString(html.EscapeString(separator))
		}
		b.WriteString("<li>")
		b.WriteString(item)
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String(), nil
}

func menuTag(_ context.Context, call *TagCall, c *Context) (string, error) {
	q := tracker.Query{
		Kind:    tracker.QueryMenu,
		Lang:    c.DestNode.Lang(),
		MetaKey: call.stringParam("meta", "", ""),
	}
	c.Env.Track(c.DestNode, tracker.KindNodeFinder, q.Key())

	var b strings.Builder
	b.WriteString(`<ul class="menu">`)
	for _, n := range tracker.Find(c.Env.Tree, q) {
		target := linkTarget(c, n)
		if target == c.DestNode {
			fmt.Fprintf(&b, `<li class="active"><span>%s</span></li>`, html.EscapeString(title(c, target)))
			continue
		}
		b.WriteString("<li>")
		b.WriteString(anchor(c.DestNode.RouteTo(target), html.EscapeString(title(c, target)), nil))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String(), nil
}

func langbarTag(_ context.Context, call *TagCall, c *Context) (string, error) {
	q := tracker.Query{Kind: tracker.QueryTranslations, ALCN: c.DestNode.ALCN()}
	c.Env.Track(c.DestNode, tracker.KindNodeFinder, q.Key())

	nodes := tracker.Find(c.Env.Tree, q)
	if len(nodes) < 2 && !call.boolParam("show_single", false) {
		return "", nil
	}
	separator := call.stringParam("separator", "separator", " | ")
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		lang := n.Lang()
		if lang == "" {
			lang = c.Env.DefaultLang
		}
		if n == c.DestNode {
			parts = append(parts, fmt.Sprintf(`<span>%s</span>`, html.EscapeString(lang)))
			continue
		}
		parts = append(parts, anchor(c.DestNode.RouteTo(n), html.EscapeString(lang), map[string]any{"hreflang": lang}))
	}
	return strings.Join(parts, html.EscapeString(separator)), nil
}

func blockTag(ctx context.Context, call *TagCall, c *Context) (string, error) {
	if c.Env == nil || c.Env.Renderer == nil {
		return "", errors.New("no block renderer configured")
	}
	name := call.stringParam("name", "name", "content")
	target := c.DestNode
	if ref := call.stringParam("node", "", ""); ref != "" {
		target = resolve(c, ref)
		if target == nil {
			return "", fmt.Errorf("cannot resolve node %q", ref)
		}
	}
	depth, _ := ctx.Value(blockDepthKey{}).(int)
	if depth >= maxBlockDepth {
		return "", fmt.Errorf("block nesting deeper than %d, recursive block inclusion?", maxBlockDepth)
	}
	ctx = context.WithValue(ctx, blockDepthKey{}, depth+1)
	if target != c.DestNode {
		c.Env.Track(c.DestNode, tracker.KindNodeContent, target.ALCN())
	}
	return c.Env.Renderer.RenderBlock(ctx, target, name, c.DestNode, call.boolParam("template", false))
}

func dateTag(_ context.Context, call *TagCall, c *Context) (string, error) {
	layout := call.stringParam("format", "format", DefaultDateLayout)
	return c.Env.Time().Format(layout), nil
}
