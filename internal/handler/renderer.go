package handler

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/pageformat"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/tracker"
)

// DefaultTemplateName is the template searched for from a node's directory
// upwards when the node names no template itself.
const DefaultTemplateName = "default.template"

const infoPage = "page"

// Renderer renders the blocks of page format nodes and wraps them in their
// template chain. It implements site.BlockRenderer.
type Renderer struct {
	Processors *content.Registry
	Env        *site.Env
}

// NewRenderer creates a renderer running the processors of reg.
func NewRenderer(reg *content.Registry, env *site.Env) *Renderer {
	return &Renderer{Processors: reg, Env: env}
}

type innerKey struct{}

// inner carries the already rendered content of dest while its templates
// are processed, so {block: content} inside a template yields it.
type inner struct {
	dest    *node.Node
	content string
}

// RenderBlock renders block of n for dest.
func (r *Renderer) RenderBlock(ctx context.Context, n *node.Node, block string, dest *node.Node, withTemplate bool) (string, error) {
	if in, ok := ctx.Value(innerKey{}).(*inner); ok && in != nil && !withTemplate &&
		n == in.dest && block == pageformat.DefaultBlockName {
		return in.content, nil
	}

	out, err := r.renderBlock(context.WithValue(ctx, innerKey{}, (*inner)(nil)), n, block, dest)
	if err != nil || !withTemplate {
		return out, err
	}

	for _, tmpl := range r.templateChain(r.Env, n, dest) {
		wrapped := context.WithValue(ctx, innerKey{}, &inner{dest: dest, content: out})
		if out, err = r.renderBlock(wrapped, tmpl, pageformat.DefaultBlockName, dest); err != nil {
			return "", err
		}
	}
	return out, nil
}

func (r *Renderer) renderBlock(ctx context.Context, n *node.Node, block string, dest *node.Node) (string, error) {
	page := pageOf(n)
	if page == nil {
		return "", site.NewRenderError(dest, n, "", 0, fmt.Errorf("node %s has no content blocks", n.ALCN()))
	}
	b, ok := page.Block(block)
	if !ok {
		return "", site.NewRenderError(dest, n, "", 0, fmt.Errorf("node %s has no block %q", n.ALCN(), block))
	}
	return r.run(ctx, n, dest, block, b.Content, b.Line, blockPipeline(n, b))
}

// RenderText runs text of n through pipeline for dest.
func (r *Renderer) RenderText(ctx context.Context, n, dest *node.Node, text, pipeline string) (string, error) {
	return r.run(ctx, n, dest, "", text, 0, pipeline)
}

func (r *Renderer) run(ctx context.Context, n, dest *node.Node, block, text string, line int, pipeline string) (string, error) {
	c := &content.Context{
		Content:  text,
		DestNode: dest,
		RefNode:  n,
		Block:    block,
		Line:     line,
		Env:      r.Env,
	}
	if err := content.Run(ctx, r.Processors, content.ParsePipeline(pipeline), c); err != nil {
		return "", err
	}
	return c.Content, nil
}

// blockPipeline picks the pipeline of a block: the block option, then the
// blocks.<name>.pipeline and blocks.default.pipeline meta information, then
// the node's pipeline meta information.
func blockPipeline(n *node.Node, b pageformat.Block) string {
	if p := b.Options[MetaPipeline]; p != "" {
		return p
	}
	meta := n.Meta()
	blocks := meta.Map("blocks")
	if p := blocks.Map(b.Name).String(MetaPipeline); p != "" {
		return p
	}
	if p := blocks.Map("default").String(MetaPipeline); p != "" {
		return p
	}
	if p := meta.String(MetaPipeline); p != "" {
		return p
	}
	return content.DefaultPipeline
}

func pageOf(n *node.Node) *pageformat.Page {
	v, ok := n.Info(infoPage)
	if !ok {
		return nil
	}
	p, _ := v.(*pageformat.Page)
	return p
}

type chainMemo struct {
	generation uint64
	chain      []string
	probes     []string
}

// TemplateChain returns the templates n is wrapped in, innermost first.
// The result is memoized per language in the node info and recomputed when
// the tree structure changed. Every template and every probed location is
// tracked, so adding a closer default template is noticed.
func (r *Renderer) TemplateChain(env *site.Env, n *node.Node) []*node.Node {
	return r.templateChain(env, n, n)
}

func (r *Renderer) templateChain(env *site.Env, n, dest *node.Node) []*node.Node {
	tree := n.Tree()
	if tree == nil {
		return nil
	}
	key := "template_chain:" + n.Lang()
	gen := tree.Generation()
	memo, found := chainMemo{}, false
	if v, ok := n.Info(key); ok {
		memo, found = v.(chainMemo)
		found = found && memo.generation == gen
	}
	if !found {
		memo = r.computeChain(env, n)
		memo.generation = gen
		n.SetInfo(key, memo)
	}

	for _, probe := range memo.probes {
		env.Track(dest, tracker.KindNodeExistence, probe)
	}
	chain := make([]*node.Node, 0, len(memo.chain))
	for _, alcn := range memo.chain {
		t := tree.Node(alcn)
		if t == nil {
			break
		}
		env.Track(dest, tracker.KindNodeContent, alcn)
		chain = append(chain, t)
	}
	return chain
}

func (r *Renderer) computeChain(env *site.Env, n *node.Node) chainMemo {
	var memo chainMemo
	visited := map[string]bool{n.ALCN(): true}
	lang := n.Lang()
	cur := n
	for {
		t, probes := r.templateFor(env, cur, lang, cur == n)
		memo.probes = append(memo.probes, probes...)
		if t == nil {
			break
		}
		if visited[t.ALCN()] {
			env.Log().Warn("Template chain contains a cycle",
				logfields.ALCN(n.ALCN()),
				slog.String("template", t.ALCN()))
			break
		}
		visited[t.ALCN()] = true
		memo.chain = append(memo.chain, t.ALCN())
		cur = t
	}
	return memo
}

// templateFor finds the template of cur. An explicit template meta
// information wins; null or an empty string disables templating. Otherwise
// the default template is searched from cur's directory up to the root.
func (r *Renderer) templateFor(env *site.Env, cur *node.Node, lang string, warn bool) (*node.Node, []string) {
	tree := cur.Tree()
	if v, ok := cur.MetaValue(MetaTemplate); ok {
		ref, _ := v.(string)
		if ref == "" {
			return nil, nil
		}
		abs := cur.AbsoluteRef(ref)
		probe := tracker.ExistenceKey(abs, lang)
		t := tree.Resolve(abs, lang, true)
		if t == nil {
			env.Log().Warn("Template not found",
				logfields.ALCN(cur.ALCN()),
				slog.String("template", abs))
		}
		return t, []string{probe}
	}

	var probes []string
	dir := cur.DirACN()
	for {
		ref := dir + DefaultTemplateName
		probes = append(probes, tracker.ExistenceKey(ref, lang))
		if t := tree.Resolve(ref, lang, true); t != nil && t != cur {
			return t, probes
		}
		if dir == "/" {
			break
		}
		dir = path.Dir(dir[:len(dir)-1])
		if dir != "/" {
			dir += "/"
		}
	}
	if warn {
		env.Log().Warn("No template found up to the root, rendering without template",
			logfields.ALCN(cur.ALCN()))
	}
	return nil, probes
}
