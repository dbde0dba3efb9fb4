package handler

import (
	"context"

	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/pageformat"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/source"
)

// DefaultOutputExt is the extension of page output files.
const DefaultOutputExt = "html"

// Page creates a localized node per page file plus fragment nodes for the
// headings of its content block.
type Page struct {
	Base
	renderer *Renderer
}

// NewPage creates the page handler rendering through r.
func NewPage(r *Renderer) *Page {
	return &Page{Base: Base{name: "page"}, renderer: r}
}

func (p *Page) DefaultMeta() metainfo.Info {
	return metainfo.Info{MetaOutputExt: DefaultOutputExt}
}

func (p *Page) ParsePage(sp *source.Path) (*pageformat.Page, error) {
	return parsePage(sp)
}

func (p *Page) CreateNodes(_ context.Context, env *site.Env, in *Input) ([]*node.Node, error) {
	if in.Page == nil {
		return nil, NewNodeCreationError(in.Path.Path, p.name, errors.InternalError("page content not parsed").Build())
	}
	ext := in.Meta.String(MetaOutputExt)
	if ext == "" {
		ext = DefaultOutputExt
	}
	n, err := p.CreateNode(env, in, p, NodeSpec{
		CN:       in.Path.Basename + "." + ext,
		Ext:      ext,
		Localize: true,
	})
	if err != nil {
		return nil, err
	}
	n.SetInfo(infoPage, in.Page)

	nodes := []*node.Node{n}
	if b, ok := in.Page.Block(pageformat.DefaultBlockName); ok {
		nodes = append(nodes, p.createFragments(env, in, n, b)...)
	}
	return nodes, nil
}

// createFragments nests the heading fragments by heading level. A failing
// fragment is logged and skipped.
func (p *Page) createFragments(env *site.Env, in *Input, page *node.Node, b pageformat.Block) []*node.Node {
	type level struct {
		depth int
		n     *node.Node
	}
	var stack []level
	var out []*node.Node
	lang := page.Lang()
	for _, h := range content.Headings([]byte(b.Content)) {
		if h.ID == "" {
			continue
		}
		for len(stack) > 0 && stack[len(stack)-1].depth >= h.Level {
			stack = stack[:len(stack)-1]
		}
		parent := page
		if len(stack) > 0 {
			parent = stack[len(stack)-1].n
		}
		frag, err := p.CreateNode(env, in, p, NodeSpec{
			Parent:   parent,
			CN:       "#" + h.ID,
			Lang:     &lang,
			DestPath: page.DestPath() + "#" + h.ID,
			Meta: metainfo.Info{
				node.MetaTitle:    h.Title,
				node.MetaFragment: true,
				node.MetaNoOutput: true,
			},
		})
		if err != nil {
			env.Log().Warn("Skipping fragment",
				logfields.ALCN(page.ALCN()),
				logfields.Error(err))
			continue
		}
		stack = append(stack, level{depth: h.Level, n: frag})
		out = append(out, frag)
	}
	return out
}

// Content renders the content block wrapped in the template chain.
func (p *Page) Content(ctx context.Context, _ *site.Env, n *node.Node) ([]byte, error) {
	out, err := p.renderer.RenderBlock(ctx, n, pageformat.DefaultBlockName, n, true)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (p *Page) TemplateChain(env *site.Env, n *node.Node) []*node.Node {
	return p.renderer.TemplateChain(env, n)
}

func parsePage(sp *source.Path) (*pageformat.Page, error) {
	data, err := sp.Bytes()
	if err != nil {
		return nil, errors.FileSystemError("cannot read page").
			WithCause(err).
			WithContext("path", sp.Path).
			Build()
	}
	return pageformat.Parse(data)
}
