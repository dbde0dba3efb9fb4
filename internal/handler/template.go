package handler

import (
	"context"

	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/pageformat"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/source"
)

// Template creates the no-output template nodes other nodes are wrapped in.
type Template struct {
	Base
	renderer *Renderer
}

// NewTemplate creates the template handler.
func NewTemplate(r *Renderer) *Template {
	return &Template{Base: Base{name: "template"}, renderer: r}
}

// DefaultMeta keeps markdown out of templates.
func (t *Template) DefaultMeta() metainfo.Info {
	return metainfo.Info{MetaPipeline: "tags"}
}

func (t *Template) ParsePage(sp *source.Path) (*pageformat.Page, error) {
	return parsePage(sp)
}

func (t *Template) CreateNodes(_ context.Context, env *site.Env, in *Input) ([]*node.Node, error) {
	meta := in.Meta.Clone()
	meta[node.MetaNoOutput] = true
	n, err := t.CreateNode(env, in, t, NodeSpec{
		CN:   in.Path.Basename + "." + in.Path.Ext,
		Ext:  in.Path.Ext,
		Meta: meta,
	})
	if err != nil {
		return nil, err
	}
	if in.Page != nil {
		n.SetInfo(infoPage, in.Page)
	}
	return []*node.Node{n}, nil
}

func (t *Template) TemplateChain(env *site.Env, n *node.Node) []*node.Node {
	return t.renderer.TemplateChain(env, n)
}
