package handler

import (
	"context"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/source"
)

const infoSource = "source"

// Copy writes static files unchanged, or run through the pipeline named by
// the pipeline meta information.
type Copy struct {
	Base
	renderer *Renderer
}

// NewCopy creates the static file handler.
func NewCopy(r *Renderer) *Copy {
	return &Copy{Base: Base{name: "copy"}, renderer: r}
}

func (c *Copy) CreateNodes(_ context.Context, env *site.Env, in *Input) ([]*node.Node, error) {
	cn := in.Path.Basename
	if in.Path.Ext != "" {
		cn += "." + in.Path.Ext
	}
	n, err := c.CreateNode(env, in, c, NodeSpec{CN: cn, Ext: in.Path.Ext})
	if err != nil {
		return nil, err
	}
	n.SetInfo(infoSource, in.Path)
	return []*node.Node{n}, nil
}

func (c *Copy) Content(ctx context.Context, _ *site.Env, n *node.Node) ([]byte, error) {
	v, _ := n.Info(infoSource)
	sp, ok := v.(*source.Path)
	if !ok {
		return nil, site.NewRenderError(n, n, "", 0, errors.InternalError("node has no source").Build())
	}
	data, err := sp.Bytes()
	if err != nil {
		return nil, site.NewRenderError(n, n, "", 0, err)
	}
	pipeline := n.MetaString(MetaPipeline)
	if pipeline == "" || c.renderer == nil {
		return data, nil
	}
	out, err := c.renderer.RenderText(ctx, n, n, string(data), pipeline)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
