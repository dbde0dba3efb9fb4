package handler

import (
	"context"
	"path"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// Virtual creates nodes described by output backing entries that match no
// existing node. The content comes from the content meta information,
// optionally run through a pipeline.
type Virtual struct {
	Base
	renderer *Renderer
}

// NewVirtual creates the virtual node handler.
func NewVirtual(r *Renderer) *Virtual {
	return &Virtual{Base: Base{name: "virtual"}, renderer: r}
}

// Reinitializable reports that a changed virtual node replaces the old one.
func (v *Virtual) Reinitializable() bool { return true }

func (v *Virtual) CreateNodes(_ context.Context, env *site.Env, in *Input) ([]*node.Node, error) {
	key := in.Path.Path
	cn := path.Base(key)
	if strings.HasSuffix(key, "/") {
		cn += "/"
	}
	dest := in.Meta.String(MetaDestPath)
	if dest == "" {
		dest = key
	}
	n, err := v.CreateNode(env, in, v, NodeSpec{CN: cn, DestPath: dest})
	if err != nil {
		return nil, err
	}
	return []*node.Node{n}, nil
}

func (v *Virtual) Content(ctx context.Context, _ *site.Env, n *node.Node) ([]byte, error) {
	raw, ok := n.MetaValue(MetaContent)
	if !ok || raw == nil {
		return nil, nil
	}
	text, _ := raw.(string)
	pipeline := n.MetaString(MetaPipeline)
	if pipeline == "" || v.renderer == nil {
		return []byte(text), nil
	}
	out, err := v.renderer.RenderText(ctx, n, n, text, pipeline)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
