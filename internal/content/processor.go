// Package content holds the content processors that turn raw block text into
// output: markdown conversion, tag expansion and HTML link relocation.
package content

import (
	"context"
	stderrors "errors"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/extension"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// DefaultPipeline is used for blocks without a pipeline option.
const DefaultPipeline = "tags,markdown"

// Context is the mutable state passed through a processor pipeline.
type Context struct {
	// Content is the text being processed.
	Content string
	// DestNode is the node whose output is being produced.
	DestNode *node.Node
	// RefNode is the node the content belongs to. Relative references are
	// resolved against it. It differs from DestNode while templates or
	// embedded blocks are processed.
	RefNode *node.Node
	// Block is the name of the block being processed.
	Block string
	// Line is the source line Content starts at, 0 when unknown.
	Line int
	Env  *site.Env
}

// Processor transforms Context.Content in place.
type Processor interface {
	Process(ctx context.Context, c *Context) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, c *Context) error

func (f ProcessorFunc) Process(ctx context.Context, c *Context) error { return f(ctx, c) }

// Registry maps processor names to processors.
type Registry = extension.Registry[Processor]

// NewRegistry returns a registry with the built-in processors. tags may be
// nil, in which case the built-in tags are used.
func NewRegistry(tags *TagRegistry) *Registry {
	if tags == nil {
		tags = DefaultTags()
	}
	r := extension.New[Processor]("content processor")
	r.Register("markdown", NewMarkdown())
	r.Register("tags", NewTags(tags))
	r.Register("html_links", HTMLLinks{})
	return r
}

// ParsePipeline splits a comma separated processor list.
func ParsePipeline(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Run executes the named processors in order. Failures are returned as
// *site.RenderError naming the failing processor.
func Run(ctx context.Context, reg *Registry, names []string, c *Context) error {
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := reg.MustGet(name)
		if err != nil {
			return site.NewRenderError(c.DestNode, c.RefNode, name, c.Line, err)
		}
		if err := p.Process(ctx, c); err != nil {
			var re *site.RenderError
			if stderrors.As(err, &re) || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return site.NewRenderError(c.DestNode, c.RefNode, name, c.Line, err)
		}
	}
	return nil
}
