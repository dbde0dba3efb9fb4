// Package handler turns source paths into nodes and produces the content of
// the nodes it owns.
package handler

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/pageformat"
	"git.home.luguber.info/inful/sitebuilder/internal/pathstyle"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/source"
	"git.home.luguber.info/inful/sitebuilder/internal/tracker"
)

// Meta information keys interpreted by the handlers.
const (
	MetaLang            = "lang"
	MetaDestPath        = "dest_path"
	MetaOutputPathStyle = "output_path_style"
	MetaLangInDestPath  = "lang_in_dest_path"
	MetaCreatedAt       = "created_at"
	MetaDraft           = "draft"
	MetaTemplate        = "template"
	MetaPipeline        = "pipeline"
	MetaIndexPath       = "index_path"
	MetaOutputExt       = "output_ext"
	MetaContent         = "content"
	MetaHandler         = "handler"
)

// Input is everything a handler gets to create nodes for one path.
type Input struct {
	Path *source.Path
	// Meta is the resolved meta information of the path.
	Meta metainfo.Info
	// Page is the parsed page format content for handlers implementing
	// PageParser, nil otherwise.
	Page *pageformat.Page
	// Backings are the meta information backings that contributed to Meta.
	Backings []*metainfo.Backing
}

// Handler creates nodes for the source paths matching its patterns.
type Handler interface {
	node.Processor
	// CreateNodes registers the nodes for in.Path. Returning no nodes and no
	// error is valid.
	CreateNodes(ctx context.Context, env *site.Env, in *Input) ([]*node.Node, error)
}

// PageParser is implemented by handlers whose sources are in page format.
// The front matter of the parsed page is the embedded meta information.
type PageParser interface {
	ParsePage(p *source.Path) (*pageformat.Page, error)
}

// Renderable produces the bytes written for a node. Nil content means there
// is nothing to write.
type Renderable interface {
	Content(ctx context.Context, env *site.Env, n *node.Node) ([]byte, error)
}

// TemplateChainProvider returns the templates a node is wrapped in,
// innermost first.
type TemplateChainProvider interface {
	TemplateChain(env *site.Env, n *node.Node) []*node.Node
}

// Reinitializable handlers replace a conflicting node of their own instead
// of failing.
type Reinitializable interface {
	Reinitializable() bool
}

// Defaulter supplies the compiled-in meta information defaults of a handler.
type Defaulter interface {
	DefaultMeta() metainfo.Info
}

// NodeCreationError is a failure scoped to a single source path: the path
// produces no node and the run continues.
type NodeCreationError struct {
	Path    string
	Handler string
	Err     error

	classified *errors.ClassifiedError
}

// NewNodeCreationError wraps err for the path handled by handler.
func NewNodeCreationError(path, handler string, err error) *NodeCreationError {
	return &NodeCreationError{
		Path:    path,
		Handler: handler,
		Err:     err,
		classified: errors.NodeCreationError("node creation failed").
			WithCause(err).
			WithContext("path", path).
			WithContext("handler", handler).
			Build(),
	}
}

func (e *NodeCreationError) Error() string {
	return fmt.Sprintf("create nodes for %s (%s): %v", e.Path, e.Handler, e.Err)
}

// Unwrap exposes the classified error, which in turn wraps the cause.
func (e *NodeCreationError) Unwrap() error { return e.classified }

// Base carries the node creation logic shared by all handlers.
type Base struct {
	name string
}

// Name returns the registered handler name.
func (b Base) Name() string { return b.name }

// NodeSpec describes a node to create. Zero fields are derived from the
// input path and meta information.
type NodeSpec struct {
	// Parent defaults to the directory node of the input path's parent.
	Parent *node.Node
	CN     string
	// Basename and Ext feed the output path style.
	Basename string
	Ext      string
	// Lang overrides the language taken from meta information and path.
	Lang *string
	// Localize assigns the default language to nodes without one.
	Localize bool
	// DestPath bypasses the output path style.
	DestPath string
	Meta     metainfo.Info
}

// CreateNode builds and registers a node for in owned by owner. An existing
// node with the same alcn is returned as is when it is owned by the same
// handler and carries equal meta information and destination; a
// reinitializable owner replaces it, any other difference is a conflict.
func (b Base) CreateNode(env *site.Env, in *Input, owner node.Processor, spec NodeSpec) (*node.Node, error) {
	meta := spec.Meta
	if meta == nil {
		meta = in.Meta
	}
	parent := spec.Parent
	if parent == nil && in.Path.Path != "/" {
		parent = env.Tree.Node(in.Path.Parent())
		if parent == nil {
			return nil, NewNodeCreationError(in.Path.Path, b.name,
				fmt.Errorf("parent directory %s has no node", in.Path.Parent()))
		}
	}

	lang := nodeLang(env, in, meta, spec)
	dest := spec.DestPath
	if dest == "" {
		dest = b.destPath(env, in, meta, parent, spec, lang)
	}

	n := node.New(parent, spec.CN, lang, dest, meta, owner)
	if existing := env.Tree.Node(n.ALCN()); existing != nil {
		if sameNode(existing, n) {
			return existing, nil
		}
		if r, ok := owner.(Reinitializable); ok && r.Reinitializable() && existing.Processor() == owner {
			env.Log().Debug("Reinitializing node", logfields.ALCN(n.ALCN()), logfields.Handler(b.name))
			env.Tree.Delete(existing)
		} else {
			return nil, NewNodeCreationError(in.Path.Path, b.name,
				fmt.Errorf("node %s already exists with different meta information or owner", n.ALCN()))
		}
	}
	if err := env.Tree.Register(n); err != nil {
		return nil, NewNodeCreationError(in.Path.Path, b.name, err)
	}

	if in.Path.SourcePath != "" {
		env.Track(n, tracker.KindFile, in.Path.SourcePath)
	}
	for _, backing := range in.Backings {
		if backing.File != "" {
			env.Track(n, tracker.KindFile, backing.File)
		}
	}
	env.Track(n, tracker.KindNodeMetaInfo, tracker.MetaInfoKey(n.ALCN(), ""))
	return n, nil
}

func sameNode(existing, n *node.Node) bool {
	if existing.Processor() != n.Processor() || existing.DestPath() != n.DestPath() {
		return false
	}
	a, errA := existing.Meta().Canonical()
	c, errC := n.Meta().Canonical()
	return errA == nil && errC == nil && a == c
}

func nodeLang(env *site.Env, in *Input, meta metainfo.Info, spec NodeSpec) string {
	if spec.Lang != nil {
		return *spec.Lang
	}
	if l := meta.String(MetaLang); l != "" {
		if norm, ok := source.NormalizeLang(l); ok {
			return norm
		}
		env.Log().Warn("Ignoring invalid language",
			logfields.Path(in.Path.Path),
			logfields.Lang(l))
	}
	if in.Path.Lang != "" {
		return in.Path.Lang
	}
	if spec.Localize {
		return env.DefaultLang
	}
	return ""
}

func (b Base) destPath(env *site.Env, in *Input, meta metainfo.Info, parent *node.Node, spec NodeSpec, lang string) string {
	parentDest := "/"
	if parent != nil {
		parentDest = parent.DestPath()
		if !strings.HasSuffix(parentDest, "/") {
			parentDest = path.Dir(parentDest) + "/"
		}
	}
	if explicit := meta.String(MetaDestPath); explicit != "" {
		if strings.HasPrefix(explicit, "/") || strings.Contains(explicit, "://") {
			return explicit
		}
		return parentDest + explicit
	}

	style := env.OutputStyle
	if raw, ok := meta[MetaOutputPathStyle]; ok {
		parsed, err := pathstyle.Parse(raw)
		if err != nil {
			env.Log().Warn("Invalid output path style, using default",
				logfields.Path(in.Path.Path),
				logfields.Error(err))
		} else {
			style = parsed
		}
	}
	if len(style) == 0 {
		style = pathstyle.Default()
	}

	basename, ext := spec.Basename, spec.Ext
	if basename == "" {
		basename = in.Path.Basename
	}
	v := pathstyle.Values{
		Parent:      parentDest,
		Basename:    basename,
		Lang:        lang,
		DefaultLang: env.DefaultLang,
		LangMode:    meta.String(MetaLangInDestPath),
		Ext:         ext,
	}
	if in.Path.HasSort {
		v.SortInfo = strconv.Itoa(in.Path.SortInfo)
	}
	if t, ok := meta.Time(MetaCreatedAt); ok {
		v.Date = t
	}
	dest, errs := pathstyle.Disambiguate(style, v, func(dest string) (string, bool) {
		if n := env.Tree.NodeByDest(dest); n != nil {
			return n.Lang(), true
		}
		return "", false
	})
	for _, err := range errs {
		env.Log().Warn("Output path style problem",
			logfields.Path(in.Path.Path),
			logfields.Error(err))
	}
	return dest
}
