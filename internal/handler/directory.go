package handler

import (
	"context"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// DefaultIndexPath is the index file looked up in a directory without an
// index_path meta information.
const DefaultIndexPath = "index.html"

// Directory creates the unlocalized directory nodes. Directories write
// nothing; their index node is looked up lazily because it may not exist
// yet when the directory node is created.
type Directory struct {
	Base
}

// NewDirectory creates the directory handler.
func NewDirectory() *Directory {
	return &Directory{Base{name: "directory"}}
}

func (d *Directory) DefaultMeta() metainfo.Info {
	return metainfo.Info{MetaIndexPath: DefaultIndexPath}
}

func (d *Directory) CreateNodes(_ context.Context, env *site.Env, in *Input) ([]*node.Node, error) {
	empty := ""
	spec := NodeSpec{CN: in.Path.Name() + "/", Lang: &empty}
	if in.Path.Path == "/" {
		spec.CN = "/"
		spec.DestPath = "/"
	} else if parent := env.Tree.Node(in.Path.Parent()); parent != nil {
		spec.DestPath = parent.DestPath() + in.Path.Name() + "/"
	}
	if explicit := in.Meta.String(MetaDestPath); explicit != "" {
		spec.DestPath = ""
	}
	n, err := d.CreateNode(env, in, d, spec)
	if err != nil {
		return nil, err
	}
	return []*node.Node{n}, nil
}

type indexMemo struct {
	generation uint64
	index      *node.Node
	ref        string
}

// IndexNode returns the index node of dir in lang. The lookup is memoized in
// the node info and recomputed whenever the tree structure changed.
func (d *Directory) IndexNode(dir *node.Node, lang string) (*node.Node, string) {
	if dir == nil || dir.Tree() == nil {
		return nil, ""
	}
	key := "index:" + lang
	gen := dir.Tree().Generation()
	if v, ok := dir.Info(key); ok {
		if m, ok := v.(indexMemo); ok && m.generation == gen {
			return m.index, m.ref
		}
	}
	indexPath := strings.TrimPrefix(dir.MetaString(MetaIndexPath), "/")
	if indexPath == "" {
		indexPath = DefaultIndexPath
	}
	ref := dir.ACN() + indexPath
	idx := dir.Tree().Resolve(ref, lang, true)
	dir.SetInfo(key, indexMemo{generation: gen, index: idx, ref: ref})
	return idx, ref
}
