// Package node holds output nodes and the multiply-indexed tree they live in.
package node

import (
	"path"
	"strings"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
)

// Meta information keys with a meaning for the tree itself.
const (
	MetaNoOutput = "no_output"
	MetaFragment = "fragment"
	MetaTitle    = "title"
)

// Processor is the handler owning a node. Handlers expose further capabilities
// (rendering, template chains, ...) through their own interfaces.
type Processor interface {
	Name() string
}

// Node is the unit of output.
type Node struct {
	tree     *Tree
	parent   *Node
	children []*Node

	cn       string
	lcn      string
	acn      string
	alcn     string
	lang     string
	destPath string

	metaMu    sync.RWMutex
	meta      metainfo.Info
	processor Processor

	infoMu   sync.Mutex
	nodeInfo map[string]any
}

// New creates an unregistered node below parent. cn is the language
// independent canonical name ("about.html", "sub/", "#intro", "/" for the root).
func New(parent *Node, cn, lang, destPath string, meta metainfo.Info, processor Processor) *Node {
	n := &Node{
		parent:    parent,
		cn:        cn,
		lang:      lang,
		destPath:  destPath,
		meta:      meta.Clone(),
		processor: processor,
		nodeInfo:  map[string]any{},
	}
	n.lcn = LCN(cn, lang)
	if parent == nil {
		n.acn, n.alcn = cn, n.lcn
	} else {
		n.acn = joinName(parent.acn, cn)
		n.alcn = joinName(parent.alcn, n.lcn)
	}
	return n
}

// LCN inserts lang into cn after the basename: about.html -> about.en.html.
// Directories, fragments and unlocalized names are returned unchanged.
func LCN(cn, lang string) string {
	if lang == "" || strings.HasSuffix(cn, "/") || strings.HasPrefix(cn, "#") {
		return cn
	}
	if i := strings.IndexByte(cn, '.'); i >= 0 {
		return cn[:i] + "." + lang + cn[i:]
	}
	return cn + "." + lang
}

func joinName(parent, cn string) string {
	if strings.HasPrefix(cn, "#") {
		if i := strings.IndexByte(parent, '#'); i >= 0 {
			parent = parent[:i]
		}
	}
	return parent + cn
}

func (n *Node) CN() string       { return n.cn }
func (n *Node) LCN() string      { return n.lcn }
func (n *Node) ACN() string      { return n.acn }
func (n *Node) ALCN() string     { return n.alcn }
func (n *Node) Lang() string     { return n.lang }
func (n *Node) DestPath() string { return n.destPath }
func (n *Node) Parent() *Node    { return n.parent }
func (n *Node) Tree() *Tree      { return n.tree }

// Processor returns the handler owning the node.
func (n *Node) Processor() Processor { return n.processor }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	if n.tree != nil {
		n.tree.mu.RLock()
		defer n.tree.mu.RUnlock()
	}
	return append([]*Node(nil), n.children...)
}

// Meta returns a copy of the meta information.
func (n *Node) Meta() metainfo.Info {
	n.metaMu.RLock()
	defer n.metaMu.RUnlock()
	return n.meta.Clone()
}

// MetaString returns a single meta-information value as string.
func (n *Node) MetaString(key string) string {
	n.metaMu.RLock()
	defer n.metaMu.RUnlock()
	return n.meta.String(key)
}

// MetaValue returns a single raw meta-information value.
func (n *Node) MetaValue(key string) (any, bool) {
	n.metaMu.RLock()
	defer n.metaMu.RUnlock()
	v, ok := n.meta[key]
	return v, ok
}

// MergeMeta applies info on top of the node's meta information.
func (n *Node) MergeMeta(info metainfo.Info) {
	n.metaMu.Lock()
	defer n.metaMu.Unlock()
	n.meta = n.meta.Merge(info)
}

// Title returns the title meta information, falling back to the canonical name.
func (n *Node) Title() string {
	if t := n.MetaString(MetaTitle); t != "" {
		return t
	}
	return strings.TrimSuffix(n.cn, "/")
}

// NoOutput reports whether the node writes no destination file.
func (n *Node) NoOutput() bool {
	n.metaMu.RLock()
	defer n.metaMu.RUnlock()
	return n.meta.Bool(MetaNoOutput)
}

// IsFragment reports whether the node is a fragment of its parent.
func (n *Node) IsFragment() bool {
	n.metaMu.RLock()
	defer n.metaMu.RUnlock()
	return n.meta.Bool(MetaFragment)
}

// IsDirectory reports whether the node is a directory node.
func (n *Node) IsDirectory() bool {
	return strings.HasSuffix(n.cn, "/")
}

// Info returns a processing-only value. Node info is never persisted and never
// part of equality checks.
func (n *Node) Info(key string) (any, bool) {
	n.infoMu.Lock()
	defer n.infoMu.Unlock()
	v, ok := n.nodeInfo[key]
	return v, ok
}

// SetInfo stores a processing-only value.
func (n *Node) SetInfo(key string, value any) {
	n.infoMu.Lock()
	defer n.infoMu.Unlock()
	n.nodeInfo[key] = value
}

// DirACN returns the acn of the directory a relative reference starts from.
func (n *Node) DirACN() string {
	acn := n.acn
	if i := strings.IndexByte(acn, '#'); i >= 0 {
		acn = acn[:i]
	}
	if strings.HasSuffix(acn, "/") {
		return acn
	}
	dir := path.Dir(acn)
	if dir == "/" {
		return "/"
	}
	return dir + "/"
}

// AbsoluteRef turns a reference relative to this node into an absolute name.
func (n *Node) AbsoluteRef(ref string) string {
	switch {
	case ref == "":
		return n.acn
	case strings.HasPrefix(ref, "#"):
		base := n.acn
		if i := strings.IndexByte(base, '#'); i >= 0 {
			base = base[:i]
		}
		return base + ref
	case strings.HasPrefix(ref, "/"):
		return ref
	}
	frag := ""
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		ref, frag = ref[:i], ref[i:]
	}
	abs := path.Join(n.DirACN(), ref)
	if strings.HasSuffix(ref, "/") && abs != "/" {
		abs += "/"
	}
	return abs + frag
}

// Resolve resolves a reference relative to this node in the given language.
func (n *Node) Resolve(ref, lang string, fallback bool) *Node {
	if n.tree == nil {
		return nil
	}
	return n.tree.Resolve(n.AbsoluteRef(ref), lang, fallback)
}

// RouteTo returns the URL of other relative to this node's destination.
func (n *Node) RouteTo(other *Node) string {
	target := other.DestPath()
	if strings.Contains(target, "://") || n.destPath == "" {
		return target
	}
	frag := ""
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target, frag = target[:i], target[i:]
	}
	from := n.destPath
	if i := strings.IndexByte(from, '#'); i >= 0 {
		from = from[:i]
	}
	if target == from && frag != "" {
		return frag
	}
	fromDir := from
	if !strings.HasSuffix(fromDir, "/") {
		fromDir = path.Dir(fromDir)
	}
	rel := relativePath(fromDir, target)
	return rel + frag
}

func relativePath(fromDir, target string) string {
	fromParts := splitClean(fromDir)
	isDir := strings.HasSuffix(target, "/")
	targetParts := splitClean(target)
	i := 0
	for i < len(fromParts) && i < len(targetParts) && fromParts[i] == targetParts[i] {
		i++
	}
	var parts []string
	for range fromParts[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, targetParts[i:]...)
	rel := strings.Join(parts, "/")
	if isDir {
		if rel == "" {
			return "./"
		}
		rel += "/"
	}
	if rel == "" {
		return "."
	}
	return rel
}

func splitClean(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}
