package tracker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/inful/mdfp"

	"git.home.luguber.info/inful/sitebuilder/internal/extension"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
)

// Item kind names.
const (
	KindFile          = "file"
	KindNodeMetaInfo  = "node_meta_info"
	KindNodeContent   = "node_content"
	KindNodeExistence = "node_existence"
	KindNodeFinder    = "node_finder"
)

// ErrUnresolvable is returned by kinds whose referent no longer exists.
var ErrUnresolvable = errors.New("item can no longer be resolved")

// Kind is one sort of trackable item.
type Kind interface {
	// Identify canonicalizes a raw reference made while processing from.
	Identify(t *Tracker, from *node.Node, ref string) (string, error)
	// Snapshot computes the comparable value of an item.
	Snapshot(t *Tracker, key string) (string, error)
	// ReferencedNodes returns the alcns whose output the item implicates.
	ReferencedNodes(t *Tracker, key string) []string
}

// ChangeDetector is implemented by kinds that decide changes themselves
// instead of comparing snapshots.
type ChangeDetector interface {
	ItemChanged(c *ChangeContext, key, previous string) (bool, error)
}

// Kinds is a registry of item kinds.
type Kinds = extension.Registry[Kind]

// Fingerprint modes of the file kind.
const (
	FileModeMTime   = "mtime"
	FileModeContent = "content"
)

// DefaultKinds returns a registry with all built-in kinds. fileMode selects
// how file items are compared (FileModeMTime or FileModeContent).
func DefaultKinds(fileMode string) *Kinds {
	r := extension.New[Kind]("item kind")
	r.Register(KindFile, FileKind{Mode: fileMode})
	r.Register(KindNodeMetaInfo, MetaInfoKind{})
	r.Register(KindNodeContent, ContentKind{})
	r.Register(KindNodeExistence, ExistenceKind{})
	r.Register(KindNodeFinder, FinderKind{})
	return r
}

// FileKind tracks source files on disk by modification time and size, or
// by content fingerprint.
type FileKind struct {
	Mode string
}

func (FileKind) Identify(_ *Tracker, _ *node.Node, ref string) (string, error) {
	if ref == "" {
		return "", errors.New("empty file reference")
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func (k FileKind) Snapshot(_ *Tracker, key string) (string, error) {
	info, err := os.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrUnresolvable, key)
		}
		return "", err
	}
	if k.Mode != FileModeContent || info.IsDir() {
		return fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size()), nil
	}
	// #nosec G304 - key is a tracked source file
	data, err := os.ReadFile(key)
	if err != nil {
		return "", err
	}
	return mdfp.CalculateFingerprintFromParts("", string(data)), nil
}

func (FileKind) ReferencedNodes(*Tracker, string) []string { return nil }

const metaKeySep = "|"

// MetaInfoKey builds the reference for a single meta information key of a
// node. An empty key tracks the whole map.
func MetaInfoKey(alcn, key string) string {
	if key == "" {
		return alcn
	}
	return alcn + metaKeySep + key
}

// MetaInfoKind tracks the meta information of a node, whole or one key.
type MetaInfoKind struct{}

func (MetaInfoKind) Identify(t *Tracker, from *node.Node, ref string) (string, error) {
	target, key, _ := strings.Cut(ref, metaKeySep)
	n := lookup(t, from, target)
	if n == nil {
		return "", fmt.Errorf("%w: node %s", ErrUnresolvable, target)
	}
	return MetaInfoKey(n.ALCN(), key), nil
}

func (MetaInfoKind) Snapshot(t *Tracker, key string) (string, error) {
	alcn, metaKey, _ := strings.Cut(key, metaKeySep)
	n := t.Tree().Node(alcn)
	if n == nil {
		return "", fmt.Errorf("%w: node %s", ErrUnresolvable, alcn)
	}
	meta := n.Meta()
	if metaKey != "" {
		v, ok := meta[metaKey]
		if !ok {
			return "\x00missing", nil
		}
		return canonicalValue(v)
	}
	return meta.Canonical()
}

func (MetaInfoKind) ReferencedNodes(_ *Tracker, key string) []string {
	alcn, _, _ := strings.Cut(key, metaKeySep)
	return []string{alcn}
}

// ContentKind tracks the rendered content of another node: it changed when
// the referenced node is dirty itself.
type ContentKind struct{}

func (ContentKind) Identify(t *Tracker, from *node.Node, ref string) (string, error) {
	n := lookup(t, from, ref)
	if n == nil {
		return "", fmt.Errorf("%w: node %s", ErrUnresolvable, ref)
	}
	return n.ALCN(), nil
}

func (ContentKind) Snapshot(t *Tracker, key string) (string, error) {
	if t.Tree().Node(key) == nil {
		return "", fmt.Errorf("%w: node %s", ErrUnresolvable, key)
	}
	return key, nil
}

func (ContentKind) ItemChanged(c *ChangeContext, key, _ string) (bool, error) {
	n := c.tracker.Tree().Node(key)
	if n == nil {
		return true, nil
	}
	return c.NodeChanged(n), nil
}

func (ContentKind) ReferencedNodes(_ *Tracker, key string) []string { return []string{key} }

const existenceSep = "\x1f"

// ExistenceKind tracks what a reference resolves to. The snapshot is the
// alcn of the resolved node, empty when the reference is broken, so links
// that start or stop resolving surface as changes.
type ExistenceKind struct{}

// ExistenceKey builds the canonical key of an absolute reference resolved
// in lang.
func ExistenceKey(absRef, lang string) string {
	return absRef + existenceSep + lang
}

func (ExistenceKind) Identify(_ *Tracker, from *node.Node, ref string) (string, error) {
	if from == nil {
		return "", errors.New("node_existence needs a referencing node")
	}
	if strings.Contains(ref, existenceSep) {
		return ref, nil
	}
	return ExistenceKey(from.AbsoluteRef(ref), from.Lang()), nil
}

func (ExistenceKind) Snapshot(t *Tracker, key string) (string, error) {
	ref, lang, _ := strings.Cut(key, existenceSep)
	if n := t.Tree().Resolve(ref, lang, true); n != nil {
		return n.ALCN(), nil
	}
	return "", nil
}

func (k ExistenceKind) ReferencedNodes(t *Tracker, key string) []string {
	if alcn, err := k.Snapshot(t, key); err == nil && alcn != "" {
		return []string{alcn}
	}
	return nil
}

// FinderKind tracks the result of a node query: the ordered list of matched
// alcns together with their titles. Structural changes (a node entering the
// menu, a renamed title) therefore surface as data changes.
type FinderKind struct{}

func (FinderKind) Identify(_ *Tracker, _ *node.Node, ref string) (string, error) {
	q, err := ParseQuery(ref)
	if err != nil {
		return "", err
	}
	return q.Key(), nil
}

func (FinderKind) Snapshot(t *Tracker, key string) (string, error) {
	q, err := ParseQuery(key)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, n := range Find(t.Tree(), q) {
		b.WriteString(n.ALCN())
		b.WriteByte('\t')
		b.WriteString(n.Title())
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func (FinderKind) ReferencedNodes(t *Tracker, key string) []string {
	q, err := ParseQuery(key)
	if err != nil {
		return nil
	}
	var out []string
	for _, n := range Find(t.Tree(), q) {
		out = append(out, n.ALCN())
	}
	return out
}

func lookup(t *Tracker, from *node.Node, ref string) *node.Node {
	tree := t.Tree()
	if tree == nil {
		return nil
	}
	if n := tree.Node(ref); n != nil {
		return n
	}
	if from != nil {
		return from.Resolve(ref, from.Lang(), true)
	}
	return tree.Resolve(ref, "", true)
}
