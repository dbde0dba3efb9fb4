package node

import (
	"fmt"
	"sort"
	"sync"
)

// DuplicateNodeError is returned when registering a node whose alcn or
// destination path is already taken by another node.
type DuplicateNodeError struct {
	Field    string // "alcn" or "dest_path"
	Value    string
	Existing string // alcn of the node holding the value
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node: %s %q already taken by %s", e.Field, e.Value, e.Existing)
}

// Tree indexes nodes by alcn, acn, destination path and language.
type Tree struct {
	mu         sync.RWMutex
	root       *Node
	byALCN     map[string]*Node
	byACN      map[string][]*Node
	byDest     map[string]*Node
	generation uint64
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{
		byALCN: map[string]*Node{},
		byACN:  map[string][]*Node{},
		byDest: map[string]*Node{},
	}
}

// Register inserts n into all indices and links it to its parent.
func (t *Tree) Register(n *Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byALCN[n.alcn]; ok {
		if existing == n {
			return nil
		}
		return &DuplicateNodeError{Field: "alcn", Value: n.alcn, Existing: existing.alcn}
	}
	noOutput := n.NoOutput()
	if !noOutput && n.destPath != "" {
		if existing, ok := t.byDest[n.destPath]; ok && existing != n {
			return &DuplicateNodeError{Field: "dest_path", Value: n.destPath, Existing: existing.alcn}
		}
	}
	if n.parent == nil {
		if t.root != nil {
			return &DuplicateNodeError{Field: "alcn", Value: n.alcn, Existing: t.root.alcn}
		}
		t.root = n
	} else {
		if t.byALCN[n.parent.alcn] != n.parent {
			return fmt.Errorf("parent %s of %s is not registered", n.parent.alcn, n.alcn)
		}
		n.parent.children = append(n.parent.children, n)
	}

	n.tree = t
	t.byALCN[n.alcn] = n
	t.byACN[n.acn] = append(t.byACN[n.acn], n)
	if !noOutput && n.destPath != "" {
		t.byDest[n.destPath] = n
	}
	t.generation++
	return nil
}

// Root returns the root node, nil before it is registered.
func (t *Tree) Root() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Node looks up a node by alcn.
func (t *Tree) Node(alcn string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byALCN[alcn]
}

// NodeByDest looks up a node by destination path.
func (t *Tree) NodeByDest(dest string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byDest[dest]
}

// Resolve finds the node for an absolute reference. An explicitly localized
// alcn is returned directly; otherwise the node with the requested language
// is tried first, then (with fallback, or when lang is empty) the
// unlocalized node. Nil means not found.
func (t *Tree) Resolve(ref, lang string, fallback bool) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n, ok := t.byALCN[ref]; ok && n.lang != "" {
		return n
	}
	candidates := t.byACN[ref]
	if lang != "" {
		for _, c := range candidates {
			if c.lang == lang {
				return c
			}
		}
	}
	if lang == "" || fallback {
		for _, c := range candidates {
			if c.lang == "" {
				return c
			}
		}
	}
	return nil
}

// Translations returns all nodes sharing n's acn, sorted by language.
func (t *Tree) Translations(n *Node) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := append([]*Node(nil), t.byACN[n.acn]...)
	sort.Slice(out, func(i, j int) bool { return out[i].lang < out[j].lang })
	return out
}

// Delete removes n and its descendants from all indices.
func (t *Tree) Delete(n *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byALCN[n.alcn] != n {
		return
	}
	t.deleteLocked(n)
	if n.parent != nil {
		kids := n.parent.children[:0]
		for _, c := range n.parent.children {
			if c != n {
				kids = append(kids, c)
			}
		}
		n.parent.children = kids
	} else {
		t.root = nil
	}
	t.generation++
}

func (t *Tree) deleteLocked(n *Node) {
	for _, c := range n.children {
		t.deleteLocked(c)
	}
	n.children = nil
	delete(t.byALCN, n.alcn)
	if t.byDest[n.destPath] == n {
		delete(t.byDest, n.destPath)
	}
	same := t.byACN[n.acn][:0]
	for _, c := range t.byACN[n.acn] {
		if c != n {
			same = append(same, c)
		}
	}
	if len(same) == 0 {
		delete(t.byACN, n.acn)
	} else {
		t.byACN[n.acn] = same
	}
	n.tree = nil
}

// Nodes returns all nodes depth-first, children ordered by alcn.
func (t *Tree) Nodes() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		out = append(out, n)
		kids := append([]*Node(nil), n.children...)
		sort.Slice(kids, func(i, j int) bool { return kids[i].alcn < kids[j].alcn })
		for _, c := range kids {
			walk(c)
		}
	}
	if t.root != nil {
		walk(t.root)
	}
	return out
}

// Len returns the number of registered nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byALCN)
}

// Generation is incremented on every structural mutation. Memoized values
// derived from the tree store the generation they were computed at.
func (t *Tree) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}
