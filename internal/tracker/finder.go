package tracker

import (
	"encoding/json"
	"fmt"
	"sort"

	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
)

// Query kinds understood by Find.
const (
	QueryMenu         = "menu"
	QueryAncestors    = "ancestors"
	QueryTranslations = "translations"
)

// DefaultMenuKey is the meta information flag selecting menu entries.
const DefaultMenuKey = "in_menu"

// Query describes a node finder request.
type Query struct {
	Kind    string `json:"kind"`
	ALCN    string `json:"alcn,omitempty"`
	Lang    string `json:"lang,omitempty"`
	MetaKey string `json:"meta,omitempty"`
}

// Key returns the canonical encoding used as item key.
func (q Query) Key() string {
	data, _ := json.Marshal(q)
	return string(data)
}

// ParseQuery decodes a query key.
func ParseQuery(key string) (Query, error) {
	var q Query
	if err := json.Unmarshal([]byte(key), &q); err != nil {
		return Query{}, fmt.Errorf("invalid node finder query %q: %w", key, err)
	}
	switch q.Kind {
	case QueryMenu, QueryAncestors, QueryTranslations:
	default:
		return Query{}, fmt.Errorf("unknown node finder query kind %q", q.Kind)
	}
	return q, nil
}

// Find evaluates q against tree.
//
// menu: all non-fragment nodes flagged with the meta key (default in_menu)
// in the query language or unlocalized, ordered by sort_info then alcn.
// ancestors: the parent chain of the node from the root down, excluding
// the node itself. translations: all nodes sharing the node's acn.
func Find(tree *node.Tree, q Query) []*node.Node {
	if tree == nil {
		return nil
	}
	switch q.Kind {
	case QueryMenu:
		key := q.MetaKey
		if key == "" {
			key = DefaultMenuKey
		}
		var out []*node.Node
		for _, n := range tree.Nodes() {
			if n.IsFragment() {
				continue
			}
			if v, ok := n.MetaValue(key); !ok || !truthy(v) {
				continue
			}
			if n.Lang() != "" && q.Lang != "" && n.Lang() != q.Lang {
				continue
			}
			out = append(out, n)
		}
		sort.SliceStable(out, func(i, j int) bool {
			si, sj := sortInfo(out[i]), sortInfo(out[j])
			if si != sj {
				return si < sj
			}
			return out[i].ALCN() < out[j].ALCN()
		})
		return out
	case QueryAncestors:
		n := tree.Node(q.ALCN)
		if n == nil {
			return nil
		}
		var chain []*node.Node
		for p := n.Parent(); p != nil; p = p.Parent() {
			chain = append([]*node.Node{p}, chain...)
		}
		return chain
	case QueryTranslations:
		n := tree.Node(q.ALCN)
		if n == nil {
			return nil
		}
		return tree.Translations(n)
	}
	return nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	case string:
		return x != "" && x != "false"
	}
	return true
}

func sortInfo(n *node.Node) int {
	v, ok := n.MetaValue("sort_info")
	if !ok {
		return 0
	}
	i, _ := metainfo.Info{"v": v}.Int("v")
	return i
}

func canonicalValue(v any) (string, error) {
	return metainfo.Info{"v": v}.Canonical()
}
