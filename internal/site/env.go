// Package site holds the per-run environment shared by handlers and content
// processors.
package site

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
	"git.home.luguber.info/inful/sitebuilder/internal/node"
	"git.home.luguber.info/inful/sitebuilder/internal/pathstyle"
	"git.home.luguber.info/inful/sitebuilder/internal/tracker"
)

// BlockRenderer renders named content blocks of nodes.
type BlockRenderer interface {
	// RenderBlock renders block of n for dest. With withTemplate set the
	// result is wrapped in n's template chain.
	RenderBlock(ctx context.Context, n *node.Node, block string, dest *node.Node, withTemplate bool) (string, error)
}

// DirectoryIndexer finds the index node of a directory node.
type DirectoryIndexer interface {
	// IndexNode returns the index node of dir in lang and the absolute
	// reference it was looked up by. The node is nil when none exists.
	IndexNode(dir *node.Node, lang string) (*node.Node, string)
}

// Env is the environment of one run. The tree, tracker and cache are
// replaced (or reset) at the start of every run.
type Env struct {
	Tree        *node.Tree
	Tracker     *tracker.Tracker
	Resolver    *metainfo.Resolver
	Cache       *cache.Store
	Renderer    BlockRenderer
	Indexer     DirectoryIndexer
	Logger      *slog.Logger
	DefaultLang string
	OutputStyle pathstyle.Style
	Now         func() time.Time
}

// Log returns the configured logger or the default one.
func (e *Env) Log() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Time returns the current time of the run.
func (e *Env) Time() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Track records an item for n, logging instead of failing when the item
// cannot be identified.
func (e *Env) Track(n *node.Node, kind, ref string) {
	if e == nil || e.Tracker == nil || n == nil {
		return
	}
	if err := e.Tracker.Add(n, kind, ref); err != nil {
		e.Log().Debug("Cannot track item",
			logfields.ALCN(n.ALCN()),
			logfields.ItemKind(kind),
			logfields.ItemID(ref),
			logfields.Error(err))
	}
}

// RenderError is a failure scoped to a single node. It names the node being
// rendered, the node whose content failed (they differ when a block of
// another node was embedded) and, when known, the line in that content.
type RenderError struct {
	ALCN      string
	RefALCN   string
	Processor string
	Line      int
	Err       error

	classified *errors.ClassifiedError
}

// NewRenderError creates a render error for dest while processing ref.
func NewRenderError(dest, ref *node.Node, processor string, line int, err error) *RenderError {
	e := &RenderError{Processor: processor, Line: line, Err: err}
	if dest != nil {
		e.ALCN = dest.ALCN()
	}
	if ref != nil {
		e.RefALCN = ref.ALCN()
	} else {
		e.RefALCN = e.ALCN
	}
	b := errors.RenderError("render failed").
		WithCause(err).
		WithContext("alcn", e.ALCN).
		WithContext("ref_alcn", e.RefALCN)
	if processor != "" {
		b = b.WithContext("processor", processor)
	}
	if line > 0 {
		b = b.WithContext("line", line)
	}
	e.classified = b.Build()
	return e
}

func (e *RenderError) Error() string {
	loc := e.RefALCN
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Processor != "" {
		return fmt.Sprintf("render %s (%s, %s): %v", e.ALCN, loc, e.Processor, e.Err)
	}
	return fmt.Sprintf("render %s (%s): %v", e.ALCN, loc, e.Err)
}

// Unwrap exposes the classified error, which in turn wraps the cause.
func (e *RenderError) Unwrap() error { return e.classified }
