package metainfo

import (
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/glob"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/source"
)

// Resolver layers meta information, in increasing priority:
//
//  1. handler defaults
//  2. global per-handler overrides from the configuration
//  3. backing overlays whose pattern matches the path, in declaration order
//  4. meta information embedded in the path content
type Resolver struct {
	mu        sync.RWMutex
	defaults  map[string]Info
	overrides map[string]Info
	backings  []*Backing
	logger    *slog.Logger
}

// NewResolver creates a resolver with the configured per-handler overrides.
func NewResolver(overrides map[string]Info) *Resolver {
	if overrides == nil {
		overrides = map[string]Info{}
	}
	return &Resolver{
		defaults:  map[string]Info{},
		overrides: overrides,
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	r.logger = logger
	return r
}

// SetDefaults registers the compiled-in defaults of a handler.
func (r *Resolver) SetDefaults(handler string, defaults Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[handler] = defaults.Clone()
}

// Defaults returns the merged defaults and overrides of a handler.
func (r *Resolver) Defaults(handler string) Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults[handler].Merge(r.overrides[handler])
}

// AddBacking registers backing data. A backing with the same source replaces
// the earlier one in place so declaration order is kept.
func (r *Resolver) AddBacking(b *Backing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.backings {
		if existing.Source == b.Source {
			r.backings[i] = b
			return
		}
	}
	r.backings = append(r.backings, b)
	r.logger.Debug("Registered meta information backing",
		logfields.Backing(b.Source),
		slog.Int("overlays", len(b.Overlays)),
		slog.Int("output_entries", len(b.Output)))
}

// Resolve returns the effective meta information for p handled by handler,
// together with the backings that contributed to it.
func (r *Resolver) Resolve(handler string, p *source.Path, embedded Info) (Info, []*Backing) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := r.defaults[handler].Merge(r.overrides[handler])
	var contributors []*Backing
	if p != nil {
		for _, b := range r.backings {
			matched := false
			for _, o := range b.Overlays {
				if glob.Match(o.Pattern, p.Path) {
					info = info.Merge(o.Info)
					matched = true
				}
			}
			if matched {
				contributors = append(contributors, b)
			}
		}
		info = info.Merge(Info(p.Meta))
	}
	return info.Merge(embedded), contributors
}

// OutputEntries returns the output backing entries of all backings in
// declaration order, paired with the backing source.
func (r *Resolver) OutputEntries() []SourcedEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SourcedEntry
	for _, b := range r.backings {
		for _, e := range b.Output {
			out = append(out, SourcedEntry{Source: b.Source, File: b.File, OutputEntry: e})
		}
	}
	return out
}

// SourcedEntry is an OutputEntry tagged with the backing it came from.
type SourcedEntry struct {
	Source string
	File   string
	OutputEntry
}
