package handler

import (
	"sort"

	"git.home.luguber.info/inful/sitebuilder/internal/extension"
	"git.home.luguber.info/inful/sitebuilder/internal/glob"
)

// Registration binds a handler to the path patterns it handles. Paths are
// handed to handlers in ascending rank.
type Registration struct {
	Handler  Handler
	Patterns []string
	Rank     int
}

// Matches reports whether p matches one of the patterns.
func (r Registration) Matches(p string) bool {
	for _, pattern := range r.Patterns {
		if glob.Match(pattern, p) {
			return true
		}
	}
	return false
}

// Registry maps handler names to their registrations.
type Registry = extension.Registry[Registration]

// Set is the standard handler set sharing one renderer.
type Set struct {
	Directory *Directory
	MetaInfo  *MetaInfo
	Template  *Template
	Page      *Page
	Copy      *Copy
	Virtual   *Virtual
}

// NewSet creates the built-in handlers.
func NewSet(r *Renderer) *Set {
	return &Set{
		Directory: NewDirectory(),
		MetaInfo:  NewMetaInfo(),
		Template:  NewTemplate(r),
		Page:      NewPage(r),
		Copy:      NewCopy(r),
		Virtual:   NewVirtual(r),
	}
}

// NewRegistry registers the handlers of s with their default patterns and
// ranks. The virtual handler has no patterns; it only serves output backing
// entries.
func NewRegistry(s *Set) *Registry {
	reg := extension.New[Registration]("path handler")
	reg.Register(s.MetaInfo.Name(), Registration{Handler: s.MetaInfo, Rank: 5,
		Patterns: []string{"**/metainfo", "**/*.metainfo"}})
	reg.Register(s.Directory.Name(), Registration{Handler: s.Directory, Rank: 10,
		Patterns: []string{"/", "**/"}})
	reg.Register(s.Template.Name(), Registration{Handler: s.Template, Rank: 50,
		Patterns: []string{"**/*.template"}})
	reg.Register(s.Page.Name(), Registration{Handler: s.Page, Rank: 100,
		Patterns: []string{"**/*.page"}})
	reg.Register(s.Copy.Name(), Registration{Handler: s.Copy, Rank: 100,
		Patterns: []string{
			"**/*.{css,js,map}",
			"**/*.{png,jpg,jpeg,gif,svg,ico,webp}",
			"**/*.{woff,woff2,ttf,otf,eot}",
			"**/*.{txt,xml,json,pdf}",
		}})
	reg.Register(s.Virtual.Name(), Registration{Handler: s.Virtual, Rank: 1000})
	return reg
}

// Ordered returns the registrations sorted by rank, then name.
func Ordered(reg *Registry) []Registration {
	names := reg.Names()
	out := make([]Registration, 0, len(names))
	for _, name := range names {
		r, _ := reg.Get(name)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// Match returns the lowest ranked registration whose patterns match p.
func Match(reg *Registry, p string) (Registration, bool) {
	for _, r := range Ordered(reg) {
		if r.Matches(p) {
			return r, true
		}
	}
	return Registration{}, false
}
