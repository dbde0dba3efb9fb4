// Package source enumerates candidate source paths from mounted source roots.
package source

import (
	"bytes"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
)

// Path identifies one source entry for a single run. Directory paths end in "/".
type Path struct {
	Path       string // site-absolute path, e.g. /sub/index.en.page
	MountPoint string // mount prefix of the source that produced the path
	SourcePath string // filesystem location, empty for synthesized paths

	Basename string
	Ext      string
	Lang     string
	SortInfo int
	HasSort  bool

	ModTime time.Time
	Size    int64

	// Meta holds meta information attached by the source or the resolver.
	Meta map[string]any

	open func() (io.ReadCloser, error)
	once sync.Once
	data []byte
	err  error
}

// NewPath creates a path and derives its name parts. open may be nil for
// directories and synthesized paths.
func NewPath(p string, open func() (io.ReadCloser, error)) *Path {
	sp := &Path{Path: p, MountPoint: "/", open: open, Meta: map[string]any{}}
	sp.parseName()
	return sp
}

// IsDir reports whether the path denotes a directory.
func (p *Path) IsDir() bool {
	return strings.HasSuffix(p.Path, "/")
}

// Name returns the last segment, without trailing slash for directories.
func (p *Path) Name() string {
	return path.Base(strings.TrimSuffix(p.Path, "/"))
}

// Parent returns the parent directory path, or "" for the root.
func (p *Path) Parent() string {
	if p.Path == "/" {
		return ""
	}
	dir := path.Dir(strings.TrimSuffix(p.Path, "/"))
	if dir == "/" {
		return "/"
	}
	return dir + "/"
}

// Open returns a reader for the path content.
func (p *Path) Open() (io.ReadCloser, error) {
	if p.open == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return p.open()
}

// Bytes reads the whole content once and memoizes it for the run.
func (p *Path) Bytes() ([]byte, error) {
	p.once.Do(func() {
		rc, err := p.Open()
		if err != nil {
			p.err = err
			return
		}
		defer func() { _ = rc.Close() }()
		p.data, p.err = io.ReadAll(rc)
	})
	return p.data, p.err
}

// WithContent returns a copy of the path whose reader yields data.
func (p *Path) WithContent(data []byte) *Path {
	cp := &Path{
		Path: p.Path, MountPoint: p.MountPoint, SourcePath: p.SourcePath,
		Basename: p.Basename, Ext: p.Ext, Lang: p.Lang, SortInfo: p.SortInfo, HasSort: p.HasSort,
		ModTime: p.ModTime, Size: int64(len(data)), Meta: map[string]any{},
	}
	for k, v := range p.Meta {
		cp.Meta[k] = v
	}
	cp.open = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil }
	return cp
}

// parseName splits "[sortinfo.]basename[.lang].ext" into its parts.
func (p *Path) parseName() {
	name := p.Name()
	if p.Path == "/" {
		name = ""
	}
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[0]); err == nil && parts[1] != "" {
			p.SortInfo, p.HasSort = n, true
			parts = parts[1:]
		}
	}
	p.Basename = parts[0]
	rest := parts[1:]
	if len(rest) >= 2 {
		if lang, ok := NormalizeLang(rest[0]); ok {
			p.Lang = lang
			rest = rest[1:]
		}
	}
	p.Ext = strings.Join(rest, ".")
}

// NormalizeLang canonicalizes a two letter language code. The second result is
// false when s is not a known language.
func NormalizeLang(s string) (string, bool) {
	if len(s) != 2 {
		return "", false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return "", false
		}
	}
	base, err := language.ParseBase(strings.ToLower(s))
	if err != nil {
		return "", false
	}
	return base.String(), true
}
