package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/glob"
)

// Source enumerates paths. Implementations do not apply ignore rules.
type Source interface {
	Paths(ctx context.Context) ([]*Path, error)
}

// FileSystem is a Source backed by a directory on disk, mounted under Mount.
type FileSystem struct {
	Root  string
	Mount string
	// Glob restricts the returned file paths; empty means all.
	Glob string
}

// NewFileSystem creates a filesystem source mounted at mount ("/" when empty).
func NewFileSystem(root, mount string) *FileSystem {
	return &FileSystem{Root: root, Mount: normalizeMount(mount)}
}

// Paths walks the root directory.
func (f *FileSystem) Paths(ctx context.Context) ([]*Path, error) {
	mount := normalizeMount(f.Mount)
	var out []*Path
	err := filepath.WalkDir(f.Root, func(fsPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(f.Root, fsPath)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		var sitePath string
		switch {
		case rel == ".":
			sitePath = mount
		case d.IsDir():
			sitePath = mount + rel + "/"
		default:
			sitePath = mount + rel
		}
		if !d.IsDir() && f.Glob != "" && !glob.Match(f.Glob, sitePath) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		var open func() (io.ReadCloser, error)
		if !d.IsDir() {
			local := fsPath
			open = func() (io.ReadCloser, error) {
				// #nosec G304 - path comes from walking the configured source root
				return os.Open(local)
			}
		}
		p := NewPath(sitePath, open)
		p.MountPoint = mount
		p.SourcePath = fsPath
		p.ModTime = info.ModTime()
		p.Size = info.Size()
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source %s: %w", f.Root, err)
	}
	return out, nil
}

// Stacked combines several sources; paths from later sources replace earlier ones.
type Stacked struct {
	Sources []Source
}

// Paths returns the union of all source paths.
func (s *Stacked) Paths(ctx context.Context) ([]*Path, error) {
	byPath := make(map[string]*Path)
	var order []string
	for _, src := range s.Sources {
		paths, err := src.Paths(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if _, seen := byPath[p.Path]; !seen {
				order = append(order, p.Path)
			}
			byPath[p.Path] = p
		}
	}
	out := make([]*Path, 0, len(order))
	for _, k := range order {
		out = append(out, byPath[k])
	}
	return out, nil
}

// Catalog applies ignore patterns to a Source and guarantees that every path's
// parent directories are present.
type Catalog struct {
	Source Source
	Ignore []string
}

// Paths returns the filtered, sorted path set.
func (c *Catalog) Paths(ctx context.Context) ([]*Path, error) {
	paths, err := c.Source.Paths(ctx)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*Path, len(paths))
	for _, p := range paths {
		if c.ignored(p.Path) {
			continue
		}
		byPath[p.Path] = p
	}
	for _, p := range byPath {
		for parent := p.Parent(); parent != ""; {
			if _, ok := byPath[parent]; ok {
				break
			}
			dir := NewPath(parent, nil)
			byPath[parent] = dir
			parent = dir.Parent()
		}
	}
	out := make([]*Path, 0, len(byPath))
	for _, p := range byPath {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ignored reports whether the path or any of its ancestors matches an ignore pattern.
func (c *Catalog) ignored(p string) bool {
	if p == "/" {
		return false
	}
	if glob.MatchAny(c.Ignore, p) {
		return true
	}
	trimmed := strings.TrimSuffix(p, "/")
	for dir := path.Dir(trimmed); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if glob.MatchAny(c.Ignore, dir+"/") {
			return true
		}
	}
	return false
}

func normalizeMount(m string) string {
	if m == "" {
		return "/"
	}
	if !strings.HasPrefix(m, "/") {
		m = "/" + m
	}
	if !strings.HasSuffix(m, "/") {
		m += "/"
	}
	return m
}
