package website

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Destination receives the rendered output.
type Destination interface {
	// Exists reports whether something was written to dest before.
	Exists(ctx context.Context, dest string) (bool, error)
	Write(ctx context.Context, dest string, data []byte) error
}

// DirectoryIndex is the file written for destination paths ending in "/".
const DirectoryIndex = "index.html"

func destFile(dest string) string {
	if strings.HasSuffix(dest, "/") {
		dest += DirectoryIndex
	}
	return path.Clean("/" + dest)
}

// FileSystemDestination writes below a root directory.
type FileSystemDestination struct {
	Root string
}

// NewFileSystemDestination creates a destination writing below root.
func NewFileSystemDestination(root string) *FileSystemDestination {
	return &FileSystemDestination{Root: root}
}

func (d *FileSystemDestination) local(dest string) string {
	return filepath.Join(d.Root, filepath.FromSlash(destFile(dest)))
}

func (d *FileSystemDestination) Exists(_ context.Context, dest string) (bool, error) {
	_, err := os.Stat(d.local(dest))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.FileSystemError("cannot stat destination").
			WithCause(err).
			WithContext("dest_path", dest).
			Build()
	}
}

// Write replaces the file atomically through a temporary file in the same
// directory.
func (d *FileSystemDestination) Write(ctx context.Context, dest string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := d.local(dest)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return errors.FileSystemError("cannot create destination directory").
			WithCause(err).
			WithContext("dest_path", dest).
			Build()
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".sitebuilder-*")
	if err != nil {
		return errors.FileSystemError("cannot create temporary file").
			WithCause(err).
			WithContext("dest_path", dest).
			Build()
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), target)
	}
	if werr != nil {
		_ = os.Remove(tmp.Name())
		return errors.FileSystemError("cannot write destination").
			WithCause(werr).
			WithContext("dest_path", dest).
			Build()
	}
	return nil
}

// MemoryDestination keeps the output in memory.
type MemoryDestination struct {
	mu     sync.RWMutex
	files  map[string][]byte
	writes map[string]int
}

// NewMemoryDestination creates an empty in-memory destination.
func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{files: map[string][]byte{}, writes: map[string]int{}}
}

func (d *MemoryDestination) Exists(_ context.Context, dest string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.files[destFile(dest)]
	return ok, nil
}

func (d *MemoryDestination) Write(ctx context.Context, dest string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := destFile(dest)
	d.files[key] = append([]byte(nil), data...)
	d.writes[key]++
	return nil
}

// File returns the content written to dest.
func (d *MemoryDestination) File(dest string) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.files[destFile(dest)]
	return data, ok
}

// Remove deletes dest.
func (d *MemoryDestination) Remove(dest string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, destFile(dest))
}

// Paths returns the written paths, sorted.
func (d *MemoryDestination) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.files))
	for p := range d.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Writes returns how often dest was written.
func (d *MemoryDestination) Writes(dest string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.writes[destFile(dest)]
}
