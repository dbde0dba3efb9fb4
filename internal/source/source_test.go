package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPath_NameParts(t *testing.T) {
	tests := []struct {
		path     string
		basename string
		lang     string
		ext      string
		sort     int
		hasSort  bool
	}{
		{"/index.page", "index", "", "page", 0, false},
		{"/index.en.page", "index", "en", "page", 0, false},
		{"/sub/about.DE.page", "about", "de", "page", 0, false},
		{"/10.news.page", "news", "", "page", 10, true},
		{"/jquery.min.js", "jquery", "", "min.js", 0, false},
		{"/README", "README", "", "", 0, false},
		{"/sub/", "sub", "", "", 0, false},
		{"/de.page", "de", "", "page", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p := NewPath(tt.path, nil)
			assert.Equal(t, tt.basename, p.Basename)
			assert.Equal(t, tt.lang, p.Lang)
			assert.Equal(t, tt.ext, p.Ext)
			assert.Equal(t, tt.sort, p.SortInfo)
			assert.Equal(t, tt.hasSort, p.HasSort)
		})
	}
}

func TestPath_Parent(t *testing.T) {
	assert.Equal(t, "", NewPath("/", nil).Parent())
	assert.Equal(t, "/", NewPath("/index.page", nil).Parent())
	assert.Equal(t, "/", NewPath("/sub/", nil).Parent())
	assert.Equal(t, "/sub/", NewPath("/sub/a.page", nil).Parent())
	assert.Equal(t, "/sub/", NewPath("/sub/deep/", nil).Parent())
}

func TestNormalizeLang(t *testing.T) {
	lang, ok := NormalizeLang("EN")
	require.True(t, ok)
	assert.Equal(t, "en", lang)

	_, ok = NormalizeLang("min")
	assert.False(t, ok)
	_, ok = NormalizeLang("x1")
	assert.False(t, ok)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
}

func TestCatalog_FiltersAndSynthesizesParents(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.page", "hello")
	writeFile(t, root, "sub/about.page", "about")
	writeFile(t, root, ".git/config", "x")
	writeFile(t, root, "sub/notes.page~", "backup")

	cat := &Catalog{
		Source: NewFileSystem(root, "/"),
		Ignore: []string{"**/.*", "**/*~"},
	}
	paths, err := cat.Paths(t.Context())
	require.NoError(t, err)

	var got []string
	for _, p := range paths {
		got = append(got, p.Path)
	}
	assert.Equal(t, []string{"/", "/index.page", "/sub/", "/sub/about.page"}, got)

	data, err := paths[1].Bytes()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, filepath.Join(root, "index.page"), paths[1].SourcePath)
}

func TestStacked_LaterMountsWin(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	writeFile(t, a, "style.css", "a")
	writeFile(t, b, "style.css", "b")
	writeFile(t, b, "logo.png", "png")

	cat := &Catalog{Source: &Stacked{Sources: []Source{
		NewFileSystem(a, "/assets"),
		NewFileSystem(b, "/assets/"),
	}}}
	paths, err := cat.Paths(t.Context())
	require.NoError(t, err)

	byPath := map[string]*Path{}
	for _, p := range paths {
		byPath[p.Path] = p
	}
	require.Contains(t, byPath, "/")
	require.Contains(t, byPath, "/assets/")
	css := byPath["/assets/style.css"]
	require.NotNil(t, css)
	data, err := css.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
	assert.Equal(t, "/assets/", css.MountPoint)
}

func TestPath_WithContent(t *testing.T) {
	p := NewPath("/a.page", nil)
	cp := p.WithContent([]byte("body"))
	data, err := cp.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "body", string(data))
	assert.Equal(t, "a", cp.Basename)
}
