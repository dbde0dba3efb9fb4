package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/pathstyle"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("website:\n  name: docs\n"))
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.Website.DefaultLang)
	assert.Equal(t, pathstyle.Default(), cfg.Website.OutputPathStyle)
	assert.Equal(t, []SourceConfig{{Path: DefaultSourcePath, Mount: "/"}}, cfg.Sources)
	assert.Equal(t, DefaultIgnore, cfg.Ignore)
	assert.Equal(t, DefaultOutputDir, cfg.Output.Directory)
	assert.Equal(t, 4, cfg.Render.Workers)
	assert.Equal(t, 30*time.Second, cfg.RenderTimeout())
	assert.Equal(t, DefaultCachePath, cfg.Cache.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce())
	assert.Zero(t, cfg.WatchInterval())
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
}

func TestParse_FullDocument(t *testing.T) {
	t.Setenv("SITE_OUT", "/tmp/site")
	doc := `
website:
  default_lang: DE
  output_path_style: [":parent", ":basename", ".", ":ext"]
sources:
  - path: ./content
  - path: ./assets
    mount: /assets/
ignore: []
output:
  directory: ${SITE_OUT}
handlers:
  page:
    template: /main.template
patterns:
  page:
    patterns: ["**/*.page", "**/*.md"]
    rank: 90
render:
  workers: 8
  timeout: 5s
  file_mode: Content
watch:
  interval: 10m
logging:
  level: DEBUG
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "de", cfg.Website.DefaultLang)
	assert.Len(t, cfg.Website.OutputPathStyle, 4)
	assert.Equal(t, "/assets/", cfg.Sources[1].Mount)
	assert.Empty(t, cfg.Ignore)
	assert.Equal(t, "/tmp/site", cfg.Output.Directory)
	assert.Equal(t, "/main.template", cfg.Handlers["page"]["template"])
	require.NotNil(t, cfg.Patterns["page"].Rank)
	assert.Equal(t, 90, *cfg.Patterns["page"].Rank)
	assert.Equal(t, "content", cfg.Render.FileMode)
	assert.Equal(t, 10*time.Minute, cfg.WatchInterval())
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Warnings())
}

func TestParse_ValidationCollectsAllFields(t *testing.T) {
	doc := `
website:
  default_lang: english
render:
  workers: -1
  timeout: soon
notify:
  enabled: true
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	for _, field := range []string{"website.default_lang", "render.workers", "render.timeout", "notify.url"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("website: [\n"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitebuilder.yaml")
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "${NATS_URL}")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "my-site", cfg.Website.Name)
	assert.Equal(t, "except_default", cfg.Handlers["page"]["lang_in_dest_path"])
}

func TestLoadEnvFiles_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SB_A=file\nSB_B=file\n"), 0o600))
	t.Setenv("SB_A", "process")
	os.Unsetenv("SB_B")
	t.Cleanup(func() { os.Unsetenv("SB_B") })

	assert.Equal(t, []string{".env"}, loadEnvFiles())
	assert.Equal(t, "process", os.Getenv("SB_A"))
	assert.Equal(t, "file", os.Getenv("SB_B"))
}
