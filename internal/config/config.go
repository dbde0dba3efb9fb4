// Package config loads the YAML configuration of a site.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/pathstyle"
)

// Config is the complete site configuration.
type Config struct {
	Website  WebsiteConfig                `yaml:"website"`
	Sources  []SourceConfig               `yaml:"sources"`
	Ignore   []string                     `yaml:"ignore"`
	Output   OutputConfig                 `yaml:"output"`
	Handlers map[string]map[string]any    `yaml:"handlers,omitempty"`
	Patterns map[string]PatternConfig     `yaml:"patterns,omitempty"`
	Render   RenderConfig                 `yaml:"render"`
	Cache    CacheConfig                  `yaml:"cache"`
	Journal  JournalConfig                `yaml:"journal"`
	Notify   NotifyConfig                 `yaml:"notify"`
	Metrics  MetricsConfig                `yaml:"metrics"`
	Watch    WatchConfig                  `yaml:"watch"`
	Logging  LoggingConfig                `yaml:"logging"`

	warnings []string
}

// Warnings returns the notes collected while normalizing the document.
func (c *Config) Warnings() []string { return c.warnings }

// WebsiteConfig holds site wide settings.
type WebsiteConfig struct {
	Name            string          `yaml:"name,omitempty"`
	DefaultLang     string          `yaml:"default_lang"`
	OutputPathStyle pathstyle.Style `yaml:"output_path_style,omitempty"`
	IncludeDrafts   bool            `yaml:"include_drafts,omitempty"`
}

// SourceConfig mounts a directory into the site.
type SourceConfig struct {
	Path  string `yaml:"path"`
	Mount string `yaml:"mount,omitempty"`
	// Glob restricts the files taken from the directory.
	Glob string `yaml:"glob,omitempty"`
}

// OutputConfig selects where rendered files go.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// PatternConfig overrides the patterns or rank of a path handler.
type PatternConfig struct {
	Patterns []string `yaml:"patterns,omitempty"`
	Rank     *int     `yaml:"rank,omitempty"`
}

// RenderConfig tunes the write pass.
type RenderConfig struct {
	Workers int    `yaml:"workers"`
	Timeout string `yaml:"timeout"`
	// FileMode is "mtime" or "content".
	FileMode string `yaml:"file_mode"`
}

// CacheConfig locates the cache store. An empty path keeps it in memory.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig enables the SQLite run journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// NotifyConfig enables NATS run notifications.
type NotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url,omitempty"`
	Subject   string `yaml:"subject,omitempty"`
	JetStream bool   `yaml:"jetstream,omitempty"`
	KVBucket  string `yaml:"kv_bucket,omitempty"`
	// MaxRetries is the number of extra publish attempts; zero disables
	// retrying.
	MaxRetries int    `yaml:"max_retries,omitempty"`
	Backoff    string `yaml:"backoff,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint in watch mode.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
	// Interval triggers a rebuild periodically; empty disables it.
	Interval string `yaml:"interval,omitempty"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads configPath, expands environment variables, applies defaults
// and validates the result. .env files are loaded first without overriding
// the process environment.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.ConfigError("failed to read config file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// Parse decodes data as a configuration document.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.ConfigError("failed to parse config").WithCause(err).Build()
	}
	cfg.warnings = cfg.Normalize()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}
	example := Config{
		Website: WebsiteConfig{Name: "my-site"},
		Sources: []SourceConfig{{Path: "./src", Mount: "/"}},
		Output:  OutputConfig{Directory: "./out"},
		Handlers: map[string]map[string]any{
			"page": {"lang_in_dest_path": "except_default"},
		},
		Notify: NotifyConfig{URL: "${NATS_URL}", MaxRetries: 2},
	}
	example.ApplyDefaults()

	data, err := yaml.Marshal(&example)
	if err != nil {
		return errors.ConfigError("failed to marshal example config").WithCause(err).Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.FileSystemError("failed to write config file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return nil
}
