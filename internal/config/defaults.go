package config

import (
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/pathstyle"
)

// Default values applied to empty fields.
const (
	DefaultSourcePath    = "./src"
	DefaultOutputDir     = "./out"
	DefaultCachePath     = ".sitebuilder/cache.db"
	DefaultJournalPath   = ".sitebuilder/journal.db"
	DefaultLang          = "en"
	DefaultRenderWorkers = 4
	DefaultRenderTimeout = "30s"
	DefaultFileMode      = "mtime"
	DefaultDebounce      = "500ms"
	DefaultNotifySubject = "sitebuilder.website.generated"
	DefaultNotifyBackoff = "linear"
	DefaultMetricsListen = ":9090"
	DefaultMetricsPath   = "/metrics"
)

// DefaultIgnore skips hidden files and editor backups.
var DefaultIgnore = []string{"**/.*", "**/*~", "**/#*#"}

// Normalize case-folds enumerations and trims values. It returns notes about
// values it changed.
func (c *Config) Normalize() []string {
	var warnings []string
	if raw := string(c.Logging.Level); raw != "" {
		if lvl, err := ParseLogLevel(raw); err == nil && string(lvl) != raw {
			warnings = append(warnings, "normalized logging.level from '"+raw+"' to '"+string(lvl)+"'")
			c.Logging.Level = lvl
		}
	}
	if raw := string(c.Logging.Format); raw != "" {
		if f, err := ParseLogFormat(raw); err == nil && string(f) != raw {
			warnings = append(warnings, "normalized logging.format from '"+raw+"' to '"+string(f)+"'")
			c.Logging.Format = f
		}
	}
	c.Render.FileMode = strings.ToLower(strings.TrimSpace(c.Render.FileMode))
	c.Notify.Backoff = strings.ToLower(strings.TrimSpace(c.Notify.Backoff))
	c.Website.DefaultLang = strings.ToLower(strings.TrimSpace(c.Website.DefaultLang))
	return warnings
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.Website.DefaultLang == "" {
		c.Website.DefaultLang = DefaultLang
	}
	if len(c.Website.OutputPathStyle) == 0 {
		c.Website.OutputPathStyle = pathstyle.Default()
	}
	if len(c.Sources) == 0 {
		c.Sources = []SourceConfig{{Path: DefaultSourcePath}}
	}
	for i := range c.Sources {
		if c.Sources[i].Mount == "" {
			c.Sources[i].Mount = "/"
		}
	}
	if c.Ignore == nil {
		c.Ignore = append([]string(nil), DefaultIgnore...)
	}
	if c.Output.Directory == "" {
		c.Output.Directory = DefaultOutputDir
	}
	if c.Render.Workers == 0 {
		c.Render.Workers = DefaultRenderWorkers
	}
	if c.Render.Timeout == "" {
		c.Render.Timeout = DefaultRenderTimeout
	}
	if c.Render.FileMode == "" {
		c.Render.FileMode = DefaultFileMode
	}
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath
	}
	if c.Journal.Path == "" {
		c.Journal.Path = DefaultJournalPath
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = DefaultNotifySubject
	}
	if c.Notify.Backoff == "" {
		c.Notify.Backoff = DefaultNotifyBackoff
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Watch.Debounce == "" {
		c.Watch.Debounce = DefaultDebounce
	}
	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
}
