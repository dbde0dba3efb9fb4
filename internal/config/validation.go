package config

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
	"git.home.luguber.info/inful/sitebuilder/internal/source"
)

// FieldError is a single validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
}

// Validate checks the configuration after defaults were applied. All
// failures are reported together.
func (c *Config) Validate() error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, ok := source.NormalizeLang(c.Website.DefaultLang); !ok {
		add("website.default_lang", "unknown language %q", c.Website.DefaultLang)
	}
	for i, s := range c.Sources {
		if s.Path == "" {
			add(fmt.Sprintf("sources[%d].path", i), "must not be empty")
		}
		if !strings.HasPrefix(s.Mount, "/") {
			add(fmt.Sprintf("sources[%d].mount", i), "must be absolute, got %q", s.Mount)
		}
	}
	for name, p := range c.Patterns {
		if p.Patterns != nil && len(p.Patterns) == 0 {
			add("patterns."+name+".patterns", "must not be empty when set")
		}
	}
	if c.Render.Workers < 1 {
		add("render.workers", "must be at least 1")
	}
	if d, err := time.ParseDuration(c.Render.Timeout); err != nil || d <= 0 {
		add("render.timeout", "invalid duration %q", c.Render.Timeout)
	}
	if c.Render.FileMode != "mtime" && c.Render.FileMode != "content" {
		add("render.file_mode", "must be mtime or content, got %q", c.Render.FileMode)
	}
	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil || d < 0 {
		add("watch.debounce", "invalid duration %q", c.Watch.Debounce)
	}
	if c.Watch.Interval != "" {
		if d, err := time.ParseDuration(c.Watch.Interval); err != nil || d <= 0 {
			add("watch.interval", "invalid duration %q", c.Watch.Interval)
		}
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		add("notify.url", "required when notifications are enabled")
	}
	if c.Notify.MaxRetries < 0 {
		add("notify.max_retries", "cannot be negative")
	}
	if !retry.ValidMode(retry.BackoffMode(c.Notify.Backoff)) {
		add("notify.backoff", "must be fixed, linear or exponential, got %q", c.Notify.Backoff)
	}
	if _, err := ParseLogLevel(string(c.Logging.Level)); err != nil {
		add("logging.level", "%v", err)
	}
	if _, err := ParseLogFormat(string(c.Logging.Format)); err != nil {
		add("logging.format", "%v", err)
	}

	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	return errors.ValidationError("invalid configuration: "+strings.Join(messages, "; ")).
		WithContext("fields", len(errs)).
		Build()
}

// RenderTimeout returns the parsed render timeout.
func (c *Config) RenderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Render.Timeout)
	return d
}

// WatchDebounce returns the parsed debounce delay.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Watch.Debounce)
	return d
}

// WatchInterval returns the parsed periodic rebuild interval, zero when
// disabled.
func (c *Config) WatchInterval() time.Duration {
	if c.Watch.Interval == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Watch.Interval)
	return d
}
