package config

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var (
	logLevels = map[string]LogLevel{
		"debug": LogLevelDebug, "info": LogLevelInfo, "warn": LogLevelWarn,
		"warning": LogLevelWarn, "error": LogLevelError,
	}
	logFormats = map[string]LogFormat{"json": LogFormatJSON, "text": LogFormatText}
)

// ParseLogLevel normalizes raw; unknown values are an error.
func ParseLogLevel(raw string) (LogLevel, error) {
	return normalizeEnum("log level", logLevels, raw)
}

// ParseLogFormat normalizes raw; unknown values are an error.
func ParseLogFormat(raw string) (LogFormat, error) {
	return normalizeEnum("log format", logFormats, raw)
}

// SlogLevel maps the level onto slog.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func normalizeEnum[T ~string](name string, values map[string]T, raw string) (T, error) {
	if v, ok := values[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return v, nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var zero T
	return zero, fmt.Errorf("invalid %s %q, valid options: %v", name, raw, keys)
}
