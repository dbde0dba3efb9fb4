// Package glob matches source paths against the glob patterns used by ignore
// rules, path-handler patterns and meta-information backing overlays.
//
// Supported syntax:
//
//	**      any number of path segments, including none
//	*       any run of characters inside one segment
//	?       a single character inside one segment
//	{a,b}   alternatives
//
// A pattern ending in "/" only matches directory paths. Any other pattern
// matches file paths and, with the trailing slash removed, directory paths.
// The final extension of the path is compared case-insensitively.
package glob

import (
	"regexp"
	"strings"
	"sync"
)

var (
	mu    sync.RWMutex
	cache = map[string]*regexp.Regexp{}
)

// Match reports whether path matches pattern.
func Match(pattern, path string) bool {
	if pattern == "" || path == "" {
		return false
	}
	isDir := strings.HasSuffix(path, "/") && path != "/"
	dirPattern := strings.HasSuffix(pattern, "/") && pattern != "/"

	if dirPattern && !isDir {
		return false
	}
	candidate := path
	if isDir {
		candidate = strings.TrimSuffix(path, "/")
	}
	if dirPattern {
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if pattern == "/" || path == "/" {
		return pattern == path
	}

	re := compile(pattern)
	if re.MatchString(candidate) {
		return true
	}
	lowered := lowerExt(candidate)
	if lowered != candidate || lowerExt(pattern) != pattern {
		return compile(lowerExt(pattern)).MatchString(lowered)
	}
	return false
}

// MatchAny reports whether path matches at least one of the patterns.
func MatchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if Match(p, path) {
			return true
		}
	}
	return false
}

// lowerExt lowercases the part after the last dot of the last segment.
func lowerExt(s string) string {
	slash := strings.LastIndexByte(s, '/')
	dot := strings.LastIndexByte(s, '.')
	if dot <= slash {
		return s
	}
	return s[:dot] + strings.ToLower(s[dot:])
}

func compile(pattern string) *regexp.Regexp {
	mu.RLock()
	re, ok := cache[pattern]
	mu.RUnlock()
	if ok {
		return re
	}
	re = regexp.MustCompile("^" + translate(pattern) + "$")
	mu.Lock()
	cache[pattern] = re
	mu.Unlock()
	return re
}

func translate(pattern string) string {
	var b strings.Builder
	inAlt := 0
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
				// "**/" also matches zero directories.
				if i+1 < len(pattern) && pattern[i+1] == '/' {
					i++
					b.WriteString(`(?:.*/)?`)
				} else {
					b.WriteString(`.*`)
				}
				continue
			}
			b.WriteString(`[^/]*`)
		case '?':
			b.WriteString(`[^/]`)
		case '{':
			inAlt++
			b.WriteString(`(?:`)
		case '}':
			if inAlt > 0 {
				inAlt--
				b.WriteString(`)`)
			} else {
				b.WriteString(`\}`)
			}
		case ',':
			if inAlt > 0 {
				b.WriteString(`|`)
			} else {
				b.WriteString(`,`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	for ; inAlt > 0; inAlt-- {
		b.WriteString(`)`)
	}
	return b.String()
}
