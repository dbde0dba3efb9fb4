// Package metainfo computes the effective meta information of prospective nodes.
package metainfo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Info is a meta-information map.
type Info map[string]any

// Clone returns a deep copy of maps and slices.
func (i Info) Clone() Info {
	if i == nil {
		return Info{}
	}
	out := make(Info, len(i))
	for k, v := range i {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return map[string]any(Info(vv).Clone())
	case Info:
		return vv.Clone()
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	default:
		return v
	}
}

// Merge returns a new Info with other's keys applied on top of i.
func (i Info) Merge(other Info) Info {
	out := i.Clone()
	for k, v := range other {
		out[k] = cloneValue(v)
	}
	return out
}

// Has reports whether key is set.
func (i Info) Has(key string) bool {
	_, ok := i[key]
	return ok
}

// String returns the value of key rendered as a string, "" when missing.
func (i Info) String(key string) string {
	switch v := i[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the boolean value of key. Strings "true"/"yes" count as true.
func (i Info) Bool(key string) bool {
	switch v := i[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b || v == "yes"
	default:
		return false
	}
}

// Int returns the integer value of key and whether it was present and numeric.
func (i Info) Int(key string) (int, bool) {
	switch v := i[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// StringSlice returns a list value; a single string becomes a one element list.
func (i Info) StringSlice(key string) []string {
	switch v := i[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Map returns a nested map value.
func (i Info) Map(key string) Info {
	switch v := i[key].(type) {
	case map[string]any:
		return Info(v)
	case Info:
		return v
	default:
		return nil
	}
}

// Time returns a time value for key, parsing common date layouts.
func (i Info) Time(key string) (time.Time, bool) {
	switch v := i[key].(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Canonical returns a deterministic serialization suitable for comparison.
func (i Info) Canonical() (string, error) {
	out, err := SerializeYAML(i)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Digest returns the SHA-256 of the canonical serialization.
func (i Info) Digest() (string, error) {
	c, err := i.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(c))
	return hex.EncodeToString(sum[:]), nil
}
