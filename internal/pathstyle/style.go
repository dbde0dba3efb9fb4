// Package pathstyle builds output paths from table-driven style
// specifications.
//
// A style is a sequence of literal strings, placeholders (":basename",
// ":lang", ...) and nested sequences. A nested sequence collapses to nothing
// when any placeholder inside it is empty, which lets separators disappear
// together with the value they belong to:
//
//	[":parent", ":basename", [".", ":lang"], ".", ":ext"]
//
// yields "/sub/about.html" for the default language and
// "/sub/about.de.html" for German.
package pathstyle

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Placeholders understood by Construct.
const (
	Parent   = ":parent"
	Basename = ":basename"
	Lang     = ":lang"
	Ext      = ":ext"
	Year     = ":year"
	Month    = ":month"
	Day      = ":day"
	SortInfo = ":sortinfo"
)

// Element is one entry of a style: a literal, a placeholder or a nested group.
type Element struct {
	Literal     string
	Placeholder string
	Group       Style
}

// Style is an output path specification.
type Style []Element

// Default returns the style used when neither configuration nor meta
// information provides one.
func Default() Style {
	return Style{
		{Placeholder: Parent},
		{Placeholder: Basename},
		{Group: Style{{Literal: "."}, {Placeholder: Lang}}},
		{Literal: "."},
		{Placeholder: Ext},
	}
}

// Parse converts a decoded YAML/JSON value ([]any of strings and nested
// slices) into a Style.
func Parse(v any) (Style, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, errors.ConfigError(fmt.Sprintf("output path style must be a sequence, got %T", v)).Build()
	}
	style := make(Style, 0, len(items))
	for _, item := range items {
		switch x := item.(type) {
		case string:
			style = append(style, element(x))
		case []any:
			group, err := Parse(x)
			if err != nil {
				return nil, err
			}
			style = append(style, Element{Group: group})
		default:
			return nil, errors.ConfigError(fmt.Sprintf("invalid output path style element %v (%T)", x, x)).Build()
		}
	}
	return style, nil
}

func element(s string) Element {
	if strings.HasPrefix(s, ":") && len(s) > 1 {
		return Element{Placeholder: s}
	}
	return Element{Literal: s}
}

// UnmarshalYAML decodes a style from a YAML sequence.
func (s *Style) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML encodes the style back into nested sequences.
func (s Style) MarshalYAML() (any, error) {
	return s.raw(), nil
}

func (s Style) raw() []any {
	out := make([]any, 0, len(s))
	for _, e := range s {
		switch {
		case e.Group != nil:
			out = append(out, e.Group.raw())
		case e.Placeholder != "":
			out = append(out, e.Placeholder)
		default:
			out = append(out, e.Literal)
		}
	}
	return out
}

// Language segment modes.
const (
	LangExceptDefault = "except_default"
	LangAlways        = "always"
	LangNever         = "never"
)

// Values are the inputs placeholders are filled from.
type Values struct {
	Parent      string // destination directory of the parent node, with trailing slash
	Basename    string
	Lang        string
	DefaultLang string
	// LangMode decides when :lang is filled; empty means LangExceptDefault.
	LangMode string
	Ext      string
	SortInfo string
	Date     time.Time
}

// Construct applies style to v. The language segment follows v.LangMode
// unless forceLang is set, in which case it is present whenever the node
// has a language. Unknown placeholders are reported as configuration
// errors and treated as empty.
func Construct(style Style, v Values, forceLang bool) (string, []error) {
	var errs []error
	out, _ := construct(style, v, forceLang, &errs)
	return out, errs
}

func construct(style Style, v Values, forceLang bool, errs *[]error) (string, bool) {
	var b strings.Builder
	complete := true
	for _, e := range style {
		switch {
		case e.Group != nil:
			if s, ok := construct(e.Group, v, forceLang, errs); ok {
				b.WriteString(s)
			}
		case e.Placeholder != "":
			s := v.value(e.Placeholder, forceLang, errs)
			if s == "" {
				complete = false
			}
			b.WriteString(s)
		default:
			b.WriteString(e.Literal)
		}
	}
	return b.String(), complete
}

func (v Values) value(placeholder string, forceLang bool, errs *[]error) string {
	switch placeholder {
	case Parent:
		return v.Parent
	case Basename:
		return v.Basename
	case Lang:
		switch {
		case v.Lang == "":
			return ""
		case forceLang || v.LangMode == LangAlways:
			return v.Lang
		case v.LangMode == LangNever || v.Lang == v.DefaultLang:
			return ""
		}
		return v.Lang
	case Ext:
		return v.Ext
	case SortInfo:
		return v.SortInfo
	case Year, Month, Day:
		if v.Date.IsZero() {
			return ""
		}
		switch placeholder {
		case Year:
			return fmt.Sprintf("%04d", v.Date.Year())
		case Month:
			return fmt.Sprintf("%02d", int(v.Date.Month()))
		default:
			return fmt.Sprintf("%02d", v.Date.Day())
		}
	}
	*errs = append(*errs, errors.ConfigError(fmt.Sprintf("unknown output path placeholder %s", placeholder)).
		WithContext("placeholder", placeholder).
		Build())
	return ""
}

// TakenFunc reports the language of the node already holding dest, if any.
type TakenFunc func(dest string) (lang string, taken bool)

// Disambiguate constructs the default destination and, when it is held by a
// node of a different language, re-applies the style with the language
// segment forced. It never iterates further: a collision on the forced path
// is left for the tree to reject.
func Disambiguate(style Style, v Values, taken TakenFunc) (string, []error) {
	dest, errs := Construct(style, v, false)
	if taken == nil {
		return dest, errs
	}
	if lang, ok := taken(dest); ok && lang != v.Lang {
		forced, ferrs := Construct(style, v, true)
		return forced, append(errs, ferrs...)
	}
	return dest, errs
}
