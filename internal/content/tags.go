package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/extension"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// TagCall is one tag occurrence: {name: params} or {name:: params}body{name}.
type TagCall struct {
	Name      string
	RawParams string
	// Params is the YAML decoded parameter text: nil, a scalar, a list or a map.
	Params  any
	Body    string
	HasBody bool
	// Line is the source line of the opening brace.
	Line int
}

// Tag produces the replacement text of a tag.
type Tag interface {
	Call(ctx context.Context, call *TagCall, c *Context) (string, error)
}

// TagFunc adapts a function to Tag.
type TagFunc func(ctx context.Context, call *TagCall, c *Context) (string, error)

func (f TagFunc) Call(ctx context.Context, call *TagCall, c *Context) (string, error) {
	return f(ctx, call, c)
}

// TagRegistry maps tag names to tags.
type TagRegistry = extension.Registry[Tag]

var (
	// ErrUnclosedTag reports a start tag without closing brace.
	ErrUnclosedTag = errors.New("unclosed tag")
	// ErrUnclosedBody reports a body tag without end tag.
	ErrUnclosedBody = errors.New("missing end tag")

	tagStart = regexp.MustCompile(`^\{([A-Za-z_][\w.]*)(::?)`)
)

// Tags expands tags in content. Expansion runs once over the input; tag
// output is not scanned again. A backslash before an opening brace escapes
// it.
type Tags struct {
	tags *TagRegistry
}

// NewTags creates the tags processor.
func NewTags(tags *TagRegistry) *Tags {
	return &Tags{tags: tags}
}

type scanState int

const (
	stateBeforeTag scanState = iota
	stateInStartTag
	stateInBody
	stateProcess
	stateDone
)

type scanner struct {
	src      string
	pos      int
	baseLine int
	lineIdx  int
	line     int
}

// lineAt returns the source line of offset i; offsets must not decrease
// between calls.
func (s *scanner) lineAt(i int) int {
	s.line += strings.Count(s.src[s.lineIdx:i], "\n")
	s.lineIdx = i
	return s.baseLine + s.line
}

func (t *Tags) Process(ctx context.Context, c *Context) error {
	base := c.Line
	if base < 1 {
		base = 1
	}
	s := &scanner{src: c.Content, baseLine: base}
	var (
		out   strings.Builder
		state = stateBeforeTag
		call  *TagCall
	)

	for state != stateDone {
		switch state {
		case stateBeforeTag:
			i := strings.IndexByte(s.src[s.pos:], '{')
			if i < 0 {
				out.WriteString(s.src[s.pos:])
				state = stateDone
				continue
			}
			i += s.pos
			if i > s.pos && s.src[i-1] == '\\' {
				out.WriteString(s.src[s.pos : i-1])
				out.WriteByte('{')
				s.pos = i + 1
				continue
			}
			out.WriteString(s.src[s.pos:i])
			m := tagStart.FindStringSubmatch(s.src[i:])
			if m == nil {
				out.WriteByte('{')
				s.pos = i + 1
				continue
			}
			call = &TagCall{Name: m[1], HasBody: m[2] == "::", Line: s.lineAt(i)}
			s.pos = i + len(m[0])
			state = stateInStartTag

		case stateInStartTag:
			end := matchingBrace(s.src, s.pos)
			if end < 0 {
				return t.fail(c, call, ErrUnclosedTag)
			}
			call.RawParams = strings.TrimSpace(s.src[s.pos:end])
			s.pos = end + 1
			if call.HasBody {
				state = stateInBody
			} else {
				state = stateProcess
			}

		case stateInBody:
			end, next := findEndTag(s.src, s.pos, call.Name)
			if end < 0 {
				return t.fail(c, call, ErrUnclosedBody)
			}
			call.Body = s.src[s.pos:end]
			s.pos = next
			state = stateProcess

		case stateProcess:
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := t.call(ctx, call, c)
			if err != nil {
				var re *site.RenderError
				if errors.As(err, &re) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				return t.fail(c, call, err)
			}
			out.WriteString(result)
			call = nil
			state = stateBeforeTag
		}
	}

	c.Content = out.String()
	return nil
}

func (t *Tags) call(ctx context.Context, call *TagCall, c *Context) (string, error) {
	tag, ok := t.tags.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown tag %q", call.Name)
	}
	if call.RawParams != "" {
		var params any
		if err := yaml.Unmarshal([]byte(call.RawParams), &params); err != nil {
			return "", fmt.Errorf("invalid parameters %q: %w", call.RawParams, err)
		}
		call.Params = params
	}
	return tag.Call(ctx, call, c)
}

func (t *Tags) fail(c *Context, call *TagCall, err error) error {
	return site.NewRenderError(c.DestNode, c.RefNode, "tags", call.Line, fmt.Errorf("tag %s: %w", call.Name, err))
}

// matchingBrace returns the index of the brace closing a tag whose
// parameters start at from, honoring nested braces.
func matchingBrace(src string, from int) int {
	depth := 0
	for i := from; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// findEndTag finds the end tag of a body tag, skipping nested body tags of
// the same name. It returns the start of the end tag and the offset after it.
func findEndTag(src string, from int, name string) (int, int) {
	endTag := "{" + name + "}"
	nested := "{" + name + "::"
	depth := 0
	for k := from; ; {
		e := strings.Index(src[k:], endTag)
		if e < 0 {
			return -1, -1
		}
		if n := strings.Index(src[k:], nested); n >= 0 && n < e {
			depth++
			k += n + len(nested)
			continue
		}
		if depth > 0 {
			depth--
			k += e + len(endTag)
			continue
		}
		return k + e, k + e + len(endTag)
	}
}

// param returns a named parameter. A scalar parameter counts as the
// positional one and is returned for key == positional.
func (call *TagCall) param(key, positional string) (any, bool) {
	switch p := call.Params.(type) {
	case map[string]any:
		v, ok := p[key]
		return v, ok
	case nil:
		return nil, false
	default:
		if key == positional {
			return p, true
		}
	}
	return nil, false
}

func (call *TagCall) stringParam(key, positional, def string) string {
	v, ok := call.param(key, positional)
	if !ok || v == nil {
		return def
	}
	return fmt.Sprint(v)
}

func (call *TagCall) boolParam(key string, def bool) bool {
	v, ok := call.param(key, "")
	if !ok {
		return def
	}
	b, isBool := v.(bool)
	if !isBool {
		return def
	}
	return b
}
