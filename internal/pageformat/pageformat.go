// Package pageformat parses the page format shared by page and template
// files: an optional YAML front matter block followed by named content
// blocks.
//
//	---
//	title: Home
//	--- name:content pipeline:tags,markdown
//	Welcome!
//	--- name:sidebar
//	...
//
// A line starting with backslashes followed by "---" is content; one
// backslash is removed when parsing.
package pageformat

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/metainfo"
)

// DefaultBlockName is the name of an unnamed first block.
const DefaultBlockName = "content"

var (
	frontMatterLine = regexp.MustCompile(`^---\s*$`)
	delimiterLine   = regexp.MustCompile(`^---(\s+name:\w+)?(\s+\w+:\S+)*\s*$`)
	optionPair      = regexp.MustCompile(`(\w+):(\S+)`)
	escapedLine     = regexp.MustCompile(`^(\\+)(---.*)$`)
)

// ErrMissingClosingDelimiter indicates the front matter was never closed.
var ErrMissingClosingDelimiter = errors.New("front matter start delimiter found but closing delimiter is missing")

// FormatError describes malformed page data.
type FormatError struct {
	Line int
	Msg  string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Block is a named piece of page content.
type Block struct {
	Name    string
	Options map[string]string
	Content string
	// Line is the 1-based line of the first content line.
	Line int
}

// Page is a parsed page file.
type Page struct {
	Meta   metainfo.Info
	Blocks []Block
}

// Block returns the block with the given name.
func (p *Page) Block(name string) (Block, bool) {
	for _, b := range p.Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return Block{}, false
}

// BlockNames returns the block names in file order.
func (p *Page) BlockNames() []string {
	names := make([]string, 0, len(p.Blocks))
	for _, b := range p.Blocks {
		names = append(names, b.Name)
	}
	return names
}

type header struct {
	name    string
	options map[string]string
	line    int
}

// Parse parses page data.
func Parse(data []byte) (*Page, error) {
	text := string(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")))
	lines := strings.SplitAfter(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	page := &Page{Meta: metainfo.Info{}}
	i := 0
	if len(lines) > 0 && frontMatterLine.MatchString(trimEOL(lines[0])) {
		end := -1
		for j := 1; j < len(lines); j++ {
			if delimiterLine.MatchString(trimEOL(lines[j])) {
				end = j
				break
			}
		}
		if end < 0 {
			return nil, &FormatError{Line: 1, Msg: "invalid front matter", Err: ErrMissingClosingDelimiter}
		}
		meta, err := metainfo.ParseYAML([]byte(strings.Join(lines[1:end], "")))
		if err != nil {
			return nil, &FormatError{Line: 2, Msg: "invalid front matter", Err: err}
		}
		page.Meta = meta
		i = end
	}

	var (
		current *header
		body    []string
		start   int
	)
	flush := func() error {
		if current == nil {
			return nil
		}
		name := current.name
		if name == "" {
			if len(page.Blocks) == 0 {
				name = DefaultBlockName
			} else {
				name = fmt.Sprintf("block%d", len(page.Blocks)+1)
			}
		}
		if _, dup := page.Block(name); dup {
			return &FormatError{Line: current.line, Msg: fmt.Sprintf("duplicate block name %q", name)}
		}
		page.Blocks = append(page.Blocks, Block{
			Name:    name,
			Options: current.options,
			Content: strings.Join(body, ""),
			Line:    start,
		})
		return nil
	}

	for ; i < len(lines); i++ {
		line := trimEOL(lines[i])
		if delimiterLine.MatchString(line) {
			if err := flush(); err != nil {
				return nil, err
			}
			current = parseHeader(line, i+1)
			body, start = nil, i+2
			continue
		}
		if current == nil {
			current = &header{options: map[string]string{}, line: i + 1}
			start = i + 1
		}
		body = append(body, unescape(lines[i]))
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return page, nil
}

func parseHeader(line string, lineNo int) *header {
	h := &header{options: map[string]string{}, line: lineNo}
	for _, m := range optionPair.FindAllStringSubmatch(line, -1) {
		if m[1] == "name" {
			h.name = m[2]
			continue
		}
		h.options[m[1]] = m[2]
	}
	return h
}

func unescape(line string) string {
	eol := line[len(trimEOL(line)):]
	m := escapedLine.FindStringSubmatch(trimEOL(line))
	if m == nil {
		return line
	}
	return m[1][1:] + m[2] + eol
}

func trimEOL(s string) string {
	return strings.TrimSuffix(s, "\n")
}
