package content

import (
	"bytes"
	"context"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	gmext "github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// Markdown converts markdown to HTML. Headings get automatic ids, which
// the page handler also uses to create fragment nodes.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates the markdown processor.
func NewMarkdown() *Markdown {
	return &Markdown{md: newGoldmark()}
}

func newGoldmark() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(gmext.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		// Tags emit raw HTML before conversion.
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
}

func (m *Markdown) Process(_ context.Context, c *Context) error {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(c.Content), &buf); err != nil {
		return err
	}
	c.Content = buf.String()
	return nil
}

// Heading is a markdown heading with its generated anchor id.
type Heading struct {
	Level int
	ID    string
	Title string
}

// Headings returns the headings of a markdown document in order.
func Headings(body []byte) []Heading {
	md := newGoldmark()
	root := md.Parser().Parse(text.NewReader(body))

	var out []Heading
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		h, ok := n.(*gmast.Heading)
		if !ok {
			return gmast.WalkContinue, nil
		}
		id, _ := h.AttributeString("id")
		idBytes, _ := id.([]byte)
		out = append(out, Heading{Level: h.Level, ID: string(idBytes), Title: plainText(h, body)})
		return gmast.WalkSkipChildren, nil
	})
	return out
}

func plainText(n gmast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *gmast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *gmast.String:
			buf.Write(t.Value)
		}
		return gmast.WalkContinue, nil
	})
	return buf.String()
}
