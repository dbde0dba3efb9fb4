package content

import (
	"bytes"
	"context"
	"io"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// linkAttrs lists the attributes holding local references, per element.
var linkAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"img":    "src",
	"script": "src",
	"source": "src",
}

// HTMLLinks rewrites local references in HTML so they point to the output
// of the node they name, relative to the destination node. References use
// canonical names ("../about.html", "sub/"), resolved against the node the
// content belongs to; external URLs are left alone. Every lookup is
// recorded as a node existence item, so a link becomes valid (or broken)
// as soon as its target appears (or disappears).
type HTMLLinks struct{}

func (HTMLLinks) Process(_ context.Context, c *Context) error {
	if c.Env == nil || c.Env.Tree == nil || c.DestNode == nil || c.RefNode == nil {
		return nil
	}
	var out bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(c.Content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return err
			}
			break
		}
		raw := z.Raw()
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}
		tok := z.Token()
		attr, ok := linkAttrs[tok.Data]
		if !ok {
			out.Write(raw)
			continue
		}
		changed := false
		for i, a := range tok.Attr {
			if a.Key != attr || !isLocal(a.Val) {
				continue
			}
			if rewritten, ok := relocate(c, a.Val); ok && rewritten != a.Val {
				tok.Attr[i].Val = rewritten
				changed = true
			}
		}
		if changed {
			out.WriteString(tok.String())
		} else {
			out.Write(raw)
		}
	}
	c.Content = out.String()
	return nil
}

func isLocal(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return false
	}
	if i := strings.IndexAny(ref, ":/?#"); i >= 0 && ref[i] == ':' {
		return false
	}
	return true
}

func relocate(c *Context, ref string) (string, bool) {
	target := linkTarget(c, resolve(c, ref))
	if target == nil {
		c.Env.Log().Debug("Leaving unresolved local link",
			logfields.ALCN(c.DestNode.ALCN()),
			logfields.Path(ref))
		return ref, false
	}
	return c.DestNode.RouteTo(target), true
}
