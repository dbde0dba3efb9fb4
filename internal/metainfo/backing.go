package metainfo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Overlay assigns Info to every source path matching Pattern.
type Overlay struct {
	Pattern string
	Info    Info
}

// OutputEntry assigns Info to an existing node (by path or destination path)
// or, when nothing matches, describes a virtual node.
type OutputEntry struct {
	Key  string
	Info Info
}

// Backing is the parsed content of one meta-information backing file.
type Backing struct {
	Source string // site path of the backing file
	// File is the filesystem location of the backing file, empty when the
	// data did not come from disk.
	File     string
	Overlays []Overlay
	Output   []OutputEntry
}

// ParseBacking parses a backing file. The first YAML document maps path globs
// to meta information, the optional second document maps paths or destination
// paths to meta information. Documents are taken by position, so a file with
// a single document only has overlays; a file with output entries only starts
// with an empty document:
//
//	{}
//	---
//	/feed.xml:
//	  content: "<feed/>"
//
// A malformed block yields a config error and is treated as empty; the other
// block is still used.
func ParseBacking(source string, data []byte) (*Backing, []error) {
	b := &Backing{Source: source}
	var errs []error

	dec := yaml.NewDecoder(bytes.NewReader(data))
	for block := 0; ; block++ {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = append(errs, backingError(source, block, "invalid YAML", err))
			break
		}
		if block > 1 {
			errs = append(errs, backingError(source, block, "unexpected extra document", nil))
			break
		}
		entries, err := orderedEntries(&doc)
		if err != nil {
			errs = append(errs, backingError(source, block, "block must map paths to meta information", err))
			continue
		}
		dir := path.Dir(strings.TrimSuffix(source, "/"))
		for _, e := range entries {
			if block == 0 {
				b.Overlays = append(b.Overlays, Overlay{Pattern: absolutize(dir, e.key), Info: e.info})
			} else {
				b.Output = append(b.Output, OutputEntry{Key: absolutize(dir, e.key), Info: e.info})
			}
		}
	}
	return b, errs
}

type entry struct {
	key  string
	info Info
}

// orderedEntries decodes a pattern->hash mapping while keeping declaration order.
func orderedEntries(doc *yaml.Node) ([]entry, error) {
	n := doc
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil, nil
		}
		n = n.Content[0]
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping at line %d", n.Line)
	}
	out := make([]entry, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("expected scalar key at line %d", k.Line)
		}
		var info map[string]any
		if v.Kind == yaml.ScalarNode && v.Tag == "!!null" {
			info = map[string]any{}
		} else if v.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("value for %q at line %d is not a mapping", k.Value, v.Line)
		} else if err := v.Decode(&info); err != nil {
			return nil, err
		}
		out = append(out, entry{key: k.Value, info: Info(info)})
	}
	return out, nil
}

func absolutize(dir, key string) string {
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, "**") {
		return key
	}
	joined := path.Join(dir, key)
	if strings.HasSuffix(key, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

func backingError(source string, block int, msg string, cause error) error {
	b := ferrors.ConfigError("malformed meta information backing: "+msg).
		WithContext("path", source).
		WithContext("block", block+1)
	if cause != nil {
		b = b.WithCause(cause)
	}
	return b.Build()
}
