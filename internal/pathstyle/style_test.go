package pathstyle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

func TestConstruct_DefaultStyle(t *testing.T) {
	tests := []struct {
		name      string
		values    Values
		forceLang bool
		want      string
	}{
		{"unlocalized", Values{Parent: "/sub/", Basename: "about", Ext: "html", DefaultLang: "en"}, false, "/sub/about.html"},
		{"default language", Values{Parent: "/", Basename: "about", Ext: "html", Lang: "en", DefaultLang: "en"}, false, "/about.html"},
		{"default language forced", Values{Parent: "/", Basename: "about", Ext: "html", Lang: "en", DefaultLang: "en"}, true, "/about.en.html"},
		{"other language", Values{Parent: "/", Basename: "about", Ext: "html", Lang: "de", DefaultLang: "en"}, false, "/about.de.html"},
		{"forced without language", Values{Parent: "/", Basename: "about", Ext: "html", DefaultLang: "en"}, true, "/about.html"},
		{"never", Values{Parent: "/", Basename: "about", Ext: "html", Lang: "de", DefaultLang: "en", LangMode: LangNever}, false, "/about.html"},
		{"never but forced", Values{Parent: "/", Basename: "about", Ext: "html", Lang: "de", DefaultLang: "en", LangMode: LangNever}, true, "/about.de.html"},
		{"always", Values{Parent: "/", Basename: "about", Ext: "html", Lang: "en", DefaultLang: "en", LangMode: LangAlways}, false, "/about.en.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := Construct(Default(), tt.values, tt.forceLang)
			assert.Empty(t, errs)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConstruct_DatePlaceholders(t *testing.T) {
	var style Style
	require.NoError(t, yaml.Unmarshal([]byte(`[":parent", [":year", "/", ":month", "/", ":day", "/"], ":basename", ".", ":ext"]`), &style))

	v := Values{Parent: "/blog/", Basename: "post", Ext: "html", Date: time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)}
	got, errs := Construct(style, v, false)
	assert.Empty(t, errs)
	assert.Equal(t, "/blog/2024/03/07/post.html", got)

	v.Date = time.Time{}
	got, _ = Construct(style, v, false)
	assert.Equal(t, "/blog/post.html", got)
}

func TestConstruct_UnknownPlaceholder(t *testing.T) {
	style, err := Parse([]any{":parent", ":nope", ":basename"})
	require.NoError(t, err)

	got, errs := Construct(style, Values{Parent: "/", Basename: "a"}, false)
	assert.Equal(t, "/a", got)
	require.Len(t, errs, 1)
	assert.True(t, errors.HasCategory(errs[0], errors.CategoryConfig))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("not a list")
	require.Error(t, err)
	_, err = Parse([]any{":parent", 42})
	require.Error(t, err)
}

func TestStyle_YAMLRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Default())
	require.NoError(t, err)
	var back Style
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, Default(), back)
}

func TestDisambiguate(t *testing.T) {
	v := Values{Parent: "/", Basename: "path", Ext: "html", Lang: "de", DefaultLang: "en", LangMode: LangNever}

	// held by the English node: force the language segment
	got, errs := Disambiguate(Default(), v, func(dest string) (string, bool) {
		return "en", dest == "/path.html"
	})
	assert.Empty(t, errs)
	assert.Equal(t, "/path.de.html", got)

	// held by a node of the same language: leave the collision to the tree
	got, _ = Disambiguate(Default(), v, func(dest string) (string, bool) {
		return "de", dest == "/path.html"
	})
	assert.Equal(t, "/path.html", got)

	// free
	got, _ = Disambiguate(Default(), v, func(string) (string, bool) { return "", false })
	assert.Equal(t, "/path.html", got)
}
