package glob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/default.*", "/default.page", true},
		{"/default.*", "/sub/default.page", false},
		{"/*/", "/sub/", true},
		{"/*/", "/default.page", false},
		{"/*", "/sub/", true},
		{"**/*.page", "/index.page", true},
		{"**/*.page", "/a/b/c/index.page", true},
		{"**/*.page", "/a/b/c/index.template", false},
		{"**/*.PAGE", "/index.page", true},
		{"**/*.page", "/INDEX.PAGE", true},
		{"/index.page", "/INDEX.page", false},
		{"**/*.page", "/index.PAGE", true},
		{"**/", "/", false},
		{"**/", "/a/", true},
		{"**/", "/a/b/", true},
		{"**/", "/a/index.page", false},
		{"/a/**", "/a/b/c.page", true},
		{"/a/**/c.page", "/a/c.page", true},
		{"**/*.{css,js}", "/static/site.js", true},
		{"**/*.{css,js}", "/static/site.png", false},
		{"/?.page", "/a.page", true},
		{"/?.page", "/ab.page", false},
		{"**/.*", "/.git/", true},
		{"**/.*", "/sub/.hidden", true},
		{"/", "/", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.path))
		})
	}
}

func TestMatchAny(t *testing.T) {
	assert.True(t, MatchAny([]string{"**/*.css", "**/*.page"}, "/x.page"))
	assert.False(t, MatchAny(nil, "/x.page"))
}
