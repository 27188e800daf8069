package robots

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatcher(t *testing.T) {
	tests := []struct {
		pattern string
		strict  bool
		path    string
		want    bool
	}{
		// prefix matching with word boundary
		{"/foo/bar", false, "/foo/bar", true},
		{"/foo/bar", false, "/foo/bar/", true},
		{"/foo/bar", false, "/foo/bar?x", true},
		{"/foo/bar", false, "/foo/bar/baz", true},
		{"/foo/bar", false, "/foo/bar.html", true},
		{"/foo/bar", false, "/foo/ba", false},
		{"/foo/bar", false, "/foo/barx", false},
		{"/foo/bar", false, "/foo/bar_x", false},
		{"/foo/bar", false, "/x/foo/bar", false},
		{"/foo/", false, "/foo/anything", true},
		{"/admin", false, "/administrator", false},
		{"/admin", false, "/admin/users", true},
		{"/admin", false, "/admin.php", true},
		{"/admin/", false, "/administrator", false},
		{"/", false, "/anything", true},
		{"/fish%20", false, "/fish%20heads", true},
		{"/p.", false, "/p.html", true},

		// case sensitivity
		{"/Foo", false, "/foo", false},

		// strict end of line
		{"/exactly", true, "/exactly", true},
		{"/exactly", true, "/exactly/", false},
		{"/exactly", true, "/exactly?a=1", false},
		{"/exactly", true, "/exactly/kinda", false},

		// wildcards
		{"/foo/*/bar", false, "/foo/bar", false},
		{"/foo/*/bar", false, "/foo/x/bar", true},
		{"/foo/*/bar", false, "/foo/x/y/bar", true},
		{"*", false, "/any/thing", true},
		{"**", false, "", true},
		{"/a*", false, "/abc", true},
		{"/a*b*c", false, "/a-b-x-b-c", true},
		{"/a*b*c", false, "/abx", false},
		{"/a*b", true, "/a-b-b", true},
		{"/a*b", true, "/a-b-bx", false},
		{"*.gif", true, "/foo/bin.gif", true},
		{"*.gif", true, "/foo/bin.gif/baz", false},
		{"*.gif", true, "/a.gif.gif", true},
		{"/*.php", false, "/index.php?x=1", true},
		{"/*.php", false, "/index.phpx", false},
		{"/a*$", false, "/a$", true},
		{"/*a*b", false, "/xaxbxab", true},
		{"/*a*b", false, "/xaxbxabc", false},
		{"/*a*b", false, "/xaxbxab/c", true},
		{"/x*y*z", true, "/xyzyz", true},
	}

	for _, tt := range tests {
		name := tt.pattern + " ~ " + tt.path
		if tt.strict {
			name = tt.pattern + "$ ~ " + tt.path
		}
		t.Run(name, func(t *testing.T) {
			m := compilePattern(tt.pattern, tt.strict)
			assert.Equal(t, tt.want, m.Match(tt.path))
		})
	}
}

func TestCompilePattern_CollapsesWildcards(t *testing.T) {
	assert.Equal(t, []string{"/a", "b"}, compilePattern("/a**b", false).pieces)
	assert.Equal(t, []string{"", ""}, compilePattern("***", false).pieces)
	assert.Equal(t, []string{"/a"}, compilePattern("/a", false).pieces)
}

func TestMatcher_ManyWildcardsStayLinear(t *testing.T) {
	m := compilePattern("/*a*a*a*a*a*a*a*a*b", false)
	path := "/" + strings.Repeat("a", 5000)

	start := time.Now()
	assert.False(t, m.Match(path))
	assert.True(t, m.Match(path+"b"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
