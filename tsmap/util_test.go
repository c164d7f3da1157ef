package tsmap

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docWith(sources ...string) *Document {
	d := &Document{content: make(map[string]string)}
	for _, s := range sources {
		d.sources = append(d.sources, s)
		d.content[s] = "x"
	}
	return d
}

// under reports whether target is strictly inside root.
func under(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." {
		return false
	}
	return strings.Split(filepath.ToSlash(rel), "/")[0] != ".."
}

func TestNormalizeKeepDots(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a.js", "a.js"},
		{"  dir/b.js ", "dir/b.js"},
		{"webpack:///src/app.ts", "src/app.ts"},
		{"webpack://src/app.ts", "src/app.ts"},
		{"file:///home/u/app.ts", "home/u/app.ts"},
		{"/abs/path.js", "abs/path.js"},
		{`C:\proj\x.ts`, "proj/x.ts"},
		{"a//b///c.js", "a/b/c.js"},
		{"../../lib/x.js", "../../lib/x.js"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeKeepDots(tt.in), tt.in)
	}
}

func TestResolve_Join(t *testing.T) {
	root := t.TempDir()
	r := newResolver(docWith(), root, false)

	tests := []struct {
		id   string
		want string
	}{
		{"a.js", "a.js"},
		{"dir/b.js", "dir/b.js"},
		{"./dir/./c.js", "dir/c.js"},
		{"dir/../d.js", "d.js"},
		{"/etc/passwd", "etc/passwd"},
		{"webpack:///src/app.ts", "src/app.ts"},
		{"src/we:ird?.ts", "src/we_ird_.ts"},
		{"", "unnamed"},
		{"dir/..", "unnamed"},
	}
	for _, tt := range tests {
		got, err := r.resolve(tt.id)
		require.NoError(t, err, tt.id)
		assert.Equal(t, filepath.Join(root, filepath.FromSlash(tt.want)), got, tt.id)
	}
}

func TestResolve_JoinRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	r := newResolver(docWith(), root, false)

	for _, id := range []string{
		"../../etc/passwd",
		"..",
		"a/../../b.js",
		`..\..\windows\system.ini`,
		"webpack:///../secret.js",
	} {
		_, err := r.resolve(id)
		assert.ErrorIs(t, err, ErrPathEscape, id)
	}
}

func TestResolve_Anchored(t *testing.T) {
	root := t.TempDir()
	r := newResolver(docWith("../lib/a.js", "src/b.js"), root, true)

	a, err := r.resolve("../lib/a.js")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "lib", "a.js"), a)

	b, err := r.resolve("src/b.js")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "level", "src", "b.js"), b)

	// deeper than any leading run: still refused
	_, err = r.resolve("x/../../../escape.js")
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestResolve_AnchorIgnoresSourcesWithoutContent(t *testing.T) {
	d := docWith("src/b.js")
	d.sources = append(d.sources, "../../../nocontent.js")
	r := newResolver(d, t.TempDir(), true)

	assert.Equal(t, r.baseAnchor, r.subAnchor)
}

func FuzzResolve(f *testing.F) {
	for _, s := range []string{
		"../../etc/passwd",
		"a/../../../b",
		"..",
		"./../x",
		`..\..\x`,
		"/../../x",
		"webpack:///../../x",
		"C:/../x",
		"a/b/../../../../c",
		"....//....//x",
		" .. / .. /x",
		"normal/file.js",
	} {
		f.Add(s)
	}
	root := f.TempDir()

	f.Fuzz(func(t *testing.T, id string) {
		for _, anchored := range []bool{false, true} {
			r := newResolver(docWith(id), root, anchored)
			target, err := r.resolve(id)
			if err != nil {
				if !errors.Is(err, ErrPathEscape) {
					t.Fatalf("resolve(%q, anchored=%v): unexpected error kind %v", id, anchored, err)
				}
				continue
			}
			if !under(root, target) {
				t.Fatalf("resolve(%q, anchored=%v) = %q, outside %q", id, anchored, target, root)
			}
		}
	})
}

func TestBeautifyBasic(t *testing.T) {
	got := beautifyBasic("function f(){a();b();}\n\n\n")
	assert.Equal(t, "function f(){\na();\nb();\n}\n\n", got)
}

func TestNormalizeEOL(t *testing.T) {
	assert.Equal(t, "a\nb\nc", normalizeEOL("a\r\nb\rc", "unix"))
	assert.Equal(t, "a\r\nb\r\nc", normalizeEOL("a\nb\r\nc", "dos"))
	assert.Equal(t, "a\r\nb", normalizeEOL("a\r\nb", ""))
}

func TestValidEOL(t *testing.T) {
	for _, m := range []string{"", "unix", "DOS", "windows"} {
		assert.True(t, ValidEOL(m), m)
	}
	assert.False(t, ValidEOL("mac"))
}

func TestJoinMaybe(t *testing.T) {
	assert.Equal(t, "a.js", joinMaybe("", "a.js"))
	assert.Equal(t, "src/a.js", joinMaybe("src/", "/a.js"))
	assert.Equal(t, "webpack:///src/a.js", joinMaybe("webpack:///src", "a.js"))
}
