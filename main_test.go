package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsmap-recover.safepic.fr/config"
	"tsmap-recover.safepic.fr/logger"
	"tsmap-recover.safepic.fr/tsmap"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd := newRootCmd()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	t.Cleanup(func() { logger.SetVerbose(false) })
	err := cmd.Execute()
	return buf.String(), err
}

func writeTestMap(t *testing.T, dir string, sources []string, contents []any) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"version": 3, "sources": sources, "sourcesContent": contents})
	require.NoError(t, err)
	p := filepath.Join(dir, "app.js.map")
	require.NoError(t, os.WriteFile(p, b, 0644))
	return p
}

func TestVersionCmd(t *testing.T) {
	original := version
	version = "test-version-1.0.0"
	defer func() { version = original }()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tsmap-recover version test-version-1.0.0")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"extract", "watch", "crawl", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestExtractCmd(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	mapPath := writeTestMap(t, dir, []string{"a.js", "dir/b.js", "c.js"}, []any{"console.log(1)", "console.log(2)", nil})

	out, err := execute(t, "extract", mapPath, "--out", outDir)
	require.NoError(t, err)

	assert.Contains(t, out, "Written: Saved source file: "+filepath.Join(outDir, "a.js"))
	assert.Contains(t, out, "Written: Saved source file: "+filepath.Join(outDir, "dir", "b.js"))
	assert.Contains(t, out, "Skipped (no content): c.js")
	assert.Contains(t, out, "Summary: 2 written, 1 skipped, 0 failed")

	b, err := os.ReadFile(filepath.Join(outDir, "dir", "b.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(2)", string(b))
}

func TestExtractCmd_MapFlag(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	mapPath := writeTestMap(t, dir, []string{"a.js"}, []any{"x"})

	_, err := execute(t, "extract", "--map", mapPath, "-o", outDir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "a.js"))
}

func TestExtractCmd_TraversalFails(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	mapPath := writeTestMap(t, dir, []string{"../../etc/passwd", "ok.js"}, []any{"root", "ok"})

	out, err := execute(t, "extract", mapPath, "--out", outDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, tsmap.ErrPathEscape)
	assert.Contains(t, out, "Failed:")
	assert.Contains(t, out, "Summary: 1 written, 0 skipped, 1 failed")
	assert.FileExists(t, filepath.Join(outDir, "ok.js"))
}

func TestExtractCmd_AnchorFlag(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	mapPath := writeTestMap(t, dir, []string{"../shared/x.ts"}, []any{"x"})

	_, err := execute(t, "extract", mapPath, "--out", outDir, "--anchor")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "shared", "x.ts"))
}

func TestExtractCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.map")
	require.NoError(t, os.WriteFile(broken, []byte("not json"), 0644))

	_, err := execute(t, "extract")
	assert.ErrorContains(t, err, "missing source map")

	_, err = execute(t, "extract", filepath.Join(dir, "missing.map"), "--out", filepath.Join(dir, "o1"))
	assert.ErrorIs(t, err, tsmap.ErrRead)

	_, err = execute(t, "extract", broken, "--out", filepath.Join(dir, "o2"))
	assert.ErrorIs(t, err, tsmap.ErrParse)

	_, err = execute(t, "extract", broken, "--eol", "mac")
	assert.ErrorContains(t, err, "eol")

	_, err = execute(t, "extract", "--map", broken, filepath.Join(dir, "other.map"))
	assert.ErrorContains(t, err, "not both")
}

func TestExtractCmd_ConfigFileAndOverride(t *testing.T) {
	dir := t.TempDir()
	mapPath := writeTestMap(t, dir, []string{"a.js"}, []any{"f(){a();}"})
	cfgOut := filepath.Join(dir, "from-config")
	cfgPath := filepath.Join(dir, "tsmap.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("out = \""+filepath.ToSlash(cfgOut)+"\"\nbeautify = true\n"), 0644))

	_, err := execute(t, "--config", cfgPath, "extract", mapPath)
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(cfgOut, "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "f(){\na();\n}\n\n", string(b))

	flagOut := filepath.Join(dir, "from-flag")
	_, err = execute(t, "--config", cfgPath, "extract", mapPath, "--out", flagOut, "--beautify=false")
	require.NoError(t, err)
	b, err = os.ReadFile(filepath.Join(flagOut, "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "f(){a();}", string(b))
}

func TestExtractCmd_BadConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	assert.Error(t, err)
}

func TestCrawlCmd_RequiresURL(t *testing.T) {
	_, err := execute(t, "crawl")
	assert.ErrorContains(t, err, "missing --url")
}

func newCrawlSite(t *testing.T, sources []string) *httptest.Server {
	t.Helper()
	contents := make([]string, len(sources))
	for i := range contents {
		contents[i] = "payload"
	}
	mapBody, err := json.Marshal(map[string]any{"version": 3, "sources": sources, "sourcesContent": contents})
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<script src="/app.js"></script>`))
		case "/app.js":
			_, _ = w.Write([]byte("app();\n"))
		case "/app.js.map":
			_, _ = w.Write(mapBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCrawlCmd(t *testing.T) {
	srv := newCrawlSite(t, []string{"a.js", "lib/b.js"})
	outDir := t.TempDir()

	out, err := execute(t, "crawl", "--url", srv.URL, "--out", outDir, "--write-concurrency", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Done:")
	assert.FileExists(t, filepath.Join(outDir, "127.0.0.1", "a.js"))
	assert.FileExists(t, filepath.Join(outDir, "127.0.0.1", "lib", "b.js"))
}

func TestCrawlCmd_FailedScriptFails(t *testing.T) {
	srv := newCrawlSite(t, []string{"../../escape.js", "ok.js"})
	outDir := t.TempDir()

	_, err := execute(t, "crawl", "--url", srv.URL, "--out", outDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, tsmap.ErrPathEscape)
	assert.ErrorContains(t, err, "1 script(s) failed")
	assert.ErrorContains(t, err, srv.URL+"/app.js")
	assert.FileExists(t, filepath.Join(outDir, "127.0.0.1", "ok.js"))
}

func TestCrawlOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrency = 3
	cfg.Crawl.Concurrency = 5
	cfg.Crawl.TimeoutSeconds = 7
	cfg.Anchor = true

	opts := crawlOptions(cfg, tsmap.NewPrinter(new(bytes.Buffer)))
	assert.Equal(t, 3, opts.Options.Concurrency)
	assert.Equal(t, 5, opts.Concurrency)
	assert.Equal(t, 7*time.Second, opts.Timeout)
	assert.True(t, opts.Anchor)
	assert.NotNil(t, opts.OnProgress)
	assert.NotNil(t, opts.OnEvent)
}

func TestCrawlFailures(t *testing.T) {
	assert.NoError(t, crawlFailures(nil))
	assert.NoError(t, crawlFailures([]tsmap.ScriptReport{{Script: "a.js"}}))

	err := crawlFailures([]tsmap.ScriptReport{
		{Script: "a.js"},
		{Script: "b.js", Err: tsmap.ErrParse},
		{Script: "c.js", Err: tsmap.ErrWrite},
	})
	assert.ErrorIs(t, err, tsmap.ErrParse)
	assert.ErrorIs(t, err, tsmap.ErrWrite)
	assert.ErrorContains(t, err, "2 script(s) failed")
}

func TestWatchCmd_Help(t *testing.T) {
	out, err := execute(t, "watch", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--anchor")
	assert.Contains(t, out, "--concurrency")
}
