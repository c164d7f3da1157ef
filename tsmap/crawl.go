// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies
package tsmap

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"tsmap-recover.safepic.fr/logger"
)

var (
	reSourceMapComment = regexp.MustCompile(`(?m)//[#@]\s*sourceMappingURL\s*=\s*(\S+)\s*$`)
	reScriptSrc        = regexp.MustCompile(`(?i)<script[^>]+src\s*=\s*['"]([^'"]+)['"]`)
)

// CrawlOptions configure a crawl. The embedded Options apply to every map
// found.
type CrawlOptions struct {
	Options
	Concurrency int
	UserAgent   string
	SaveJS      bool
	SaveMap     bool
	Proxy       string
	Insecure    bool
	Timeout     time.Duration
	// Rate caps requests per second; 0 means unlimited.
	Rate float64
	// OnEvent receives one line per script processed.
	OnEvent func(msg string)
}

// ScriptReport is the outcome for one discovered script.
type ScriptReport struct {
	Script string
	// Map is the map URL, "inline", or empty when none was found.
	Map    string
	Result *Result
	Err    error
}

// Crawler fetches a page, finds its scripts and recovers the sources of
// their source maps.
type Crawler struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    CrawlOptions
	mu      sync.Mutex
}

// NewCrawler builds a Crawler. Defaults: 4 workers, 25s timeout,
// "tsmap-crawl/1.0" user agent.
func NewCrawler(opts CrawlOptions) (*Crawler, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "tsmap-crawl/1.0"
	}

	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		transport.ForceAttemptHTTP2 = false
		transport.TLSHandshakeTimeout = 30 * time.Second
		logger.Info("using proxy %s", proxyURL)
	}
	// for Burp/ZAP interception
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		logger.Warn("TLS verification disabled (insecure mode)")
	}

	c := &Crawler{
		client: &http.Client{Timeout: opts.Timeout, Transport: transport},
		opts:   opts,
	}
	if opts.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}
	// maps are materialized concurrently; keep the caller's callback serial
	if fn := opts.OnProgress; fn != nil {
		c.opts.OnProgress = func(msg string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			fn(msg)
		}
	}
	return c, nil
}

// Crawl fetches pageURL and processes every external script it references.
// Only a failure to fetch or parse the page itself is returned as an error;
// per-script problems are in the reports.
func (c *Crawler) Crawl(ctx context.Context, pageURL, outBase string) ([]ScriptReport, error) {
	rootURL, err := url.Parse(pageURL)
	if err != nil || rootURL.Scheme == "" || rootURL.Host == "" {
		return nil, fmt.Errorf("invalid url %q", pageURL)
	}

	c.event("Fetching: %s", rootURL)
	body, err := c.fetch(ctx, rootURL.String())
	if err != nil {
		return nil, fmt.Errorf("fetch root URL: %w", err)
	}

	scripts := parseScriptsHTML(string(body), rootURL)
	if len(scripts) == 0 {
		c.event("No external script src found on page.")
		return nil, nil
	}

	reports := make([]ScriptReport, len(scripts))
	sem := make(chan struct{}, c.opts.Concurrency)
	var wg sync.WaitGroup
	for i, s := range scripts {
		wg.Add(1)
		go func(i int, scriptURL *url.URL) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			reports[i] = c.processScript(ctx, scriptURL, outBase)
		}(i, s)
	}
	wg.Wait()
	return reports, nil
}

// parseScriptsHTML uses golang.org/x/net/html to find <script src=...>
func parseScriptsHTML(src string, base *url.URL) []*url.URL {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return parseScriptsRegex(src, base)
	}
	var out []*url.URL
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "script") {
			for _, a := range n.Attr {
				if strings.EqualFold(a.Key, "src") && strings.TrimSpace(a.Val) != "" {
					if u, err := url.Parse(strings.TrimSpace(a.Val)); err == nil {
						out = append(out, base.ResolveReference(u))
					}
					break
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			f(ch)
		}
	}
	f(doc)
	return dedupeURLs(out)
}

// fallback regex parser
func parseScriptsRegex(htmlSrc string, base *url.URL) []*url.URL {
	var out []*url.URL
	for _, m := range reScriptSrc.FindAllStringSubmatch(htmlSrc, -1) {
		if u, err := url.Parse(m[1]); err == nil {
			out = append(out, base.ResolveReference(u))
		}
	}
	return dedupeURLs(out)
}

func dedupeURLs(in []*url.URL) []*url.URL {
	seen := make(map[string]bool)
	var out []*url.URL
	for _, u := range in {
		if u == nil || seen[u.String()] {
			continue
		}
		seen[u.String()] = true
		out = append(out, u)
	}
	return out
}

func (c *Crawler) processScript(ctx context.Context, scriptURL *url.URL, outBase string) ScriptReport {
	rep := ScriptReport{Script: scriptURL.String()}
	c.event("Processing: %s", scriptURL)

	jsBytes, err := c.fetch(ctx, scriptURL.String())
	if err != nil {
		rep.Err = fmt.Errorf("fetch script: %w", err)
		c.event("Failed to fetch script %s: %v", scriptURL, err)
		return rep
	}
	outRoot := filepath.Join(outBase, hostPathForURL(scriptURL))
	if err := mustBeUnder(outBase, outRoot); err != nil {
		rep.Err = &SourceError{Source: scriptURL.String(), Path: outRoot, Kind: ErrPathEscape}
		c.event("Skipped %s: output %s escapes %s", scriptURL, outRoot, outBase)
		return rep
	}

	if c.opts.SaveJS {
		c.save(outRoot, path.Base(scriptURL.Path), "script.js", jsBytes)
	}

	// 1) inline base64 map
	if m := reSourceMapInline.FindSubmatch(jsBytes); m != nil {
		data, err := base64.StdEncoding.DecodeString(string(m[1]))
		if err == nil {
			rep.Map = "inline"
			rep.Result, rep.Err = c.processMap(ctx, data, outRoot, "")
			c.report(rep)
			return rep
		}
		c.event("Inline map decode error for %s: %v", scriptURL, err)
	}

	// 2) sourceMappingURL comment
	if m := reSourceMapComment.FindSubmatch(jsBytes); m != nil {
		ref := strings.Trim(strings.TrimSpace(string(m[1])), "\"'")
		if mapURL, err := scriptURL.Parse(ref); err == nil && !strings.HasPrefix(ref, "data:") {
			data, err := c.fetch(ctx, mapURL.String())
			if err == nil {
				rep.Map = mapURL.String()
				rep.Result, rep.Err = c.processMap(ctx, data, outRoot, mapURL.String())
				c.report(rep)
				return rep
			}
			c.event("Failed to fetch map %s: %v", mapURL, err)
		}
	}

	// 3) try script.js.map
	tryMapURL := scriptURL.ResolveReference(&url.URL{Path: scriptURL.Path + ".map"})
	if data, err := c.fetch(ctx, tryMapURL.String()); err == nil {
		rep.Map = tryMapURL.String()
		rep.Result, rep.Err = c.processMap(ctx, data, outRoot, tryMapURL.String())
		c.report(rep)
		return rep
	}

	c.event("No sourcemap for %s", scriptURL)
	return rep
}

func (c *Crawler) processMap(ctx context.Context, mapData []byte, outRoot, mapURL string) (*Result, error) {
	doc, err := LoadBytes(mapData)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outRoot, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if c.opts.SaveMap {
		name := "sourcemap.json"
		if mapURL != "" {
			if u, err := url.Parse(mapURL); err == nil {
				name = path.Base(u.Path)
			}
		}
		c.save(outRoot, name, "sourcemap.json", mapData)
	}
	return Materialize(ctx, doc, outRoot, c.opts.Options)
}

func (c *Crawler) report(rep ScriptReport) {
	switch {
	case rep.Result == nil:
		c.event("Error processing map %s: %v", rep.Map, rep.Err)
	case rep.Err != nil:
		c.event("WRITTEN:%d map %s for %s (%d failed)", rep.Result.Written, rep.Map, rep.Script, len(rep.Result.Failures))
	default:
		c.event("WRITTEN:%d map %s for %s", rep.Result.Written, rep.Map, rep.Script)
	}
}

func (c *Crawler) save(dir, name, fallback string, data []byte) {
	name = replaceWeird(name)
	if name == "" || name == "." || name == "/" {
		name = fallback
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn("save %s: %v", name, err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		logger.Warn("save %s: %v", name, err)
	}
}

func (c *Crawler) fetch(ctx context.Context, u string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Crawler) event(format string, args ...any) {
	logger.Debug(format, args...)
	if c.opts.OnEvent == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.OnEvent(fmt.Sprintf(format, args...))
}

// host/dir of the script, used as the output sub-root
func hostPathForURL(scriptURL *url.URL) string {
	host := "unknown-host"
	if h := scriptURL.Hostname(); h != "" {
		// "." and ".." become "unnamed"
		host = sanitizeSegments(h)
	}
	dir := path.Dir(scriptURL.Path)
	if dir == "." || dir == "/" {
		return host
	}
	rel := sanitizeSegments(strings.Trim(path.Clean(dir), "/"))
	return filepath.Join(host, rel)
}
