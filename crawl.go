package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tsmap-recover.safepic.fr/config"
	"tsmap-recover.safepic.fr/tsmap"
)

func crawlOptions(cfg config.Config, p *tsmap.Printer) tsmap.CrawlOptions {
	return tsmap.CrawlOptions{
		Options: tsmap.Options{
			OnProgress:  p.Progress,
			Beautify:    cfg.Beautify,
			EOL:         cfg.EOL,
			Anchor:      cfg.Anchor,
			Concurrency: cfg.Concurrency,
		},
		Concurrency: cfg.Crawl.Concurrency,
		UserAgent:   cfg.Crawl.UserAgent,
		SaveJS:      cfg.Crawl.SaveJS,
		SaveMap:     cfg.Crawl.SaveMap,
		Proxy:       cfg.Crawl.Proxy,
		Insecure:    cfg.Crawl.Insecure,
		Timeout:     cfg.Crawl.Timeout(),
		Rate:        cfg.Crawl.Rate,
		OnEvent:     p.Event,
	}
}

// crawlFailures joins the per-script errors, nil when every script succeeded.
func crawlFailures(reports []tsmap.ScriptReport) error {
	var errs []error
	for _, rep := range reports {
		if rep.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rep.Script, rep.Err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d script(s) failed: %w", len(errs), errors.Join(errs...))
}

func newCrawlCmd(a *app) *cobra.Command {
	var (
		pageURL     string
		out         string
		beautify    bool
		eol         string
		anchor      bool
		concurrency int
		writers     int
		userAgent   string
		saveJS      bool
		saveMap     bool
		proxy       string
		insecure    bool
		rate        float64
		timeout     int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a page, find its scripts and extract their .map sources",
		Long: `Fetches a page, follows every <script src>, and for each script looks
for an inline source map, a sourceMappingURL comment, then <script>.map.
Embedded sources are written under <out>/<host>/<script dir>.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			override(cmd, "out", &cfg.Crawl.Out, out)
			override(cmd, "beautify", &cfg.Beautify, beautify)
			override(cmd, "eol", &cfg.EOL, eol)
			override(cmd, "anchor", &cfg.Anchor, anchor)
			override(cmd, "concurrency", &cfg.Crawl.Concurrency, concurrency)
			override(cmd, "write-concurrency", &cfg.Concurrency, writers)
			override(cmd, "user-agent", &cfg.Crawl.UserAgent, userAgent)
			override(cmd, "save-js", &cfg.Crawl.SaveJS, saveJS)
			override(cmd, "save-map", &cfg.Crawl.SaveMap, saveMap)
			override(cmd, "proxy", &cfg.Crawl.Proxy, proxy)
			override(cmd, "insecure", &cfg.Crawl.Insecure, insecure)
			override(cmd, "rate", &cfg.Crawl.Rate, rate)
			override(cmd, "timeout", &cfg.Crawl.TimeoutSeconds, timeout)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if strings.TrimSpace(pageURL) == "" {
				return errors.New("missing --url")
			}

			p := tsmap.NewPrinter(cmd.OutOrStdout())
			c, err := tsmap.NewCrawler(crawlOptions(cfg, p))
			if err != nil {
				return err
			}
			reports, err := c.Crawl(cmd.Context(), pageURL, cfg.Crawl.Out)
			if err != nil {
				return err
			}
			p.CrawlSummary(reports)
			return crawlFailures(reports)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&pageURL, "url", "", "Root page URL to crawl (required)")
	fs.StringVarP(&out, "out", "o", "recovered", "Output base directory")
	fs.BoolVar(&beautify, "beautify", false, "Beautify minimal JS/TS")
	fs.StringVar(&eol, "eol", "", "Normalize EOL: unix|dos")
	fs.BoolVar(&anchor, "anchor", false, "Re-root leading ../ under the output instead of refusing them")
	fs.IntVar(&concurrency, "concurrency", 4, "Parallel downloads")
	fs.IntVar(&writers, "write-concurrency", 1, "Parallel writes per source map")
	fs.StringVar(&userAgent, "user-agent", "tsmap-crawl/1.0", "User-Agent header")
	fs.BoolVar(&saveJS, "save-js", false, "Save downloaded .js files alongside recovered sources")
	fs.BoolVar(&saveMap, "save-map", false, "Save downloaded .map files alongside recovered sources")
	fs.StringVar(&proxy, "proxy", "", "Proxy URL (e.g. http://127.0.0.1:8080)")
	fs.BoolVar(&insecure, "insecure", false, "Skip TLS verification, useful with Burp Suite")
	fs.Float64Var(&rate, "rate", 0, "Max requests per second (0 = unlimited)")
	fs.IntVar(&timeout, "timeout", 25, "HTTP timeout in seconds")
	return cmd
}
