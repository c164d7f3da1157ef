package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tsmap-recover.safepic.fr/tsmap"
)

// extractFlags are shared by extract and watch.
type extractFlags struct {
	mapPath     string
	out         string
	beautify    bool
	eol         string
	anchor      bool
	concurrency int
}

func (f *extractFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.mapPath, "map", "", "Path to .map file (or pass it as argument)")
	fs.StringVarP(&f.out, "out", "o", "extracted_sources", "Output directory")
	fs.BoolVar(&f.beautify, "beautify", false, "Beautify minimal JS/TS")
	fs.StringVar(&f.eol, "eol", "", "Line endings: unix|dos")
	fs.BoolVar(&f.anchor, "anchor", false, "Re-root leading ../ under the output instead of refusing them")
	fs.IntVar(&f.concurrency, "concurrency", 1, "Parallel writes")
}

// resolve merges flags over the config and returns the map path and options.
func (f *extractFlags) resolve(cmd *cobra.Command, a *app, args []string) (string, string, tsmap.Options, error) {
	cfg := a.cfg
	override(cmd, "out", &cfg.Out, f.out)
	override(cmd, "beautify", &cfg.Beautify, f.beautify)
	override(cmd, "eol", &cfg.EOL, f.eol)
	override(cmd, "anchor", &cfg.Anchor, f.anchor)
	override(cmd, "concurrency", &cfg.Concurrency, f.concurrency)
	if err := cfg.Validate(); err != nil {
		return "", "", tsmap.Options{}, err
	}

	mapPath := f.mapPath
	if len(args) > 0 {
		if mapPath != "" && mapPath != args[0] {
			return "", "", tsmap.Options{}, errors.New("give the source map either with --map or as argument, not both")
		}
		mapPath = args[0]
	}
	if strings.TrimSpace(mapPath) == "" {
		return "", "", tsmap.Options{}, errors.New("missing source map: use --map or pass a path")
	}

	return mapPath, cfg.Out, tsmap.Options{
		Beautify:    cfg.Beautify,
		EOL:         cfg.EOL,
		Anchor:      cfg.Anchor,
		Concurrency: cfg.Concurrency,
	}, nil
}

func newExtractCmd(a *app) *cobra.Command {
	f := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "extract [map-file]",
		Short: "Extract sources from a .map file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapPath, out, opts, err := f.resolve(cmd, a, args)
			if err != nil {
				return err
			}
			p := tsmap.NewPrinter(cmd.OutOrStdout())
			opts.OnProgress = p.Progress

			res, err := tsmap.Convert(cmd.Context(), mapPath, out, opts)
			p.Summary(res)
			return summarize(res, err)
		},
	}
	f.bind(cmd)
	return cmd
}

func summarize(res *tsmap.Result, err error) error {
	if err == nil {
		return nil
	}
	if res == nil || len(res.Failures) == 0 {
		return err
	}
	return fmt.Errorf("%d source(s) failed: %w", len(res.Failures), err)
}
