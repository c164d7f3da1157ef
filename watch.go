package main

import (
	"github.com/spf13/cobra"

	"tsmap-recover.safepic.fr/logger"
	"tsmap-recover.safepic.fr/tsmap"
)

func newWatchCmd(a *app) *cobra.Command {
	f := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "watch [map-file]",
		Short: "Extract sources again every time the .map file changes",
		Long: `Runs extract once, then again whenever the source map is rewritten,
until interrupted. Recovered files are overwritten in place.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapPath, out, opts, err := f.resolve(cmd, a, args)
			if err != nil {
				return err
			}
			p := tsmap.NewPrinter(cmd.OutOrStdout())
			opts.OnProgress = p.Progress

			cmd.Printf("Watching %s (Ctrl-C to stop)\n", mapPath)
			return tsmap.Watch(cmd.Context(), mapPath, out, opts, func(res *tsmap.Result, err error) {
				p.Summary(res)
				if err != nil {
					logger.Error("%v", err)
				}
			})
		},
	}
	f.bind(cmd)
	return cmd
}
