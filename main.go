package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tsmap-recover.safepic.fr/config"
	"tsmap-recover.safepic.fr/logger"
)

// app carries the settings shared by every subcommand of one invocation.
type app struct {
	configPath string
	verbose    bool
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default()}

	root := &cobra.Command{
		Use:   "tsmap-recover",
		Short: "Recover original sources embedded in source maps",
		Long: `tsmap-recover writes the sources embedded in a JavaScript/TypeScript
source map back to disk, mirroring their recorded paths.

Sources that would land outside the output directory are refused.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (.toml, .yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Print debug logs to stderr")

	root.AddCommand(
		newExtractCmd(a),
		newWatchCmd(a),
		newCrawlCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	override(cmd, "verbose", &a.cfg.Verbose, a.verbose)
	logger.SetVerbose(a.cfg.Verbose)
	return nil
}

// override copies a flag value over the config when the flag was given.
func override[T any](cmd *cobra.Command, name string, dst *T, v T) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		*dst = v
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
