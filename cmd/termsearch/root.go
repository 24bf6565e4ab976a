package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/logger"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer

	configPath   string
	indexPath    string
	manifestPath string
	logLevel     string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "termsearch",
		Short: "Build, search, and serve an exact-term inverted index",
		Long: `termsearch indexes every regular file of a directory by whitespace-separated
terms and answers exact, case-sensitive single-term queries.

Binary files created/used:
  index.bin       inverted index (term -> document IDs and frequencies)
  manifest.bin    document manifest (document ID -> path)`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return usageError(cmd, errors.New("a subcommand is required"))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(usageError)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&a.indexPath, "index", "", "index file (default index.bin)")
	flags.StringVar(&a.manifestPath, "manifest", "", "manifest file (default manifest.bin)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newBuildCmd(a), newSearchCmd(a), newServeCmd(a))
	return root
}

// setup loads configuration with precedence defaults < file < TS_* env <
// flags and installs the logger on stderr.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.indexPath != "" {
		cfg.Index.IndexPath = a.indexPath
	}
	if a.manifestPath != "" {
		cfg.Index.ManifestPath = a.manifestPath
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, a.stderr)
	a.cfg = cfg
	return nil
}

func usageError(cmd *cobra.Command, err error) error {
	return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
}

// exactArgs is cobra.ExactArgs with the usage text appended to the error.
func exactArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError(cmd, fmt.Errorf("%s requires %s", cmd.Name(), what))
		}
		return nil
	}
}
