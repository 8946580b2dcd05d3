package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoobzio/transformz/internal/logging"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options holds the values of the persistent flags.
type options struct {
	cfg        Config
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "transformz",
		Short: "Run transformer chains and extract records from documents",
		Long: `transformz runs chains of named transformers over values and applies
extraction patterns to JSON, YAML and HTML documents.

Chains and patterns are written in JSON or YAML notation; run "transformz list"
to see the transformers available to them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.LogLevel, _ = flags.GetString("log-level") //nolint:errcheck
			}
			if flags.Changed("log-format") {
				cfg.LogFormat, _ = flags.GetString("log-format") //nolint:errcheck
			}
			if flags.Changed("max-depth") {
				cfg.MaxDepth, _ = flags.GetInt("max-depth") //nolint:errcheck
			}
			if flags.Changed("parallel-limit") {
				cfg.ParallelLimit, _ = flags.GetInt("parallel-limit") //nolint:errcheck
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			opts.cfg = cfg
			logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
			return nil
		},
	}

	// Disable default completion command
	cmd.CompletionOptions.DisableDefaultCmd = true

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (text, json)")
	pf.Int("max-depth", 0, "deepest pattern nesting accepted")
	pf.Int("parallel-limit", 0, "maximum concurrent parallel branches (0 = unlimited)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newExtractCmd(opts))
	cmd.AddCommand(newListCmd())
	return cmd
}
