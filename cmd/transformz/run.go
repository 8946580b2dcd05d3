package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zoobzio/transformz"
	"github.com/zoobzio/transformz/builtin"
	"github.com/zoobzio/transformz/document"
)

func builtinRegistry() *transformz.Registry {
	return builtin.NewRegistry()
}

func newRunCmd(opts *options) *cobra.Command {
	var (
		chainFile string
		steps     string
		inputFile string
		sync      bool
		trace     bool
	)
	cmd := &cobra.Command{
		Use:   "run [value]",
		Short: "Run a chain over a value",
		Long: `Run a chain over a value and print the output as JSON.

The chain comes from --steps (inline notation) or --chain (a JSON or YAML file).
The value is the argument, the parsed document in --input-file, or stdin.`,
		Example: `  transformz run --steps '["strip", {"function": "truncate", "length": 5}]' " Hello World! "
  transformz run --chain chain.yaml --input-file page.html --trace`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := loadChain(chainFile, steps)
			if err != nil {
				return err
			}
			value, err := loadValue(cmd.InOrStdin(), inputFile, args)
			if err != nil {
				return err
			}

			exec := opts.cfg.executor()
			defer exec.Close()

			run := exec.Run
			if sync {
				run = exec.RunSync
			}
			res, err := run(cmd.Context(), chain, value)
			if err != nil {
				var stepErr *transformz.StepError
				if errors.As(err, &stepErr) {
					return fmt.Errorf("run %s: %w", res.RunID, err)
				}
				return err
			}

			if trace {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			return writeJSON(cmd.OutOrStdout(), res.Output)
		},
	}
	f := cmd.Flags()
	f.StringVar(&chainFile, "chain", "", "chain notation file (JSON or YAML)")
	f.StringVar(&steps, "steps", "", "inline chain notation")
	f.StringVar(&inputFile, "input-file", "", "document to use as the input value")
	f.BoolVar(&sync, "sync", false, "refuse to run async transformers")
	f.BoolVar(&trace, "trace", false, "print the run id and trace with the output")
	cmd.MarkFlagsMutuallyExclusive("chain", "steps")
	cmd.MarkFlagsOneRequired("chain", "steps")
	return cmd
}

func loadChain(path, inline string) (transformz.Chain, error) {
	var chain transformz.Chain
	if inline != "" {
		if err := json.Unmarshal([]byte(inline), &chain); err != nil {
			return nil, fmt.Errorf("steps: %w", err)
		}
		return chain, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &chain)
	} else {
		err = json.Unmarshal(data, &chain)
	}
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", path, err)
	}
	return chain, nil
}

func loadValue(stdin io.Reader, path string, args []string) (any, error) {
	if path != "" {
		return loadDocument(path)
	}
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

func loadDocument(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return document.Parse(document.Detect(path, data), data)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
