package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zoobzio/transformz"
	"github.com/zoobzio/transformz/internal/logging"
)

func newExtractCmd(opts *options) *cobra.Command {
	var (
		patternFile string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "extract --pattern FILE DOCUMENT",
		Short: "Apply an extraction pattern to a document",
		Long: `Apply an extraction pattern to a JSON, YAML or HTML document and print
the record it produces. The document format is detected from its extension
or, failing that, its content.`,
		Example: `  transformz extract --pattern product.yaml page.html
  transformz extract --pattern owners.json --output yaml service.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "yaml" {
				return fmt.Errorf("unknown output format %q", output)
			}
			pattern, err := loadPattern(patternFile)
			if err != nil {
				return err
			}
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}

			exec := opts.cfg.executor()
			defer exec.Close()
			x := transformz.NewExtractor(exec, transformz.WithMaxDepth(opts.cfg.MaxDepth))
			defer x.Close()

			log := logging.New("extract")
			result, err := x.Extract(cmd.Context(), doc, pattern)
			if err != nil {
				return err
			}
			log.Debug("extracted record", "document", args[0], "keys", result.Len())

			if output == "yaml" {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				defer enc.Close()
				return enc.Encode(result)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	f := cmd.Flags()
	f.StringVar(&patternFile, "pattern", "", "pattern file (JSON or YAML)")
	f.StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	_ = cmd.MarkFlagRequired("pattern") //nolint:errcheck
	return cmd
}

func loadPattern(path string) (transformz.Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transformz.Pattern{}, fmt.Errorf("read pattern: %w", err)
	}
	if isYAML(path) {
		return transformz.ParsePatternYAML(data)
	}
	return transformz.ParsePattern(data)
}
