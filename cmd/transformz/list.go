package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available transformers",
		Long:  "Display the built-in transformers grouped by category, with their parameters.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			reg := builtinRegistry()
			out := cmd.OutOrStdout()
			for _, category := range reg.Categories() {
				fmt.Fprintf(out, "%s:\n", category)
				for _, name := range reg.Category(category) {
					d, _ := reg.Get(name)
					params := make([]string, 0, len(d.Params))
					for _, p := range d.Params {
						if p.Default != nil {
							params = append(params, fmt.Sprintf("%s=%v", p.Name, p.Default))
						} else {
							params = append(params, p.Name)
						}
					}
					line := fmt.Sprintf("  %-16s %s -> %s", d.Name, d.InputType, d.OutputType)
					if len(params) > 0 {
						line += "  (" + strings.Join(params, ", ") + ")"
					}
					if d.Async {
						line += "  [async]"
					}
					fmt.Fprintln(out, line)
				}
			}
		},
	}
}
