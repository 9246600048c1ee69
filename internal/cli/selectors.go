// internal/cli/selectors.go
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/law-makers/rednote/internal/selectors"
	"github.com/law-makers/rednote/internal/ui"
)

func newSelectorsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "selectors",
		Short: "Print the page selectors in use",
		Long: `Prints every logical page element and the selector used to find it, after
applying the --selectors override file. The JSON form is a valid override file.`,
		Example: `  # Start an override file from the current selectors
  rednote selectors --format json > selectors.json

  # Check the effective selectors
  rednote selectors --selectors selectors.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetApp(cmd)
			w := cmd.OutOrStdout()

			if format == "json" {
				enc := json.NewEncoder(w)
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "  ")
				return enc.Encode(a.Selectors)
			}

			names := selectors.Names()
			width := 0
			for _, n := range names {
				width = max(width, len(n))
			}
			for _, n := range names {
				fmt.Fprintf(w, "%s  %s\n", ui.Accent(fmt.Sprintf("%-*s", width, n)), a.Selectors.Get(n))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}
