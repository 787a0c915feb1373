package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"ticketclassifier/internal/domain"
)

func newCategoriesCommand(c *cli) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the configured categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			rt, err := c.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			cats := rt.triage.Rules().GetCategories()
			w := cmd.OutOrStdout()
			if format == formatText {
				for _, cat := range cats {
					fmt.Fprintf(w, "%-20s %-8s auto=%-5t patterns=%-2d keywords=%-2d %s\n",
						cat.Name(), cat.Priority(), cat.AutoResolvable(),
						cat.PatternCount(), cat.KeywordCount(), cat.Description())
				}
				return nil
			}

			configs := make([]domain.CategoryConfig, len(cats))
			for i, cat := range cats {
				configs[i] = cat.Config()
			}
			return encode(w, format, map[string]any{"categories": configs})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	return cmd
}
