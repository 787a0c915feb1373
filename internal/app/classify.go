package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ticketclassifier/internal/config"
)

func newClassifyCommand(c *cli) *cobra.Command {
	var (
		threshold float64
		explain   bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "classify [ticket text...]",
		Short: "Classify one ticket",
		Long: `Classify one support ticket. The text is taken from the arguments, or from
stdin when no arguments are given.

Examples:
  ticketclassifier classify "I forgot my password"
  echo "printer not working" | ticketclassifier classify --format json
  ticketclassifier classify --explain "my C drive is full"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = strings.TrimSpace(string(data))
			}
			if text == "" {
				return errors.New("ticket text is required")
			}

			var overrides []func(*config.Config)
			if cmd.Flags().Changed("threshold") {
				overrides = append(overrides, func(cfg *config.Config) { cfg.ClassifierThreshold = &threshold })
			}
			rt, err := c.runtime(overrides...)
			if err != nil {
				return err
			}
			defer rt.Close()

			out, err := rt.triage.Classify(cmd.Context(), text)
			if err != nil {
				return err
			}
			v := viewOutcome(out)
			if explain {
				v.Scores = viewScores(rt.triage.Rules().Scores(text))
			}

			if format == formatText {
				writeOutcomeText(cmd.OutOrStdout(), v)
				return nil
			}
			return encode(cmd.OutOrStdout(), format, v)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&threshold, "threshold", 0, "Minimum rule confidence before falling back to 'other' (default from config)")
	f.BoolVar(&explain, "explain", false, "Include every category's rule score")
	f.StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	return cmd
}
