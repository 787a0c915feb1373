package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ticketclassifier/internal/config"
	"ticketclassifier/internal/domain"
	"ticketclassifier/internal/triage"
)

const maxLineBytes = 1 << 20

func newBatchCommand(c *cli) *cobra.Command {
	var (
		threshold float64
		workers   int
		format    string
		summary   bool
	)

	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Classify one ticket per line",
		Long: `Classify tickets read one per line from a file, or from stdin when no file
is given. Blank lines are skipped. Results keep input order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				in = file
			}
			texts, err := readLines(in)
			if err != nil {
				return err
			}

			var overrides []func(*config.Config)
			if cmd.Flags().Changed("threshold") {
				overrides = append(overrides, func(cfg *config.Config) { cfg.ClassifierThreshold = &threshold })
			}
			if cmd.Flags().Changed("workers") {
				overrides = append(overrides, func(cfg *config.Config) { cfg.BatchWorkers = workers })
			}
			rt, err := c.runtime(overrides...)
			if err != nil {
				return err
			}
			defer rt.Close()

			outcomes, err := rt.triage.ClassifyBatch(cmd.Context(), texts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if summary {
				counts := countByCategory(rt.triage.Rules().GetCategories(), outcomes)
				if format == formatText {
					for _, cc := range counts {
						fmt.Fprintf(w, "%s: %d\n", cc.Category, cc.Count)
					}
					return nil
				}
				return encode(w, format, counts)
			}

			views := make([]outcomeView, len(outcomes))
			for i, out := range outcomes {
				views[i] = viewOutcome(out)
			}
			if format == formatText {
				for i, v := range views {
					fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n", v.Category, v.Confidence, v.Method, texts[i])
				}
				return nil
			}
			return encode(w, format, views)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&threshold, "threshold", 0, "Minimum rule confidence before falling back to 'other' (default from config)")
	f.IntVarP(&workers, "workers", "w", 0, "Concurrent classifications (default from config)")
	f.StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	f.BoolVar(&summary, "summary", false, "Print ticket counts per category instead of each result")
	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	var out []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading tickets: %w", err)
	}
	return out, nil
}

// countByCategory counts outcomes per category in registry order, omitting
// categories with no tickets.
func countByCategory(cats []*domain.Category, outcomes []triage.Outcome) []countView {
	seen := make(map[string]int)
	for _, out := range outcomes {
		seen[out.Result.Category().Name()]++
	}
	var counts []countView
	for _, c := range cats {
		if n := seen[c.Name()]; n > 0 {
			counts = append(counts, countView{Category: c.Name(), Count: n})
		}
	}
	return counts
}
