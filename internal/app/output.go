package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"ticketclassifier/internal/classifier"
	"ticketclassifier/internal/domain"
	"ticketclassifier/internal/triage"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func checkFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format '%s' (want text, json or yaml)", f)
}

type outcomeView struct {
	RequestID         string      `json:"request_id" yaml:"request_id"`
	ClassificationID  int64       `json:"classification_id,omitempty" yaml:"classification_id,omitempty"`
	Method            string      `json:"method" yaml:"method"`
	domain.FlatResult `yaml:",inline"`
	Scores            []scoreView `json:"scores,omitempty" yaml:"scores,omitempty"`
}

type scoreView struct {
	Category        string   `json:"category" yaml:"category"`
	Score           float64  `json:"score" yaml:"score"`
	PatternMatches  int      `json:"pattern_matches" yaml:"pattern_matches"`
	KeywordMatches  int      `json:"keyword_matches" yaml:"keyword_matches"`
	MatchedPatterns []string `json:"matched_patterns,omitempty" yaml:"matched_patterns,omitempty"`
}

type countView struct {
	Category string `json:"category" yaml:"category"`
	Count    int    `json:"count" yaml:"count"`
}

func viewOutcome(out triage.Outcome) outcomeView {
	return outcomeView{
		RequestID:        out.RequestID,
		ClassificationID: out.ClassificationID,
		Method:           string(out.Method),
		FlatResult:       out.Result.Flatten(),
	}
}

func viewScores(scores []classifier.CategoryScore) []scoreView {
	out := make([]scoreView, len(scores))
	for i, s := range scores {
		out[i] = scoreView{
			Category:        s.Category.Name(),
			Score:           domain.RoundConfidence(s.Score),
			PatternMatches:  s.PatternMatches,
			KeywordMatches:  s.KeywordMatches,
			MatchedPatterns: s.MatchedPatterns,
		}
	}
	return out
}

// encode writes v as JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return checkFormat(format)
}

func writeOutcomeText(w io.Writer, v outcomeView) {
	fmt.Fprintf(w, "category:         %s\n", v.Category)
	fmt.Fprintf(w, "confidence:       %.2f\n", v.Confidence)
	fmt.Fprintf(w, "priority:         %s\n", v.Priority)
	fmt.Fprintf(w, "auto_resolvable:  %t\n", v.AutoResolvable)
	fmt.Fprintf(w, "method:           %s\n", v.Method)
	if len(v.MatchedPatterns) > 0 {
		fmt.Fprintf(w, "matched_patterns: %s\n", strings.Join(v.MatchedPatterns, ", "))
	}
	if v.ClassificationID > 0 {
		fmt.Fprintf(w, "history_id:       %d\n", v.ClassificationID)
	}
	fmt.Fprintf(w, "request_id:       %s\n", v.RequestID)
	if len(v.Scores) > 0 {
		fmt.Fprintln(w, "scores:")
		for _, s := range v.Scores {
			fmt.Fprintf(w, "  %-20s %.2f  patterns=%d keywords=%d\n", s.Category, s.Score, s.PatternMatches, s.KeywordMatches)
		}
	}
}
