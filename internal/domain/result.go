package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrInvalidResult = errors.New("invalid classification result")

// ClassificationResult is the outcome of classifying one ticket. It points at
// the registered category rather than copying it.
type ClassificationResult struct {
	category        *Category
	confidence      float64
	matchedPatterns []string
}

// NewClassificationResult rejects a nil category and any confidence that is
// not a finite number in [0, 1].
func NewClassificationResult(category *Category, confidence float64, matched []string) (ClassificationResult, error) {
	if category == nil {
		return ClassificationResult{}, fmt.Errorf("%w: category is required", ErrInvalidResult)
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return ClassificationResult{}, fmt.Errorf("%w: confidence must be a number, got %v", ErrInvalidResult, confidence)
	}
	if confidence < 0 || confidence > 1 {
		return ClassificationResult{}, fmt.Errorf("%w: confidence must be between 0 and 1, got %v", ErrInvalidResult, confidence)
	}
	return ClassificationResult{
		category:        category,
		confidence:      confidence,
		matchedPatterns: append([]string{}, matched...),
	}, nil
}

func (r ClassificationResult) Category() *Category { return r.category }
func (r ClassificationResult) Confidence() float64 { return r.confidence }

// MatchedPatterns returns the evidence behind the result: regex sources for
// rule-based results, a single reasoning or error string for LLM results.
func (r ClassificationResult) MatchedPatterns() []string {
	return append([]string{}, r.matchedPatterns...)
}

func (r ClassificationResult) String() string {
	name := ""
	if r.category != nil {
		name = r.category.Name()
	}
	return fmt.Sprintf("ClassificationResult(category='%s', confidence=%.2f)", name, r.confidence)
}

// FlatResult is the serialized shape of a ClassificationResult.
type FlatResult struct {
	Category        string   `json:"category" yaml:"category"`
	Description     string   `json:"description" yaml:"description"`
	Confidence      float64  `json:"confidence" yaml:"confidence"`
	Priority        Priority `json:"priority" yaml:"priority"`
	AutoResolvable  bool     `json:"auto_resolvable" yaml:"auto_resolvable"`
	MatchedPatterns []string `json:"matched_patterns" yaml:"matched_patterns"`
}

// Flatten converts the result for serialization; confidence is rounded to two decimals.
func (r ClassificationResult) Flatten() FlatResult {
	flat := FlatResult{
		Confidence:      RoundConfidence(r.confidence),
		MatchedPatterns: r.MatchedPatterns(),
	}
	if r.category != nil {
		flat.Category = r.category.Name()
		flat.Description = r.category.Description()
		flat.Priority = r.category.Priority()
		flat.AutoResolvable = r.category.AutoResolvable()
	}
	return flat
}

func (r ClassificationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Flatten())
}

// RoundConfidence rounds to two decimal places.
func RoundConfidence(v float64) float64 {
	return math.Round(v*100) / 100
}
