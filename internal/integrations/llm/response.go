package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const defaultConfidence = 0.5

var ErrMalformedResponse = errors.New("malformed llm response")

type decision struct {
	Category   string
	Confidence float64
	Reasoning  string
}

// stripFences removes a Markdown code fence around the reply, if any.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if _, after, ok := strings.Cut(text, "```json"); ok {
		before, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(before)
	}
	if _, after, ok := strings.Cut(text, "```"); ok {
		before, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(before)
	}
	return text
}

func parseDecision(text string) (decision, error) {
	body := stripFences(text)

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return decision{}, fmt.Errorf("%w: %v (response: %s)", ErrMalformedResponse, err, body)
	}
	if dec.More() {
		return decision{}, fmt.Errorf("%w: trailing data after JSON value (response: %s)", ErrMalformedResponse, body)
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return decision{}, fmt.Errorf("%w: expected a JSON object (response: %s)", ErrMalformedResponse, body)
	}

	var d decision
	category, ok := fields["category"].(string)
	if !ok {
		return decision{}, fmt.Errorf("%w: category must be a string", ErrMalformedResponse)
	}
	d.Category = strings.TrimSpace(category)
	d.Confidence = coerceConfidence(fields["confidence"])

	if r, present := fields["reasoning"]; present && r != nil {
		reasoning, ok := r.(string)
		if !ok {
			return decision{}, fmt.Errorf("%w: reasoning must be a string", ErrMalformedResponse)
		}
		d.Reasoning = reasoning
	}
	return d, nil
}

// coerceConfidence converts the reported confidence to [0,1]. Missing or
// unusable values become 0.5.
func coerceConfidence(v any) float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return defaultConfidence
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return defaultConfidence
		}
		f = n
	case bool:
		if t {
			f = 1
		}
	default:
		return defaultConfidence
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return defaultConfidence
	}
	return max(0, min(f, 1))
}
