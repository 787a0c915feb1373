package classifier

import (
	"go.uber.org/zap"

	"ticketclassifier/internal/domain"
)

const (
	patternWeight     = 0.5
	patternCap        = 1.0
	keywordWeight     = 0.1
	keywordCap        = 0.5
	multiPatternBonus = 0.1
	multiKeywordBonus = 0.05
)

// CategoryScore is the scoring detail for one category.
type CategoryScore struct {
	Category        *domain.Category
	Score           float64
	PatternMatches  int
	KeywordMatches  int
	MatchedPatterns []string
}

// scoreCategory scores lowerText against c. Pattern hits are strong signals
// and dominate; keyword hits are capped so they only corroborate.
func (c *Classifier) scoreCategory(lowerText string, cat *domain.Category) CategoryScore {
	s := CategoryScore{Category: cat, MatchedPatterns: []string{}}
	if cat.IsOther() {
		return s
	}

	matched, broken := cat.MatchPatterns(lowerText)
	for _, p := range broken {
		c.logger.Warn("classifier pattern skipped",
			zap.String("category", cat.Name()),
			zap.String("pattern", p.Source),
			zap.Error(p.Err),
		)
		if c.onPatternError != nil {
			c.onPatternError(cat.Name())
		}
	}
	if matched != nil {
		s.MatchedPatterns = matched
	}
	s.PatternMatches = len(matched)
	s.KeywordMatches = cat.CountKeywords(lowerText)
	s.Score = combine(s.PatternMatches, s.KeywordMatches)
	return s
}

func combine(patternMatches, keywordMatches int) float64 {
	patternScore := min(float64(patternMatches)*patternWeight, patternCap)
	keywordScore := min(float64(keywordMatches)*keywordWeight, keywordCap)
	score := clamp(patternScore + keywordScore)

	if patternMatches >= 2 {
		score = clamp(score + multiPatternBonus)
	}
	if keywordMatches >= 3 {
		score = clamp(score + multiKeywordBonus)
	}
	return score
}

func clamp(v float64) float64 {
	return max(0, min(v, 1))
}
