package domain

import "time"

// Method names how a ticket was classified.
type Method string

const (
	MethodRules Method = "rules"
	MethodLLM   Method = "llm"
)

type ClassificationRecord struct {
	ID              int64
	RequestID       string
	TicketText      string
	Category        string
	Confidence      float64
	MatchedPatterns []string
	Method          Method
	LLMProvider     string
	LLMModel        string
	ClassifiedAt    time.Time
}

type ClassificationCorrection struct {
	ID                int64
	ClassificationID  int64
	OriginalCategory  string
	CorrectedCategory string
	TicketText        string
	CorrectedBy       string
	CorrectedAt       time.Time
}

type ClassificationStats struct {
	TotalClassifications int
	TotalCorrections     int
	AvgConfidence        float64
	BucketBelow50        int
	Bucket50to70         int
	Bucket70to90         int
	Bucket90Plus         int
}

type CategoryCount struct {
	Category      string
	Count         int
	AvgConfidence float64
}

type CategoryCorrectionStat struct {
	OriginalCategory string
	CorrectionCount  int
}

type WeeklyTrend struct {
	WeekStart       string
	Classifications int
	Corrections     int
	AvgConfidence   float64
}
