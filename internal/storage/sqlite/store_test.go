package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ticketclassifier/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "classifier-test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		_ = s.Close()
	}
}

func TestInsertAndGetClassification(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

	id, err := s.InsertClassification(ctx, domain.ClassificationRecord{
		RequestID:       "req-1",
		TicketText:      "Printer not working",
		Category:        "printer_issue",
		Confidence:      1.0,
		MatchedPatterns: []string{`printer.*not.*work\w*`, `print.*not.*work\w*`},
		Method:          domain.MethodRules,
		ClassifiedAt:    at,
	})
	if err != nil {
		t.Fatalf("InsertClassification failed: %v", err)
	}

	got, err := s.GetClassification(ctx, id)
	if err != nil {
		t.Fatalf("GetClassification failed: %v", err)
	}
	if got.RequestID != "req-1" || got.Category != "printer_issue" || got.Method != domain.MethodRules {
		t.Fatalf("unexpected record: %+v", got)
	}
	if len(got.MatchedPatterns) != 2 || got.MatchedPatterns[1] != `print.*not.*work\w*` {
		t.Fatalf("matched patterns not round-tripped: %v", got.MatchedPatterns)
	}
	if !got.ClassifiedAt.Equal(at) {
		t.Fatalf("classified_at = %s, want %s", got.ClassifiedAt, at)
	}

	if _, err := s.GetClassification(ctx, id+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertClassificationDefaultsTimestampAndPatterns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	id, err := s.InsertClassification(ctx, domain.ClassificationRecord{
		TicketText: "hello",
		Category:   "other",
		Method:     domain.MethodLLM,
	})
	if err != nil {
		t.Fatalf("InsertClassification failed: %v", err)
	}
	got, err := s.GetClassification(ctx, id)
	if err != nil {
		t.Fatalf("GetClassification failed: %v", err)
	}
	if got.MatchedPatterns == nil || len(got.MatchedPatterns) != 0 {
		t.Fatalf("expected empty non-nil patterns, got %#v", got.MatchedPatterns)
	}
	if got.ClassifiedAt.Before(before) {
		t.Fatalf("expected classified_at to default to now, got %s", got.ClassifiedAt)
	}
}

func TestStatsAndTrends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wed := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	records := []domain.ClassificationRecord{
		{TicketText: "a", Category: "printer_issue", Confidence: 0.95, Method: domain.MethodRules, ClassifiedAt: wed},
		{TicketText: "b", Category: "printer_issue", Confidence: 0.75, Method: domain.MethodRules, ClassifiedAt: wed},
		{TicketText: "c", Category: "password_reset", Confidence: 0.60, Method: domain.MethodRules, ClassifiedAt: wed},
		{TicketText: "d", Category: "other", Confidence: 0.10, Method: domain.MethodLLM, ClassifiedAt: wed},
		{TicketText: "old", Category: "other", Confidence: 0.0, Method: domain.MethodRules, ClassifiedAt: wed.AddDate(0, -2, 0)},
	}
	ids, err := s.InsertClassifications(ctx, records)
	if err != nil {
		t.Fatalf("InsertClassifications failed: %v", err)
	}
	if len(ids) != len(records) || ids[0] != 1 || ids[4] != 5 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if err := s.InsertCorrection(ctx, domain.ClassificationCorrection{
		ClassificationID:  4,
		OriginalCategory:  "other",
		CorrectedCategory: "email_issue",
		TicketText:        "d",
		CorrectedBy:       "U123",
		CorrectedAt:       wed.Add(time.Hour),
	}); err != nil {
		t.Fatalf("InsertCorrection failed: %v", err)
	}

	since := wed.AddDate(0, 0, -7)

	stats, err := s.GetClassificationStats(ctx, since)
	if err != nil {
		t.Fatalf("GetClassificationStats failed: %v", err)
	}
	if stats.TotalClassifications != 4 || stats.TotalCorrections != 1 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.BucketBelow50 != 1 || stats.Bucket50to70 != 1 || stats.Bucket70to90 != 1 || stats.Bucket90Plus != 1 {
		t.Fatalf("unexpected buckets: %+v", stats)
	}
	if stats.AvgConfidence < 0.59 || stats.AvgConfidence > 0.61 {
		t.Fatalf("avg confidence = %v, want 0.60", stats.AvgConfidence)
	}

	counts, err := s.GetCategoryCounts(ctx, since)
	if err != nil {
		t.Fatalf("GetCategoryCounts failed: %v", err)
	}
	if len(counts) != 3 || counts[0].Category != "printer_issue" || counts[0].Count != 2 {
		t.Fatalf("unexpected category counts: %+v", counts)
	}

	byCat, err := s.GetCorrectionsByCategory(ctx, since)
	if err != nil {
		t.Fatalf("GetCorrectionsByCategory failed: %v", err)
	}
	if len(byCat) != 1 || byCat[0].OriginalCategory != "other" || byCat[0].CorrectionCount != 1 {
		t.Fatalf("unexpected corrections by category: %+v", byCat)
	}

	recent, err := s.GetRecentCorrections(ctx, since, 10)
	if err != nil {
		t.Fatalf("GetRecentCorrections failed: %v", err)
	}
	if len(recent) != 1 || recent[0].CorrectedCategory != "email_issue" || recent[0].CorrectedBy != "U123" {
		t.Fatalf("unexpected recent corrections: %+v", recent)
	}

	trends, err := s.GetWeeklyClassificationTrend(ctx, since)
	if err != nil {
		t.Fatalf("GetWeeklyClassificationTrend failed: %v", err)
	}
	if len(trends) != 1 {
		t.Fatalf("expected one week, got %+v", trends)
	}
	if trends[0].WeekStart != "2026-10-12" || trends[0].Classifications != 4 || trends[0].Corrections != 1 {
		t.Fatalf("unexpected trend: %+v", trends[0])
	}
}

func TestInsertClassificationsEmpty(t *testing.T) {
	s := newTestStore(t)
	ids, err := s.InsertClassifications(context.Background(), nil)
	if err != nil || len(ids) != 0 {
		t.Fatalf("InsertClassifications(nil) = %v, %v", ids, err)
	}
}
