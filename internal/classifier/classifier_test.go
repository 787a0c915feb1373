package classifier

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ticketclassifier/internal/categories"
	"ticketclassifier/internal/domain"
)

func testCategory(t *testing.T, name string) *domain.Category {
	t.Helper()
	c, err := domain.NewCategory(domain.CategoryConfig{
		Name:        name,
		Description: "Test category",
		Keywords:    []string{"test", "example"},
		Patterns:    []string{`test.*issue`},
		Priority:    "low",
	})
	require.NoError(t, err)
	return c
}

func TestClassifyDefaults(t *testing.T) {
	c := New()

	tests := []struct {
		text     string
		category string
		conf     float64
		matched  []string
	}{
		{"I forgot my password", "password_reset", 0.7, []string{`forgot.*password`}},
		{"My C drive is full", "disk_space", 0.7, []string{`c:?\\?.*full`}},
		{"C drive is full", "disk_space", 0.7, []string{`c:?\\?.*full`}},
		{"Printer not working", "printer_issue", 1.0, []string{`printer.*not.*work\w*`, `print.*not.*work\w*`}},
		{"Printer is broken", "printer_issue", 0.7, []string{`printer.*broken`}},
		{"xyz abc random words", "other", 0.1, []string{}},
		{"", "other", 0.0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			r, err := c.Classify(tt.text, DefaultThreshold)
			require.NoError(t, err)
			assert.Equal(t, tt.category, r.Category().Name())
			assert.InDelta(t, tt.conf, r.Confidence(), 1e-9)
			assert.Equal(t, tt.matched, r.MatchedPatterns())
		})
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := New()
	lower, err := c.Classify("printer not working", DefaultThreshold)
	require.NoError(t, err)
	upper, err := c.Classify("PRINTER NOT WORKING", DefaultThreshold)
	require.NoError(t, err)

	assert.Equal(t, lower.Flatten(), upper.Flatten())
}

func TestClassifyIsIdempotent(t *testing.T) {
	c := New()
	text := "Outlook keeps crashing and I can't send email"
	first, err := c.Classify(text, DefaultThreshold)
	require.NoError(t, err)
	for range 5 {
		again, err := c.Classify(text, DefaultThreshold)
		require.NoError(t, err)
		assert.Equal(t, first.Flatten(), again.Flatten())
	}
}

func TestClassifyRejectsBadThreshold(t *testing.T) {
	c := New()
	for _, th := range []float64{-0.1, 1.5, math.NaN()} {
		_, err := c.Classify("printer", th)
		assert.True(t, errors.Is(err, ErrInvalidThreshold), "threshold %v: %v", th, err)
	}
}

func TestClassifyThresholdBoundaries(t *testing.T) {
	c := New()

	r, err := c.Classify("Printer is broken", 0.9)
	require.NoError(t, err)
	assert.Equal(t, domain.OtherName, r.Category().Name())
	assert.InDelta(t, 0.7, r.Confidence(), 1e-9)
	assert.Empty(t, r.MatchedPatterns())

	r, err = c.Classify("Printer is broken", 0.0)
	require.NoError(t, err)
	assert.Equal(t, "printer_issue", r.Category().Name())

	r, err = c.Classify("Printer not working", 1.0)
	require.NoError(t, err)
	assert.Equal(t, "printer_issue", r.Category().Name())
}

func TestClassifyThresholdMonotonic(t *testing.T) {
	c := New()
	texts := []string{
		"I forgot my password",
		"Printer is broken",
		"need access to the finance share folder",
		"random words",
	}
	thresholds := []float64{0, 0.1, 0.25, 0.5, 0.7, 0.9, 1}
	for _, text := range texts {
		wentOther := false
		for _, th := range thresholds {
			r, err := c.Classify(text, th)
			require.NoError(t, err)
			if wentOther {
				assert.Equal(t, domain.OtherName, r.Category().Name(), "%q at %v", text, th)
			}
			if r.Category().IsOther() {
				wentOther = true
			}
		}
	}
}

func TestClassifyResultInvariants(t *testing.T) {
	c := New()
	texts := []string{
		"wifi is not working and vpn not working, no internet",
		"please install zoom on my laptop",
		"permission denied on shared drive",
		"excel crash, word error, outlook frozen",
		"hello",
	}
	for _, text := range texts {
		r, err := c.Classify(text, DefaultThreshold)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.Confidence(), 0.0)
		assert.LessOrEqual(t, r.Confidence(), 1.0)

		_, ok := c.Registry().Lookup(r.Category().Name())
		assert.True(t, ok, text)

		if r.Category().IsOther() {
			assert.Empty(t, r.MatchedPatterns(), text)
			continue
		}
		assert.GreaterOrEqual(t, r.Confidence(), DefaultThreshold, text)
		assert.Subset(t, r.Category().Patterns(), r.MatchedPatterns(), text)
	}
}

func TestClassifyCustomCategory(t *testing.T) {
	c := New()
	require.NoError(t, c.AddCategory(testCategory(t, "test_category")))

	r, err := c.Classify("test issue", DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, "test_category", r.Category().Name())
	assert.InDelta(t, 0.6, r.Confidence(), 1e-9)
	assert.Equal(t, []string{`test.*issue`}, r.MatchedPatterns())
}

func TestClassifyTieGoesToEarliest(t *testing.T) {
	reg, err := categories.NewRegistry([]*domain.Category{
		testCategory(t, "first"),
		testCategory(t, "second"),
		categories.OtherCategory(),
	})
	require.NoError(t, err)
	c := New(WithRegistry(reg))

	r, err := c.Classify("test issue", DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, "first", r.Category().Name())
}

func TestClassifyTruncatesLongText(t *testing.T) {
	c := New()

	tail := strings.Repeat("a", MaxTextLength) + " forgot my password"
	r, err := c.Classify(tail, DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, domain.OtherName, r.Category().Name())
	assert.InDelta(t, 0.0, r.Confidence(), 1e-9)

	head := "forgot my password " + strings.Repeat("a", 2*MaxTextLength)
	r, err = c.Classify(head, DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, "password_reset", r.Category().Name())
}

func TestTruncateCountsCharacters(t *testing.T) {
	s := strings.Repeat("é", 10)
	assert.Equal(t, strings.Repeat("é", 4), truncate(s, 4))
	assert.Equal(t, s, truncate(s, 10))
	assert.Equal(t, s, truncate(s, 50))
	assert.Equal(t, "", truncate("abc", 0))
}

func TestInvalidPatternIsLoggedAndSkipped(t *testing.T) {
	broken, err := domain.NewCategory(domain.CategoryConfig{
		Name:        "broken",
		Description: "Has one bad pattern",
		Keywords:    []string{"widget"},
		Patterns:    []string{`widget[`, `widget.*down`},
		Priority:    "low",
	})
	require.NoError(t, err)

	reg, err := categories.NewRegistry([]*domain.Category{broken, categories.OtherCategory()})
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	var hooked []string
	c := New(
		WithRegistry(reg),
		WithLogger(zap.New(core)),
		WithPatternErrorHook(func(name string) { hooked = append(hooked, name) }),
	)

	r, err := c.Classify("the widget is down", DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, "broken", r.Category().Name())
	assert.InDelta(t, 0.6, r.Confidence(), 1e-9)
	assert.Equal(t, []string{`widget.*down`}, r.MatchedPatterns())

	entries := logs.FilterMessage("classifier pattern skipped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].ContextMap()["category"])
	assert.Equal(t, `widget[`, entries[0].ContextMap()["pattern"])
	assert.Equal(t, []string{"broken"}, hooked)
}

func TestScores(t *testing.T) {
	c := New()
	scores := c.Scores("Printer is broken")
	require.Len(t, scores, c.Registry().Len())

	byName := map[string]CategoryScore{}
	for _, s := range scores {
		byName[s.Category.Name()] = s
	}
	assert.Equal(t, 1, byName["printer_issue"].PatternMatches)
	assert.Equal(t, 2, byName["printer_issue"].KeywordMatches)
	assert.InDelta(t, 0.6, byName["hardware_issue"].Score, 1e-9)
	assert.Equal(t, 0.0, byName["other"].Score)
}

func TestCombine(t *testing.T) {
	tests := []struct {
		pm, km int
		want   float64
	}{
		{0, 0, 0},
		{0, 1, 0.1},
		{0, 3, 0.35},
		{0, 9, 0.55},
		{1, 0, 0.5},
		{1, 2, 0.7},
		{2, 0, 1.0},
		{1, 5, 1.0},
		{5, 9, 1.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, combine(tt.pm, tt.km), 1e-9, "pm=%d km=%d", tt.pm, tt.km)
	}
}

func TestClassifyBatch(t *testing.T) {
	c := New()
	texts := []string{
		"I forgot my password",
		"Printer not working",
		"xyz abc random words",
	}

	results, err := c.ClassifyBatch(texts, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, results, len(texts))

	for i, text := range texts {
		single, err := c.Classify(text, DefaultThreshold)
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(single.Flatten(), results[i].Flatten()), "batch result %d mismatch (-single +batch)", i)
	}

	_, err = c.ClassifyBatch(nil, DefaultThreshold)
	assert.True(t, errors.Is(err, ErrEmptyBatch))

	_, err = c.ClassifyBatch(texts, 2)
	assert.True(t, errors.Is(err, ErrInvalidThreshold))
}

func TestClassifyBatchConcurrentMatchesSequential(t *testing.T) {
	c := New()
	texts := []string{
		"I forgot my password",
		"My C drive is full",
		"Printer not working",
		"Printer is broken",
		"can't send email from outlook",
		"please install teams",
		"no internet on wifi",
		"need office 365 license",
		"keyboard not working",
		"need access to the hr folder",
		"excel keeps crashing",
		"lunch menu?",
	}

	want, err := c.ClassifyBatch(texts, DefaultThreshold)
	require.NoError(t, err)
	got, err := c.ClassifyBatchConcurrent(context.Background(), texts, DefaultThreshold, 3)
	require.NoError(t, err)

	flat := func(rs []domain.ClassificationResult) []domain.FlatResult {
		out := make([]domain.FlatResult, len(rs))
		for i, r := range rs {
			out[i] = r.Flatten()
		}
		return out
	}
	assert.Empty(t, cmp.Diff(flat(want), flat(got)), "concurrent batch mismatch (-sequential +concurrent)")
}

func TestClassifyBatchConcurrentCancelled(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ClassifyBatchConcurrent(ctx, []string{"a", "b", "c"}, DefaultThreshold, 1)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = c.ClassifyBatchConcurrent(context.Background(), nil, DefaultThreshold, 0)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestCategoryManagement(t *testing.T) {
	c := New()
	before := len(c.GetCategories())

	require.NoError(t, c.AddCategory(testCategory(t, "test_category")))
	assert.Len(t, c.GetCategories(), before+1)
	assert.Error(t, c.AddCategory(testCategory(t, "test_category")))

	require.NoError(t, c.RemoveCategory("test_category"))
	assert.Len(t, c.GetCategories(), before)
	assert.ErrorIs(t, c.RemoveCategory("other"), categories.ErrProtectedCategory)
	assert.ErrorIs(t, c.RemoveCategory("nonexistent"), categories.ErrCategoryNotFound)
}
