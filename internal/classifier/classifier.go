// Package classifier implements rule-based ticket classification: every
// category's regex patterns and keywords are scored against the ticket text
// and the best-scoring category wins, subject to a fallback threshold.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ticketclassifier/internal/categories"
	"ticketclassifier/internal/domain"
)

const (
	// DefaultThreshold is the minimum winning score for a non-fallback category.
	DefaultThreshold = 0.25
	// MaxTextLength caps the number of characters scored per ticket.
	MaxTextLength = 5000
	// DefaultWorkers bounds ClassifyBatchConcurrent when workers <= 0.
	DefaultWorkers = 4
)

var (
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
	ErrEmptyBatch       = errors.New("batch must contain at least one ticket")
)

// Classifier scores ticket text against the categories of its registry. The
// registry is owned by the classifier; Classify only reads it, so concurrent
// classification is safe as long as no AddCategory/RemoveCategory runs at the
// same time.
type Classifier struct {
	registry       *categories.Registry
	logger         *zap.Logger
	onPatternError func(category string)
}

type Option func(*Classifier)

// WithRegistry uses reg instead of a fresh default registry.
func WithRegistry(reg *categories.Registry) Option {
	return func(c *Classifier) { c.registry = reg }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

// WithPatternErrorHook is called with the category name whenever a pattern
// that failed to compile is skipped.
func WithPatternErrorHook(fn func(category string)) Option {
	return func(c *Classifier) { c.onPatternError = fn }
}

func New(opts ...Option) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = categories.NewDefaultRegistry()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Classify returns the best matching category for text. Text longer than
// MaxTextLength characters is truncated first. When the winning score is
// below threshold the fallback category is returned with that score and no
// matched patterns.
func (c *Classifier) Classify(text string, threshold float64) (domain.ClassificationResult, error) {
	if err := validateThreshold(threshold); err != nil {
		return domain.ClassificationResult{}, err
	}

	scores := c.Scores(text)
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}

	if best.Score < threshold && !best.Category.IsOther() {
		if other, ok := c.registry.Lookup(domain.OtherName); ok {
			c.logger.Debug("classifier below threshold",
				zap.String("best", best.Category.Name()),
				zap.Float64("score", best.Score),
				zap.Float64("threshold", threshold),
			)
			return domain.NewClassificationResult(other, best.Score, nil)
		}
	}
	return domain.NewClassificationResult(best.Category, best.Score, best.MatchedPatterns)
}

// Scores returns the score of every registered category, in registry order.
func (c *Classifier) Scores(text string) []CategoryScore {
	lower := strings.ToLower(truncate(text, MaxTextLength))
	cats := c.registry.Snapshot()
	out := make([]CategoryScore, len(cats))
	for i, cat := range cats {
		out[i] = c.scoreCategory(lower, cat)
	}
	return out
}

// ClassifyBatch classifies each text independently, in input order.
func (c *Classifier) ClassifyBatch(texts []string, threshold float64) ([]domain.ClassificationResult, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}
	results := make([]domain.ClassificationResult, len(texts))
	for i, text := range texts {
		r, err := c.Classify(text, threshold)
		if err != nil {
			return nil, fmt.Errorf("ticket %d: %w", i, err)
		}
		results[i] = r
	}
	return results, nil
}

// ClassifyBatchConcurrent is ClassifyBatch spread over at most workers
// goroutines. Results stay aligned with texts.
func (c *Classifier) ClassifyBatchConcurrent(ctx context.Context, texts []string, threshold float64, workers int) ([]domain.ClassificationResult, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]domain.ClassificationResult, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, text := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := c.Classify(text, threshold)
			if err != nil {
				return fmt.Errorf("ticket %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Classifier) AddCategory(cat *domain.Category) error {
	return c.registry.Add(cat)
}

func (c *Classifier) RemoveCategory(name string) error {
	return c.registry.Remove(name)
}

// GetCategories returns a copy of the registered categories.
func (c *Classifier) GetCategories() []*domain.Category {
	return c.registry.Snapshot()
}

func (c *Classifier) Registry() *categories.Registry {
	return c.registry
}

func validateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w, got %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
