// Package llm classifies tickets by delegating the decision to a language
// model. Transport failures and unusable replies never reach the caller; they
// become a zero-confidence result for the fallback category.
package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ticketclassifier/internal/categories"
	"ticketclassifier/internal/domain"
)

const maxBatchConcurrency = 4

type Classifier struct {
	transport Transport
	registry  *categories.Registry
	logger    *zap.Logger
	onFailure func(err error)
}

type Option func(*Classifier)

func WithRegistry(reg *categories.Registry) Option {
	return func(c *Classifier) { c.registry = reg }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

// WithFailureHook is called once for every classification that fell back
// because of an error.
func WithFailureHook(fn func(err error)) Option {
	return func(c *Classifier) { c.onFailure = fn }
}

func NewClassifier(transport Transport, opts ...Option) *Classifier {
	c := &Classifier{transport: transport}
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

// Classify asks the model for a category. It always returns a result.
func (c *Classifier) Classify(ctx context.Context, text string) domain.ClassificationResult {
	start := time.Now()
	reply, err := c.transport.Send(ctx, BuildPrompt(c.registry.Snapshot(), text))
	if err != nil {
		return c.fail(err)
	}

	d, err := parseDecision(reply)
	if err != nil {
		return c.fail(err)
	}

	cat, ok := c.registry.Lookup(d.Category)
	if !ok {
		c.logger.Info("llm unknown category", zap.String("category", d.Category))
		cat = c.other()
	}
	var matched []string
	if d.Reasoning != "" {
		matched = []string{d.Reasoning}
	}

	result, err := domain.NewClassificationResult(cat, d.Confidence, matched)
	if err != nil {
		return c.fail(err)
	}
	c.logger.Debug("llm classified",
		zap.String("category", cat.Name()),
		zap.Float64("confidence", d.Confidence),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result
}

// ClassifyBatch classifies texts with at most workers requests in flight.
// Results are aligned with texts.
func (c *Classifier) ClassifyBatch(ctx context.Context, texts []string, workers int) []domain.ClassificationResult {
	results := make([]domain.ClassificationResult, len(texts))
	if len(texts) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(batchConcurrencyLimit(len(texts), workers))
	for i, text := range texts {
		g.Go(func() error {
			results[i] = c.Classify(ctx, text)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func batchConcurrencyLimit(total, workers int) int {
	if workers <= 0 {
		workers = maxBatchConcurrency
	}
	return max(1, min(total, workers))
}

func (c *Classifier) fail(err error) domain.ClassificationResult {
	c.logger.Error("llm classification failed", zap.Error(err))
	if c.onFailure != nil {
		c.onFailure(err)
	}
	result, _ := domain.NewClassificationResult(c.other(), 0, []string{err.Error()})
	return result
}

func (c *Classifier) other() *domain.Category {
	if cat, ok := c.registry.Lookup(domain.OtherName); ok {
		return cat
	}
	return categories.OtherCategory()
}
