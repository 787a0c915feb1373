// Package triage decides how a ticket is classified (rules, LLM or both),
// records the outcome and reports metrics.
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ticketclassifier/internal/classifier"
	"ticketclassifier/internal/domain"
	"ticketclassifier/internal/integrations/llm"
	"ticketclassifier/internal/metrics"
)

type Mode string

const (
	ModeRules Mode = "rules"
	ModeLLM   Mode = "llm"
	// ModeHybrid runs the rules first and asks the model only when they
	// fall back to the default category.
	ModeHybrid Mode = "hybrid"
)

var ErrLLMRequired = errors.New("classification mode requires an llm classifier")

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeRules, nil
	case ModeRules, ModeLLM, ModeHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("unknown classification mode '%s' (want rules, llm or hybrid)", s)
	}
}

// Store persists classifications and corrections. *sqlite.Store satisfies it.
type Store interface {
	InsertClassification(ctx context.Context, r domain.ClassificationRecord) (int64, error)
	InsertClassifications(ctx context.Context, records []domain.ClassificationRecord) ([]int64, error)
	GetClassification(ctx context.Context, id int64) (domain.ClassificationRecord, error)
	InsertCorrection(ctx context.Context, c domain.ClassificationCorrection) error
}

var (
	ErrNoStore         = errors.New("no history store configured")
	ErrUnknownCategory = errors.New("unknown category")
)

// Outcome is one classified ticket. ClassificationID is zero when no
// history store is configured or recording failed.
type Outcome struct {
	RequestID        string
	ClassificationID int64
	Result           domain.ClassificationResult
	Method           domain.Method
}

type Service struct {
	mode        Mode
	rules       *classifier.Classifier
	llm         *llm.Classifier
	llmProvider string
	llmModel    string
	threshold   float64
	workers     int
	store       Store
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithMode(m Mode) Option {
	return func(s *Service) { s.mode = m }
}

// WithLLM enables the model-backed classifier. provider and model are only
// recorded alongside each outcome.
func WithLLM(c *llm.Classifier, provider, model string) Option {
	return func(s *Service) {
		s.llm = c
		s.llmProvider = provider
		s.llmModel = model
	}
}

func WithThreshold(th float64) Option {
	return func(s *Service) { s.threshold = th }
}

func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

func WithStore(store Store) Option {
	return func(s *Service) { s.store = store }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(rules *classifier.Classifier, opts ...Option) (*Service, error) {
	s := &Service{
		mode:      ModeRules,
		rules:     rules,
		threshold: classifier.DefaultThreshold,
		workers:   classifier.DefaultWorkers,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rules == nil {
		return nil, errors.New("rule classifier is required")
	}
	if _, err := ParseMode(string(s.mode)); err != nil {
		return nil, err
	}
	if s.mode != ModeRules && s.llm == nil {
		return nil, fmt.Errorf("%w: %s", ErrLLMRequired, s.mode)
	}
	if s.threshold < 0 || s.threshold > 1 {
		return nil, fmt.Errorf("%w, got %v", classifier.ErrInvalidThreshold, s.threshold)
	}
	return s, nil
}

func (s *Service) Mode() Mode { return s.mode }

func (s *Service) Rules() *classifier.Classifier { return s.rules }

// Classify classifies one ticket and records it.
func (s *Service) Classify(ctx context.Context, text string) (Outcome, error) {
	start := s.now()
	result, method, err := s.decide(ctx, text)
	if err != nil {
		return Outcome{}, err
	}
	out := s.observe(result, method, s.now().Sub(start))
	if s.store != nil {
		id, err := s.store.InsertClassification(ctx, s.record(out, text))
		if err != nil {
			s.logger.Error("triage history insert failed", zap.String("request_id", out.RequestID), zap.Error(err))
		} else {
			out.ClassificationID = id
		}
	}
	s.logOutcome(out)
	return out, nil
}

// ClassifyBatch classifies texts in input order. Rules mode fans out over
// the configured worker count; the LLM modes bound in-flight requests the
// same way.
func (s *Service) ClassifyBatch(ctx context.Context, texts []string) ([]Outcome, error) {
	if len(texts) == 0 {
		return nil, classifier.ErrEmptyBatch
	}
	start := s.now()

	var (
		results []domain.ClassificationResult
		methods = make([]domain.Method, len(texts))
		err     error
	)
	switch s.mode {
	case ModeLLM:
		results = s.llm.ClassifyBatch(ctx, texts, s.workers)
		for i := range methods {
			methods[i] = domain.MethodLLM
		}
	default:
		results, err = s.rules.ClassifyBatchConcurrent(ctx, texts, s.threshold, s.workers)
		if err != nil {
			return nil, err
		}
		for i := range methods {
			methods[i] = domain.MethodRules
		}
		if s.mode == ModeHybrid {
			s.escalate(ctx, texts, results, methods)
		}
	}

	per := s.now().Sub(start) / time.Duration(len(texts))
	out := make([]Outcome, len(texts))
	for i := range texts {
		out[i] = s.observe(results[i], methods[i], per)
	}
	if s.store != nil {
		s.recordBatch(ctx, texts, out)
	}
	for _, o := range out {
		s.logOutcome(o)
	}
	return out, nil
}

// recordBatch stores the whole batch in one transaction. On failure no
// outcome gets a ClassificationID.
func (s *Service) recordBatch(ctx context.Context, texts []string, out []Outcome) {
	records := make([]domain.ClassificationRecord, len(out))
	for i := range out {
		records[i] = s.record(out[i], texts[i])
	}
	ids, err := s.store.InsertClassifications(ctx, records)
	if err != nil {
		s.logger.Error("triage history batch insert failed", zap.Int("count", len(records)), zap.Error(err))
		return
	}
	for i, id := range ids {
		out[i].ClassificationID = id
	}
}

// escalate re-runs rule fallbacks through the model, in place.
func (s *Service) escalate(ctx context.Context, texts []string, results []domain.ClassificationResult, methods []domain.Method) {
	var idx []int
	var pending []string
	for i, r := range results {
		if r.Category().IsOther() {
			idx = append(idx, i)
			pending = append(pending, texts[i])
		}
	}
	if len(pending) == 0 {
		return
	}
	answers := s.llm.ClassifyBatch(ctx, pending, s.workers)
	for j, i := range idx {
		if !answers[j].Category().IsOther() {
			results[i] = answers[j]
			methods[i] = domain.MethodLLM
		}
	}
}

func (s *Service) decide(ctx context.Context, text string) (domain.ClassificationResult, domain.Method, error) {
	if s.mode == ModeLLM {
		return s.llm.Classify(ctx, text), domain.MethodLLM, nil
	}

	result, err := s.rules.Classify(text, s.threshold)
	if err != nil {
		return domain.ClassificationResult{}, "", err
	}
	if s.mode == ModeHybrid && result.Category().IsOther() {
		answer := s.llm.Classify(ctx, text)
		if !answer.Category().IsOther() {
			return answer, domain.MethodLLM, nil
		}
		s.logger.Debug("triage llm agreed on fallback", zap.Float64("rules_confidence", result.Confidence()))
	}
	return result, domain.MethodRules, nil
}

func (s *Service) observe(result domain.ClassificationResult, method domain.Method, elapsed time.Duration) Outcome {
	s.metrics.ObserveClassification(result.Category().Name(), string(method), result.Confidence(), elapsed)
	return Outcome{
		RequestID: uuid.NewString(),
		Result:    result,
		Method:    method,
	}
}

func (s *Service) record(out Outcome, text string) domain.ClassificationRecord {
	rec := domain.ClassificationRecord{
		RequestID:       out.RequestID,
		TicketText:      text,
		Category:        out.Result.Category().Name(),
		Confidence:      out.Result.Confidence(),
		MatchedPatterns: out.Result.MatchedPatterns(),
		Method:          out.Method,
		ClassifiedAt:    s.now(),
	}
	if out.Method == domain.MethodLLM {
		rec.LLMProvider = s.llmProvider
		rec.LLMModel = s.llmModel
	}
	return rec
}

func (s *Service) logOutcome(out Outcome) {
	s.logger.Info("triage classified",
		zap.String("request_id", out.RequestID),
		zap.String("category", out.Result.Category().Name()),
		zap.Float64("confidence", out.Result.Confidence()),
		zap.String("method", string(out.Method)),
	)
}

// Correct records that a person moved classification id to category.
func (s *Service) Correct(ctx context.Context, id int64, category, correctedBy string) (domain.ClassificationCorrection, error) {
	if s.store == nil {
		return domain.ClassificationCorrection{}, ErrNoStore
	}
	category = strings.TrimSpace(category)
	if _, ok := s.rules.Registry().Lookup(category); !ok {
		return domain.ClassificationCorrection{}, fmt.Errorf("%w: '%s'", ErrUnknownCategory, category)
	}
	rec, err := s.store.GetClassification(ctx, id)
	if err != nil {
		return domain.ClassificationCorrection{}, err
	}

	c := domain.ClassificationCorrection{
		ClassificationID:  rec.ID,
		OriginalCategory:  rec.Category,
		CorrectedCategory: category,
		TicketText:        rec.TicketText,
		CorrectedBy:       correctedBy,
		CorrectedAt:       s.now(),
	}
	if err := s.store.InsertCorrection(ctx, c); err != nil {
		return domain.ClassificationCorrection{}, fmt.Errorf("recording correction: %w", err)
	}
	s.metrics.Correction(c.OriginalCategory, c.CorrectedCategory)
	s.logger.Info("triage corrected",
		zap.Int64("classification_id", id),
		zap.String("from", c.OriginalCategory),
		zap.String("to", c.CorrectedCategory),
		zap.String("by", correctedBy),
	)
	return c, nil
}
