package app

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ticketclassifier/internal/categories"
	"ticketclassifier/internal/classifier"
	"ticketclassifier/internal/config"
	"ticketclassifier/internal/httpx"
	"ticketclassifier/internal/integrations/llm"
	"ticketclassifier/internal/metrics"
	"ticketclassifier/internal/storage/sqlite"
	"ticketclassifier/internal/triage"
)

// runtime holds everything built from a Config.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *sqlite.Store
	triage   *triage.Service
}

func build(cfg config.Config, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	rt.metrics = metrics.NewMetrics(rt.registry)

	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)

	catMode, err := categories.ParseMode(cfg.CategoriesMode)
	if err != nil {
		return nil, err
	}
	reg, err := categories.Build(cfg.CategoriesPath, catMode)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}

	rules := classifier.New(
		classifier.WithRegistry(reg),
		classifier.WithLogger(logger.Named("classifier")),
		classifier.WithPatternErrorHook(rt.metrics.PatternError),
	)

	mode, err := triage.ParseMode(cfg.ClassificationMode)
	if err != nil {
		return nil, err
	}
	opts := []triage.Option{
		triage.WithMode(mode),
		triage.WithThreshold(cfg.Threshold()),
		triage.WithWorkers(cfg.BatchWorkers),
		triage.WithMetrics(rt.metrics),
		triage.WithLogger(logger.Named("triage")),
	}

	var provider llm.Provider
	model := cfg.LLMModel
	if mode != triage.ModeRules {
		provider, err = llm.ParseProvider(cfg.LLMProvider)
		if err != nil {
			return nil, err
		}
		if model == "" {
			model = llm.DefaultModel(provider)
		}
		transport, err := llm.NewTransport(llm.TransportConfig{
			Provider:   provider,
			Model:      model,
			APIKey:     cfg.LLMAPIKey(),
			APIBase:    cfg.LLMAPIBase,
			APIVersion: cfg.LLMAPIVersion,
		})
		if err != nil {
			return nil, err
		}
		llmClassifier := llm.NewClassifier(transport,
			llm.WithRegistry(reg),
			llm.WithLogger(logger.Named("llm")),
			llm.WithFailureHook(func(error) { rt.metrics.LLMFailure(string(provider)) }),
		)
		opts = append(opts, triage.WithLLM(llmClassifier, string(provider), model))
	}

	if cfg.HistoryEnabled() {
		rt.store, err = sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening history db: %w", err)
		}
		opts = append(opts, triage.WithStore(rt.store))
	}

	rt.triage, err = triage.New(rules, opts...)
	if err != nil {
		rt.Close()
		return nil, err
	}

	logger.Debug("runtime ready",
		zap.String("mode", string(mode)),
		zap.Float64("threshold", cfg.Threshold()),
		zap.Int("workers", cfg.BatchWorkers),
		zap.Int("categories", reg.Len()),
		zap.String("llm_provider", string(provider)),
		zap.String("llm_model", model),
		zap.Bool("history", cfg.HistoryEnabled()),
		zap.Duration("external_http_timeout", appliedHTTPTimeout),
	)
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("history db close failed", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}

func (rt *runtime) location() *time.Location {
	if rt.cfg.Location != nil {
		return rt.cfg.Location
	}
	return time.Local
}
