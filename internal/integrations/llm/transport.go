package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ticketclassifier/internal/httpx"
)

// Provider names one of the supported transports.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderAzure     Provider = "azure"
	ProviderLocal     Provider = "local"
)

const (
	systemMessage = "You are a support ticket classification system. Respond only with JSON."
	temperature   = 0.3
	maxTokens     = 150

	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-3.5-turbo"
	defaultOpenAIBase     = "https://api.openai.com/v1"
	defaultLocalBase      = "http://127.0.0.1:1234/v1"
	DefaultAzureVersion   = "2023-05-15"
)

var (
	ErrUnknownProvider = errors.New("unknown llm provider")
	ErrMissingAPIKey   = errors.New("llm provider requires an api key")
	ErrMissingAPIBase  = errors.New("llm provider requires an api base url")
)

// Transport sends one prompt to a model and returns its text reply.
type Transport interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// TransportConfig selects and configures a Transport. Empty fields take
// provider defaults.
type TransportConfig struct {
	Provider   Provider
	Model      string
	APIKey     string
	APIBase    string
	APIVersion string
	HTTPClient *http.Client
}

func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProviderAnthropic, ProviderOpenAI, ProviderAzure, ProviderLocal:
		return p, nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnknownProvider, s)
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(p Provider) string {
	if p == ProviderAnthropic {
		return defaultAnthropicModel
	}
	return defaultOpenAIModel
}

// NewTransport builds the transport for cfg.Provider.
func NewTransport(cfg TransportConfig) (Transport, error) {
	provider, err := ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(provider)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpx.ExternalHTTPClient()
	}
	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")

	switch provider {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingAPIKey, provider)
		}
		return newAnthropicTransport(cfg), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingAPIKey, provider)
		}
		base := cfg.APIBase
		if base == "" {
			base = defaultOpenAIBase
		}
		return &chatTransport{
			provider: provider,
			endpoint: base + "/chat/completions",
			model:    cfg.Model,
			headers:  map[string]string{"Authorization": "Bearer " + cfg.APIKey},
			client:   cfg.HTTPClient,
		}, nil
	case ProviderAzure:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingAPIKey, provider)
		}
		if cfg.APIBase == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingAPIBase, provider)
		}
		version := cfg.APIVersion
		if version == "" {
			version = DefaultAzureVersion
		}
		return &chatTransport{
			provider: provider,
			endpoint: azureEndpoint(cfg.APIBase, cfg.Model, version),
			model:    cfg.Model,
			headers:  map[string]string{"api-key": cfg.APIKey},
			client:   cfg.HTTPClient,
		}, nil
	default:
		base := cfg.APIBase
		if base == "" {
			base = defaultLocalBase
		}
		headers := map[string]string{}
		if cfg.APIKey != "" {
			headers["Authorization"] = "Bearer " + cfg.APIKey
		}
		return &chatTransport{
			provider: provider,
			endpoint: base + "/chat/completions",
			model:    cfg.Model,
			headers:  headers,
			client:   cfg.HTTPClient,
		}, nil
	}
}
