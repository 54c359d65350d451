package model

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/deepdrone/deepdrone/pkg/config"
	"github.com/deepdrone/deepdrone/pkg/errors"
	"github.com/deepdrone/deepdrone/pkg/logging"
	"github.com/deepdrone/deepdrone/pkg/telemetry"
)

const defaultTimeout = 30 * time.Second

// Provider defines the behavior required for an LLM backend.
type Provider interface {
	ID() string
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Adapter normalizes a configured provider behind one chat contract. Chat
// never returns an error: provider failures are classified and rendered as
// fixed user-facing text so a bad turn cannot crash the coordinator.
type Adapter struct {
	cfg      config.ModelConfig
	provider Provider
	log      *logging.Logger
}

// Configure builds an adapter for the model config. The only hard failure is
// a credential format error, which can never be fixed by retrying the call.
func Configure(cfg config.ModelConfig, log *logging.Logger) (*Adapter, error) {
	if log == nil {
		log = logging.NewDiscardLogger()
	}

	provider, err := providerFor(cfg)
	if err != nil {
		return nil, err
	}

	log.Info(logging.CategoryModel, "provider_configured", "model provider ready", map[string]any{
		"provider": provider.ID(),
		"model":    cfg.ModelID,
	})

	return &Adapter{cfg: cfg, provider: provider, log: log}, nil
}

// providerFor dispatches on the provider tag to one of the calling
// conventions: local inference server, signed-token HTTP API,
// OpenAI-compatible bearer HTTP, or the generic gateway client.
func providerFor(cfg config.ModelConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL), nil
	case config.ProviderZhipu:
		return NewZhipuProvider(cfg.APIKey)
	case config.ProviderQwen, config.ProviderDeepSeek, config.ProviderMoonshot, config.ProviderXAI:
		return NewOpenAICompatProvider(cfg.Provider, cfg.APIKey, cfg.BaseURL)
	default:
		return NewGatewayProvider(cfg)
	}
}

// Config returns the immutable model configuration backing this adapter.
func (a *Adapter) Config() config.ModelConfig {
	return a.cfg
}

// ProviderID returns the active provider identifier.
func (a *Adapter) ProviderID() string {
	return a.provider.ID()
}

// BuildRequest maps the adapter's model config onto the wire request.
// MaxTokens and Temperature pass through unmodified; out-of-range values are
// the provider's responsibility to reject.
func (a *Adapter) BuildRequest(messages []Message) ChatRequest {
	return ChatRequest{
		Model:       a.cfg.ModelID,
		Messages:    messages,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		Stream:      false,
	}
}

// Chat sends the ordered history and returns the assistant text, or a fixed
// user-facing error message when the provider call fails.
func (a *Adapter) Chat(ctx context.Context, messages []Message) string {
	text, err := a.chat(ctx, messages)
	if err != nil {
		kind := Classify(err)
		a.log.Error(logging.CategoryModel, "chat_failed", err.Error(), map[string]any{
			"provider": a.provider.ID(),
			"kind":     string(kind),
		})
		return UserMessage(kind, a.cfg.Provider)
	}
	return text
}

func (a *Adapter) chat(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	resp, err := a.provider.ChatCompletion(ctx, a.BuildRequest(messages))
	telemetry.MetricProviderLatency.WithLabelValues(a.cfg.Provider).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return firstChoiceContent(resp)
}

// TestConnection sends a canned probe and reports whether the provider
// actually accepted the request. A transport-level success whose body carries
// error-indicator text is reported as a logical failure.
func (a *Adapter) TestConnection(ctx context.Context) TestResult {
	start := time.Now()
	result := TestResult{
		Provider: a.cfg.Provider,
		Model:    a.cfg.ModelID,
	}

	probe := []Message{{Role: RoleUser, Content: "Hello, please respond with 'Connection test successful'"}}
	text, err := a.chat(ctx, probe)
	result.Elapsed = time.Since(start)

	if err != nil {
		result.Error = err.Error()
		return result
	}
	if indicator, found := errorIndicator(text); found {
		result.Error = "provider rejected the request: " + indicator
		result.Response = text
		return result
	}

	result.OK = true
	result.Response = text
	return result
}

// errorIndicator scans a successful response body for tokens that mean the
// provider rejected the request despite the HTTP call succeeding.
func errorIndicator(text string) (string, bool) {
	lowered := strings.ToLower(text)
	indicators := []string{
		"unauthorized",
		"invalid api key",
		"invalid_api_key",
		"authentication failed",
		"quota exceeded",
		"error:",
	}
	for _, indicator := range indicators {
		if strings.Contains(lowered, indicator) {
			return indicator, true
		}
	}
	return "", false
}

// newHTTPClient builds the per-provider HTTP client.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// configError builds the fail-fast credential error shared by providers.
func configError(provider, message string) *errors.Error {
	return errors.New(errors.ErrCodeConfigInvalid, message).
		WithContext("provider", provider).
		WithUserMessage(message)
}
