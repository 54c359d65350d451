package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/deepdrone/deepdrone/pkg/config"
)

const gatewayBaseURL = "http://localhost:4000"

// GatewayProvider routes unknown provider tags through a LiteLLM-style
// multi-provider completion gateway. The gateway resolves credentials from
// process environment variables, so the provider injects the configured key
// under the provider's conventional variable before each call.
type GatewayProvider struct {
	providerID string
	baseURL    string
	apiKey     string
	keyEnv     string
	httpClient *http.Client
	setenv     func(key, value string) error
}

// NewGatewayProvider builds the generic gateway client for a model config.
func NewGatewayProvider(cfg config.ModelConfig) (*GatewayProvider, error) {
	if strings.TrimSpace(cfg.Provider) == "" {
		return nil, configError("gateway", "model config has no provider tag")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = gatewayBaseURL
	}

	p := &GatewayProvider{
		providerID: cfg.Provider,
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
		setenv:     os.Setenv,
	}
	if cfg.HasUsableKey() {
		p.apiKey = cfg.APIKey
		p.keyEnv = config.ProviderKeyEnv(cfg.Provider)
	}
	return p, nil
}

// ID returns provider identifier.
func (p *GatewayProvider) ID() string {
	return p.providerID
}

// ChatCompletion injects credentials into the environment and posts an
// OpenAI-shape request to the gateway.
func (p *GatewayProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.keyEnv != "" {
		if err := p.setenv(p.keyEnv, p.apiKey); err != nil {
			return nil, fmt.Errorf("inject %s: %w", p.keyEnv, err)
		}
	}

	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	return &chatResp, nil
}
