package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/deepdrone/deepdrone/pkg/config"
)

// Default endpoints for OpenAI-compatible providers that omit a base URL.
var openAICompatDefaults = map[string]string{
	config.ProviderQwen:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	config.ProviderDeepSeek: "https://api.deepseek.com/v1",
	config.ProviderMoonshot: "https://api.moonshot.cn/v1",
	config.ProviderXAI:      "https://api.x.ai/v1",
}

// OpenAICompatProvider implements Provider for any endpoint speaking the
// OpenAI chat-completions wire format with bearer auth.
type OpenAICompatProvider struct {
	providerID string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAICompatProvider builds a bearer-auth OpenAI-compatible provider.
func NewOpenAICompatProvider(providerID, apiKey, baseURL string) (*OpenAICompatProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || apiKey == config.PlaceholderKey {
		return nil, configError(providerID, fmt.Sprintf("%s requires a valid API key", providerID))
	}

	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = openAICompatDefaults[providerID]
	}
	if baseURL == "" {
		return nil, configError(providerID, fmt.Sprintf("base URL required for provider %s", providerID))
	}

	return &OpenAICompatProvider{
		providerID: providerID,
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
	}, nil
}

// ID returns provider identifier.
func (p *OpenAICompatProvider) ID() string {
	return p.providerID
}

// ChatCompletion executes a non-streaming POST to {base_url}/chat/completions.
func (p *OpenAICompatProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &chatResp, nil
}
