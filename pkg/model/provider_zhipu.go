package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/deepdrone/deepdrone/pkg/config"
)

const (
	zhipuBaseURL  = "https://open.bigmodel.cn/api/paas/v4"
	zhipuTokenTTL = time.Hour
)

// ZhipuProvider implements Provider for the ZhipuAI signed-token HTTP API.
// Requests are authenticated with a short-lived HS256 token derived from an
// "id.secret"-formatted API key.
type ZhipuProvider struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewZhipuProvider builds a Zhipu provider. A key without the "." separator
// fails fast with a format error before any network call.
func NewZhipuProvider(apiKey string) (*ZhipuProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || apiKey == config.PlaceholderKey {
		return nil, configError(config.ProviderZhipu, "ZhipuAI requires a valid API key")
	}
	id, secret, found := strings.Cut(apiKey, ".")
	if !found || id == "" || secret == "" {
		return nil, configError(config.ProviderZhipu, "invalid ZhipuAI API key format, expected 'id.secret'")
	}

	return &ZhipuProvider{
		keyID:      id,
		keySecret:  secret,
		baseURL:    zhipuBaseURL,
		httpClient: newHTTPClient(),
		now:        time.Now,
	}, nil
}

// ID returns provider identifier.
func (p *ZhipuProvider) ID() string {
	return "zhipuai"
}

// signToken builds the short-lived request token the Zhipu API expects.
func (p *ZhipuProvider) signToken() (string, error) {
	now := p.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":     p.keyID,
		"api_key": p.keyID,
		"iat":     now.Unix(),
		"exp":     now.Add(zhipuTokenTTL).Unix(),
	})
	token.Header["sign_type"] = "SIGN"

	signed, err := token.SignedString([]byte(p.keySecret))
	if err != nil {
		return "", fmt.Errorf("sign zhipu token: %w", err)
	}
	return signed, nil
}

// ChatCompletion executes a non-streaming chat request.
func (p *ZhipuProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	token, err := p.signToken()
	if err != nil {
		return nil, err
	}

	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal zhipu request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

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
		return nil, fmt.Errorf("decode zhipu response: %w", err)
	}
	return &chatResp, nil
}

// decodeAPIError turns a non-200 response into a structured APIError,
// preserving the upstream message for classification.
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Error.Message,
			Type:       errResp.Error.Type,
			Code:       errResp.Error.Code,
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}
