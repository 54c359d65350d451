package model

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepdrone/deepdrone/pkg/config"
	"github.com/deepdrone/deepdrone/pkg/errors"
)

func compatConfig(baseURL string) config.ModelConfig {
	return config.ModelConfig{
		Name:        "deepseek-chat",
		Provider:    config.ProviderDeepSeek,
		ModelID:     "deepseek-chat",
		APIKey:      "sk-test",
		BaseURL:     baseURL,
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

func chatBody(content string) string {
	resp := ChatResponse{
		Choices: []Choice{{Message: Message{Role: RoleAssistant, Content: content}, FinishReason: "stop"}},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestConfigureDispatch(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.ModelConfig
		expectID   string
		expectErr  bool
		expectCode errors.ErrorCode
	}{
		{
			name:     "ollama_no_key",
			cfg:      config.ModelConfig{Provider: config.ProviderOllama, ModelID: "qwen3:4b", APIKey: config.PlaceholderKey},
			expectID: "ollama",
		},
		{
			name:     "zhipu_valid_key",
			cfg:      config.ModelConfig{Provider: config.ProviderZhipu, ModelID: "glm-4.5", APIKey: "id.secret"},
			expectID: "zhipuai",
		},
		{
			name:       "zhipu_malformed_key",
			cfg:        config.ModelConfig{Provider: config.ProviderZhipu, ModelID: "glm-4.5", APIKey: "no-separator"},
			expectErr:  true,
			expectCode: errors.ErrCodeConfigInvalid,
		},
		{
			name:       "zhipu_placeholder_key",
			cfg:        config.ModelConfig{Provider: config.ProviderZhipu, ModelID: "glm-4.5", APIKey: config.PlaceholderKey},
			expectErr:  true,
			expectCode: errors.ErrCodeConfigInvalid,
		},
		{
			name:     "deepseek_openai_compatible",
			cfg:      config.ModelConfig{Provider: config.ProviderDeepSeek, ModelID: "deepseek-chat", APIKey: "sk-x"},
			expectID: "deepseek",
		},
		{
			name:       "compat_missing_key",
			cfg:        config.ModelConfig{Provider: config.ProviderQwen, ModelID: "qwen3"},
			expectErr:  true,
			expectCode: errors.ErrCodeConfigInvalid,
		},
		{
			name:     "unknown_provider_routes_to_gateway",
			cfg:      config.ModelConfig{Provider: config.ProviderAnthropic, ModelID: "claude-sonnet-4", APIKey: "sk-ant"},
			expectID: "anthropic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := Configure(tt.cfg, nil)
			if tt.expectErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, tt.expectCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectID, adapter.ProviderID())
		})
	}
}

func TestBuildRequestRoundTrip(t *testing.T) {
	cfg := compatConfig("")
	cfg.Temperature = 0.30000000000000004
	cfg.MaxTokens = 4096

	adapter, err := Configure(cfg, nil)
	require.NoError(t, err)

	req := adapter.BuildRequest([]Message{{Role: RoleUser, Content: "hi"}})

	data, err := json.Marshal(req)
	require.NoError(t, err)
	var decoded ChatRequest
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, cfg.ModelID, decoded.Model)
	assert.Equal(t, cfg.MaxTokens, decoded.MaxTokens)
	assert.Equal(t,
		math.Float64bits(cfg.Temperature),
		math.Float64bits(decoded.Temperature),
		"temperature must survive bit-for-bit")
}

func TestChatReturnsAssistantText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-chat", req.Model)
		assert.False(t, req.Stream)

		w.Write([]byte(chatBody("Taking off now.")))
	}))
	defer server.Close()

	adapter, err := Configure(compatConfig(server.URL), nil)
	require.NoError(t, err)

	text := adapter.Chat(context.Background(), []Message{{Role: RoleUser, Content: "take off"}})
	assert.Equal(t, "Taking off now.", text)
}

func TestChatErrorBecomesFixedMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid API key provided","type":"auth_error","code":"401"}}`))
	}))
	defer server.Close()

	adapter, err := Configure(compatConfig(server.URL), nil)
	require.NoError(t, err)

	text := adapter.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.Equal(t, UserMessage(KindAuth, config.ProviderDeepSeek), text)
}

func TestChatConnectionErrorNeverPanics(t *testing.T) {
	cfg := compatConfig("http://127.0.0.1:1") // nothing listens here
	adapter, err := Configure(cfg, nil)
	require.NoError(t, err)

	text := adapter.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.Equal(t, UserMessage(KindConnection, config.ProviderDeepSeek), text)
}

func TestTestConnectionLogicalFailure(t *testing.T) {
	// HTTP 200 whose body carries an error indicator must be reported as a
	// failure: transport success is not provider acceptance.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatBody("Error: unauthorized")))
	}))
	defer server.Close()

	adapter, err := Configure(compatConfig(server.URL), nil)
	require.NoError(t, err)

	result := adapter.TestConnection(context.Background())
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "unauthorized")
}

func TestTestConnectionSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatBody("Connection test successful")))
	}))
	defer server.Close()

	adapter, err := Configure(compatConfig(server.URL), nil)
	require.NoError(t, err)

	result := adapter.TestConnection(context.Background())
	assert.True(t, result.OK)
	assert.Equal(t, "Connection test successful", result.Response)
	assert.Equal(t, config.ProviderDeepSeek, result.Provider)
}
