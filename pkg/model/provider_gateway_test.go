package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepdrone/deepdrone/pkg/config"
)

func TestGatewayInjectsProviderCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatBody("hello")))
	}))
	defer server.Close()

	p, err := NewGatewayProvider(config.ModelConfig{
		Provider: config.ProviderAnthropic,
		ModelID:  "claude-sonnet-4",
		APIKey:   "sk-ant-test",
		BaseURL:  server.URL,
	})
	require.NoError(t, err)

	injected := map[string]string{}
	p.setenv = func(key, value string) error {
		injected[key] = value
		return nil
	}

	_, err = p.ChatCompletion(context.Background(), ChatRequest{Model: "claude-sonnet-4"})
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", injected["ANTHROPIC_API_KEY"])
}

func TestGatewaySkipsPlaceholderKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(chatBody("hello")))
	}))
	defer server.Close()

	p, err := NewGatewayProvider(config.ModelConfig{
		Provider: "localrouter",
		ModelID:  "something",
		APIKey:   config.PlaceholderKey,
		BaseURL:  server.URL,
	})
	require.NoError(t, err)

	p.setenv = func(key, value string) error {
		t.Fatalf("placeholder key must not be injected (tried %s)", key)
		return nil
	}

	_, err = p.ChatCompletion(context.Background(), ChatRequest{Model: "something"})
	require.NoError(t, err)
}

func TestGatewayRequiresProviderTag(t *testing.T) {
	_, err := NewGatewayProvider(config.ModelConfig{ModelID: "x"})
	assert.Error(t, err)
}
