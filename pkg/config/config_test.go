package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHasCatalog(t *testing.T) {
	cfg := DefaultConfig()
	require.NotEmpty(t, cfg.Models)

	mc, ok := cfg.GetModel("glm-4.5")
	require.True(t, ok)
	assert.Equal(t, ProviderZhipu, mc.Provider)
	assert.Equal(t, DefaultMaxTokens, mc.MaxTokens)
	assert.InDelta(t, DefaultTemperature, mc.Temperature, 1e-9)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.DefaultModel)
	assert.Equal(t, DefaultConnectionString, cfg.Drone.ConnectionString)
}

func TestLoadMergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
default_model: glm-4.5
drone:
  connection_string: udp:127.0.0.1:14550
chat:
  history_window: 6
  snippet_timeout: 10s
models:
  my-local:
    provider: ollama
    model_id: llama3.1:latest
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "glm-4.5", cfg.DefaultModel)
	assert.Equal(t, "udp:127.0.0.1:14550", cfg.Drone.ConnectionString)
	assert.Equal(t, 6, cfg.Chat.HistoryWindow)
	assert.Equal(t, 10*time.Second, cfg.Chat.SnippetTimeout)

	mc, ok := cfg.GetModel("my-local")
	require.True(t, ok)
	assert.Equal(t, "my-local", mc.Name, "name defaults to map key")
	assert.Equal(t, PlaceholderKey, mc.APIKey, "ollama gets the placeholder key")
	assert.Equal(t, DefaultMaxTokens, mc.MaxTokens)
}

func TestEnvKeyResolution(t *testing.T) {
	t.Setenv("ZHIPUAI_API_KEY", "id123.secret456")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	mc, ok := cfg.GetModel("glm-4.5")
	require.True(t, ok)
	assert.Equal(t, "id123.secret456", mc.APIKey)
}

func TestProviderKeyEnv(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", ProviderKeyEnv(ProviderOpenAI))
	assert.Equal(t, "OPENAI_API_KEY", ProviderKeyEnv(ProviderQwen))
	assert.Equal(t, "ZHIPUAI_API_KEY", ProviderKeyEnv(ProviderZhipu))
	assert.Equal(t, "SOMETHING_API_KEY", ProviderKeyEnv("something"))
}

func TestSetAPIKeyAndSave(t *testing.T) {
	cfg := DefaultConfig()
	require.True(t, cfg.SetAPIKey("gpt-5", "sk-test"))
	require.False(t, cfg.SetAPIKey("unknown-model", "sk-test"))

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	mc, _ := loaded.GetModel("gpt-5")
	assert.Equal(t, "sk-test", mc.APIKey)
}

func TestModelConfigHelpers(t *testing.T) {
	local := ModelConfig{Provider: ProviderOllama, APIKey: PlaceholderKey}
	assert.False(t, local.RequiresKey())
	assert.False(t, local.HasUsableKey())

	paid := ModelConfig{Provider: ProviderOpenAI, APIKey: "sk-x"}
	assert.True(t, paid.RequiresKey())
	assert.True(t, paid.HasUsableKey())
}
