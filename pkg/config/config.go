package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifiers recognized by the model layer.
const (
	ProviderOllama    = "ollama"
	ProviderZhipu     = "zhipuai"
	ProviderQwen      = "qwen"
	ProviderDeepSeek  = "deepseek"
	ProviderMoonshot  = "moonshot"
	ProviderXAI       = "xai"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderMistral   = "mistral"
)

// PlaceholderKey is the key value that means "no auth required" for local
// providers such as Ollama.
const PlaceholderKey = "local"

// Default values applied when the user config omits them.
const (
	DefaultModel            = "gpt-5"
	DefaultConnectionString = "tcp:127.0.0.1:5762"
	DefaultConnectTimeout   = 30 * time.Second
	DefaultAltitude         = 30.0
	MaxAltitude             = 100.0
	DefaultHistoryWindow    = 10
	DefaultSnippetTimeout   = 45 * time.Second
	DefaultMonitorInterval  = 5 * time.Second
	DefaultMaxTokens        = 2048
	DefaultTemperature      = 0.7
)

// ModelConfig is the immutable per-session model descriptor. It is created
// at configuration time and never mutated after a session starts.
type ModelConfig struct {
	Name        string  `yaml:"name"`
	Provider    string  `yaml:"provider"`
	ModelID     string  `yaml:"model_id"`
	APIKey      string  `yaml:"api_key,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// RequiresKey reports whether the provider needs a real API key.
func (m ModelConfig) RequiresKey() bool {
	return m.Provider != ProviderOllama
}

// HasUsableKey reports whether a non-placeholder key is configured.
func (m ModelConfig) HasUsableKey() bool {
	return m.APIKey != "" && m.APIKey != PlaceholderKey
}

// DroneConfig holds vehicle connection defaults.
type DroneConfig struct {
	ConnectionString string        `yaml:"connection_string"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	DefaultAltitude  float64       `yaml:"default_altitude"`
	MaxAltitude      float64       `yaml:"max_altitude"`
}

// ChatConfig holds coordinator tunables.
type ChatConfig struct {
	HistoryWindow   int           `yaml:"history_window"`
	SnippetTimeout  time.Duration `yaml:"snippet_timeout"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
}

// ServerConfig holds the operator HTTP boundary settings.
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// Config is the root application configuration.
type Config struct {
	DefaultModel string                 `yaml:"default_model"`
	Models       map[string]ModelConfig `yaml:"models"`
	Drone        DroneConfig            `yaml:"drone"`
	Chat         ChatConfig             `yaml:"chat"`
	Server       ServerConfig           `yaml:"server"`
	LogDir       string                 `yaml:"log_dir"`
}

// DefaultConfig returns the built-in configuration including the default
// model catalog. The catalog is plain data; users override or extend it via
// the config file.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DefaultModel: DefaultModel,
		Models:       defaultCatalog(),
		Drone: DroneConfig{
			ConnectionString: DefaultConnectionString,
			ConnectTimeout:   DefaultConnectTimeout,
			DefaultAltitude:  DefaultAltitude,
			MaxAltitude:      MaxAltitude,
		},
		Chat: ChatConfig{
			HistoryWindow:   DefaultHistoryWindow,
			SnippetTimeout:  DefaultSnippetTimeout,
			MonitorInterval: DefaultMonitorInterval,
		},
		Server: ServerConfig{Bind: "127.0.0.1:8000"},
		LogDir: filepath.Join(home, ".deepdrone", "logs"),
	}
}

// Load reads the user config file (if present) on top of the defaults and
// resolves API keys from the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".deepdrone", "config.yaml")
		}
	}

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := mergeYAML(cfg, data); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func mergeYAML(cfg *Config, data []byte) error {
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return err
	}

	if override.DefaultModel != "" {
		cfg.DefaultModel = override.DefaultModel
	}
	for name, mc := range override.Models {
		if mc.Name == "" {
			mc.Name = name
		}
		cfg.Models[name] = mc
	}
	if override.Drone.ConnectionString != "" {
		cfg.Drone.ConnectionString = override.Drone.ConnectionString
	}
	if override.Drone.ConnectTimeout > 0 {
		cfg.Drone.ConnectTimeout = override.Drone.ConnectTimeout
	}
	if override.Drone.DefaultAltitude > 0 {
		cfg.Drone.DefaultAltitude = override.Drone.DefaultAltitude
	}
	if override.Drone.MaxAltitude > 0 {
		cfg.Drone.MaxAltitude = override.Drone.MaxAltitude
	}
	if override.Chat.HistoryWindow > 0 {
		cfg.Chat.HistoryWindow = override.Chat.HistoryWindow
	}
	if override.Chat.SnippetTimeout > 0 {
		cfg.Chat.SnippetTimeout = override.Chat.SnippetTimeout
	}
	if override.Chat.MonitorInterval > 0 {
		cfg.Chat.MonitorInterval = override.Chat.MonitorInterval
	}
	if override.Server.Bind != "" {
		cfg.Server.Bind = override.Server.Bind
	}
	if override.LogDir != "" {
		cfg.LogDir = override.LogDir
	}
	return nil
}

// applyEnv resolves API keys and overrides from DEEPDRONE_* and the
// conventional provider environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("DEEPDRONE_DEFAULT_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("DEEPDRONE_CONNECTION_STRING"); v != "" {
		c.Drone.ConnectionString = v
	}
	if v := os.Getenv("DEEPDRONE_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("DEEPDRONE_LOG_DIR"); v != "" {
		c.LogDir = v
	}

	for name, mc := range c.Models {
		if mc.APIKey != "" {
			continue
		}
		if key := os.Getenv(ProviderKeyEnv(mc.Provider)); key != "" {
			mc.APIKey = key
			c.Models[name] = mc
		}
	}
}

func (c *Config) normalize() {
	for name, mc := range c.Models {
		if mc.Name == "" {
			mc.Name = name
		}
		if mc.MaxTokens <= 0 {
			mc.MaxTokens = DefaultMaxTokens
		}
		if mc.Temperature == 0 {
			mc.Temperature = DefaultTemperature
		}
		if mc.Provider == ProviderOllama && mc.APIKey == "" {
			mc.APIKey = PlaceholderKey
		}
		c.Models[name] = mc
	}
}

// ProviderKeyEnv returns the conventional environment variable holding the
// API key for a provider.
func ProviderKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI, ProviderQwen:
		// DashScope's OpenAI-compatible channel reads the OpenAI header.
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderZhipu:
		return "ZHIPUAI_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProviderMoonshot:
		return "MOONSHOT_API_KEY"
	case ProviderXAI:
		return "XAI_API_KEY"
	case ProviderMistral:
		return "MISTRAL_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}

// GetModel returns the named model config.
func (c *Config) GetModel(name string) (ModelConfig, bool) {
	mc, ok := c.Models[name]
	return mc, ok
}

// ListModels returns the catalog names sorted alphabetically.
func (c *Config) ListModels() []string {
	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetAPIKey updates the key for a named model.
func (c *Config) SetAPIKey(name, key string) bool {
	mc, ok := c.Models[name]
	if !ok {
		return false
	}
	mc.APIKey = key
	c.Models[name] = mc
	return true
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
