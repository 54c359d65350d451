package config

// defaultCatalog is the built-in model catalog. It mirrors current public
// model releases and is expected to be superseded by the user config file as
// providers ship new models.
func defaultCatalog() map[string]ModelConfig {
	entries := []ModelConfig{
		{Name: "gpt-5", Provider: ProviderOpenAI, ModelID: "gpt-5"},
		{Name: "gpt-5-mini", Provider: ProviderOpenAI, ModelID: "gpt-5-mini"},
		{Name: "gpt-5-nano", Provider: ProviderOpenAI, ModelID: "gpt-5-nano"},
		{Name: "claude-opus-4-1-20250805", Provider: ProviderAnthropic, ModelID: "claude-opus-4-1-20250805"},
		{Name: "claude-sonnet-4-20250514", Provider: ProviderAnthropic, ModelID: "claude-sonnet-4-20250514"},
		{Name: "claude-3-haiku-20240307", Provider: ProviderAnthropic, ModelID: "claude-3-haiku-20240307"},
		{Name: "gemini-2.5-pro", Provider: ProviderGoogle, ModelID: "gemini/gemini-2.5-pro"},
		{Name: "gemini-2.5-flash", Provider: ProviderGoogle, ModelID: "gemini/gemini-2.5-flash"},
		{Name: "qwen3-4b", Provider: ProviderOllama, ModelID: "qwen3:4b", BaseURL: "http://localhost:11434"},
		{Name: "qwen3-30b", Provider: ProviderOllama, ModelID: "qwen3:30b", BaseURL: "http://localhost:11434"},
		{Name: "gpt-oss-latest", Provider: ProviderOllama, ModelID: "gpt-oss:latest", BaseURL: "http://localhost:11434"},
		{Name: "glm-4.5", Provider: ProviderZhipu, ModelID: "glm-4.5"},
		{Name: "glm-4.5-air", Provider: ProviderZhipu, ModelID: "glm-4.5-air"},
		{Name: "glm-4.5-flash", Provider: ProviderZhipu, ModelID: "glm-4.5-flash"},
		{Name: "qwen3-coder-480b-a35b-instruct", Provider: ProviderQwen, ModelID: "qwen3-coder-480b-a35b-instruct", BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1"},
		{Name: "deepseek-chat", Provider: ProviderDeepSeek, ModelID: "deepseek-chat", BaseURL: "https://api.deepseek.com/v1"},
		{Name: "deepseek-reasoner", Provider: ProviderDeepSeek, ModelID: "deepseek-reasoner", BaseURL: "https://api.deepseek.com/v1"},
		{Name: "kimi-k2-turbo-preview", Provider: ProviderMoonshot, ModelID: "kimi-k2-turbo-preview", BaseURL: "https://api.moonshot.cn/v1"},
		{Name: "grok-4-0709", Provider: ProviderXAI, ModelID: "grok-4-0709", BaseURL: "https://api.x.ai/v1"},
		{Name: "grok-3-mini", Provider: ProviderXAI, ModelID: "grok-3-mini", BaseURL: "https://api.x.ai/v1"},
	}

	catalog := make(map[string]ModelConfig, len(entries))
	for _, mc := range entries {
		mc.MaxTokens = DefaultMaxTokens
		mc.Temperature = DefaultTemperature
		catalog[mc.Name] = mc
	}
	return catalog
}
