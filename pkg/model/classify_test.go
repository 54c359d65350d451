package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"invalid_api_key", fmt.Errorf("HTTP 401: Invalid API Key provided"), KindAuth},
		{"unauthorized", fmt.Errorf("server said: Unauthorized"), KindAuth},
		{"quota", fmt.Errorf("Quota exceeded for this billing period"), KindQuota},
		{"rate_limit", fmt.Errorf("429: rate limit reached"), KindQuota},
		{"model_not_found", fmt.Errorf("model not found: glm-99"), KindNotFound},
		{"deadline", fmt.Errorf("Post \"x\": context deadline exceeded"), KindTimeout},
		{"timeout", fmt.Errorf("request Timed Out"), KindTimeout},
		{"refused", fmt.Errorf("dial tcp 127.0.0.1:11434: connection refused"), KindConnection},
		{"bad_json", fmt.Errorf("unexpected end of JSON input"), KindFormat},
		{"unknown", fmt.Errorf("something odd happened"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyOrderAuthBeforeConnection(t *testing.T) {
	// "api key" must win over the later generic "connection" rule.
	err := errors.New("connection ok but api key rejected")
	assert.Equal(t, KindAuth, Classify(err))
}

func TestUserMessageIsFixedPerKind(t *testing.T) {
	msg := UserMessage(KindAuth, "zhipuai")
	assert.Equal(t, "API key error for zhipuai. Please check your API key.", msg)

	// Same kind, different provider: same template.
	assert.Equal(t, "API key error for openai. Please check your API key.", UserMessage(KindAuth, "openai"))

	assert.Contains(t, UserMessage(KindQuota, "p"), "quota")
	assert.Contains(t, UserMessage(KindTimeout, "p"), "timed out")
	assert.Contains(t, UserMessage(KindConnection, "p"), "network")
	assert.Contains(t, UserMessage(KindUnknown, "p"), "Error communicating")
}
