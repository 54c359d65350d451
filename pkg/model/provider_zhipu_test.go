package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewZhipuProviderKeyFormat(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "abc123.topsecret", false},
		{"missing_separator", "abc123topsecret", true},
		{"empty_secret", "abc123.", true},
		{"empty_id", ".topsecret", true},
		{"empty", "", true},
		{"placeholder", "local", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewZhipuProvider(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestZhipuSignToken(t *testing.T) {
	p, err := NewZhipuProvider("keyid.keysecret")
	require.NoError(t, err)

	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return frozen }

	signed, err := p.signToken()
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(token *jwt.Token) (any, error) {
		return []byte("keysecret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return frozen }))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, "SIGN", parsed.Header["sign_type"])

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "keyid", claims["iss"])
	assert.Equal(t, "keyid", claims["api_key"])
	assert.EqualValues(t, frozen.Unix(), claims["iat"])
	assert.EqualValues(t, frozen.Add(time.Hour).Unix(), claims["exp"])
}

func TestZhipuChatSendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth := r.Header.Get("Authorization")
		require.NotEmpty(t, auth)
		assert.Contains(t, auth, "Bearer ")
		w.Write([]byte(chatBody("ok")))
	}))
	defer server.Close()

	p, err := NewZhipuProvider("id.secret")
	require.NoError(t, err)
	p.baseURL = server.URL

	resp, err := p.ChatCompletion(context.Background(), ChatRequest{
		Model:    "glm-4.5",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content)
}

func TestZhipuChatSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"quota exceeded","type":"billing","code":"1113"}}`))
	}))
	defer server.Close()

	p, err := NewZhipuProvider("id.secret")
	require.NoError(t, err)
	p.baseURL = server.URL

	_, err = p.ChatCompletion(context.Background(), ChatRequest{Model: "glm-4.5"})
	require.Error(t, err)
	assert.Equal(t, KindQuota, Classify(err))

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Equal(t, "1113", apiErr.Code)
}
