package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binods1313/MutationMechanic-sub000/internal/profile"
)

func TestNewLLMService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *LLMConfig
		expectError bool
	}{
		{
			name: "OpenAI config",
			cfg: &LLMConfig{
				Model:       "gpt-4o-mini",
				APIKey:      "test-key",
				BaseURL:     "https://api.openai.com/v1",
				MaxTokens:   1024,
				Temperature: 0.3,
			},
		},
		{
			name: "compatible endpoint",
			cfg: &LLMConfig{
				Model:   "deepseek-chat",
				APIKey:  "test-key",
				BaseURL: "https://api.deepseek.com",
			},
		},
		{
			name:        "missing config",
			cfg:         nil,
			expectError: true,
		},
		{
			name:        "missing api key",
			cfg:         &LLMConfig{Model: "gpt-4o-mini"},
			expectError: true,
		},
		{
			name:        "missing model",
			cfg:         &LLMConfig{APIKey: "test-key"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewLLMService(tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestNewConfigFromProfile(t *testing.T) {
	assert.Nil(t, NewConfigFromProfile(&profile.Profile{}))

	cfg := NewConfigFromProfile(&profile.Profile{
		AIAPIKey:  "sk-test",
		AIBaseURL: "http://llm.local/v1",
		AIModel:   "gpt-4o-mini",
	})
	require.NotNil(t, cfg)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "http://llm.local/v1", cfg.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.NoError(t, cfg.Validate())
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func newTestService(t *testing.T, handler http.HandlerFunc) LLMService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := NewLLMService(&LLMConfig{
		Model:      "gpt-4o-mini",
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		MaxRetries: 3,
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	// Keep retries fast in tests.
	svc.(*llmService).retry.InitialDelay = time.Millisecond
	svc.(*llmService).retry.MaxDelay = time.Millisecond
	return svc
}

func TestChat(t *testing.T) {
	var got chatRequest
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeCompletion(w, "BRCA1 encodes a tumor suppressor.")
	})

	out, err := svc.Chat(context.Background(), FormatMessages("be brief", "explain BRCA1", nil))
	require.NoError(t, err)
	assert.Equal(t, "BRCA1 encodes a tumor suppressor.", out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "explain BRCA1", got.Messages[1].Content)
}

func TestChatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
			return
		}
		writeCompletion(w, "ok")
	})

	out, err := svc.Chat(context.Background(), []Message{UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := svc.Chat(context.Background(), []Message{UserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatEmptyChoices(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	})

	_, err := svc.Chat(context.Background(), []Message{UserMessage("hi")})
	assert.ErrorContains(t, err, "empty response")
}

func TestFormatMessages(t *testing.T) {
	history := []Message{UserMessage("a"), {Role: "assistant", Content: "b"}}
	msgs := FormatMessages("sys", "c", history)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "c", msgs[3].Content)

	msgs = FormatMessages("", "only", nil)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
}
