package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicLLMCompletePrefillsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "demo-model", body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "user", body.Messages[0].Role)
			assert.Equal(t, "assistant", body.Messages[1].Role)
			assert.Equal(t, "{", body.Messages[1].Content[0].Text)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "demo-model",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []any{map[string]any{"type": "text", "text": `"score":71}`}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer server.Close()

	llm, err := NewAnthropicLLMFromConfig(&LLMSettings{APIKey: "test-key", Model: "demo-model", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := llm.Complete(context.Background(), BuildScorePrompt(Article{Title: "T"}))
	require.NoError(t, err)
	assert.Equal(t, `{"score":71}`, out)
	score, err := ParseScore(out)
	require.NoError(t, err)
	assert.Equal(t, 71.0, score)
}

func TestAnthropicConfigValidation(t *testing.T) {
	_, err := NewAnthropicLLMFromConfig(nil)
	assert.Error(t, err)
	_, err = NewAnthropicLLMFromConfig(&LLMSettings{Model: "m"})
	assert.Error(t, err)
	_, err = NewAnthropicLLMFromConfig(&LLMSettings{APIKey: "k"})
	assert.Error(t, err)
}
