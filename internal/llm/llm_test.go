package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_MissingCredential(t *testing.T) {
	c := NewOpenAI(OpenAIConfig{Model: "gpt-4o-mini"})
	_, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hola"}})
	assert.True(t, errors.Is(err, ErrMissingCredential))
}

func TestOpenAIClient_JSONModeRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"{}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "m", JSONMode: true})
	resp, err := c.Generate(context.Background(), []Message{{Role: RoleSystem, Content: "s"}, {Role: RoleUser, Content: "u"}})
	require.NoError(t, err)

	assert.Equal(t, "{}", resp.Content)
	assert.Equal(t, 4, resp.TotalTokens)
	format, ok := got["response_format"].(map[string]any)
	require.True(t, ok, "response_format missing from request: %v", got)
	assert.Equal(t, "json_object", format["type"])
	assert.Len(t, got["messages"], 2)
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"})
	_, err := c.Generate(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestYandexClient_MissingCredential(t *testing.T) {
	_, err := NewYandex("", "").Generate(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrMissingCredential))
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(ProviderConfig{})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = NewClient(ProviderConfig{Provider: "Yandex"})
	require.NoError(t, err)
	assert.IsType(t, &YandexClient{}, c)

	_, err = NewClient(ProviderConfig{Provider: "nope"})
	assert.Error(t, err)
}
