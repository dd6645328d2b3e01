package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_OpenAI(t *testing.T) {
	var got openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"## Section 1: What is happening\nok"}}]}`))
	}))
	defer server.Close()

	c, err := NewClient(context.Background(), Config{Provider: "openai", APIKey: "sk-test", BaseURL: server.URL, Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", c.Name())

	out, err := c.Complete(context.Background(), "be formal", "what happened?")
	require.NoError(t, err)
	assert.Contains(t, out, "What is happening")

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be formal", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, 0.3, got.Temperature)
}

func TestComplete_Anthropic(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"explained"}]}`))
	}))
	defer server.Close()

	c, err := NewClient(context.Background(), Config{Provider: "anthropic", Model: "claude-test", APIKey: "ak-test", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "system text", "user text")
	require.NoError(t, err)
	assert.Equal(t, "explained", out)
	assert.Equal(t, "system text", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user text", got.Messages[0].Content)
	assert.Equal(t, "claude-test", got.Model)
}

func TestComplete_FailuresWrapModelUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`overloaded`))
	}))
	defer server.Close()

	c, err := NewClient(context.Background(), Config{Provider: "openai", APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "s", "u")
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.Contains(t, err.Error(), "503")

	noKey, err := NewClient(context.Background(), Config{Provider: "openai", BaseURL: server.URL})
	require.NoError(t, err)
	_, err = noKey.Complete(context.Background(), "s", "u")
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestComplete_EmptyCompletionIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"   "}}]}`))
	}))
	defer server.Close()

	c, err := NewClient(context.Background(), Config{Provider: "openai", APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "s", "u")
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestNewClient_Unsupported(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Provider: "carrier-pigeon"})
	assert.True(t, errors.Is(err, ErrModelUnavailable))

	_, err = NewClient(context.Background(), Config{Provider: "gemini-api"})
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestResolveEnvVarKeyPointer(t *testing.T) {
	t.Setenv("SHOPFLOOR_TEST_KEY", "resolved-value")

	assert.Equal(t, "resolved-value", resolveEnvVarKeyPointer("SHOPFLOOR_TEST_KEY"))
	assert.Equal(t, "sk-literal", resolveEnvVarKeyPointer(" sk-literal "))
	assert.Equal(t, "UNSET_SHOPFLOOR_VAR", resolveEnvVarKeyPointer("UNSET_SHOPFLOOR_VAR"))
	assert.Equal(t, "", resolveEnvVarKeyPointer(""))
}

func TestConfigFromViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	t.Setenv("SHOPFLOOR_ANTHROPIC", "from-env")

	viper.Set("ai.default_provider", "anthropic")
	viper.Set("ai.providers.anthropic.model", "claude-x")
	viper.Set("ai.providers.anthropic.api_key_env", "SHOPFLOOR_ANTHROPIC")

	cfg := ConfigFromViper("")
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-x", cfg.Model)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, DefaultTemperature, cfg.Temperature)
}

func TestOpenAIEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	vecs, err := NewOpenAIEmbedder("k", server.URL, "").Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}
