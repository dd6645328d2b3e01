// Package llm talks to the language model providers used to explain
// diagnostics and to embed knowledge documents.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

// ErrModelUnavailable wraps every failure to obtain a completion.
var ErrModelUnavailable = errors.New("model unavailable")

// Model produces a completion for a system and user prompt pair.
type Model interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

const (
	DefaultTemperature = 0.3
	defaultMaxTokens   = 2000
)

var defaultModels = map[string]string{
	"openai":     "gpt-4o-mini",
	"anthropic":  "claude-3-5-sonnet-latest",
	"gemini":     "gemini-2.0-flash",
	"gemini-api": "gemini-2.0-flash",
	"deepseek":   "deepseek-chat",
}

// Config selects a provider and model.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Debug       bool
}

// ConfigFromViper reads ai.* settings for provider, or for
// ai.default_provider when provider is empty.
func ConfigFromViper(provider string) Config {
	if provider == "" {
		provider = viper.GetString("ai.default_provider")
	}
	if provider == "" {
		provider = "openai"
	}
	key := viper.GetString(fmt.Sprintf("ai.providers.%s.api_key", provider))
	if key == "" {
		if envName := viper.GetString(fmt.Sprintf("ai.providers.%s.api_key_env", provider)); envName != "" {
			key = os.Getenv(envName)
		}
	}
	temp := DefaultTemperature
	if viper.IsSet("ai.temperature") {
		temp = viper.GetFloat64("ai.temperature")
	}
	return Config{
		Provider:    provider,
		Model:       viper.GetString(fmt.Sprintf("ai.providers.%s.model", provider)),
		APIKey:      key,
		BaseURL:     viper.GetString(fmt.Sprintf("ai.providers.%s.base_url", provider)),
		Temperature: temp,
		Debug:       viper.GetBool("debug"),
	}
}

// Client is a Model backed by one of the supported providers.
type Client struct {
	provider     string
	model        string
	apiKey       string
	baseURL      string
	temperature  float64
	maxTokens    int
	httpClient   *http.Client
	geminiClient *genai.Client
	debug        bool
}

// NewClient builds a client for cfg.Provider. Gemini clients are created
// eagerly so credential problems surface here.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	c := &Client{
		provider:    strings.ToLower(strings.TrimSpace(cfg.Provider)),
		model:       strings.TrimSpace(cfg.Model),
		apiKey:      resolveEnvVarKeyPointer(cfg.APIKey),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		debug:       cfg.Debug,
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}

	switch c.provider {
	case "gemini":
		// Application Default Credentials, like the gemini CLI.
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{})
		if err != nil {
			return nil, fmt.Errorf("%w: gemini client: %v", ErrModelUnavailable, err)
		}
		c.geminiClient = gc
	case "gemini-api":
		if c.apiKey == "" {
			return nil, fmt.Errorf("%w: gemini-api provider configured without API key", ErrModelUnavailable)
		}
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey, Backend: genai.BackendGeminiAPI})
		if err != nil {
			return nil, fmt.Errorf("%w: gemini client: %v", ErrModelUnavailable, err)
		}
		c.geminiClient = gc
	case "openai":
		if c.baseURL == "" {
			c.baseURL = "https://api.openai.com/v1"
		}
	case "anthropic":
		if c.baseURL == "" {
			c.baseURL = "https://api.anthropic.com/v1"
		}
	case "deepseek":
		if c.baseURL == "" {
			c.baseURL = "https://api.deepseek.com/v1"
		}
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrModelUnavailable, cfg.Provider)
	}

	if c.model == "" {
		c.model = defaultModels[c.provider]
	}
	return c, nil
}

// Name returns "provider/model".
func (c *Client) Name() string {
	return c.provider + "/" + c.model
}

// Complete sends the prompt pair to the provider. All failures wrap
// ErrModelUnavailable.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.debug {
		log.Printf("[llm] %s: system=%d chars, user=%d chars", c.Name(), len(system), len(user))
	}

	var (
		out string
		err error
	)
	switch c.provider {
	case "gemini", "gemini-api":
		out, err = c.completeGemini(ctx, system, user)
	case "anthropic":
		out, err = c.completeAnthropic(ctx, system, user)
	default:
		out, err = c.completeOpenAI(ctx, system, user)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: empty completion from %s", ErrModelUnavailable, c.Name())
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) completeOpenAI(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	body, err := c.postJSON(ctx, c.baseURL+"/chat/completions", openAIRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
	}, map[string]string{"Authorization": "Bearer " + c.apiKey})
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from AI")
	}
	return response.Choices[0].Message.Content, nil
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) completeAnthropic(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("Anthropic API key not configured")
	}

	body, err := c.postJSON(ctx, c.baseURL+"/messages", anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      system,
		Messages:    []chatMessage{{Role: "user", Content: user}},
	}, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	for _, part := range parsed.Content {
		if strings.TrimSpace(part.Text) != "" {
			return part.Text, nil
		}
	}
	return "", fmt.Errorf("no response content from Anthropic")
}

func (c *Client) completeGemini(ctx context.Context, system, user string) (string, error) {
	if c.geminiClient == nil {
		return "", fmt.Errorf("gemini client not initialized")
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(float32(c.temperature)),
	}
	content := genai.NewContentFromText(user, genai.RoleUser)

	resp, err := c.geminiClient.Models.GenerateContent(ctx, c.model, []*genai.Content{content}, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates from Gemini")
	}

	var result strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			result.WriteString(part.Text)
		}
	}
	return result.String(), nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, headers map[string]string) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	return body, nil
}

func looksLikeEnvVarName(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 8 {
		return false
	}
	// All caps, digits or underscores, starting with a letter.
	for i, r := range s {
		if i == 0 {
			if r < 'A' || r > 'Z' {
				return false
			}
			continue
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return false
	}
	return true
}

// resolveEnvVarKeyPointer lets an api_key setting name an environment
// variable instead of holding the key itself.
func resolveEnvVarKeyPointer(apiKey string) string {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ""
	}
	if !looksLikeEnvVarName(apiKey) {
		return apiKey
	}
	if v := strings.TrimSpace(os.Getenv(apiKey)); v != "" {
		return v
	}
	return apiKey
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
