package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"library-rag/internal/config"
)

// Sampling options are fixed per deployment; callers choose only the model.
var defaultOptions = generateOptions{
	Temperature:      0.85,
	TopP:             0.75,
	RepeatPenalty:    1.05,
	PresencePenalty:  0.015,
	FrequencyPenalty: 0.015,
}

type generateOptions struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	RepeatPenalty    float64 `json:"repeat_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Client calls an Ollama-style text generation endpoint. The underlying
// HTTP client carries no timeout: long generations must run to completion,
// and the one code path that wants a ceiling passes a context deadline.
// Failed calls are not retried.
type Client struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

func NewClient(cfg *config.LLMConfig) *Client {
	return &Client{
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.Model,
		httpClient:   &http.Client{},
	}
}

// DefaultModel returns the model used when a request names none.
func (c *Client) DefaultModel() string {
	return c.defaultModel
}

// Generate sends prompt to the backend and returns the completion text.
// An empty model selects the configured default. A non-success status or
// malformed body is surfaced as an error.
func (c *Client) Generate(ctx context.Context, promptText, model string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	payload, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  promptText,
		Stream:  false,
		Options: defaultOptions,
	})
	if err != nil {
		return "", fmt.Errorf("encoding generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug().Str("model", model).Int("prompt_len", len(promptText)).Msg("Calling generation backend")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling generation backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("generation backend returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decoding generation response: %w", err)
	}
	return decoded.Response, nil
}
