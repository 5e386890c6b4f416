// Package llm provides the chat-completion collaborator used by the research
// nodes, plus helpers for decoding the JSON these models emit.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/wehubfusion/Minerva/pkg/engine"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
)

// Request is a single completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completer produces a text completion for a prompt. Implementations must be
// safe for concurrent use; specialist nodes call them from parallel branches.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client is an OpenAI-compatible chat-completions client.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewClient creates a client with defaults taken from the environment
// (OPENAI_API_KEY, OPENAI_API_BASE_URL).
func NewClient() *Client {
	baseURL := os.Getenv("OPENAI_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: baseURL,
		model:   defaultModel,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// WithAPIKey sets the API key.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = key
	return c
}

// WithBaseURL points the client at a different OpenAI-compatible endpoint.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// WithModel sets the model name.
func (c *Client) WithModel(model string) *Client {
	c.model = model
	return c
}

// WithHTTPClient sets a custom HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a chat-completion request and returns the first choice's
// content. HTTP 429 and 5xx map to transient errors so the envelope retries
// them; 401/403 and undecodable bodies map to permanent errors.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: API key is not set", engine.ErrUnauthorized)
	}

	payload := chatRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat completion call: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: completion endpoint returned 429", engine.ErrRateLimited)
	case httpResp.StatusCode >= 500:
		return "", fmt.Errorf("%w: completion endpoint returned %d", engine.ErrUnavailable, httpResp.StatusCode)
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: completion endpoint returned %d", engine.ErrUnauthorized, httpResp.StatusCode)
	case httpResp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("completion endpoint returned %d: %s", httpResp.StatusCode, respBody)
	}

	var decoded chatResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("%w: %v", engine.ErrMalformedResponse, err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("completion error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", engine.ErrMalformedResponse)
	}
	return decoded.Choices[0].Message.Content, nil
}
