// Package openai implements the language-model capability over the OpenAI
// chat completions API. Like the gateway clients it performs no retries of
// its own; failures are classified and handed back to the engine.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pennywise-ai/pennywise/internal/logging"
	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/ports"
)

// DefaultModel matches the model the assistant was tuned against.
const DefaultModel = "gpt-4o-mini"

const defaultBaseURL = "https://api.openai.com/v1"

// Client implements ports.ModelClient.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	logger      *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel selects a different model.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) { c.temperature = t }
}

// WithBaseURL points the client at a compatible endpoint, such as a proxy
// or a test server.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an OpenAI client.
func New(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      DefaultModel,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete performs one chat completion. Conversation context precedes the
// prompt so multi-turn chat keeps its history.
func (c *Client) Complete(ctx context.Context, req domain.ModelRequest) (ports.ModelOutput, error) {
	messages := make([]chatMessage, 0, len(req.Context)+2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Context {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return ports.ModelOutput{}, fmt.Errorf("encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return ports.ModelOutput{}, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.ModelOutput{}, domain.NewCapabilityError(domain.FailureUpstreamUnavailable,
			fmt.Errorf("chat completion: %w", err))
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return ports.ModelOutput{}, domain.NewCapabilityError(domain.FailureUpstreamUnavailable,
			fmt.Errorf("chat completion: read response: %w", err))
	}

	var resp chatResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil && httpResp.StatusCode == http.StatusOK {
		return ports.ModelOutput{}, domain.NewCapabilityError(domain.FailureUpstreamUnavailable,
			fmt.Errorf("chat completion: decode response: %w", jsonErr))
	}

	if httpResp.StatusCode != http.StatusOK {
		return ports.ModelOutput{}, c.classifyStatus(httpResp.StatusCode, resp)
	}
	if len(resp.Choices) == 0 {
		return ports.ModelOutput{}, domain.NewCapabilityError(domain.FailureUpstreamUnavailable,
			fmt.Errorf("chat completion: response without choices"))
	}

	choice := resp.Choices[0]
	return ports.ModelOutput{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *Client) classifyStatus(status int, resp chatResponse) error {
	msg := "unknown error"
	if resp.Error != nil {
		msg = resp.Error.Message
	}
	cause := fmt.Errorf("chat completion: status %d: %s", status, msg)
	c.logger.Warn("model request failed", "status", status, "err", cause)

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewCapabilityError(domain.FailureAuthExpired, cause)
	case http.StatusTooManyRequests:
		return domain.NewCapabilityError(domain.FailureRateLimited, cause)
	default:
		return domain.NewCapabilityError(domain.FailureUpstreamUnavailable, cause)
	}
}
