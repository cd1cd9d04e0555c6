// Package llm implements the model provider boundary against
// OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/protocol"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second

	maxResponseBytes = 10 << 20
)

// OpenAIClient calls a chat completions endpoint. Any provider speaking
// the OpenAI wire format works by overriding the base URL.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewOpenAIClient(baseURL, apiKey string, logger *slog.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &OpenAIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger.With("module", "llm"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) Call(ctx context.Context, call protocol.LLMCall) (*protocol.LLMResponse, error) {
	messages := make([]chatMessage, 0, 2)
	if call.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: call.SystemPrompt})
	}

	messages = append(messages, chatMessage{Role: "user", Content: call.UserPrompt})

	payload, err := json.Marshal(chatRequest{
		Model:       call.Model,
		Messages:    messages,
		Temperature: call.Temperature,
		MaxTokens:   call.MaxTokens,
	})
	if err != nil {
		return nil, &protocol.LLMError{Kind: models.ErrorKindInvalidRequest, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &protocol.LLMError{Kind: models.ErrorKindInvalidRequest, Message: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		kind := models.ErrorKindNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = models.ErrorKindTimeout
		}

		return nil, &protocol.LLMError{Kind: kind, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &protocol.LLMError{Kind: models.ErrorKindNetwork, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &protocol.LLMError{
			Kind:    classifyStatus(resp.StatusCode),
			Message: fmt.Sprintf("provider returned %d: %s", resp.StatusCode, truncate(body, 512)),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &protocol.LLMError{Kind: models.ErrorKindModelError, Message: "malformed provider response: " + err.Error()}
	}

	if decoded.Error != nil {
		return nil, &protocol.LLMError{Kind: models.ErrorKindModelError, Message: decoded.Error.Message}
	}

	if len(decoded.Choices) == 0 {
		return nil, &protocol.LLMError{Kind: models.ErrorKindModelError, Message: "provider returned no choices"}
	}

	return &protocol.LLMResponse{
		Content: decoded.Choices[0].Message.Content,
		Usage: protocol.LLMUsage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		},
	}, nil
}

func classifyStatus(status int) models.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return models.ErrorKindAuth
	case status == http.StatusTooManyRequests:
		return models.ErrorKindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return models.ErrorKindTimeout
	case status >= 500:
		return models.ErrorKindNetwork
	default:
		return models.ErrorKindInvalidRequest
	}
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}

	return string(body[:limit]) + "..."
}
