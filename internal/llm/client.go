// Package llm provides an agent runner backed by an OpenAI-compatible
// chat-completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nocliffcapital/alithos/internal/logger"
	"github.com/nocliffcapital/alithos/internal/research"
)

const maxAttempts = 3

// Client calls an OpenAI-compatible /chat/completions endpoint. It is the
// only place a model vendor's wire format appears; everything above it speaks
// research.AgentRunner.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	retryBase  time.Duration
	httpClient *http.Client
}

// NewClient creates an LLM client. The base URL should include the API
// version prefix (for example https://api.openai.com/v1).
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		retryBase:  2 * time.Second,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Run executes one agent invocation. A missing or rejected API key surfaces
// as research.ErrAuthentication so callers can distinguish configuration
// problems from transient failures.
func (c *Client) Run(ctx context.Context, agent research.AgentConfig, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("no API key configured: %w", research.ErrAuthentication)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: agent.SystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, retryable, err := c.complete(ctx, body)
		if err == nil {
			return output, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
		logger.Warn("LLM call for agent %s failed (attempt %d/%d): %v", agent.Name, attempt, maxAttempts, err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryBase * time.Duration(attempt)):
			}
		}
	}
	return "", fmt.Errorf("LLM call failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) complete(ctx context.Context, body []byte) (output string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", false, fmt.Errorf("status %d: %w", resp.StatusCode, research.ErrAuthentication)
	case resp.StatusCode != http.StatusOK:
		return "", true, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("response contained no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

func truncate(data []byte, limit int) string {
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
