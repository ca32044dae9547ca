package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/cognicore/lexatom/pkg/lexatom"
)

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	BaseURL string // full endpoint, e.g. https://api.openai.com/v1/chat/completions
	APIKey  string
	Model   string
	Timeout time.Duration

	// Limiter throttles requests when set.
	Limiter *rate.Limiter

	HTTPClient *http.Client
}

// PerMinute returns a limiter allowing n requests per minute, or nil when n
// is not positive.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
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
	} `json:"error"`
}

// Complete sends a conversation and returns the assistant's reply. It
// implements lexatom.Model.
func (c *Client) Complete(ctx context.Context, messages []lexatom.Message) (string, error) {
	if c.BaseURL == "" || c.Model == "" {
		return "", fmt.Errorf("llm: base URL and model required")
	}
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	payload, err := c.send(ctx, msgs)
	if err != nil {
		return "", err
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return payload.Choices[0].Message.Content, nil
}

// Chat sends a single user prompt, preceded by system when it is not empty.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	var messages []lexatom.Message
	if system != "" {
		messages = append(messages, lexatom.Message{Role: lexatom.RoleSystem, Content: system})
	}
	messages = append(messages, lexatom.Message{Role: lexatom.RoleUser, Content: user})
	return c.Complete(ctx, messages)
}

func (c *Client) send(ctx context.Context, messages []chatMessage) (*chatResponse, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("llm: rate limit: %w", err)
		}
	}
	reqBody, err := json.Marshal(chatRequest{Model: c.Model, Messages: messages})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("llm: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
		}
		return nil, err
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("llm error: %s", payload.Error.Message)
	}
	return &payload, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
