// Package pengine executes goals on a SWI-Prolog Pengines server over HTTP.
package pengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cognicore/lexatom/pkg/lexatom/reasoning"
)

// DefaultApplication is the sandboxed application served by a stock
// Pengines installation.
const DefaultApplication = "pengine_sandbox"

// DefaultChunk caps the solutions returned per request.
const DefaultChunk = 1000

// Client implements reasoning.Reasoner against a Pengines endpoint.
type Client struct {
	BaseURL     string
	Application string
	Chunk       int

	HTTPClient *http.Client
}

type createRequest struct {
	Ask         string `json:"ask"`
	SrcText     string `json:"src_text"`
	Application string `json:"application"`
	Format      string `json:"format"`
	Chunk       int    `json:"chunk"`
}

// Execute posts the goal and knowledge base to {BaseURL}/pengine/create and
// interprets the event stream in the response.
func (c *Client) Execute(ctx context.Context, knowledgeBase, goal string) ([]reasoning.Outcome, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("pengine: base URL required")
	}

	body, err := json.Marshal(createRequest{
		Ask:         goal,
		SrcText:     knowledgeBase,
		Application: c.application(),
		Format:      "json",
		Chunk:       c.chunk(),
	})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/pengine/create"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("pengine: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pengine: read response: %w", err)
	}

	// Pengines reports engine errors with a JSON event body even on 5xx.
	if resp.StatusCode >= 400 && !json.Valid(raw) {
		return nil, fmt.Errorf("pengine: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return reasoning.Interpret(raw)
}

func (c *Client) application() string {
	if c.Application != "" {
		return c.Application
	}
	return DefaultApplication
}

func (c *Client) chunk() int {
	if c.Chunk > 0 {
		return c.Chunk
	}
	return DefaultChunk
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
