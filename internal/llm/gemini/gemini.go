// Package gemini implements the llm.Client port against the Google
// Gemini generateContent HTTP API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cerr "github.com/RobMal123/ai-helpdesk-chatbot/internal/errors"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client calls the Gemini generateContent endpoint.
type Client struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, used for testing and proxies.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Gemini client for the given model.
func NewClient(model, apiKey string, opts ...Option) *Client {
	c := &Client{
		model:   model,
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Complete sends history plus the prompt and returns the model's text.
func (c *Client) Complete(ctx context.Context, prompt string, history []llm.Message) (string, error) {
	if c.apiKey == "" {
		return "", cerr.ConfigError("model API key is not configured", nil)
	}

	contents := make([]geminiContent, 0, len(history)+1)
	for _, msg := range history {
		contents = append(contents, geminiContent{
			Role:  apiRole(msg.Role),
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: prompt}},
	})

	body, err := json.Marshal(generateRequest{Contents: contents})
	if err != nil {
		return "", cerr.InternalError(fmt.Sprintf("marshal completion request: %v", err), err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", cerr.InternalError(fmt.Sprintf("build completion request: %v", err), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", cerr.ModelError(fmt.Sprintf("completion call failed: %v", err), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", cerr.ModelError(fmt.Sprintf("read completion response: %v", err), err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", cerr.ModelError(fmt.Sprintf("decode completion response: %v", err), err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("model returned status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = fmt.Sprintf("model returned %s: %s", parsed.Error.Status, parsed.Error.Message)
		}
		return "", cerr.ModelError(msg, nil)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", cerr.ModelError("model returned no candidates", nil)
	}

	var text string
	for _, part := range parsed.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text, nil
}

// apiRole maps conversation roles to the Gemini wire roles. The API
// calls the assistant side "model".
func apiRole(r llm.Role) string {
	if r == llm.RoleAssistant {
		return "model"
	}
	return "user"
}
