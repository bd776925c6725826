// Package translate wraps the text service used for translation, polishing,
// and summarization. The three operations differ only in prompt type.
package translate

import (
	"context"

	"dubcast/internal/services/toolapi"
)

// Client invokes the text processing service.
type Client struct {
	api *toolapi.Client
}

// NewClient constructs a translate client.
func NewClient(cfg toolapi.Config, opts ...toolapi.Option) *Client {
	if cfg.Name == "" {
		cfg.Name = "translate"
	}
	return &Client{api: toolapi.NewClient(cfg, opts...)}
}

// Request carries the shared arguments for text operations.
type Request struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

type textResult struct {
	Text string `json:"text"`
}

// Translate renders the transcript into the target language as tagged dialogue.
func (c *Client) Translate(ctx context.Context, req Request) (string, error) {
	return c.invokeText(ctx, "translate", req)
}

// Polish refines the translated dialogue for narration.
func (c *Client) Polish(ctx context.Context, req Request) (string, error) {
	return c.invokeText(ctx, "polish", req)
}

// Summarize produces a short summary of the polished dialogue.
func (c *Client) Summarize(ctx context.Context, req Request) (string, error) {
	return c.invokeText(ctx, "summarize", req)
}

func (c *Client) invokeText(ctx context.Context, tool string, req Request) (string, error) {
	var result textResult
	if err := c.api.Invoke(ctx, tool, req, &result); err != nil {
		return "", err
	}
	return result.Text, nil
}

// HealthCheck pings the service.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.api.Ping(ctx)
}
