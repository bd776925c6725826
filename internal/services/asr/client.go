// Package asr wraps the speech recognition service.
package asr

import (
	"context"

	"dubcast/internal/services/toolapi"
)

// Client invokes the transcription service.
type Client struct {
	api *toolapi.Client
}

// NewClient constructs an asr client.
func NewClient(cfg toolapi.Config, opts ...toolapi.Option) *Client {
	if cfg.Name == "" {
		cfg.Name = "asr"
	}
	return &Client{api: toolapi.NewClient(cfg, opts...)}
}

type transcribeResult struct {
	Text string `json:"text"`
}

// Transcribe converts an audio file into text using the given model.
func (c *Client) Transcribe(ctx context.Context, audioPath, model string) (string, error) {
	var result transcribeResult
	err := c.api.Invoke(ctx, "transcribe", map[string]string{
		"audio_path": audioPath,
		"model":      model,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// HealthCheck pings the service.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.api.Ping(ctx)
}
