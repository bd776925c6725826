// Package tts wraps the speech synthesis service.
package tts

import (
	"context"

	"dubcast/internal/services/toolapi"
	"dubcast/internal/speaker"
)

// Client invokes the synthesis service.
type Client struct {
	api *toolapi.Client
}

// NewClient constructs a tts client.
func NewClient(cfg toolapi.Config, opts ...toolapi.Option) *Client {
	if cfg.Name == "" {
		cfg.Name = "tts"
	}
	return &Client{api: toolapi.NewClient(cfg, opts...)}
}

// DialogueRequest synthesizes tagged dialogue with per-speaker voices. The
// service writes the produced audio to OutputPath.
type DialogueRequest struct {
	Text       string           `json:"text"`
	Speakers   []speaker.Config `json:"speakers"`
	Speed      float64          `json:"speed,omitempty"`
	OutputPath string           `json:"output_path"`
}

type synthesisResult struct {
	AudioPath string `json:"audio_path"`
}

// SynthesizeDialogue renders the dialogue text into multi-voice audio.
func (c *Client) SynthesizeDialogue(ctx context.Context, req DialogueRequest) (string, error) {
	var result synthesisResult
	if err := c.api.Invoke(ctx, "clone_voice", req, &result); err != nil {
		return "", err
	}
	if result.AudioPath != "" {
		return result.AudioPath, nil
	}
	return req.OutputPath, nil
}

// Narrate renders plain text with a single default voice.
func (c *Client) Narrate(ctx context.Context, text, outputPath string, speed float64) (string, error) {
	var result synthesisResult
	err := c.api.Invoke(ctx, "narrate", map[string]any{
		"text":        text,
		"speed":       speed,
		"output_path": outputPath,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.AudioPath != "" {
		return result.AudioPath, nil
	}
	return outputPath, nil
}

// HealthCheck pings the service.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.api.Ping(ctx)
}
