// Package media wraps the acquisition service that turns a media source into
// a local audio file.
package media

import (
	"context"

	"dubcast/internal/services/toolapi"
)

// Client invokes the media acquisition service.
type Client struct {
	api *toolapi.Client
}

// NewClient constructs a media client.
func NewClient(cfg toolapi.Config, opts ...toolapi.Option) *Client {
	if cfg.Name == "" {
		cfg.Name = "media"
	}
	return &Client{api: toolapi.NewClient(cfg, opts...)}
}

type acquireResult struct {
	AudioPath string `json:"audio_path"`
	Title     string `json:"title"`
}

// ExtractYouTubeAudio downloads the audio track of a YouTube video into dir.
// Returns the audio path and the video title.
func (c *Client) ExtractYouTubeAudio(ctx context.Context, url, dir string) (string, string, error) {
	var result acquireResult
	err := c.api.Invoke(ctx, "youtube_extract", map[string]string{
		"url":        url,
		"output_dir": dir,
	}, &result)
	if err != nil {
		return "", "", err
	}
	return result.AudioPath, result.Title, nil
}

// FetchAudio downloads a remote audio file into dir.
func (c *Client) FetchAudio(ctx context.Context, url, dir string) (string, string, error) {
	var result acquireResult
	err := c.api.Invoke(ctx, "fetch_audio", map[string]string{
		"url":        url,
		"output_dir": dir,
	}, &result)
	if err != nil {
		return "", "", err
	}
	return result.AudioPath, result.Title, nil
}

// HealthCheck pings the service.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.api.Ping(ctx)
}
