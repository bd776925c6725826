package toolapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 10 * time.Minute

// Config captures the runtime settings required to talk to one tool service.
type Config struct {
	Name           string
	BaseURL        string
	TimeoutSeconds int
}

// Client invokes JSON tool calls against a collaborator service. Services
// expose POST /invoke taking {"tool": ..., "arguments": ...} and answering
// with a {"success", "result", "error"} envelope.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a tool client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		name:       strings.TrimSpace(cfg.Name),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Name returns the service name used in health reporting.
func (c *Client) Name() string {
	return c.name
}

type invokeRequest struct {
	Tool      string `json:"tool"`
	Arguments any    `json:"arguments"`
}

type invokeEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
}

// Invoke calls a named tool and decodes the result into out when non-nil.
// A failure envelope is surfaced as an error carrying the service's message
// verbatim. Invocations are not retried.
func (c *Client) Invoke(ctx context.Context, tool string, args any, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%s service url is not configured", c.name)
	}

	body, err := json.Marshal(invokeRequest{Tool: tool, Arguments: args})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", tool, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", tool, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", tool, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", tool, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: service returned status %d", tool, resp.StatusCode)
	}

	var envelope invokeEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", tool, err)
	}
	if !envelope.Success {
		message := strings.TrimSpace(envelope.Error)
		if message == "" {
			message = tool + " failed without detail"
		}
		return errors.New(message)
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", tool, err)
		}
	}
	return nil
}

// Ping checks the service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return fmt.Errorf("%s service url is not configured", c.name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned status %d", resp.StatusCode)
	}
	return nil
}
