package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dubcast/internal/api"
	"dubcast/internal/queue"
)

// apiClient is a thin HTTP client for the daemon API used by CLI commands.
type apiClient struct {
	baseURL string
	httpc   *http.Client
}

func newAPIClient(address string) *apiClient {
	return &apiClient{
		baseURL: "http://" + strings.TrimPrefix(address, "http://"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
			return fmt.Errorf("daemon: %s", payload.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) submit(ctx context.Context, payload api.SubmitPayload) (api.JobView, error) {
	var response api.JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", payload, &response); err != nil {
		return api.JobView{}, err
	}
	return response.Job, nil
}

func (c *apiClient) list(ctx context.Context, statuses []string) ([]api.JobView, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		path += "?status=" + strings.Join(statuses, "&status=")
	}
	var response api.JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Jobs, nil
}

func (c *apiClient) get(ctx context.Context, jobID string) (api.JobResponse, error) {
	var response api.JobResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+jobID, nil, &response)
	return response, err
}

func (c *apiClient) delete(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+jobID, nil, nil)
}

// stream follows the job's SSE feed, invoking onEvent per progress entry
// until the done event arrives or ctx ends.
func (c *apiClient) stream(ctx context.Context, jobID string, onEvent func(queue.StepEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+jobID+"/stream", nil)
	if err != nil {
		return err
	}

	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event == "done" {
				return nil
			}
			var step queue.StepEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &step); err == nil {
				onEvent(step)
			}
		}
	}
	return scanner.Err()
}
