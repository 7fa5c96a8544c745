package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/revival-api/internal/config"
	"github.com/phrazzld/revival-api/internal/generation"
)

// Compile-time check that Client satisfies the generation.Client interface.
var _ generation.Client = (*Client)(nil)

const (
	createTaskPath = "/api/v1/jobs/createTask"
	recordInfoPath = "/api/v1/jobs/recordInfo"

	// responseBodyLimit caps how much of an error response body is carried
	// into logs and error messages.
	responseBodyLimit = 512
)

// Client talks to the KIE.ai asynchronous job API. Jobs are created with a
// single POST and observed by polling their record until a terminal state.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a Client from the generation service configuration.
// Returns generation.ErrInvalidConfig when required settings are missing.
func NewClient(cfg config.GenerationConfig, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", generation.ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", generation.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", generation.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	pollInterval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}

	submitTimeout := time.Duration(cfg.SubmitTimeoutSeconds) * time.Second
	if submitTimeout <= 0 {
		submitTimeout = 30 * time.Second
	}

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: submitTimeout},
		logger:       logger.With(slog.String("component", "kie_client")),
	}, nil
}

// createTaskResponse is the envelope returned by the createTask endpoint.
type createTaskResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

// recordInfoResponse is the envelope returned by the recordInfo endpoint.
type recordInfoResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID     string `json:"taskId"`
		State      string `json:"state"`
		ResultJSON string `json:"resultJson"`
		FailCode   string `json:"failCode"`
		FailMsg    string `json:"failMsg"`
	} `json:"data"`
}

// Submit creates a job on the external service and returns its task id.
// Any transport fault or rejection surfaces as a *generation.SubmissionError.
func (c *Client) Submit(ctx context.Context, req generation.SubmitRequest) (string, error) {
	input := map[string]any{
		"prompt":        req.Prompt,
		"output_format": "png",
	}
	if req.ImageSize != "" {
		input["image_size"] = req.ImageSize
	}
	if len(req.ImageRefs) > 0 {
		input["image_urls"] = req.ImageRefs
	}

	payload := map[string]any{
		"model": c.model,
		"input": input,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &generation.SubmissionError{Message: "marshal request payload", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createTaskPath, bytes.NewReader(body))
	if err != nil {
		return "", &generation.SubmissionError{Message: "build request", Err: err}
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &generation.SubmissionError{Message: "send create task request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &generation.SubmissionError{StatusCode: resp.StatusCode, Message: "read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("create task rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(rawBody)))
		return "", &generation.SubmissionError{StatusCode: resp.StatusCode, Message: truncate(rawBody)}
	}

	var envelope createTaskResponse
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return "", &generation.SubmissionError{StatusCode: resp.StatusCode, Message: "decode create task response", Err: err}
	}
	if envelope.Code != http.StatusOK {
		return "", &generation.SubmissionError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("service returned code %d: %s", envelope.Code, envelope.Msg),
		}
	}
	if envelope.Data.TaskID == "" {
		return "", &generation.SubmissionError{StatusCode: resp.StatusCode, Message: "response carried no task id"}
	}

	c.logger.Info("job submitted", slog.String("job_id", envelope.Data.TaskID))
	return envelope.Data.TaskID, nil
}

// AwaitResult polls the job record until the job succeeds, fails, or the
// wall-clock budget runs out. Transient poll faults (transport errors, bad
// status codes, malformed bodies) are logged and retried on the next tick
// rather than failing the wait, since the job itself may still be healthy.
func (c *Client) AwaitResult(ctx context.Context, jobID string, budget time.Duration) (string, error) {
	pollURL, err := c.recordInfoURL(jobID)
	if err != nil {
		return "", fmt.Errorf("building poll URL: %w", err)
	}

	start := time.Now()
	deadline := start.Add(budget)

	for {
		resultURL, terminal, err := c.pollOnce(ctx, pollURL, jobID)
		if terminal {
			return resultURL, err
		}
		if err != nil {
			c.logger.Warn("poll attempt failed, will retry",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()))
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			elapsed := time.Since(start)
			c.logger.Warn("job exceeded polling budget",
				slog.String("job_id", jobID),
				slog.Duration("elapsed", elapsed))
			return "", &generation.TimeoutError{JobID: jobID, Elapsed: elapsed}
		}

		wait := c.pollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("awaiting job %s: %w", jobID, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// pollOnce fetches the job record a single time. The terminal flag reports
// whether the job reached a final state; when it is false the returned error,
// if any, is transient.
func (c *Client) pollOnce(ctx context.Context, pollURL, jobID string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("build poll request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch job record: %w", err)
	}
	rawBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", false, fmt.Errorf("read job record body: %w", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("job record returned status %d: %s", resp.StatusCode, truncate(rawBody))
	}

	var envelope recordInfoResponse
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return "", false, fmt.Errorf("decode job record: %w", err)
	}
	if envelope.Code != http.StatusOK {
		return "", false, fmt.Errorf("job record returned code %d: %s", envelope.Code, envelope.Msg)
	}

	switch envelope.Data.State {
	case "success":
		resultURL, err := extractResultURL(envelope.Data.ResultJSON)
		if err != nil {
			// The service claims success but the payload is unusable.
			// There is nothing further to wait for.
			return "", true, &generation.JobFailedError{JobID: jobID, Reason: err.Error()}
		}
		c.logger.Info("job succeeded", slog.String("job_id", jobID))
		return resultURL, true, nil

	case "fail":
		reason := envelope.Data.FailMsg
		if reason == "" {
			reason = "unknown failure"
		}
		if envelope.Data.FailCode != "" {
			reason = fmt.Sprintf("%s (code %s)", reason, envelope.Data.FailCode)
		}
		c.logger.Warn("job failed",
			slog.String("job_id", jobID),
			slog.String("reason", reason))
		return "", true, &generation.JobFailedError{JobID: jobID, Reason: reason}

	case "waiting", "queued", "queueing", "generating", "processing":
		return "", false, nil

	default:
		return "", false, fmt.Errorf("unrecognized job state %q", envelope.Data.State)
	}
}

func (c *Client) recordInfoURL(jobID string) (string, error) {
	u, err := url.Parse(c.baseURL + recordInfoPath)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("taskId", jobID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}

// extractResultURL pulls the first result URL out of the doubly encoded
// resultJson field.
func extractResultURL(resultJSON string) (string, error) {
	if resultJSON == "" {
		return "", fmt.Errorf("success record carried no result payload")
	}
	var result struct {
		ResultURLs []string `json:"resultUrls"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return "", fmt.Errorf("parse result payload: %w", err)
	}
	if len(result.ResultURLs) == 0 {
		return "", fmt.Errorf("success record listed no result URLs")
	}
	return result.ResultURLs[0], nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= responseBodyLimit {
		return s
	}
	return s[:responseBodyLimit] + "..."
}
