package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteRunner forwards code to an execution service that accepts
// POST {"code": "..."} and answers {"output": "..."}.
type RemoteRunner struct {
	url       string
	client    *http.Client
	timeout   time.Duration
	maxOutput int
}

type remoteRequest struct {
	Code string `json:"code"`
}

type remoteResponse struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error"`
}

func NewRemoteRunner(url string, timeout time.Duration, maxOutput int) *RemoteRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	return &RemoteRunner{
		url:       url,
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
		maxOutput: maxOutput,
	}
}

func (r *RemoteRunner) Run(ctx context.Context, code string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(remoteRequest{Code: code})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, ErrTimeout
		}
		return Result{}, fmt.Errorf("remote runner: %w", err)
	}
	defer resp.Body.Close()

	// Allow some slack over maxOutput for the JSON framing
	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(r.maxOutput)*2+4096))
	if err != nil {
		return Result{}, fmt.Errorf("remote runner: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("remote runner: status %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("remote runner: decode response: %w", err)
	}
	if out.Error != "" {
		return Result{}, fmt.Errorf("remote runner: %s", out.Error)
	}

	output := out.Output
	if len(output) > r.maxOutput {
		output = cutAtRune(output, r.maxOutput) + "\n[output truncated]"
	}
	return Result{Output: output, ExitCode: out.ExitCode}, nil
}
