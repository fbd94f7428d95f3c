package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// principalHeader mirrors internal/coordinator's httpapi.go.
const principalHeader = "X-Griddfs-Principal"

var httpClient = &http.Client{Timeout: 30 * time.Second}

// maxRetries and retryBackoff bound a linear-backoff retry applied to
// every coordinator REST call, so a transient network blip doesn't
// surface as a hard failure to the caller.
const (
	maxRetries   = 5
	retryBackoff = 300 * time.Millisecond
)

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	return c.doWithRetry(ctx, http.MethodPost, path, body, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) deleteJSON(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		// 4xx responses are the caller's fault (bad input, conflict, not
		// found); retrying won't change the outcome.
		if httpErr, ok := err.(*statusError); ok && httpErr.status < 500 {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt+1)):
		}
	}
	return lastErr
}

type statusError struct {
	body   string
	status int
}

func (e *statusError) Error() string { return fmt.Sprintf("coordinator returned %d: %s", e.status, e.body) }

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.CoordinatorURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(principalHeader, c.Principal)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody bytes.Buffer
		_, _ = errBody.ReadFrom(resp.Body)
		return &statusError{status: resp.StatusCode, body: errBody.String()}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
