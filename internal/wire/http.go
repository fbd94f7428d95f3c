package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// httpClient is shared across every REST call made through this package's
// helpers, mirroring torua's package-level cluster.httpClient: a single
// client enables connection reuse across many small requests. The client
// core (internal/client) keeps its own.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// principalHeader mirrors internal/coordinator's httpapi.go and
// internal/client's client_http.go; admin tooling that doesn't go through
// the client core (cmd/griddfs's status and abort-upload commands) still
// needs to set it.
const principalHeader = "X-Griddfs-Principal"

// PostJSON sends a JSON-encoded POST request as principal and decodes the
// JSON response into out (ignored if nil).
func PostJSON(ctx context.Context, url, principal string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(principalHeader, principal)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return httpStatusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON sends a GET request as principal and decodes the JSON response
// into out.
func GetJSON(ctx context.Context, url, principal string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set(principalHeader, principal)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return httpStatusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DeleteJSON sends a DELETE request as principal and decodes the JSON
// response into out (ignored if nil).
func DeleteJSON(ctx context.Context, url, principal string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set(principalHeader, principal)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return httpStatusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HTTPError carries the status code and body GridDFS's REST surface
// returned, so callers can map it back to a griddfserr kind.
type HTTPError struct {
	Body   string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

func httpStatusError(resp *http.Response) error {
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	return &HTTPError{Status: resp.StatusCode, Body: body.String()}
}
