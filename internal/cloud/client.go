// Package cloud provides thin HTTP clients for the services a test run
// talks to. Every client is bound to a resolved base URL and issues
// requests with relative paths only, so callers never re-derive
// endpoints after resolution.
package cloud

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

// APIError is a non-success response from a cloud API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// ServiceClient issues authenticated JSON requests against one resolved
// service endpoint.
type ServiceClient struct {
	base       string
	token      string
	httpClient *http.Client
}

// NewServiceClient binds a client to a resolved base URL and auth token.
func NewServiceClient(base, token string) *ServiceClient {
	return &ServiceClient{
		base:       strings.TrimRight(base, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Base returns the resolved base URL this client is bound to.
func (c *ServiceClient) Base() string {
	return c.base
}

// do issues one request. path is relative to the bound base URL. in is
// marshalled as the JSON body when non-nil; the response body is
// unmarshalled into out when non-nil. Any status outside success
// becomes an *APIError carrying the response body.
func (c *ServiceClient) do(ctx context.Context, method, path string, in, out interface{}, success ...int) error {
	url := c.base
	if path != "" {
		url += "/" + strings.TrimLeft(path, "/")
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	ok := false
	for _, code := range success {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		return &APIError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", url, err)
		}
	}
	return nil
}

// poll calls check every interval until it reports done, the deadline
// passes, or ctx is cancelled.
func poll(ctx context.Context, timeout, interval time.Duration, check func() (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out after %s: %w", timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
