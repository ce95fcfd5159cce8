// Package adminclient is the HTTP client docdbctl uses against the admin
// API surface, grounded on the teacher's apiclient package: a bearer-token
// http.Client wrapper with a shared do() that marshals requests, decodes
// responses, and maps non-2xx statuses into a typed error.
package adminclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// APIError represents an error response from the admin API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin API error (%d): %s", e.StatusCode, e.Message)
}

// Client is the docdbctl admin API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates a new admin API client.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithToken returns a copy of the client authenticating with token.
func (c *Client) WithToken(token string) *Client {
	return &Client{baseURL: c.baseURL, httpClient: c.httpClient, token: token}
}

func (c *Client) do(method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("adminclient: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("adminclient: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("adminclient: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("adminclient: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("adminclient: decode response: %w", err)
		}
	}
	return nil
}

// InProgress fetches the in-progress operation list, optionally filtered by
// namespace.
func (c *Client) InProgress(namespace string) (map[string]any, error) {
	path := "/api/v1/admin/inprog"
	if namespace != "" {
		path += "?ns=" + url.QueryEscape(namespace)
	}
	var result map[string]any
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// KillOp requests that the server interrupt opID.
func (c *Client) KillOp(opID int64) (map[string]any, error) {
	var result map[string]any
	if err := c.do(http.MethodPost, "/api/v1/admin/killop", map[string]any{"op": opID}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Unlock releases the fsync lock.
func (c *Client) Unlock() (map[string]any, error) {
	var result map[string]any
	if err := c.do(http.MethodPost, "/api/v1/admin/unlock", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}
