// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client library for the traceview API.
//
// traceview serves a trace database to a timeline viewer. The viewer state
// is changed by dispatching actions; tracks, queries and the overview
// publish their data, which the client reads back.
//
// # Getting Started
//
// Create a client pointing to your traceview server:
//
//	c := client.New("http://localhost:10000")
//
//	// Open the trace and wait for track discovery
//	st, err := c.Viewer.Dispatch(ctx, true, client.Action("openTrace", map[string]any{"name": "boot.db"}))
//
//	// Run an ad-hoc query and read its result
//	_, err = c.Viewer.Dispatch(ctx, true, client.Action("executeQuery", map[string]any{
//	    "query_id": "q1", "engine_id": "0", "query": "select * from thread",
//	}))
//	res, err := c.Viewer.QueryResult(ctx, "q1")
//
// # Error Handling
//
// API errors are returned as *APIError values, which include an error code
// and message:
//
//	_, err := c.Viewer.TrackData(ctx, "42")
//	if apiErr, ok := err.(*client.APIError); ok {
//	    fmt.Printf("API error: %s - %s\n", apiErr.Code, apiErr.Message)
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a traceview API client.
//
// The Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Viewer dispatches actions and reads published data.
	Viewer *ViewerClient

	// Events provides access to the event history.
	Events *EventClient
}

// Option configures a [Client].
type Option func(*Client)

// New creates a new client with the given base URL and options.
//
// The baseURL should be the root URL of the server (e.g., "http://localhost:10000").
// Any trailing slash is automatically removed.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Viewer = &ViewerClient{c: c}
	c.Events = &EventClient{c: c}

	return c
}

// WithHTTPClient sets a custom HTTP client for making requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout for all requests.
//
// The default timeout is 30 seconds. Dispatching with settle waits for
// every query the actions start, so large traces may need more.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// BaseURL returns the base URL of the API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ServerVersion returns the version of the running server.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	data, err := c.get(ctx, "/api/v1/version")
	if err != nil {
		return "", err
	}
	var v struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("failed to parse version: %w", err)
	}
	return v.Version, nil
}

// apiResponse is the standard API response envelope.
type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// APIError represents an error response from the API.
//
// Common error codes include:
//   - "NOT_FOUND": no data was published for the track or query
//   - "BAD_REQUEST": an action or parameter could not be decoded
//   - "ACTION_FAILED": the actions could not be applied
//   - "UNAVAILABLE": the dispatched work did not settle in time
type APIError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details contains additional error information, if available.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// get performs a GET request to the given path.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// postJSON performs a POST request with a JSON body.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data))
}

// do performs an HTTP request and parses the response.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse reads and parses an API response.
func (c *Client) parseResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	}

	if apiResp.Error != nil {
		return nil, apiResp.Error
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return apiResp.Data, nil
}
