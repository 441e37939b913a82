package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Client is the shared HTTP client for the remote storefront API.
// Every request carries the shopper's bearer credential and a
// per-request timeout; failures come back classified (see errors.go).
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a client for the given API root
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do issues a request and decodes a 2xx JSON response into out.
// A missing bearer is rejected as unauthorized before the wire.
func (c *Client) do(ctx context.Context, method, path, bearer string, body, out interface{}) error {
	if bearer == "" {
		return &Error{Class: ClassUnauthorized, Message: "missing bearer credential"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Upstream request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return networkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, extractErrorMessage(raw))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
	}

	return nil
}

// extractErrorMessage pulls a human-readable reason out of a structured
// error body, falling back to the raw text
func extractErrorMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
