// Package missionapi is the HTTP client for the remote mission backend: the
// attempt ledger, the store and mission catalog, and account login.
package missionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config holds remote backend settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// CatalogConcurrency bounds the per-store mission fetches in FetchBoards.
	CatalogConcurrency int
	Logger             *slog.Logger
}

// Client talks to the remote backend. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new backend client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CatalogConcurrency <= 0 {
		cfg.CatalogConcurrency = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// APIError is a failed backend call. Message is safe to show to the user: it is
// the server's message when the error body carried one, otherwise a fixed
// per-endpoint fallback. Status is 0 when the request never got a response.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type request struct {
	method string
	path   string
	token  string
	body   any
	// fallback is reported when the error body carries no message.
	fallback string
	// unauthorized replaces fallback for 401 responses when set.
	unauthorized string
}

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.cfg.BaseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: r.fallback, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fallback := r.fallback
		if resp.StatusCode == http.StatusUnauthorized && r.unauthorized != "" {
			fallback = r.unauthorized
		}
		return &APIError{
			Status:  resp.StatusCode,
			Message: parseErrorMessage(resp.Body, fallback),
			Err:     fmt.Errorf("%s %s: status %d", r.method, r.path, resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{
			Status:  resp.StatusCode,
			Message: r.fallback,
			Err:     fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// parseErrorMessage returns message, then error, from a JSON error body.
func parseErrorMessage(r io.Reader, fallback string) string {
	var eb errorBody
	if err := json.NewDecoder(io.LimitReader(r, maxErrorBody)).Decode(&eb); err != nil {
		return fallback
	}
	if eb.Message != "" {
		return eb.Message
	}
	if eb.Error != "" {
		return eb.Error
	}
	return fallback
}
