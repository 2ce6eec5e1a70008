// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/promptpilot/internal/model"
)

// Configuration constants for the backend client.
const (
	// DefaultBaseURL is the production backend.
	DefaultBaseURL = "https://promptpilot-backend-o5fj.onrender.com"

	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultReadTimeout bounds whole-body (non-streaming) requests.
	DefaultReadTimeout = 180 * time.Second

	// DefaultUploadTimeout bounds attachment uploads.
	DefaultUploadTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// userAgent identifies the client to the backend.
	userAgent = "promptpilot/1.0"
)

// =============================================================================
// CHAT REQUEST
// =============================================================================

// ChatRequest is the request body for the /chat endpoint. It is constructed
// once per send and never mutated.
type ChatRequest struct {
	UID       string   `json:"uid"`
	Prompt    string   `json:"prompt"`
	Model     string   `json:"model"`
	ChatID    *string  `json:"chat_id"`
	Title     string   `json:"title"`
	ImageURLs []string `json:"image_urls"`
	WebSearch bool     `json:"web_search"`
	AgentType *string  `json:"agent_type"`
	Stream    bool     `json:"stream"`
}

// replyResponse is the body of a non-streaming /chat response.
type replyResponse struct {
	Reply string `json:"reply"`
}

// uploadRequest is the body of an /upload call.
type uploadRequest struct {
	ChatID string             `json:"chat_id"`
	Files  []model.Attachment `json:"files"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the PromptPilot chat backend. It owns two HTTP clients:
// a bounded one for whole-body requests and an unbounded one for streaming,
// where the lifetime is governed by the request context instead.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	streamClient  *http.Client
	uploadTimeout time.Duration
	limiter       *rate.Limiter
}

// NewClient creates a client for the given base URL. An empty URL selects
// the production backend.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return newClient(baseURL, DefaultConnectTimeout, DefaultReadTimeout)
}

// newClient builds the paired HTTP clients with connection pooling.
func newClient(baseURL string, connectTimeout, readTimeout time.Duration) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   readTimeout,
		},
		streamClient: &http.Client{
			Transport: transport,
			// No timeout for streaming - controlled via context.
		},
		uploadTimeout: DefaultUploadTimeout,
	}
}

// WithTimeouts sets the connect and whole-body read timeouts.
func (c *Client) WithTimeouts(connect, read time.Duration) *Client {
	rebuilt := newClient(c.baseURL, connect, read)
	c.httpClient = rebuilt.httpClient
	c.streamClient = rebuilt.streamClient
	return c
}

// WithUploadTimeout sets the attachment upload budget.
func (c *Client) WithUploadTimeout(d time.Duration) *Client {
	c.uploadTimeout = d
	return c
}

// WithRateLimit caps outgoing chat requests per minute. Zero disables the
// limiter.
func (c *Client) WithRateLimit(perMinute int) *Client {
	if perMinute <= 0 {
		c.limiter = nil
		return c
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return c
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// setHeaders sets the headers expected by the backend.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", userAgent)
}

// logRequest logs an API request without exposing the body.
func (c *Client) logRequest(req *http.Request) {
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
}

// logResponse logs status and duration, never the body.
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("API Response: %d (%v)", resp.StatusCode, duration)
}

// wait applies the client-side rate limit, honoring cancellation.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// newChatRequest builds the HTTP request for a chat call.
func (c *Client) newChatRequest(ctx context.Context, req ChatRequest) (*http.Request, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)
	return httpReq, nil
}

// readBody reads a response body with a size cap.
func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// statusError drains the body and builds the HTTPError for a non-success
// response.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// =============================================================================
// STREAMING
// =============================================================================

// OpenStream issues a streaming chat request and hands back the raw body.
// The caller owns the body and must close it; closing it (or cancelling the
// context) stops delivery and releases the connection.
func (c *Client) OpenStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req.Stream = true
	httpReq, err := c.newChatRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	c.logRequest(httpReq)
	start := time.Now()
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.logResponse(resp, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		err := statusError(resp)
		resp.Body.Close()
		return nil, err
	}

	return resp.Body, nil
}

// =============================================================================
// NON-STREAMING
// =============================================================================

// Reply performs a non-streaming chat request and returns the complete
// answer.
func (c *Client) Reply(ctx context.Context, req ChatRequest) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	req.Stream = false
	httpReq, err := c.newChatRequest(ctx, req)
	if err != nil {
		return "", err
	}

	c.logRequest(httpReq)
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	body, err := readBody(resp)
	if err != nil {
		return "", err
	}

	var reply replyResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if reply.Reply == "" {
		return "", ErrEmptyResponse
	}
	return reply.Reply, nil
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// UploadDocuments registers document attachments with the backend before a
// chat request references them. It runs under its own timeout; any failure
// is returned as an UploadError so the caller can abort the send cleanly.
func (c *Client) UploadDocuments(ctx context.Context, conversationID string, attachments []model.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	bodyBytes, err := json.Marshal(uploadRequest{ChatID: conversationID, Files: attachments})
	if err != nil {
		return &UploadError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(bodyBytes))
	if err != nil {
		return &UploadError{Err: err}
	}
	c.setHeaders(httpReq)

	c.logRequest(httpReq)
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &UploadError{Err: err}
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return &UploadError{Err: statusError(resp)}
	}
	return nil
}

// DeleteConversationFiles asks the backend to drop files stored for a
// conversation. Best effort: callers log failures and proceed with local
// deletion.
func (c *Client) DeleteConversationFiles(ctx context.Context, conversationID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/files/"+conversationID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	c.logRequest(httpReq)
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(start))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	return nil
}
