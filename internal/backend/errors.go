// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Error variables for common backend failures.
var (
	// ErrEmptyResponse indicates the stream completed without content.
	ErrEmptyResponse = errors.New("no response received from server")

	// ErrTimedOut indicates the overall or idle timeout fired.
	ErrTimedOut = errors.New("request timed out")

	// ErrCancelled indicates the caller stopped the operation.
	ErrCancelled = errors.New("request cancelled")
)

// HTTPError represents a non-success status from the backend.
type HTTPError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// UserMessage returns the caller-facing text for the status code.
func (e *HTTPError) UserMessage() string {
	switch e.Status {
	case 401:
		return "Authentication error. Please check your API configuration."
	case 403:
		return "Forbidden. Please check your permissions."
	case 404:
		return "Endpoint not found. Please check your server URL."
	case 405:
		return "Method not allowed. Server may not support POST method."
	case 500:
		return "Server error. Please try again."
	case 503:
		return "Service temporarily unavailable. Please try again later."
	default:
		return "Connection error (" + strconv.Itoa(e.Status) + "). Please try again."
	}
}

// ServerError represents an explicit error event from the server, emitted
// mid-stream as a logical failure rather than a transport problem.
type ServerError struct {
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// UploadError represents an attachment upload failure. It aborts the whole
// send before any chat request is issued.
type UploadError struct {
	Err error
}

// Error implements the error interface.
func (e *UploadError) Error() string {
	return "attachment upload failed: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *UploadError) Unwrap() error {
	return e.Err
}

// =============================================================================
// USER-FACING MESSAGES
// =============================================================================

// UserMessage renders any pipeline error into the text shown (and persisted)
// in place of the answer. Every failure path resolves to one of these; the
// placeholder must never be left standing.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.UserMessage()
	}

	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return "Server error: " + srvErr.Message
	}

	var upErr *UploadError
	if errors.As(err, &upErr) {
		return "Failed to upload attached files. Please try again."
	}

	switch {
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return "Request timed out. Please try with a shorter message or check your connection."
	case errors.Is(err, ErrEmptyResponse):
		return "No response received from server. Please try again."
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "Request cancelled."
	case isNetworkError(err):
		return "Network error. Please check your connection."
	default:
		return "Connection error. Please try again."
	}
}

// isNetworkError reports whether the error came from the network layer
// (connectivity, DNS) rather than the protocol.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
