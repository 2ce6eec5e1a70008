// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestUserMessageHTTPStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{401, "Authentication error. Please check your API configuration."},
		{403, "Forbidden. Please check your permissions."},
		{404, "Endpoint not found. Please check your server URL."},
		{405, "Method not allowed. Server may not support POST method."},
		{500, "Server error. Please try again."},
		{503, "Service temporarily unavailable. Please try again later."},
		{418, "Connection error (418). Please try again."},
	}

	for _, tt := range tests {
		err := &HTTPError{Status: tt.status}
		if got := UserMessage(err); got != tt.want {
			t.Errorf("Status %d: expected %q, got %q", tt.status, tt.want, got)
		}
	}
}

func TestUserMessageTimeouts(t *testing.T) {
	want := "Request timed out. Please try with a shorter message or check your connection."
	if got := UserMessage(ErrTimedOut); got != want {
		t.Errorf("Expected timeout message, got %q", got)
	}
	if got := UserMessage(context.DeadlineExceeded); got != want {
		t.Errorf("Expected timeout message for deadline, got %q", got)
	}
	if got := UserMessage(fmt.Errorf("send: %w", ErrTimedOut)); got != want {
		t.Errorf("Expected timeout message for wrapped error, got %q", got)
	}
}

func TestUserMessageServerError(t *testing.T) {
	err := &ServerError{Message: "model overloaded"}
	got := UserMessage(err)
	if !strings.Contains(got, "model overloaded") {
		t.Errorf("Expected server message surfaced, got %q", got)
	}
}

func TestUserMessageEmptyAndCancelled(t *testing.T) {
	if got := UserMessage(ErrEmptyResponse); !strings.Contains(got, "No response") {
		t.Errorf("Expected empty-response message, got %q", got)
	}
	if got := UserMessage(ErrCancelled); !strings.Contains(got, "cancelled") {
		t.Errorf("Expected cancellation message, got %q", got)
	}
	if got := UserMessage(context.Canceled); !strings.Contains(got, "cancelled") {
		t.Errorf("Expected cancellation message for context.Canceled, got %q", got)
	}
}

func TestUserMessageNetworkError(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	if got := UserMessage(err); got != "Network error. Please check your connection." {
		t.Errorf("Expected network message, got %q", got)
	}
}

func TestUserMessageFallback(t *testing.T) {
	if got := UserMessage(errors.New("mystery")); got != "Connection error. Please try again." {
		t.Errorf("Expected generic fallback, got %q", got)
	}
}

func TestUploadErrorUnwrap(t *testing.T) {
	inner := &HTTPError{Status: 500}
	err := &UploadError{Err: inner}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatal("Expected UploadError to unwrap to HTTPError")
	}
}
