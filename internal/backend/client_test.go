// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jeranaias/promptpilot/internal/model"
)

func TestOpenStreamSetsStreamFlag(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat" {
			t.Errorf("Expected /chat path, got %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected application/json content type, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		fmt.Fprintln(w, `data: {"done":true}`)
	}))
	defer server.Close()

	body, err := NewClient(server.URL).OpenStream(context.Background(), ChatRequest{
		UID:    "u1",
		Prompt: "hi",
		Model:  "gemini-2.5-flash",
	})
	if err != nil {
		t.Fatalf("OpenStream error: %v", err)
	}
	defer body.Close()

	if !got.Stream {
		t.Error("Expected stream flag forced true on the wire")
	}
	if got.UID != "u1" || got.Prompt != "hi" {
		t.Errorf("Expected request fields preserved, got %+v", got)
	}
}

func TestOpenStreamStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).OpenStream(context.Background(), testRequest())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *HTTPError, got %T: %v", err, err)
	}
	if httpErr.Status != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", httpErr.Status)
	}
	if httpErr.Body != "nope" {
		t.Errorf("Expected body preserved, got %q", httpErr.Body)
	}
}

func TestReply(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		fmt.Fprint(w, `{"reply": "answer"}`)
	}))
	defer server.Close()

	reply, err := NewClient(server.URL).Reply(context.Background(), ChatRequest{UID: "u1", Prompt: "hi", Stream: true})
	if err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	if reply != "answer" {
		t.Errorf("Expected 'answer', got %q", reply)
	}
	if got.Stream {
		t.Error("Expected stream flag forced false for Reply")
	}
}

func TestReplyEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"reply": ""}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Reply(context.Background(), testRequest())
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Expected ErrEmptyResponse, got %v", err)
	}
}

func TestUploadDocuments(t *testing.T) {
	var got uploadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" {
			t.Errorf("Expected /upload path, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode upload body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	atts := []model.Attachment{{Name: "doc.pdf", URL: "https://files/doc.pdf", Type: model.AttachmentPDF}}
	if err := NewClient(server.URL).UploadDocuments(context.Background(), "conv-1", atts); err != nil {
		t.Fatalf("UploadDocuments error: %v", err)
	}
	if got.ChatID != "conv-1" || len(got.Files) != 1 || got.Files[0].Name != "doc.pdf" {
		t.Errorf("Expected upload payload preserved, got %+v", got)
	}
}

func TestUploadDocumentsNoAttachments(t *testing.T) {
	// No attachments means no request at all.
	client := NewClient("http://127.0.0.1:1")
	if err := client.UploadDocuments(context.Background(), "conv-1", nil); err != nil {
		t.Errorf("Expected nil error without attachments, got %v", err)
	}
}

func TestUploadDocumentsFailureWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage full", http.StatusInternalServerError)
	}))
	defer server.Close()

	atts := []model.Attachment{{Name: "doc.pdf", URL: "u", Type: model.AttachmentPDF}}
	err := NewClient(server.URL).UploadDocuments(context.Background(), "conv-1", atts)

	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("Expected *UploadError, got %T: %v", err, err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusInternalServerError {
		t.Errorf("Expected wrapped HTTP 500, got %v", err)
	}
}

func TestDeleteConversationFiles(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := NewClient(server.URL).DeleteConversationFiles(context.Background(), "conv-9"); err != nil {
		t.Fatalf("DeleteConversationFiles error: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/files/conv-9" {
		t.Errorf("Expected DELETE /files/conv-9, got %s %s", gotMethod, gotPath)
	}
}

func TestReadBodySizeCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"reply": "`)
		io.CopyN(w, neverEnding('a'), MaxResponseSize)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Reply(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected error for oversized response body")
	}
}

// neverEnding is an infinite reader of one byte, for oversize bodies.
type neverEnding byte

func (b neverEnding) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(b)
	}
	return len(p), nil
}
