// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"io"
	"strings"
	"testing"
	"time"
)

// collect drains the parser and fails the test on a non-EOF error.
func collect(t *testing.T, body string) []StreamEvent {
	t.Helper()
	events, err := NewResponseParser(strings.NewReader(body)).Events()
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	return events
}

func TestParserChunks(t *testing.T) {
	body := "data: {\"chunk\":\"Hel\"}\n" +
		"data: {\"chunk\":\"lo\"}\n" +
		"data: {\"done\":true}\n"

	events := collect(t, body)
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].Kind != EventChunk || events[0].Text != "Hel" {
		t.Errorf("Expected chunk 'Hel', got %v %q", events[0].Kind, events[0].Text)
	}
	if events[1].Kind != EventChunk || events[1].Text != "lo" {
		t.Errorf("Expected chunk 'lo', got %v %q", events[1].Kind, events[1].Text)
	}
	if events[2].Kind != EventDone {
		t.Errorf("Expected done event, got %v", events[2].Kind)
	}
}

func TestParserDoneMarker(t *testing.T) {
	events := collect(t, "data: {\"chunk\":\"hi\"}\ndata: [DONE]\n")
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[1].Kind != EventDone {
		t.Errorf("Expected [DONE] to parse as done, got %v", events[1].Kind)
	}
}

func TestParserEmptyDataPayload(t *testing.T) {
	events := collect(t, "data: \n")
	if len(events) != 1 || events[0].Kind != EventDone {
		t.Fatalf("Expected empty payload to parse as done, got %+v", events)
	}
}

func TestParserSingleJSONFastPath(t *testing.T) {
	events := collect(t, `{"reply": "complete answer"}`)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Kind != EventFullReply || events[0].Text != "complete answer" {
		t.Errorf("Expected full reply, got %v %q", events[0].Kind, events[0].Text)
	}
}

func TestParserStreamsBeforeSniffWindowFills(t *testing.T) {
	// A live stream that has delivered one short line but is still open
	// must yield that event immediately; the fast-path sniff may not wait
	// for more bytes.
	pr, pw := io.Pipe()
	defer pw.Close()

	go func() {
		pw.Write([]byte("data: {\"chunk\":\"a\"}\n"))
	}()

	parser := NewResponseParser(pr)
	type result struct {
		ev  StreamEvent
		err error
	}
	got := make(chan result, 1)
	go func() {
		ev, err := parser.Next()
		got <- result{ev, err}
	}()

	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("Next() error: %v", r.err)
		}
		if r.ev.Kind != EventChunk || r.ev.Text != "a" {
			t.Errorf("Expected chunk 'a', got %v %q", r.ev.Kind, r.ev.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next() blocked on an open stream shorter than the sniff window")
	}
}

func TestParserFastPathRequiresNoDataLines(t *testing.T) {
	// A body that starts with '{' but contains data: lines is a stream,
	// not a single JSON response.
	body := "{\"chunk\":\"ignored\"}\ndata: {\"chunk\":\"real\"}\ndata: [DONE]\n"
	events := collect(t, body)

	var texts []string
	for _, ev := range events {
		if ev.Kind == EventChunk {
			texts = append(texts, ev.Text)
		}
	}
	if len(texts) == 0 || texts[len(texts)-1] != "real" {
		t.Errorf("Expected stream parsing with chunk 'real', got %v", texts)
	}
}

func TestParserEventPriority(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    EventKind
		text    string
	}{
		{"chunk wins over done", `{"chunk":"x","done":true}`, EventChunk, "x"},
		{"chunk wins over error", `{"chunk":"x","error":"boom"}`, EventChunk, "x"},
		{"done wins over error", `{"done":true,"error":"boom"}`, EventDone, ""},
		{"error wins over reply", `{"error":"boom","reply":"r"}`, EventServerError, "boom"},
		{"empty chunk falls through", `{"chunk":"","done":true}`, EventDone, ""},
		{"reply alone", `{"reply":"r"}`, EventFullReply, "r"},
		{"nothing recognized", `{"other":1}`, EventUnrecognized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A data: preamble keeps the single-JSON fast path out of
			// the way.
			body := "data: {\"chunk\":\"pre\"}\ndata: " + tt.payload + "\n"
			events := collect(t, body)
			if len(events) != 2 {
				t.Fatalf("Expected 2 events, got %d: %+v", len(events), events)
			}
			ev := events[1]
			if ev.Kind != tt.kind {
				t.Errorf("Expected kind %v, got %v", tt.kind, ev.Kind)
			}
			if ev.Text != tt.text {
				t.Errorf("Expected text %q, got %q", tt.text, ev.Text)
			}
		})
	}
}

func TestParserPlainTextFallback(t *testing.T) {
	// Non-JSON data payloads and bare lines degrade to chunks with a
	// trailing newline instead of aborting the stream.
	events := collect(t, "data: plain words\nbare line\ndata: [DONE]\n")
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].Kind != EventChunk || events[0].Text != "plain words\n" {
		t.Errorf("Expected salvaged data payload, got %v %q", events[0].Kind, events[0].Text)
	}
	if events[1].Kind != EventChunk || events[1].Text != "bare line\n" {
		t.Errorf("Expected bare line fallback, got %v %q", events[1].Kind, events[1].Text)
	}
}

func TestParserMalformedJSONObjectSkipped(t *testing.T) {
	// A payload that looks like JSON but fails to decode yields an
	// unrecognized event, never an abort.
	events := collect(t, "data: {\"chunk\": broken\ndata: {\"chunk\":\"ok\"}\n")
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Kind != EventUnrecognized {
		t.Errorf("Expected unrecognized event, got %v", events[0].Kind)
	}
	if events[1].Kind != EventChunk || events[1].Text != "ok" {
		t.Errorf("Expected recovery on next line, got %v %q", events[1].Kind, events[1].Text)
	}
}

func TestParserUnterminatedFinalLine(t *testing.T) {
	events := collect(t, "data: {\"chunk\":\"tail\"}")
	if len(events) != 1 || events[0].Kind != EventChunk || events[0].Text != "tail" {
		t.Fatalf("Expected final unterminated line to parse, got %+v", events)
	}
}

func TestParserEmptyBody(t *testing.T) {
	events := collect(t, "")
	if len(events) != 0 {
		t.Fatalf("Expected no events for empty body, got %+v", events)
	}
}

func TestParserBlankLinesIgnored(t *testing.T) {
	events := collect(t, "\n\ndata: {\"chunk\":\"x\"}\n\n")
	if len(events) != 1 || events[0].Text != "x" {
		t.Fatalf("Expected blank lines to be skipped, got %+v", events)
	}
}
