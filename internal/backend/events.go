// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the PromptPilot chat backend:
// the streaming transport, the response parser and the stream controller
// that folds parsed events into a final answer.
package backend

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind tags a StreamEvent variant.
type EventKind int

const (
	// EventChunk is an incremental fragment appended to the accumulator.
	EventChunk EventKind = iota

	// EventFullReply is a complete answer that replaces the accumulator.
	EventFullReply

	// EventDone is the explicit end-of-stream marker.
	EventDone

	// EventServerError is a logical failure the server signaled mid-stream.
	EventServerError

	// EventUnrecognized is a payload matching no known shape. It never
	// contributes to the accumulator; it is only logged.
	EventUnrecognized
)

// String returns a name for the event kind, for logs and test failures.
func (k EventKind) String() string {
	switch k {
	case EventChunk:
		return "chunk"
	case EventFullReply:
		return "reply"
	case EventDone:
		return "done"
	case EventServerError:
		return "error"
	case EventUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// StreamEvent is one parsed unit of a chat response stream.
//
// Text carries the fragment for EventChunk, the complete answer for
// EventFullReply, and the server's message for EventServerError. Raw holds
// the original payload for EventUnrecognized.
type StreamEvent struct {
	Kind EventKind
	Text string
	Raw  string
}

// chunkEvent builds an incremental fragment event.
func chunkEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventChunk, Text: text}
}

// fullReplyEvent builds a complete-answer event.
func fullReplyEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventFullReply, Text: text}
}

// doneEvent builds the end-of-stream marker.
func doneEvent() StreamEvent {
	return StreamEvent{Kind: EventDone}
}

// serverErrorEvent builds a mid-stream logical failure event.
func serverErrorEvent(message string) StreamEvent {
	return StreamEvent{Kind: EventServerError, Text: message}
}

// unrecognizedEvent builds an ignored-but-logged event.
func unrecognizedEvent(raw string) StreamEvent {
	return StreamEvent{Kind: EventUnrecognized, Raw: raw}
}
