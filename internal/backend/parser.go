// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// =============================================================================
// RESPONSE PARSER
// =============================================================================

// sniffWindow caps how many leading bytes are inspected to decide between
// the single-JSON fast path and line-delimited parsing. The sniff looks at
// whatever the first read delivered, up to this cap: it never waits for the
// window to fill, so a live stream that has sent only a few bytes is parsed
// immediately. A body whose trimmed prefix starts with '{' and shows no
// "data:" inside the sniffed head is treated as one JSON object. A "data:"
// occurring inside a JSON string value within the head still misroutes the
// body; that ambiguity is inherited from the wire format and is bounded
// here rather than fixed.
const sniffWindow = 512

// dataPrefix marks an event-stream line.
const dataPrefix = "data: "

// doneMarker terminates an event stream.
const doneMarker = "[DONE]"

// ResponseParser turns a raw chat response body into a sequence of
// StreamEvents, consumed lazily line by line. It holds no state beyond the
// current read position; restart by constructing a fresh parser.
type ResponseParser struct {
	reader  *bufio.Reader
	sniffed bool
	done    bool
}

// NewResponseParser creates a parser over a raw response body.
func NewResponseParser(r io.Reader) *ResponseParser {
	return &ResponseParser{
		reader: bufio.NewReader(r),
	}
}

// Next returns the next event from the stream. It returns io.EOF once the
// stream is exhausted or an explicit end-of-stream marker was emitted, and
// any transport read error otherwise. Malformed payloads never produce an
// error; they surface as tolerant-fallback chunks or unrecognized events.
func (p *ResponseParser) Next() (StreamEvent, error) {
	if p.done {
		return StreamEvent{}, io.EOF
	}

	if !p.sniffed {
		p.sniffed = true
		if ev, ok, err := p.sniffFullReply(); err != nil {
			return StreamEvent{}, err
		} else if ok {
			p.done = true
			return ev, nil
		}
	}

	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			p.done = true
			return StreamEvent{}, err
		}

		atEOF := err == io.EOF

		// Process the final unterminated line before reporting EOF.
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			if atEOF {
				p.done = true
				return StreamEvent{}, io.EOF
			}
			continue
		}

		ev, ok := p.parseLine(line)
		if ev.Kind == EventDone {
			p.done = true
		}
		if atEOF {
			p.done = true
		}
		if ok {
			return ev, nil
		}
		if atEOF {
			return StreamEvent{}, io.EOF
		}
	}
}

// Events drains the parser, returning every remaining event. The error is
// nil on normal exhaustion.
func (p *ResponseParser) Events() ([]StreamEvent, error) {
	var events []StreamEvent
	for {
		ev, err := p.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

// sniffFullReply checks for the single-JSON fast path: a body that is one
// JSON object with a "reply" field rather than an event stream. Returns the
// reply event and true when the fast path applies.
func (p *ResponseParser) sniffFullReply() (StreamEvent, bool, error) {
	// Peek(1) forces exactly one fill from the underlying reader. The
	// sniff then inspects only the bytes that fill delivered; blocking
	// for a full window would starve live streams shorter than it.
	if _, err := p.reader.Peek(1); err != nil {
		if err == io.EOF {
			return StreamEvent{}, false, nil
		}
		return StreamEvent{}, false, err
	}
	n := p.reader.Buffered()
	if n > sniffWindow {
		n = sniffWindow
	}
	head, _ := p.reader.Peek(n)

	trimmed := bytes.TrimSpace(head)
	if len(trimmed) == 0 || trimmed[0] != '{' || bytes.Contains(head, []byte("data:")) {
		return StreamEvent{}, false, nil
	}

	// Looks like one JSON object: consume the whole body and decode it.
	// On decode failure the consumed bytes are re-fed to the line parser.
	body, err := io.ReadAll(p.reader)
	if err != nil {
		return StreamEvent{}, false, err
	}

	var reply struct {
		Reply *string `json:"reply"`
	}
	if jsonErr := json.Unmarshal(body, &reply); jsonErr == nil && reply.Reply != nil {
		return fullReplyEvent(*reply.Reply), true, nil
	}

	p.reader = bufio.NewReader(bytes.NewReader(body))
	return StreamEvent{}, false, nil
}

// parseLine turns one non-empty line into at most one event. The boolean is
// false when the line contributes nothing (e.g. an empty chunk).
func (p *ResponseParser) parseLine(line string) (StreamEvent, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		// Tolerant fallback for servers that stream bare text lines.
		return chunkEvent(line + "\n"), true
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" || payload == doneMarker {
		return doneEvent(), true
	}

	var body struct {
		Chunk *string `json:"chunk"`
		Done  *bool   `json:"done"`
		Error *string `json:"error"`
		Reply *string `json:"reply"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		// A malformed line must not abort the stream. Non-JSON-looking
		// payloads are salvaged as plain text; the rest are dropped.
		if !strings.HasPrefix(payload, "{") {
			return chunkEvent(payload + "\n"), true
		}
		return unrecognizedEvent(payload), true
	}

	// Fixed priority when several keys co-occur: chunk wins, then done,
	// then error, then reply.
	switch {
	case body.Chunk != nil && *body.Chunk != "":
		return chunkEvent(*body.Chunk), true
	case body.Done != nil && *body.Done:
		return doneEvent(), true
	case body.Error != nil:
		return serverErrorEvent(*body.Error), true
	case body.Reply != nil:
		return fullReplyEvent(*body.Reply), true
	default:
		return unrecognizedEvent(payload), true
	}
}
