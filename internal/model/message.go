// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ThinkingPlaceholder is the answer text a message carries between being
// sent and the first streamed chunk. Every terminal outcome must replace it.
const ThinkingPlaceholder = "Thinking..."

// =============================================================================
// ATTACHMENT TYPES
// =============================================================================

// AttachmentType identifies the kind of a chat attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "IMAGE"
	AttachmentPDF   AttachmentType = "PDF"
)

// Attachment is a file the user attached to a message. The bytes live in
// external storage; only the resolved URL travels with the message.
type Attachment struct {
	Name string         `json:"name"`
	URL  string         `json:"url"`
	Type AttachmentType `json:"type"`
}

// IsDocument reports whether the attachment must be uploaded to the backend
// before the chat request is issued.
func (a Attachment) IsDocument() bool {
	return a.Type == AttachmentPDF
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one user turn and its (possibly still streaming) answer.
//
// The ID is generated client-side at send time and never changes. Timestamp
// is the creation instant and is the ordering key; it never changes either.
// Answer is the only field mutated after creation: it moves from
// ThinkingPlaceholder through growing partial text to the final answer or a
// user-facing failure description.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Question       string       `json:"question"`
	Answer         string       `json:"answer"`
	Timestamp      time.Time    `json:"timestamp"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Model          string       `json:"model,omitempty"`
}

// NewMessage creates a message for a user turn with a fresh ID, the current
// timestamp and the placeholder answer.
func NewMessage(conversationID, question string) Message {
	return Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Question:       question,
		Answer:         ThinkingPlaceholder,
		Timestamp:      time.Now(),
	}
}

// WithAnswer returns a copy of the message carrying the given answer text.
func (m Message) WithAnswer(answer string) Message {
	m.Answer = answer
	return m
}

// IsPending reports whether the message still shows the placeholder.
func (m Message) IsPending() bool {
	return m.Answer == ThinkingPlaceholder
}

// =============================================================================
// MERGE LAW
// =============================================================================

// MergeMessages combines incoming messages with the existing list for a
// conversation. Duplicates (by ID) keep the incoming version, which is
// always fresher than what the list already holds (e.g. an updated answer
// instead of the placeholder). The result is sorted by timestamp ascending.
//
// Merging is the only sanctioned way to mutate a conversation's message
// list; it makes local optimistic writes and remote refreshes commute.
func MergeMessages(existing, incoming []Message) []Message {
	merged := make([]Message, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))

	// Incoming first so the dedup keeps the fresher version.
	for _, m := range incoming {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range existing {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})

	return merged
}
