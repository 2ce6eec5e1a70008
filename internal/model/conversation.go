// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxTitleLen bounds conversation titles; longer first messages are cut.
const maxTitleLen = 100

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the record created on the first message of an exchange.
// Messages reference it by ID; deleting a conversation deletes all of its
// messages (individual messages are never deleted).
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// NewConversation creates a conversation titled after the opening message.
func NewConversation(title string) Conversation {
	return Conversation{
		ID:        uuid.NewString(),
		Title:     TruncateTitle(title),
		CreatedAt: time.Now(),
	}
}

// TruncateTitle trims and bounds a title to maxTitleLen runes.
func TruncateTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= maxTitleLen {
		return title
	}
	return string(runes[:maxTitleLen])
}

// Preview returns a truncated preview of the title for list display.
// Uses rune-based truncation to handle Unicode correctly.
func (c Conversation) Preview(maxLen int) string {
	runes := []rune(c.Title)
	if len(runes) <= maxLen {
		return c.Title
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
