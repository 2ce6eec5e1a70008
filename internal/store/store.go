// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists conversations and messages locally. The SQLite
// implementation is the production store; the in-memory implementation
// backs tests and ephemeral sessions.
package store

import (
	"context"
	"errors"

	"github.com/jeranaias/promptpilot/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotFound = errors.New("record not found")
	ErrClosed   = errors.New("store is closed")
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the persistence boundary for chat history.
//
// Messages are returned oldest first; conversations newest first. Updating
// a missing record returns ErrNotFound.
type Store interface {
	// CreateConversation inserts a new conversation record.
	CreateConversation(ctx context.Context, conv model.Conversation) error

	// Conversations lists all conversations, most recently created first.
	Conversations(ctx context.Context) ([]model.Conversation, error)

	// DeleteConversation removes a conversation and all its messages.
	DeleteConversation(ctx context.Context, conversationID string) error

	// CreateMessage inserts a message.
	CreateMessage(ctx context.Context, msg model.Message) error

	// UpdateMessage replaces a stored message by ID.
	UpdateMessage(ctx context.Context, msg model.Message) error

	// MessagesByConversation returns a conversation's messages in
	// timestamp order, oldest first.
	MessagesByConversation(ctx context.Context, conversationID string) ([]model.Message, error)

	// DeleteMessagesByConversation removes every message in a
	// conversation without touching the conversation record.
	DeleteMessagesByConversation(ctx context.Context, conversationID string) error

	// Close releases store resources.
	Close() error
}
