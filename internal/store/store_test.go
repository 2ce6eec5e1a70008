// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/promptpilot/internal/model"
)

// stores returns each Store implementation under a name, fresh per test.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "promptpilot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func testMessage(convID string, ts time.Time) model.Message {
	msg := model.NewMessage(convID, "question")
	msg.Timestamp = ts
	msg.Model = "gemini-2.5-flash"
	return msg
}

func TestConversationLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Truncate(time.Millisecond)

			older := model.Conversation{ID: "c1", Title: "first", CreatedAt: base}
			newer := model.Conversation{ID: "c2", Title: "second", CreatedAt: base.Add(time.Minute)}
			require.NoError(t, s.CreateConversation(ctx, older))
			require.NoError(t, s.CreateConversation(ctx, newer))

			convs, err := s.Conversations(ctx)
			require.NoError(t, err)
			require.Len(t, convs, 2)
			// Newest first.
			require.Equal(t, "c2", convs[0].ID)
			require.Equal(t, "c1", convs[1].ID)

			require.NoError(t, s.DeleteConversation(ctx, "c1"))
			convs, err = s.Conversations(ctx)
			require.NoError(t, err)
			require.Len(t, convs, 1)

			require.ErrorIs(t, s.DeleteConversation(ctx, "c1"), ErrNotFound)
		})
	}
}

func TestMessageOrdering(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateConversation(ctx, model.Conversation{
				ID: "c1", Title: "t", CreatedAt: time.Now(),
			}))

			base := time.Now().Truncate(time.Millisecond)
			late := testMessage("c1", base.Add(time.Second))
			early := testMessage("c1", base)
			require.NoError(t, s.CreateMessage(ctx, late))
			require.NoError(t, s.CreateMessage(ctx, early))

			msgs, err := s.MessagesByConversation(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			// Oldest first regardless of insertion order.
			require.Equal(t, early.ID, msgs[0].ID)
			require.Equal(t, late.ID, msgs[1].ID)
		})
	}
}

func TestUpdateMessage(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateConversation(ctx, model.Conversation{
				ID: "c1", Title: "t", CreatedAt: time.Now(),
			}))

			msg := testMessage("c1", time.Now().Truncate(time.Millisecond))
			require.NoError(t, s.CreateMessage(ctx, msg))

			updated := msg.WithAnswer("final answer")
			require.NoError(t, s.UpdateMessage(ctx, updated))

			msgs, err := s.MessagesByConversation(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			require.Equal(t, "final answer", msgs[0].Answer)

			missing := testMessage("c1", time.Now())
			require.ErrorIs(t, s.UpdateMessage(ctx, missing), ErrNotFound)
		})
	}
}

func TestAttachmentsRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateConversation(ctx, model.Conversation{
				ID: "c1", Title: "t", CreatedAt: time.Now(),
			}))

			atts := []model.Attachment{
				{Name: "photo.png", URL: "https://files/photo.png", Type: model.AttachmentImage},
				{Name: "notes.pdf", URL: "https://files/notes.pdf", Type: model.AttachmentPDF},
			}
			msg := model.NewMessage("c1", "see attached")
			msg.Attachments = atts
			msg.Timestamp = time.Now().Truncate(time.Millisecond)
			require.NoError(t, s.CreateMessage(ctx, msg))

			msgs, err := s.MessagesByConversation(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			require.Equal(t, atts, msgs[0].Attachments)
		})
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateConversation(ctx, model.Conversation{
				ID: "c1", Title: "t", CreatedAt: time.Now(),
			}))
			require.NoError(t, s.CreateMessage(ctx, testMessage("c1", time.Now())))

			require.NoError(t, s.DeleteConversation(ctx, "c1"))

			msgs, err := s.MessagesByConversation(ctx, "c1")
			require.NoError(t, err)
			require.Empty(t, msgs)
		})
	}
}

func TestDeleteMessagesKeepsConversation(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateConversation(ctx, model.Conversation{
				ID: "c1", Title: "t", CreatedAt: time.Now(),
			}))
			require.NoError(t, s.CreateMessage(ctx, testMessage("c1", time.Now())))

			require.NoError(t, s.DeleteMessagesByConversation(ctx, "c1"))

			msgs, err := s.MessagesByConversation(ctx, "c1")
			require.NoError(t, err)
			require.Empty(t, msgs)

			convs, err := s.Conversations(ctx)
			require.NoError(t, err)
			require.Len(t, convs, 1)
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "promptpilot.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateConversation(ctx, model.Conversation{
		ID: "c1", Title: "kept", CreatedAt: time.Now().Truncate(time.Millisecond),
	}))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	convs, err := reopened.Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "kept", convs[0].Title)
}
