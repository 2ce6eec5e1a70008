// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation orchestrates a chat conversation: it owns the
// observable message list, drives sends through the backend, and keeps the
// local store in sync with what the user sees.
package conversation

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/promptpilot/internal/backend"
	"github.com/jeranaias/promptpilot/internal/model"
	"github.com/jeranaias/promptpilot/internal/store"
)

// ErrBusy is returned when a send is attempted while one is in flight.
var ErrBusy = errors.New("a send is already in progress")

// =============================================================================
// TRANSPORT
// =============================================================================

// Transport is the backend surface a session needs. Satisfied by
// ClientTransport in production and stubbed in tests.
type Transport interface {
	// Send runs one chat request to a terminal outcome, reporting
	// cumulative progress along the way.
	Send(ctx context.Context, req backend.ChatRequest, onProgress backend.ProgressFunc) backend.Outcome

	// UploadDocuments registers document attachments before a send.
	UploadDocuments(ctx context.Context, conversationID string, attachments []model.Attachment) error

	// DeleteConversationFiles drops server-side files for a conversation.
	DeleteConversationFiles(ctx context.Context, conversationID string) error
}

// ClientTransport adapts a backend client into a Transport, running each
// send through a fresh stream controller.
type ClientTransport struct {
	Client         *backend.Client
	IdleTimeout    time.Duration
	OverallTimeout time.Duration
}

// NewClientTransport wraps a client with default controller timeouts.
func NewClientTransport(client *backend.Client) *ClientTransport {
	return &ClientTransport{
		Client:         client,
		IdleTimeout:    backend.DefaultIdleTimeout,
		OverallTimeout: backend.DefaultOverallTimeout,
	}
}

// Send runs one chat request through a single-use controller.
func (t *ClientTransport) Send(ctx context.Context, req backend.ChatRequest, onProgress backend.ProgressFunc) backend.Outcome {
	return backend.NewController(t.Client).
		WithIdleTimeout(t.IdleTimeout).
		WithOverallTimeout(t.OverallTimeout).
		Run(ctx, req, onProgress)
}

// UploadDocuments forwards to the client.
func (t *ClientTransport) UploadDocuments(ctx context.Context, conversationID string, attachments []model.Attachment) error {
	return t.Client.UploadDocuments(ctx, conversationID, attachments)
}

// DeleteConversationFiles forwards to the client.
func (t *ClientTransport) DeleteConversationFiles(ctx context.Context, conversationID string) error {
	return t.Client.DeleteConversationFiles(ctx, conversationID)
}

// =============================================================================
// SESSION
// =============================================================================

// UpdateFunc observes the message list after every change. The slice is a
// snapshot; the session never mutates it afterwards.
type UpdateFunc func(messages []model.Message)

// Session owns one conversation. The message list it exposes is the source
// of truth for rendering: every message in it either carries the thinking
// placeholder (exactly one, during a send) or terminal text.
//
// Send is blocking and serialized; a second Send while one is in flight
// fails with ErrBusy. Stop cancels the in-flight send from any goroutine.
type Session struct {
	uid       string
	transport Transport
	store     store.Store

	mu        sync.Mutex
	conv      *model.Conversation
	messages  []model.Message
	modelID   string
	agent     model.AgentType
	webSearch bool
	streaming bool
	cancel    context.CancelFunc
	onUpdate  UpdateFunc
}

// NewSession creates a session for the given user with no conversation
// selected; the first send creates one.
func NewSession(uid string, transport Transport, st store.Store) *Session {
	return &Session{
		uid:       uid,
		transport: transport,
		store:     st,
		modelID:   model.DefaultModel,
		agent:     model.AgentGeneral,
	}
}

// WithModel selects the model for subsequent sends.
func (s *Session) WithModel(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelID = model.ResolveModel(id)
	return s
}

// WithAgent selects the agent persona for subsequent sends.
func (s *Session) WithAgent(agent model.AgentType) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent.IsValid() {
		s.agent = agent
	}
	return s
}

// WithWebSearch toggles backend web search for subsequent sends.
func (s *Session) WithWebSearch(enabled bool) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webSearch = enabled
	return s
}

// WithOnUpdate registers the observer invoked after every message change.
func (s *Session) WithOnUpdate(fn UpdateFunc) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
	return s
}

// Conversation returns the active conversation, or nil before the first
// send or load.
func (s *Session) Conversation() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return nil
	}
	conv := *s.conv
	return &conv
}

// Messages returns a snapshot of the observable message list.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages...)
}

// Streaming reports whether a send is in flight.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Load selects an existing conversation and merges its stored messages
// into the session.
func (s *Session) Load(ctx context.Context, conv model.Conversation) error {
	msgs, err := s.store.MessagesByConversation(ctx, conv.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conv = &conv
	s.messages = model.MergeMessages(s.messages, msgs)
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// Stop cancels the in-flight send, if any. The pending message resolves to
// cancellation text; Stop with nothing in flight is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// notifyLocked invokes the observer with a snapshot. Caller holds mu.
func (s *Session) notifyLocked() {
	if s.onUpdate == nil {
		return
	}
	s.onUpdate(append([]model.Message(nil), s.messages...))
}

// =============================================================================
// SENDING
// =============================================================================

// Send submits a prompt and blocks until the response is terminal. The
// returned message carries the final answer text: the streamed reply on
// success, user-facing failure text otherwise (the error is also returned).
//
// Document attachments upload first; an upload failure aborts the send
// before any message or conversation is created or persisted. Past that
// point the placeholder never survives: every terminal path resolves it.
func (s *Session) Send(ctx context.Context, prompt string, attachments []model.Attachment) (model.Message, error) {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return model.Message{}, ErrBusy
	}
	s.streaming = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// The conversation ID is generated client-side, so uploads can target
	// it before the record exists in the store.
	newConv := s.conv == nil
	var conv model.Conversation
	if newConv {
		conv = model.NewConversation(prompt)
	} else {
		conv = *s.conv
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.streaming = false
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	if docs := documents(attachments); len(docs) > 0 {
		if err := s.transport.UploadDocuments(ctx, conv.ID, docs); err != nil {
			return model.Message{}, err
		}
	}

	s.mu.Lock()
	if newConv {
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			s.mu.Unlock()
			return model.Message{}, err
		}
		s.conv = &conv
	}

	msg := model.NewMessage(conv.ID, prompt)
	msg.Attachments = attachments
	msg.Model = s.modelID
	s.messages = model.MergeMessages(s.messages, []model.Message{msg})
	s.notifyLocked()
	req := backend.ChatRequest{
		UID:       s.uid,
		Prompt:    prompt,
		Model:     s.modelID,
		ChatID:    &conv.ID,
		Title:     conv.Title,
		ImageURLs: imageURLs(attachments),
		WebSearch: s.webSearch,
		AgentType: agentPtr(s.agent),
	}
	s.mu.Unlock()

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return s.resolve(ctx, msg, "", err)
	}

	outcome := s.transport.Send(ctx, req, func(cumulative string) {
		s.mu.Lock()
		s.setAnswerLocked(msg.ID, cumulative)
		s.notifyLocked()
		s.mu.Unlock()
	})

	if outcome.Success() {
		return s.resolve(ctx, msg, outcome.Text, nil)
	}
	return s.resolve(ctx, msg, "", terminalError(outcome))
}

// resolve writes the terminal answer into the observable list and the
// store. Failures resolve to user-facing text so the placeholder never
// survives on screen. A cancelled send resolves the observable list only:
// the store keeps whatever was last persisted, with no further writes.
// Other terminal paths persist with a fresh context so a dying request
// context cannot lose the write.
func (s *Session) resolve(ctx context.Context, msg model.Message, text string, cause error) (model.Message, error) {
	if cause != nil {
		text = backend.UserMessage(cause)
	}
	final := msg.WithAnswer(text)

	s.mu.Lock()
	s.setAnswerLocked(msg.ID, text)
	s.notifyLocked()
	s.mu.Unlock()

	if errors.Is(cause, backend.ErrCancelled) || errors.Is(cause, context.Canceled) {
		return final, cause
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.UpdateMessage(persistCtx, final); err != nil {
		log.Printf("Failed to persist message %s: %v", final.ID, err)
	}
	return final, cause
}

// setAnswerLocked replaces the answer of the message with the given ID.
// Caller holds mu.
func (s *Session) setAnswerLocked(id, answer string) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Answer = answer
			return
		}
	}
}

// terminalError maps a non-success outcome to its error.
func terminalError(outcome backend.Outcome) error {
	if outcome.Err != nil {
		return outcome.Err
	}
	// Timed out and cancelled outcomes always carry an error; this is a
	// guard for unexpected terminal states.
	return errors.New("send ended in state " + outcome.State.String())
}

// =============================================================================
// DELETION
// =============================================================================

// DeleteConversation removes the active conversation locally and asks the
// backend to drop its files. The remote call is best effort: a failure is
// logged and local deletion proceeds.
func (s *Session) DeleteConversation(ctx context.Context) error {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.conv == nil {
		s.mu.Unlock()
		return nil
	}
	conv := *s.conv
	s.mu.Unlock()

	if err := s.transport.DeleteConversationFiles(ctx, conv.ID); err != nil {
		log.Printf("Failed to delete remote files for conversation %s: %v", conv.ID, err)
	}

	if err := s.store.DeleteConversation(ctx, conv.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	s.mu.Lock()
	s.conv = nil
	s.messages = nil
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// =============================================================================
// ATTACHMENT HELPERS
// =============================================================================

// imageURLs extracts image attachment URLs for the chat request.
func imageURLs(attachments []model.Attachment) []string {
	var urls []string
	for _, att := range attachments {
		if att.Type == model.AttachmentImage {
			urls = append(urls, att.URL)
		}
	}
	return urls
}

// documents filters attachments that go through the upload endpoint.
func documents(attachments []model.Attachment) []model.Attachment {
	var docs []model.Attachment
	for _, att := range attachments {
		if att.IsDocument() {
			docs = append(docs, att)
		}
	}
	return docs
}

// agentPtr renders the agent for the wire; the general agent is the
// backend default and is omitted.
func agentPtr(agent model.AgentType) *string {
	if agent == model.AgentGeneral {
		return nil
	}
	str := agent.String()
	return &str
}
