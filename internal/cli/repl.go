// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - interactive chat REPL for the promptpilot CLI.
//
// Interactive commands (during chat):
//   /help, /h           Show available commands
//   /new, /n            Start a new conversation
//   /list, /l           List saved conversations
//   /load N             Load conversation N from the list
//   /delete             Delete the current conversation
//   /model [name]       Show or switch model
//   /agent [name]       Show or switch agent persona
//   /search on|off      Toggle backend web search
//   /export [md|json]   Export the current conversation to a file
//   /history            Show the current conversation
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current response
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/promptpilot/internal/backend"
	"github.com/jeranaias/promptpilot/internal/config"
	"github.com/jeranaias/promptpilot/internal/conversation"
	"github.com/jeranaias/promptpilot/internal/export"
	"github.com/jeranaias/promptpilot/internal/model"
	"github.com/jeranaias/promptpilot/internal/store"
)

// =============================================================================
// CHAT REPL
// =============================================================================

// Chat holds the state for an interactive chat session.
type Chat struct {
	store     store.Store
	transport conversation.Transport
	input     *Input

	// mu guards cfg and session against config hot reloads; command
	// handling itself is single-goroutine.
	mu      sync.Mutex
	cfg     *config.Config
	session *conversation.Session

	// listing maps the /list ordinals to conversation IDs for /load.
	listing []model.Conversation
}

// NewChat builds the REPL state around a configured session.
func NewChat(cfg *config.Config, st store.Store, transport conversation.Transport) *Chat {
	return &Chat{
		cfg:       cfg,
		store:     st,
		session:   newSession(cfg, st, transport),
		transport: transport,
	}
}

// newSession builds a session from the config's session settings.
func newSession(cfg *config.Config, st store.Store, transport conversation.Transport) *conversation.Session {
	return conversation.NewSession(cfg.ResolvedUserID(), transport, st).
		WithModel(cfg.DefaultModel).
		WithAgent(model.AgentType(cfg.DefaultAgent)).
		WithWebSearch(cfg.WebSearch)
}

// current returns the active config and session.
func (c *Chat) current() (*config.Config, *conversation.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg, c.session
}

// ApplyConfig applies a hot-reloaded configuration. Model, agent and web
// search take effect on the live session; transport and storage settings
// apply on restart.
func (c *Chat) ApplyConfig(next *config.Config) {
	c.mu.Lock()
	c.cfg = next
	session := c.session
	c.mu.Unlock()

	session.WithModel(next.DefaultModel).
		WithAgent(model.AgentType(next.DefaultAgent)).
		WithWebSearch(next.WebSearch)
}

// Run starts the interactive loop and blocks until the user exits.
func (c *Chat) Run() error {
	c.input = NewInput()
	defer c.input.Close()

	c.printWelcome()

	// First Ctrl+C cancels the in-flight response; at the prompt it is
	// surfaced by liner as ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			_, session := c.current()
			session.Stop()
		}
	}()

	for {
		input, err := c.input.Read("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println()
				continue
			}
			// EOF (Ctrl+D) - exit gracefully
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := c.handleCommand(input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		c.send(input)
	}
}

// send runs one prompt through the session, streaming the answer to
// stdout as it arrives. Updates carry the cumulative text, so only the
// unprinted suffix goes out; a replacement (full reply, failure text)
// starts a new line.
func (c *Chat) send(prompt string) {
	_, session := c.current()
	printed := ""
	session.WithOnUpdate(func(msgs []model.Message) {
		if len(msgs) == 0 {
			return
		}
		answer := msgs[len(msgs)-1].Answer
		if answer == model.ThinkingPlaceholder || answer == printed {
			return
		}
		if strings.HasPrefix(answer, printed) {
			fmt.Print(answer[len(printed):])
		} else {
			if printed != "" {
				fmt.Println()
			}
			fmt.Print(answer)
		}
		printed = answer
	})
	defer session.WithOnUpdate(nil)

	// Terminal failures resolve the message to user-facing text, which
	// the observer above renders. An upload failure aborts before any
	// message exists, so it needs printing here.
	if _, err := session.Send(context.Background(), prompt, nil); err != nil && printed == "" {
		fmt.Println(backend.UserMessage(err))
		return
	}
	fmt.Println()
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand dispatches a slash command. Returns true when the REPL
// should exit.
func (c *Chat) handleCommand(input string) (bool, error) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/help", "/h":
		c.printHelp()
	case "/quit", "/q", "/exit":
		return true, nil
	case "/new", "/n":
		return false, c.newConversation()
	case "/list", "/l":
		return false, c.listConversations()
	case "/load":
		return false, c.loadConversation(args)
	case "/delete":
		return false, c.deleteConversation()
	case "/model":
		c.modelCommand(args)
	case "/agent":
		return false, c.agentCommand(args)
	case "/search":
		return false, c.searchCommand(args)
	case "/export":
		return false, c.exportConversation(args)
	case "/history":
		c.printHistory()
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

// newConversation detaches from the current conversation; the next send
// starts a fresh one.
func (c *Chat) newConversation() error {
	c.mu.Lock()
	c.session = newSession(c.cfg, c.store, c.transport)
	c.mu.Unlock()
	fmt.Println("Started a new conversation.")
	return nil
}

// listConversations prints saved conversations, newest first.
func (c *Chat) listConversations() error {
	convs, err := c.store.Conversations(context.Background())
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println("No saved conversations.")
		return nil
	}
	c.listing = convs
	for i, conv := range convs {
		fmt.Printf("%3d. %s  (%s)\n", i+1, conv.Preview(60), conv.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// loadConversation switches to a conversation by its /list ordinal.
func (c *Chat) loadConversation(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: /load N (run /list first)")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(c.listing) {
		return errors.New("no such conversation; run /list and pick a number")
	}
	conv := c.listing[n-1]

	if err := c.newConversation(); err != nil {
		return err
	}
	_, session := c.current()
	if err := session.Load(context.Background(), conv); err != nil {
		return err
	}
	fmt.Printf("Loaded %q with %d messages.\n", conv.Preview(40), len(session.Messages()))
	return nil
}

// deleteConversation removes the active conversation.
func (c *Chat) deleteConversation() error {
	_, session := c.current()
	if session.Conversation() == nil {
		return errors.New("no active conversation")
	}
	if err := session.DeleteConversation(context.Background()); err != nil {
		return err
	}
	fmt.Println("Conversation deleted.")
	return nil
}

// modelCommand shows or switches the model.
func (c *Chat) modelCommand(args []string) {
	cfg, session := c.current()
	if len(args) == 0 {
		fmt.Printf("Current model: %s\n", model.ResolveModel(cfg.DefaultModel))
		fmt.Println("Available aliases:")
		for alias, id := range model.Models {
			fmt.Printf("  %-10s %s\n", alias, id)
		}
		return
	}
	cfg.DefaultModel = args[0]
	session.WithModel(args[0])
	fmt.Printf("Switched to model %s\n", model.ResolveModel(args[0]))
}

// agentCommand shows or switches the agent persona.
func (c *Chat) agentCommand(args []string) error {
	cfg, session := c.current()
	if len(args) == 0 {
		fmt.Printf("Current agent: %s\n", model.AgentType(cfg.DefaultAgent).DisplayName())
		fmt.Println("Available agents:")
		for _, agent := range model.AgentTypes() {
			fmt.Printf("  %-10s %s\n", strings.ToLower(agent.String()), agent.DisplayName())
		}
		return nil
	}
	agent := model.AgentType(strings.ToUpper(args[0]))
	if !agent.IsValid() {
		return fmt.Errorf("unknown agent %q", args[0])
	}
	cfg.DefaultAgent = agent.String()
	session.WithAgent(agent)
	fmt.Printf("Switched to agent %s\n", agent.DisplayName())
	return nil
}

// searchCommand toggles backend web search.
func (c *Chat) searchCommand(args []string) error {
	cfg, session := c.current()
	if len(args) != 1 {
		return errors.New("usage: /search on|off")
	}
	switch strings.ToLower(args[0]) {
	case "on":
		cfg.WebSearch = true
	case "off":
		cfg.WebSearch = false
	default:
		return errors.New("usage: /search on|off")
	}
	session.WithWebSearch(cfg.WebSearch)
	fmt.Printf("Web search %s\n", args[0])
	return nil
}

// exportConversation writes the current conversation to a file in the
// working directory.
func (c *Chat) exportConversation(args []string) error {
	_, session := c.current()
	conv := session.Conversation()
	if conv == nil {
		return errors.New("no active conversation to export")
	}

	format := ""
	if len(args) > 0 {
		format = args[0]
	}
	opts := export.DefaultOptions()
	exporter, err := export.ByFormat(format, opts)
	if err != nil {
		return err
	}

	path, err := export.ToFile(*conv, session.Messages(), exporter, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Exported to %s\n", path)
	return nil
}

// printHistory shows the current conversation transcript.
func (c *Chat) printHistory() {
	_, session := c.current()
	msgs := session.Messages()
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	for _, msg := range msgs {
		fmt.Printf("you> %s\n", msg.Question)
		fmt.Printf("%s\n\n", msg.Answer)
	}
}

// printWelcome shows the startup banner.
func (c *Chat) printWelcome() {
	cfg, _ := c.current()
	fmt.Println("promptpilot - AI chat")
	fmt.Printf("Model: %s | Agent: %s\n",
		model.ResolveModel(cfg.DefaultModel),
		model.AgentType(cfg.DefaultAgent).DisplayName())
	fmt.Println("Type /help for commands, Ctrl+D to exit.")
	fmt.Println()
}

// printHelp lists the interactive commands.
func (c *Chat) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /new, /n            Start a new conversation")
	fmt.Println("  /list, /l           List saved conversations")
	fmt.Println("  /load N             Load conversation N from the list")
	fmt.Println("  /delete             Delete the current conversation")
	fmt.Println("  /model [name]       Show or switch model")
	fmt.Println("  /agent [name]       Show or switch agent persona")
	fmt.Println("  /search on|off      Toggle backend web search")
	fmt.Println("  /export [md|json]   Export the current conversation to a file")
	fmt.Println("  /history            Show the current conversation")
	fmt.Println("  /quit, /q           Exit chat")
	fmt.Println("  Ctrl+C              Cancel current response")
}
