// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// Default timing for a send operation.
const (
	// DefaultIdleTimeout is the maximum gap between stream events.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultOverallTimeout bounds the whole send, wall clock.
	DefaultOverallTimeout = 120 * time.Second
)

// =============================================================================
// CONTROLLER STATES
// =============================================================================

// State is a stream controller lifecycle state. Completed, TimedOut, Failed
// and Cancelled are terminal; there are no transitions out of them.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateTimedOut
	StateFailed
	StateCancelled
)

// String returns a name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateFailed || s == StateCancelled
}

// =============================================================================
// OUTCOME
// =============================================================================

// Outcome is the terminal result of one send. Text carries the final answer
// for StateCompleted and the partial accumulator for StateTimedOut. Err is
// set for StateFailed.
type Outcome struct {
	State State
	Text  string
	Err   error
}

// Success reports whether the stream completed with content.
func (o Outcome) Success() bool {
	return o.State == StateCompleted
}

// ProgressFunc receives the full cumulative text after every accepted
// event - never a raw delta - so renders are idempotent.
type ProgressFunc func(cumulative string)

// =============================================================================
// STREAM CONTROLLER
// =============================================================================

// Controller runs the chat stream state machine for a single send:
// Idle -> Requesting -> Streaming -> {Completed, TimedOut, Failed,
// Cancelled}. A controller is single-use; construct a fresh one per send.
//
// Progress callbacks are invoked from one goroutine, in event order.
type Controller struct {
	client         *Client
	idleTimeout    time.Duration
	overallTimeout time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// NewController creates a controller with default timeouts.
func NewController(client *Client) *Controller {
	return &Controller{
		client:         client,
		idleTimeout:    DefaultIdleTimeout,
		overallTimeout: DefaultOverallTimeout,
	}
}

// WithIdleTimeout sets the per-event idle window.
func (c *Controller) WithIdleTimeout(d time.Duration) *Controller {
	if d > 0 {
		c.idleTimeout = d
	}
	return c
}

// WithOverallTimeout sets the wall-clock budget for the whole send.
func (c *Controller) WithOverallTimeout(d time.Duration) *Controller {
	if d > 0 {
		c.overallTimeout = d
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stop cancels the send. The transport is released, no further progress
// callbacks fire, and Run returns a Cancelled outcome. Calling Stop after a
// terminal state is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	terminal := c.state.Terminal()
	c.mu.Unlock()

	if !terminal && cancel != nil {
		cancel()
	}
}

// setState records a transition unless a terminal state was already
// reached. Returns the state now in effect.
func (c *Controller) setState(s State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Terminal() {
		c.state = s
	}
	return c.state
}

// =============================================================================
// RUN LOOP
// =============================================================================

// parsedEvent pairs an event with the parser error that ended the stream.
type parsedEvent struct {
	ev  StreamEvent
	err error
}

// Run executes the send and blocks until a terminal outcome. onProgress may
// be nil. The context bounds the operation in addition to the controller's
// own timers; external cancellation yields a Cancelled outcome.
func (c *Controller) Run(ctx context.Context, req ChatRequest, onProgress ProgressFunc) Outcome {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return Outcome{State: StateFailed, Err: errors.New("controller already used")}
	}
	c.state = StateRequesting
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	body, err := c.client.OpenStream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return c.finish(StateCancelled, "", ErrCancelled)
		}
		return c.finish(StateFailed, "", err)
	}

	events := make(chan parsedEvent)
	go func() {
		defer close(events)
		defer body.Close()
		parser := NewResponseParser(body)
		for {
			ev, err := parser.Next()
			select {
			case events <- parsedEvent{ev: ev, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var acc strings.Builder

	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()
	overall := time.NewTimer(c.overallTimeout)
	defer overall.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.finish(StateCancelled, "", ErrCancelled)

		case <-idle.C:
			// No event within the idle window, measured from the last
			// event rather than from request start.
			return c.finish(StateTimedOut, acc.String(), ErrTimedOut)

		case <-overall.C:
			return c.finish(StateTimedOut, acc.String(), ErrTimedOut)

		case pe, ok := <-events:
			if !ok || pe.err == io.EOF {
				// End of input: content means success, nothing means an
				// empty response.
				if acc.Len() > 0 {
					return c.finish(StateCompleted, acc.String(), nil)
				}
				return c.finish(StateFailed, "", ErrEmptyResponse)
			}
			if pe.err != nil {
				if ctx.Err() != nil {
					return c.finish(StateCancelled, "", ErrCancelled)
				}
				return c.finish(StateFailed, acc.String(), pe.err)
			}

			c.setState(StateStreaming)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(c.idleTimeout)

			switch pe.ev.Kind {
			case EventChunk:
				acc.WriteString(pe.ev.Text)
				c.progress(ctx, onProgress, acc.String())

			case EventFullReply:
				acc.Reset()
				acc.WriteString(pe.ev.Text)
				c.progress(ctx, onProgress, acc.String())

			case EventDone:
				if acc.Len() > 0 {
					return c.finish(StateCompleted, acc.String(), nil)
				}
				return c.finish(StateFailed, "", ErrEmptyResponse)

			case EventServerError:
				return c.finish(StateFailed, acc.String(), &ServerError{Message: pe.ev.Text})

			case EventUnrecognized:
				log.Printf("Unrecognized stream payload: %.120s", pe.ev.Raw)
			}
		}
	}
}

// progress invokes the callback unless the send was cancelled in the
// meantime; cancelled sends emit no further callbacks.
func (c *Controller) progress(ctx context.Context, onProgress ProgressFunc, text string) {
	if onProgress == nil || ctx.Err() != nil {
		return
	}
	onProgress(text)
}

// finish records the terminal state and builds the outcome.
func (c *Controller) finish(state State, text string, err error) Outcome {
	c.setState(state)
	return Outcome{State: state, Text: text, Err: err}
}
