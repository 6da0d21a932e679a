// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/daybookhq/daybook-tui/internal/memory"
	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/settings"
	"github.com/daybookhq/daybook-tui/internal/store"
	"github.com/daybookhq/daybook-tui/internal/transport"
	"github.com/daybookhq/daybook-tui/internal/util"
)

// Sink receives coordinator messages. *tea.Program satisfies it; tests use
// a recording sink.
type Sink interface {
	Send(msg tea.Msg)
}

// ErrConversationGone is reported when the active conversation vanishes
// between persisting the user message and issuing the send.
var ErrConversationGone = errors.New("conversation no longer exists")

// =============================================================================
// COORDINATOR
// =============================================================================

// session identifies one stream. The coordinator compares incoming event ids
// against the current session's id; a cleared or replaced session makes all
// further events of the old stream fall on the floor.
type session struct {
	id string // correlation id; "" while the send is still being issued
}

// Coordinator owns the send and smart query stream slots and drives the
// persistence sequence around them. All exported methods are safe for
// concurrent use; stream handlers run on the transport's delivery
// goroutines.
type Coordinator struct {
	backend  transport.Backend
	convs    *store.Conversations
	settings *settings.Resolver
	memory   *memory.Counter
	sink     Sink

	mu          sync.Mutex
	sendSession *session
	sendBuffer  *Buffer

	querySession *session
	queryBuffer  *Buffer
	// Events that arrived for the query slot while its id was still
	// unknown; replayed once the id is adopted.
	earlyQuery []transport.StreamEvent

	unsubSend  func()
	unsubQuery func()
}

// NewCoordinator wires a coordinator over its collaborators. Call Start to
// begin receiving stream events.
func NewCoordinator(backend transport.Backend, convs *store.Conversations, resolver *settings.Resolver, counter *memory.Counter, sink Sink) *Coordinator {
	return &Coordinator{
		backend:  backend,
		convs:    convs,
		settings: resolver,
		memory:   counter,
		sink:     sink,
	}
}

// Start subscribes to the backend's stream feeds.
func (c *Coordinator) Start() {
	c.unsubSend = c.backend.SubscribeSendEvents(c.handleSendEvent)
	c.unsubQuery = c.backend.SubscribeQueryEvents(c.handleQueryEvent)
}

// Close unsubscribes from the stream feeds.
func (c *Coordinator) Close() {
	if c.unsubSend != nil {
		c.unsubSend()
		c.unsubSend = nil
	}
	if c.unsubQuery != nil {
		c.unsubQuery()
		c.unsubQuery = nil
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send runs the full send sequence for the active conversation: persist the
// user message, auto-title if this was the first message, then issue the
// stream. With no active conversation, one is created first.
//
// A send while another send stream is active is silently ignored; the UI
// disables the input, this is the backstop. Blank input is also ignored.
//
// The returned error covers the synchronous part only; stream failures
// surface later as ChatStreamDoneMsg with Err set.
func (c *Coordinator) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Claim the send slot before any backend work so a double-send can
	// never interleave two persistence sequences.
	sess := &session{}
	c.mu.Lock()
	if c.sendSession != nil {
		c.mu.Unlock()
		return nil
	}
	c.sendSession = sess
	c.sendBuffer = NewBuffer()
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		if c.sendSession == sess {
			c.sendSession = nil
		}
		c.mu.Unlock()
	}

	convID := c.convs.ActiveID()
	if convID == "" {
		id, err := c.convs.Create(ctx, "")
		if err != nil {
			release()
			c.alert(err.Error())
			return err
		}
		c.convs.SetActive(id)
		convID = id
	}

	if err := c.convs.AddMessage(ctx, convID, model.NewUserMessage(text)); err != nil {
		release()
		c.alert(err.Error())
		return err
	}

	// First message into a placeholder-titled conversation names it.
	if conv := c.convs.Get(convID); conv != nil && conv.NeedsAutoTitle() {
		if err := c.convs.Rename(ctx, convID, util.TitleFromDraft(text)); err != nil {
			// The title is cosmetic; the send still goes out.
			c.alert(err.Error())
		}
	}

	conv := c.convs.Get(convID)
	if conv == nil {
		release()
		c.alert(ErrConversationGone.Error())
		return ErrConversationGone
	}
	history := conv.History()
	systemPrompt := c.settings.Settings().SystemPromptOverride()

	// Arm the session before issuing so the first chunk can never beat
	// the correlation id into place.
	c.mu.Lock()
	sess.id = convID
	c.mu.Unlock()

	// The memory indicator reflects the history the stream is about to
	// see, so it is published before the request goes out.
	c.refreshMemory(ctx, convID)

	if err := c.backend.SendMessage(ctx, convID, history, systemPrompt); err != nil {
		release()
		c.alert(err.Error())
		return err
	}

	c.sink.Send(ConversationsReloadedMsg{ActiveID: convID})
	return nil
}

// Abort stops the in-flight send stream and persists whatever streamed so
// far, suffixed with the stopped marker. A no-op when nothing is streaming.
func (c *Coordinator) Abort(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sendSession
	if sess == nil || sess.id == "" {
		c.mu.Unlock()
		return nil
	}
	convID := sess.id
	buf := c.sendBuffer
	// Clearing the session first guarantees any chunks still in flight
	// are dropped rather than appended after the marker.
	c.sendSession = nil
	c.mu.Unlock()

	partial := buf.Drain()
	c.backend.AbortSend(ctx) // best effort; the dead subscription catches stragglers

	// An abort before the first chunk leaves nothing worth keeping; the
	// conversation stays as it was.
	if partial == "" {
		c.sink.Send(ChatStreamDoneMsg{ConversationID: convID, Aborted: true})
		return nil
	}

	if err := c.convs.AddMessage(ctx, convID, model.NewAbortedMessage(partial)); err != nil {
		c.alert(err.Error())
		c.sink.Send(ChatStreamDoneMsg{ConversationID: convID, Aborted: true, Err: err.Error()})
		return err
	}

	c.sink.Send(ConversationsReloadedMsg{ActiveID: c.convs.ActiveID()})
	c.sink.Send(ChatStreamDoneMsg{ConversationID: convID, Aborted: true})
	c.refreshMemory(ctx, convID)
	return nil
}

// handleSendEvent routes send stream events into the active session.
func (c *Coordinator) handleSendEvent(ev transport.StreamEvent) {
	c.mu.Lock()
	sess := c.sendSession
	if sess == nil || sess.id == "" || sess.id != ev.ID {
		c.mu.Unlock()
		return
	}
	buf := c.sendBuffer

	switch ev.Kind {
	case transport.EventChunk:
		c.mu.Unlock()
		if snapshot, publish := buf.Append(ev.Chunk); publish {
			c.sink.Send(ChatStreamTextMsg{ConversationID: ev.ID, Text: snapshot})
		}

	case transport.EventEnd:
		c.sendSession = nil
		c.mu.Unlock()
		c.finishSend(ev, buf.Drain())

	case transport.EventError:
		c.sendSession = nil
		c.mu.Unlock()
		buf.Drain()
		c.alert(ev.Err)
		c.sink.Send(ChatStreamDoneMsg{ConversationID: ev.ID, Err: ev.Err})

	default:
		c.mu.Unlock()
	}
}

// finishSend persists the completed assistant response and finalizes the UI.
func (c *Coordinator) finishSend(ev transport.StreamEvent, full string) {
	ctx := context.Background()

	msg := model.NewAssistantMessage(full, ev.Model, ev.Usage)
	if err := c.convs.AddMessage(ctx, ev.ID, msg); err != nil {
		c.alert(err.Error())
		c.sink.Send(ChatStreamDoneMsg{ConversationID: ev.ID, Err: err.Error()})
		return
	}

	c.sink.Send(ConversationsReloadedMsg{ActiveID: c.convs.ActiveID()})
	c.sink.Send(ChatStreamDoneMsg{ConversationID: ev.ID})
	c.refreshMemory(ctx, ev.ID)
}

// =============================================================================
// SMART QUERY
// =============================================================================

// Ask issues a smart query over the user's data. A new query replaces any
// active one; the replaced stream's events are dropped by id mismatch.
//
// An issuance failure is delivered as a SmartQueryDoneMsg whose Text is an
// "Error: ..." line, so the query panel always has something to show.
func (c *Coordinator) Ask(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	// Arm the slot before issuing: the backend may deliver the first
	// chunks before SmartQuery returns, and those must not be lost.
	// Events arriving while the id is still unknown are parked in
	// earlyQuery and replayed once the id is adopted.
	sess := &session{}
	c.mu.Lock()
	c.querySession = sess
	c.queryBuffer = NewBuffer()
	c.earlyQuery = nil
	c.mu.Unlock()

	queryID, err := c.backend.SmartQuery(ctx, text)
	if err != nil {
		c.mu.Lock()
		if c.querySession == sess {
			c.querySession = nil
			c.queryBuffer = nil
			c.earlyQuery = nil
		}
		c.mu.Unlock()
		c.sink.Send(SmartQueryDoneMsg{Text: "Error: " + err.Error(), Err: err.Error()})
		return "", err
	}

	c.mu.Lock()
	if c.querySession != sess {
		// Replaced or dismissed while the call was in flight.
		c.mu.Unlock()
		return queryID, nil
	}
	sess.id = queryID
	early := c.earlyQuery
	c.earlyQuery = nil

	msgs := []tea.Msg{SmartQueryStartedMsg{QueryID: queryID}}
	for _, ev := range early {
		if ev.ID != queryID || c.querySession == nil {
			continue
		}
		msgs = append(msgs, c.queryEventLocked(ev)...)
	}
	c.mu.Unlock()

	for _, msg := range msgs {
		c.sink.Send(msg)
	}
	return queryID, nil
}

// DismissQuery drops the active query session; remaining events of its
// stream are discarded.
func (c *Coordinator) DismissQuery() {
	c.mu.Lock()
	buf := c.queryBuffer
	c.querySession = nil
	c.queryBuffer = nil
	c.earlyQuery = nil
	c.mu.Unlock()

	if buf != nil {
		buf.Drain()
	}
}

// handleQueryEvent routes smart query stream events into the active session.
func (c *Coordinator) handleQueryEvent(ev transport.StreamEvent) {
	c.mu.Lock()
	sess := c.querySession
	if sess == nil {
		c.mu.Unlock()
		return
	}
	if sess.id == "" {
		// Issuance hasn't returned the id yet; park the event. Replay
		// filters by id, so strays from a replaced stream stay dropped.
		c.earlyQuery = append(c.earlyQuery, ev)
		c.mu.Unlock()
		return
	}
	if sess.id != ev.ID {
		c.mu.Unlock()
		return
	}
	msgs := c.queryEventLocked(ev)
	c.mu.Unlock()

	for _, msg := range msgs {
		c.sink.Send(msg)
	}
}

// queryEventLocked applies one matched event to the query slot and returns
// the messages to publish. Callers hold c.mu and send after release.
func (c *Coordinator) queryEventLocked(ev transport.StreamEvent) []tea.Msg {
	buf := c.queryBuffer

	switch ev.Kind {
	case transport.EventChunk:
		if snapshot, publish := buf.Append(ev.Chunk); publish {
			return []tea.Msg{SmartQueryTextMsg{QueryID: ev.ID, Text: snapshot}}
		}

	case transport.EventEnd:
		c.querySession = nil
		return []tea.Msg{SmartQueryDoneMsg{QueryID: ev.ID, Text: buf.Drain()}}

	case transport.EventError:
		c.querySession = nil
		// Text that already streamed stays on screen; the error line
		// stands in only when nothing arrived.
		done := SmartQueryDoneMsg{QueryID: ev.ID, Text: "Error: " + ev.Err, Err: ev.Err}
		if partial := buf.Drain(); partial != "" {
			done.Text = partial
		}
		return []tea.Msg{done}
	}
	return nil
}

// =============================================================================
// STATE AND HELPERS
// =============================================================================

// IsStreaming reports whether a send stream is active (or being issued).
func (c *Coordinator) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendSession != nil
}

// StreamingConversationID returns the conversation id of the active send
// stream, or "".
func (c *Coordinator) StreamingConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendSession == nil {
		return ""
	}
	return c.sendSession.id
}

// ActiveQueryID returns the id of the active smart query, or "".
func (c *Coordinator) ActiveQueryID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.querySession == nil {
		return ""
	}
	return c.querySession.id
}

// refreshMemory recomputes the memory indicator for a conversation's
// current history. Best effort: the counter swallows failures.
func (c *Coordinator) refreshMemory(ctx context.Context, convID string) {
	conv := c.convs.Get(convID)
	if conv == nil {
		return
	}
	c.sink.Send(MemoryCountMsg{Count: c.memory.Refresh(ctx, conv.History())})
}

func (c *Coordinator) alert(text string) {
	c.sink.Send(AlertMsg{Text: "Error: " + text})
}
