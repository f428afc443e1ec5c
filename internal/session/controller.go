// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the chat session controller: it binds a
// conversation, drives streaming chat completions, keeps the message
// cache written through on every delta, and auto-generates titles.
// The controller emits events on a channel and knows nothing about
// the presentation layer.
package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/jeranaias/sprychat/internal/i18n"
	"github.com/jeranaias/sprychat/internal/model"
	"github.com/jeranaias/sprychat/internal/store"
	"github.com/jeranaias/sprychat/internal/upstream"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies what happened in the session.
type EventKind int

const (
	// TranscriptReset fires after Bind replaces the live transcript.
	TranscriptReset EventKind = iota

	// Delta fires for each streamed token of the assistant reply.
	Delta

	// StreamDone fires when the assistant reply completed.
	StreamDone

	// StreamFailed fires when the stream ended with an error; partial
	// content stays in the transcript and cache.
	StreamFailed

	// TitleChanged fires after a title was auto-generated.
	TitleChanged
)

// Event carries a session state change to the presentation layer.
type Event struct {
	Kind           EventKind
	ConversationID string
	Content        string // Delta: the token
	Title          string // TitleChanged: the new title
	Err            error  // StreamFailed
}

// =============================================================================
// CONTROLLER
// =============================================================================

// ErrStreamInFlight is returned by Send while a reply is streaming.
var ErrStreamInFlight = errors.New("a reply is already streaming")

// ErrNotBound is returned by Send before any conversation is bound.
var ErrNotBound = errors.New("no conversation bound")

// Streamer is the upstream surface the controller needs.
type Streamer interface {
	ChatStream(ctx context.Context, messages []upstream.ChatMessage, callback upstream.StreamCallback) error
	SetModel(model string)
	GetModel() string
}

// Controller owns one live transcript at a time. UI calls arrive on a
// single goroutine; stream deltas are funneled through the events
// channel.
type Controller struct {
	mu     sync.Mutex
	repo   *store.Repository
	client Streamer
	logger *log.Logger

	boundID    string
	transcript []*model.Message
	streaming  bool
	cancel     context.CancelFunc

	// titleDone latches title generation per conversation.
	titleDone map[string]bool

	events chan Event
}

// New creates a controller over the repository and upstream client.
func New(repo *store.Repository, client Streamer, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(log.Writer(), "[session] ", log.LstdFlags)
	}
	return &Controller{
		repo:      repo,
		client:    client,
		logger:    logger,
		titleDone: make(map[string]bool),
		events:    make(chan Event, 256),
	}
}

// Events returns the channel the presentation layer consumes.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// =============================================================================
// BIND
// =============================================================================

// Bind seeds the live transcript for a conversation: durable messages
// when the record has any, else the cache entry, else blank. Seed
// failures are logged and the session starts blank. Any in-flight
// stream is cancelled first.
func (c *Controller) Bind(id string) {
	c.Stop()

	c.mu.Lock()
	c.boundID = id
	c.transcript = nil

	conv, err := c.repo.Get(id)
	switch {
	case err != nil:
		c.logger.Printf("bind %s: %v, starting blank", id, err)
	case len(conv.Messages) > 0:
		c.transcript = conv.Messages
	default:
		c.transcript = c.repo.CachedMessages(id)
	}

	if conv != nil && conv.Model != "" && c.client != nil {
		c.client.SetModel(conv.Model)
	}
	c.mu.Unlock()

	c.emit(Event{Kind: TranscriptReset, ConversationID: id})
}

// BoundID returns the ID of the bound conversation, or "".
func (c *Controller) BoundID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundID
}

// Messages returns a snapshot of the live transcript. The messages are
// deep copies taken under the controller lock, so callers may read them
// freely while a stream mutates the originals.
func (c *Controller) Messages() []*model.Message {
	return c.snapshot()
}

// IsStreaming reports whether a reply is in flight.
func (c *Controller) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// =============================================================================
// SEND
// =============================================================================

// Send appends a user message and streams the assistant reply. Every
// delta is appended to the reply buffer and written through to the
// cache. Cancellation keeps and caches partial content. Send returns
// once the stream goroutine is started; progress arrives as events.
func (c *Controller) Send(ctx context.Context, content string) error {
	c.mu.Lock()
	if c.boundID == "" {
		c.mu.Unlock()
		return ErrNotBound
	}
	if c.streaming {
		c.mu.Unlock()
		return ErrStreamInFlight
	}

	id := c.boundID
	userMsg := model.NewUserMessage(content)
	reply := model.NewAssistantMessage()
	c.transcript = append(c.transcript, userMsg, reply)
	c.streaming = true

	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	wire := c.wireMessagesLocked(reply)
	c.mu.Unlock()

	c.repo.CacheMessages(id, c.snapshot())

	go c.stream(streamCtx, id, reply, wire)
	return nil
}

// stream runs the upstream call and event emission for one reply.
func (c *Controller) stream(ctx context.Context, id string, reply *model.Message, wire []upstream.ChatMessage) {
	stats := model.NewStatistics()
	tokens := 0

	err := c.client.ChatStream(ctx, wire, func(chunk upstream.StreamChunk) {
		token := chunk.GetContent()
		if token == "" {
			return
		}
		stats.RecordFirstToken()
		tokens++

		c.mu.Lock()
		reply.AppendToken(token)
		c.mu.Unlock()

		c.repo.CacheMessages(id, c.snapshot())
		c.emit(Event{Kind: Delta, ConversationID: id, Content: token})
	})

	stats.Finalize(tokens)

	c.mu.Lock()
	reply.FinalizeStream(stats)
	c.streaming = false
	c.cancel = nil
	c.mu.Unlock()

	c.repo.CacheMessages(id, c.snapshot())
	c.maybeGenerateTitle(id)

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Printf("stream failed for %s: %v", id, err)
		c.emit(Event{Kind: StreamFailed, ConversationID: id, Err: err})
		return
	}
	c.emit(Event{Kind: StreamDone, ConversationID: id})
}

// wireMessagesLocked converts the transcript to the upstream wire
// format, skipping the still-empty reply buffer.
func (c *Controller) wireMessagesLocked(exclude *model.Message) []upstream.ChatMessage {
	wire := make([]upstream.ChatMessage, 0, len(c.transcript))
	for _, m := range c.transcript {
		if m == exclude {
			continue
		}
		content := m.GetDisplayContent()
		if content == "" {
			continue
		}
		wire = append(wire, upstream.ChatMessage{Role: string(m.Role), Content: content})
	}
	return wire
}

// Stop cancels the in-flight stream, if any. Partial content is kept.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// PersistNow writes the current transcript durably and to the cache.
// The UI invokes this before model switches and on shutdown.
func (c *Controller) PersistNow() {
	c.mu.Lock()
	id := c.boundID
	c.mu.Unlock()
	if id == "" {
		return
	}

	msgs := c.snapshot()
	if err := c.repo.UpdateMessages(id, msgs); err != nil {
		c.logger.Printf("persist %s: %v", id, err)
		return
	}
	c.repo.CacheMessages(id, msgs)
}

// snapshot deep-copies the transcript under the lock. Nothing outside
// the controller ever sees the live messages the stream goroutine is
// appending to.
func (c *Controller) snapshot() []*model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*model.Message, len(c.transcript))
	for i, m := range c.transcript {
		out[i] = m.Clone()
	}
	return out
}

// =============================================================================
// TITLE GENERATION
// =============================================================================

// maybeGenerateTitle fires while the conversation still has its
// default title and the transcript holds at least one exchange. The
// title is the first 20 characters of the first user message,
// rune-safe. A per-conversation latch ensures it fires at most once.
func (c *Controller) maybeGenerateTitle(id string) {
	c.mu.Lock()
	if c.titleDone[id] || len(c.transcript) <= 1 {
		c.mu.Unlock()
		return
	}

	var firstUser *model.Message
	for _, m := range c.transcript {
		if m.Role == model.RoleUser {
			firstUser = m
			break
		}
	}
	if firstUser == nil || firstUser.Content == "" {
		c.mu.Unlock()
		return
	}
	title := truncateRunes(firstUser.Content, 20)
	c.mu.Unlock()

	conv, err := c.repo.Get(id)
	if err != nil || !i18n.IsDefaultTitle(conv.Title) {
		return
	}
	if err := c.repo.UpdateTitle(id, title); err != nil {
		c.logger.Printf("title update %s: %v", id, err)
		return
	}

	c.mu.Lock()
	c.titleDone[id] = true
	c.mu.Unlock()

	c.emit(Event{Kind: TitleChanged, ConversationID: id, Title: title})
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// =============================================================================
// EVENT EMISSION
// =============================================================================

// emit delivers an event. Deltas are dropped when the consumer lags;
// the transcript is the source of truth and the UI re-reads it on the
// next event. Other kinds block until consumed.
func (c *Controller) emit(ev Event) {
	if ev.Kind == Delta {
		select {
		case c.events <- ev:
		default:
		}
		return
	}
	c.events <- ev
}
