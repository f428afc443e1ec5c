// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the conversation repository: the durable
// conversation list, the current-conversation pointer, and the
// per-conversation message cache that is folded into durable records
// at checkpoints (switch, new conversation, quit).
package store

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/sprychat/internal/i18n"
	"github.com/jeranaias/sprychat/internal/kv"
	"github.com/jeranaias/sprychat/internal/model"
)

// =============================================================================
// STORAGE KEYS
// =============================================================================

const (
	// ConversationsKey holds the JSON-encoded conversation list.
	ConversationsKey = "sprychat-conversations"

	// CurrentKey holds the ID of the active conversation.
	CurrentKey = "sprychat-current-conversation"

	// CachePrefix prefixes per-conversation message cache entries.
	// The cache is the transient shadow of the live transcript; it is
	// folded into the durable record at checkpoints.
	CachePrefix = "sprychat-thread-cache-"
)

// ErrNotFound is returned when a conversation ID is unknown.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = errors.New("conversation not found")

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository owns conversation state: the newest-first list, the
// current pointer, and cache folding. All mutating operations persist
// through to the KV store; persistence failures are logged, never
// surfaced to callers.
type Repository struct {
	mu     sync.RWMutex
	kv     kv.Store
	logger *log.Logger
	lang   model.Language

	conversations []*model.Conversation // newest-first by UpdatedAt
	currentID     string
	initialized   bool
}

// New creates a repository over the given KV store. Call Load before
// any other operation.
func New(store kv.Store, lang model.Language, logger *log.Logger) *Repository {
	if store == nil {
		store = kv.Null()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[store] ", log.LstdFlags)
	}
	return &Repository{
		kv:     store,
		logger: logger,
		lang:   lang,
	}
}

// SetLanguage changes the language used for default titles of new
// conversations. Existing titles are untouched.
func (r *Repository) SetLanguage(lang model.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lang = lang
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the conversation list and current pointer from storage,
// then runs the one-shot startup selection: when the pointer is empty
// or dangling and the list is non-empty, the newest conversation
// becomes current. Subsequent calls are no-ops.
func (r *Repository) Load() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return
	}
	r.initialized = true

	if raw, ok := r.kv.Get(ConversationsKey); ok {
		var list []*model.Conversation
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			r.logger.Printf("corrupt conversation list, starting empty: %v", err)
		} else {
			r.conversations = list
		}
	}
	r.sortLocked()

	if id, ok := r.kv.Get(CurrentKey); ok {
		r.currentID = id
	}

	// Startup selection: dangling or missing pointer falls back to the
	// newest conversation. Runs once; later dangling pointers are
	// handled by the operations that cause them.
	if r.findLocked(r.currentID) == nil {
		r.currentID = ""
		if len(r.conversations) > 0 {
			r.currentID = r.conversations[0].ID
			r.persistCurrentLocked()
		}
	}
}

// =============================================================================
// CREATE AND SWITCH
// =============================================================================

// CreateNew checkpoints the current conversation (fold, then prune if
// empty), creates a new conversation with a localized default title,
// inserts it at the head, and makes it current. modelOverride
// optionally pins a model to the new conversation.
func (r *Repository) CreateNew(modelOverride string) *model.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createNewLocked(modelOverride)
}

func (r *Repository) createNewLocked(modelOverride string) *model.Conversation {
	r.foldLocked(r.currentID)
	outgoing := r.currentID

	now := time.Now()
	conv := &model.Conversation{
		ID:        model.NewID(),
		Title:     i18n.DefaultTitle(r.lang),
		CreatedAt: now,
		UpdatedAt: now,
		Model:     modelOverride,
	}

	r.conversations = append([]*model.Conversation{conv}, r.conversations...)
	r.currentID = conv.ID
	r.persistListLocked()
	r.persistCurrentLocked()
	r.pruneLocked(outgoing)

	return conv.Clone()
}

// SwitchTo makes the given conversation current. Switching to the
// conversation that is already current, or to an unknown ID, changes
// nothing: no writes, no timestamp bumps. Otherwise the outgoing
// conversation is folded and pruned before the pointer moves.
func (r *Repository) SwitchTo(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == r.currentID {
		return nil
	}
	if r.findLocked(id) == nil {
		return ErrNotFound
	}

	r.foldLocked(r.currentID)
	outgoing := r.currentID

	r.currentID = id
	r.persistCurrentLocked()
	r.pruneLocked(outgoing)
	return nil
}

// =============================================================================
// FOLD AND CACHE
// =============================================================================

// Fold merges the conversation's cache entry into its durable record.
// Absent or empty cache, or an unknown ID, is a no-op. Folding twice
// with no intervening cache change leaves identical state.
func (r *Repository) Fold(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.foldLocked(id)
}

func (r *Repository) foldLocked(id string) {
	if id == "" {
		return
	}
	conv := r.findLocked(id)
	if conv == nil {
		return
	}

	cached := r.cachedMessagesLocked(id)
	if len(cached) == 0 {
		return
	}
	if messagesEqual(conv.Messages, cached) {
		return
	}

	conv.Messages = cached
	conv.Touch()
	r.sortLocked()
	r.persistListLocked()
}

// CacheMessages writes the live transcript through to the
// conversation's cache entry, filtered to user/assistant messages.
func (r *Repository) CacheMessages(id string, msgs []*model.Message) {
	if id == "" {
		return
	}

	persistable := filterPersistable(msgs)
	data, err := json.Marshal(persistable)
	if err != nil {
		r.logger.Printf("failed to encode message cache: %v", err)
		return
	}
	r.kv.Set(CachePrefix+id, string(data))
}

// CachedMessages returns the decoded cache entry for a conversation,
// or nil when absent. Used to seed a live transcript for a
// conversation whose durable record is still empty.
func (r *Repository) CachedMessages(id string) []*model.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cachedMessagesLocked(id)
}

// cachedMessagesLocked reads and decodes a conversation's cache entry.
// Missing or corrupt entries decode to nil.
func (r *Repository) cachedMessagesLocked(id string) []*model.Message {
	raw, ok := r.kv.Get(CachePrefix + id)
	if !ok {
		return nil
	}
	var msgs []*model.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		r.logger.Printf("corrupt message cache for %s: %v", id, err)
		return nil
	}
	return msgs
}

// =============================================================================
// UPDATES
// =============================================================================

// UpdateTitle sets a conversation's title. Unchanged titles and
// unknown IDs write nothing.
func (r *Repository) UpdateTitle(id, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv := r.findLocked(id)
	if conv == nil {
		return ErrNotFound
	}
	if conv.Title == title {
		return nil
	}

	conv.Title = title
	conv.Touch()
	r.sortLocked()
	r.persistListLocked()
	return nil
}

// UpdateModel pins a model to a conversation. Unchanged values and
// unknown IDs write nothing.
func (r *Repository) UpdateModel(id, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv := r.findLocked(id)
	if conv == nil {
		return ErrNotFound
	}
	if conv.Model == modelID {
		return nil
	}

	conv.Model = modelID
	conv.Touch()
	r.sortLocked()
	r.persistListLocked()
	return nil
}

// UpdateMessages replaces a conversation's durable messages wholesale,
// filtered to user/assistant roles. This is the persist-now path used
// before model switches and on shutdown.
func (r *Repository) UpdateMessages(id string, msgs []*model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv := r.findLocked(id)
	if conv == nil {
		return ErrNotFound
	}

	conv.Messages = filterPersistable(msgs)
	conv.Touch()
	r.sortLocked()
	r.persistListLocked()
	return nil
}

// =============================================================================
// DELETE AND CLEAR
// =============================================================================

// Delete removes a conversation and its cache entry. When it was
// current, the newest remaining conversation becomes current; with
// nothing left the pointer is removed.
func (r *Repository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findLocked(id) == nil {
		return ErrNotFound
	}

	kept := r.conversations[:0]
	for _, c := range r.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	r.conversations = kept
	r.kv.Remove(CachePrefix + id)
	r.persistListLocked()

	if r.currentID == id {
		r.currentID = ""
		if len(r.conversations) > 0 {
			r.currentID = r.conversations[0].ID
			r.persistCurrentLocked()
		} else {
			r.kv.Remove(CurrentKey)
		}
	}
	return nil
}

// ClearAll removes every conversation, every cache entry, and the
// current pointer, then creates a fresh conversation so the caller is
// always left with exactly one usable conversation.
func (r *Repository) ClearAll() *model.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.kv.Keys(CachePrefix) {
		r.kv.Remove(key)
	}
	r.conversations = nil
	r.currentID = ""
	r.kv.Remove(ConversationsKey)
	r.kv.Remove(CurrentKey)

	return r.createNewLocked("")
}

// Flush folds the current conversation's cache into its durable
// record. Called on quit and on shutdown signals.
func (r *Repository) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.foldLocked(r.currentID)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Get returns a deep copy of a conversation.
func (r *Repository) Get(id string) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv := r.findLocked(id)
	if conv == nil {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// Current returns a deep copy of the current conversation, or false
// when no conversation is current.
func (r *Repository) Current() (*model.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv := r.findLocked(r.currentID)
	if conv == nil {
		return nil, false
	}
	return conv.Clone(), true
}

// CurrentID returns the ID of the current conversation, or "".
func (r *Repository) CurrentID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentID
}

// List returns metadata for all conversations, newest first.
func (r *Repository) List() []model.ConversationMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metas := make([]model.ConversationMeta, 0, len(r.conversations))
	for _, c := range r.conversations {
		metas = append(metas, c.GetMeta())
	}
	return metas
}

// Len returns the number of conversations.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (r *Repository) findLocked(id string) *model.Conversation {
	if id == "" {
		return nil
	}
	for _, c := range r.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// pruneLocked removes a conversation that holds no messages and no
// non-empty cache entry. The current conversation is never pruned.
func (r *Repository) pruneLocked(id string) {
	if id == "" || id == r.currentID {
		return
	}
	conv := r.findLocked(id)
	if conv == nil {
		return
	}
	if len(conv.Messages) > 0 {
		return
	}
	if len(r.cachedMessagesLocked(id)) > 0 {
		return
	}

	kept := r.conversations[:0]
	for _, c := range r.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	r.conversations = kept
	r.kv.Remove(CachePrefix + id)
	r.persistListLocked()
}

func (r *Repository) sortLocked() {
	sort.SliceStable(r.conversations, func(i, j int) bool {
		return r.conversations[i].UpdatedAt.After(r.conversations[j].UpdatedAt)
	})
}

func (r *Repository) persistListLocked() {
	data, err := json.Marshal(r.conversations)
	if err != nil {
		r.logger.Printf("failed to encode conversation list: %v", err)
		return
	}
	r.kv.Set(ConversationsKey, string(data))
}

func (r *Repository) persistCurrentLocked() {
	r.kv.Set(CurrentKey, r.currentID)
}

// filterPersistable snapshots user/assistant messages with non-empty
// content. Snapshots capture in-flight stream buffers so partial
// replies survive a crash, and detach the stored list from the live
// transcript.
func filterPersistable(msgs []*model.Message) []*model.Message {
	out := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || !m.Role.Persistable() {
			continue
		}
		content := m.GetDisplayContent()
		if strings.TrimSpace(content) == "" {
			continue
		}
		out = append(out, &model.Message{
			ID:        m.ID,
			Role:      m.Role,
			Content:   content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

// messagesEqual reports whether two message lists carry the same
// identity and content, ignoring timestamps and statistics. Used to
// keep folding idempotent.
func messagesEqual(a, b []*model.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Role != b[i].Role || a[i].Content != b[i].Content {
			return false
		}
	}
	return true
}
