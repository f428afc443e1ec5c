// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and settings.
package model

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// ID GENERATION TESTS
// =============================================================================

func TestNewID_Format(t *testing.T) {
	id := NewID()

	if !strings.HasPrefix(id, "conv_") {
		t.Errorf("NewID() = %q, want conv_ prefix", id)
	}

	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		t.Fatalf("NewID() = %q, want 3 underscore-separated parts", id)
	}
	if len(parts[2]) != 9 {
		t.Errorf("NewID() suffix = %q, want 9 chars", parts[2])
	}
}

func TestNewID_UniqueSameMillisecond(t *testing.T) {
	// Generate a burst of IDs far faster than the millisecond clock
	// ticks; every one must be distinct.
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %q", id)
		}
		seen[id] = true
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestNewConversation(t *testing.T) {
	conv := NewConversation("New chat")

	if conv.ID == "" {
		t.Error("Conversation should have an ID")
	}
	if conv.Title != "New chat" {
		t.Errorf("Title = %q, want %q", conv.Title, "New chat")
	}
	if !conv.IsEmpty() {
		t.Error("New conversation should be empty")
	}
	if conv.CreatedAt.IsZero() || conv.UpdatedAt.IsZero() {
		t.Error("Timestamps should be set")
	}
}

func TestConversation_AddMessage(t *testing.T) {
	conv := NewConversation("test")
	before := conv.UpdatedAt

	conv.AddUserMessage("hello")

	if conv.MessageCount() != 1 {
		t.Fatalf("MessageCount = %d, want 1", conv.MessageCount())
	}
	if !conv.UpdatedAt.After(before) {
		t.Error("AddMessage should bump UpdatedAt")
	}
}

func TestConversation_TouchMonotonic(t *testing.T) {
	conv := NewConversation("test")

	// Pin UpdatedAt in the future to simulate a stalled or regressed
	// clock; Touch must still move strictly forward.
	future := time.Now().Add(time.Hour)
	conv.UpdatedAt = future

	conv.Touch()
	if !conv.UpdatedAt.After(future) {
		t.Errorf("Touch did not advance UpdatedAt: %v <= %v", conv.UpdatedAt, future)
	}

	// Rapid successive touches are each strictly increasing.
	prev := conv.UpdatedAt
	for i := 0; i < 100; i++ {
		conv.Touch()
		if !conv.UpdatedAt.After(prev) {
			t.Fatalf("Touch %d not strictly increasing: %v <= %v", i, conv.UpdatedAt, prev)
		}
		prev = conv.UpdatedAt
	}
}

func TestConversation_PersistableMessages(t *testing.T) {
	conv := NewConversation("test")
	conv.AddMessage(NewSystemMessage("you are helpful"))
	conv.AddUserMessage("hi")
	asst := conv.AddAssistantMessage()
	asst.AppendToken("hello")
	asst.FinalizeStream(nil)
	conv.AddAssistantMessage() // empty in-flight placeholder

	msgs := conv.PersistableMessages()
	if len(msgs) != 2 {
		t.Fatalf("PersistableMessages returned %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestConversation_SetTitle(t *testing.T) {
	conv := NewConversation("old")
	stamp := conv.UpdatedAt

	// Setting the same title is a no-op.
	conv.SetTitle("old")
	if !conv.UpdatedAt.Equal(stamp) {
		t.Error("SetTitle with unchanged title should not bump UpdatedAt")
	}

	conv.SetTitle("new")
	if conv.Title != "new" {
		t.Errorf("Title = %q, want %q", conv.Title, "new")
	}
	if !conv.UpdatedAt.After(stamp) {
		t.Error("SetTitle should bump UpdatedAt")
	}
}

func TestConversation_Clone(t *testing.T) {
	conv := NewConversation("test")
	conv.AddUserMessage("hello")

	clone := conv.Clone()
	clone.Messages[0].Content = "changed"
	clone.Title = "changed"

	if conv.Messages[0].Content != "hello" {
		t.Error("Clone should deep-copy messages")
	}
	if conv.Title != "test" {
		t.Error("Clone should not share title")
	}
}

func TestConversation_PruneOldMessages(t *testing.T) {
	conv := NewConversation("test")
	for i := 0; i <= MaxMessages+10; i++ {
		conv.AddMessage(NewUserMessage("m"))
	}
	if conv.MessageCount() > MaxMessages {
		t.Errorf("MessageCount = %d, want <= %d", conv.MessageCount(), MaxMessages)
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_Streaming(t *testing.T) {
	msg := NewAssistantMessage()

	if !msg.IsStreaming {
		t.Fatal("New assistant message should be streaming")
	}

	msg.AppendToken("hello")
	msg.AppendToken(" world")

	if msg.GetDisplayContent() != "hello world" {
		t.Errorf("GetDisplayContent = %q, want %q", msg.GetDisplayContent(), "hello world")
	}
	if msg.Content != "" {
		t.Error("Content should be empty until finalized")
	}

	msg.FinalizeStream(nil)
	if msg.IsStreaming {
		t.Error("Message should not be streaming after finalize")
	}
	if msg.Content != "hello world" {
		t.Errorf("Content = %q, want %q", msg.Content, "hello world")
	}

	// Finalizing twice is harmless.
	msg.FinalizeStream(nil)
	if msg.Content != "hello world" {
		t.Error("Double finalize should not change content")
	}
}

func TestMessage_CloneCarriesStreamingContent(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendToken("partial")

	clone := msg.Clone()
	if got := clone.GetDisplayContent(); got != "partial" {
		t.Fatalf("clone content = %q, want %q", got, "partial")
	}
	if !clone.IsStreaming {
		t.Error("clone should still be streaming")
	}

	// Mutations must not leak in either direction.
	msg.AppendToken(" more")
	clone.AppendToken(" other")
	if got := clone.GetDisplayContent(); got != "partial other" {
		t.Errorf("clone content = %q, want independent copy", got)
	}
	if got := msg.GetDisplayContent(); got != "partial more" {
		t.Errorf("original content = %q, want independent copy", got)
	}
}

func TestRole_Persistable(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleUser, true},
		{RoleAssistant, true},
		{RoleSystem, false},
		{Role("tool"), false},
	}

	for _, tc := range tests {
		if got := tc.role.Persistable(); got != tc.want {
			t.Errorf("Persistable(%s) = %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("你好世界你好世界你好世界")
	preview := msg.Preview(6)
	if len([]rune(preview)) > 6 {
		t.Errorf("Preview = %q, want <= 6 runes", preview)
	}
}

// =============================================================================
// SETTINGS TESTS
// =============================================================================

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	if s.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("BaseURL = %q", s.BaseURL)
	}
	if s.Model != "google/gemma-2-9b-it:free" {
		t.Errorf("Model = %q", s.Model)
	}
	if s.Language != LanguageChinese {
		t.Errorf("Language = %q, want zh", s.Language)
	}
	if s.Theme != ThemeLight {
		t.Errorf("Theme = %q, want light", s.Theme)
	}
	if s.ShowAllModels {
		t.Error("ShowAllModels should default to false")
	}
}

func TestSettings_Normalize(t *testing.T) {
	s := Settings{
		Language: Language("klingon"),
		Theme:    Theme("sepia"),
	}
	s.Normalize()

	if s.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want default", s.BaseURL)
	}
	if s.Model != DefaultModel {
		t.Errorf("Model = %q, want default", s.Model)
	}
	if s.Language != LanguageChinese {
		t.Errorf("Language = %q, want zh", s.Language)
	}
	if s.Theme != ThemeLight {
		t.Errorf("Theme = %q, want light", s.Theme)
	}

	// Valid values survive normalization.
	s2 := Settings{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o", Language: LanguageEnglish, Theme: ThemeDark}
	s2.Normalize()
	if s2.BaseURL != "https://api.openai.com/v1" || s2.Model != "gpt-4o" {
		t.Error("Normalize should not overwrite valid fields")
	}
	if s2.Language != LanguageEnglish || s2.Theme != ThemeDark {
		t.Error("Normalize should keep valid enums")
	}
}
