// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and settings.
//
// This package defines the core domain types used throughout the application
// for representing chat conversations, messages, and user settings.
//
// # Key Types
//
//   - Conversation: Container for a chat session with messages and metadata
//   - Message: Single message with role, content, and timestamp
//   - Settings: User-facing configuration (API key, endpoint, model, UI)
//   - Role: Message role enumeration (user, assistant, system)
//
// # Usage
//
// Create a new conversation:
//
//	conv := model.NewConversation("New chat")
//	conv.AddUserMessage("Hello!")
//
// Conversation IDs embed a millisecond timestamp plus a random suffix,
// so two conversations created in the same millisecond still get
// distinct IDs.
package model
