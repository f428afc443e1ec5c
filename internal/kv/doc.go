// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides a small durable key-value store used for
// conversation and settings persistence.
//
// The store is deliberately best-effort: reads report presence with a
// boolean, writes report a Result status instead of an error. Callers
// on hot paths never branch on storage failures; a missing or broken
// store degrades every operation to a no-op rather than surfacing
// errors into the UI.
//
// # Key Types
//
//   - Store: the interface (Get/Set/Remove/Keys/Available)
//   - SQLiteStore: durable implementation backed by a single SQLite table
//   - NullStore: always-unavailable fallback for headless contexts and tests
//
// # Usage
//
//	store, err := kv.Open(filepath.Join(dataDir, "state.db"))
//	if err != nil {
//	    store = kv.Null() // degrade, don't fail
//	}
//	store.Set("sprychat-settings", payload)
package kv
