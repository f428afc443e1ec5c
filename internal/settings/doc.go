// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings manages the user settings lifecycle.
//
// Settings are resolved in layers, lowest priority first:
//
//  1. Built-in defaults (model.DefaultSettings)
//  2. Optional TOML config file (~/.config/sprychat/config.toml)
//  3. Persisted state in the key-value store
//  4. Environment variables, for fields still empty
//
// Runtime updates go through Store.Update with a partial Patch: only
// the fields a caller provides change, everything else is preserved,
// and the merged object is persisted. Subscribers are notified after
// every change so the UI can re-render with the new theme or language.
package settings
