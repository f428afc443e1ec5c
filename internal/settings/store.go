// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings manages the user settings lifecycle.
package settings

import (
	"encoding/json"
	"log"
	"os"
	"sync"

	"github.com/jeranaias/sprychat/internal/kv"
	"github.com/jeranaias/sprychat/internal/model"
)

// Key is the key-value store key holding the persisted settings.
const Key = "sprychat-settings"

// =============================================================================
// PATCH TYPE
// =============================================================================

// Patch is a partial settings update. Nil fields are left unchanged.
type Patch struct {
	APIKey        *string
	BaseURL       *string
	Model         *string
	Language      *model.Language
	Theme         *model.Theme
	ShowAllModels *bool
}

// =============================================================================
// STORE
// =============================================================================

// Store holds the current settings and persists changes.
type Store struct {
	mu     sync.RWMutex
	kv     kv.Store
	logger *log.Logger

	current      model.Settings
	fileDefaults *FileConfig

	subscribers []func(model.Settings)
}

// NewStore creates a settings store over the given key-value store.
// Call Load before first use.
func NewStore(store kv.Store, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[settings] ", log.LstdFlags)
	}
	return &Store{
		kv:     store,
		logger: logger,
	}
}

// SetFileDefaults layers a config file under the persisted state.
// File values apply only where the store has never persisted a value.
func (s *Store) SetFileDefaults(fc *FileConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileDefaults = fc
}

// Load resolves the settings layers and returns the result.
//
// Persisted state is decoded over a defaults copy, so fields missing
// from an older persisted object pick up their defaults and unknown
// fields are ignored. A corrupt payload falls back to defaults rather
// than failing startup.
func (s *Store) Load() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := model.DefaultSettings()
	if s.fileDefaults != nil {
		s.fileDefaults.applyTo(&resolved)
	}

	if raw, ok := s.kv.Get(Key); ok {
		if err := json.Unmarshal([]byte(raw), &resolved); err != nil {
			s.logger.Printf("corrupt settings payload, using defaults: %v", err)
			resolved = model.DefaultSettings()
			if s.fileDefaults != nil {
				s.fileDefaults.applyTo(&resolved)
			}
		}
	}

	resolved.Normalize()
	applyEnvFallbacks(&resolved)

	s.current = resolved
	return resolved
}

// Current returns a copy of the current settings.
func (s *Store) Current() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies a partial patch, persists the merged settings, and
// notifies subscribers. Fields not set in the patch are untouched.
func (s *Store) Update(p Patch) model.Settings {
	s.mu.Lock()

	next := s.current
	if p.APIKey != nil {
		next.APIKey = *p.APIKey
	}
	if p.BaseURL != nil {
		next.BaseURL = *p.BaseURL
	}
	if p.Model != nil {
		next.Model = *p.Model
	}
	if p.Language != nil {
		next.Language = *p.Language
	}
	if p.Theme != nil {
		next.Theme = *p.Theme
	}
	if p.ShowAllModels != nil {
		next.ShowAllModels = *p.ShowAllModels
	}
	next.Normalize()

	s.current = next
	s.persistLocked()
	subs := append([]func(model.Settings){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// Reset restores defaults and removes the persisted state.
func (s *Store) Reset() model.Settings {
	s.mu.Lock()

	next := model.DefaultSettings()
	if s.fileDefaults != nil {
		s.fileDefaults.applyTo(&next)
	}
	next.Normalize()
	applyEnvFallbacks(&next)

	s.current = next
	s.kv.Remove(Key)
	subs := append([]func(model.Settings){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// Subscribe registers a callback invoked after every settings change.
func (s *Store) Subscribe(fn func(model.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// persistLocked writes the current settings to the key-value store.
// Caller holds s.mu.
func (s *Store) persistLocked() {
	data, err := json.Marshal(s.current)
	if err != nil {
		s.logger.Printf("failed to encode settings: %v", err)
		return
	}
	if res := s.kv.Set(Key, string(data)); !res.OK() && res != kv.ResultUnavailable {
		s.logger.Printf("failed to persist settings: %s", res)
	}
}

// applyEnvFallbacks fills still-empty fields from the environment.
// The API key chain matches what the proxy server accepts.
func applyEnvFallbacks(s *model.Settings) {
	if s.APIKey == "" {
		for _, name := range []string{"SPRYCHAT_API_KEY", "OPENROUTE_API_KEY", "OPENAI_API_KEY"} {
			if v := os.Getenv(name); v != "" {
				s.APIKey = v
				break
			}
		}
	}
	if v := os.Getenv("SPRYCHAT_BASE_URL"); v != "" && s.BaseURL == model.DefaultBaseURL {
		s.BaseURL = v
	}
	if v := os.Getenv("SPRYCHAT_MODEL"); v != "" && s.Model == model.DefaultModel {
		s.Model = v
	}
}
