// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings manages the user settings lifecycle.
package settings

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/sprychat/internal/kv"
	"github.com/jeranaias/sprychat/internal/model"
	"github.com/jeranaias/sprychat/internal/util"
)

// =============================================================================
// FILE CONFIG
// =============================================================================

// FileConfig is the optional TOML config file. It seeds defaults for
// fields the user has never changed in the app itself; persisted state
// always wins over the file.
type FileConfig struct {
	APIKey        string `toml:"api_key"`
	BaseURL       string `toml:"base_url"`
	Model         string `toml:"model"`
	Language      string `toml:"language"`
	Theme         string `toml:"theme"`
	ShowAllModels *bool  `toml:"show_all_models"`
}

// ConfigPath returns the path of the TOML config file.
func ConfigPath() (string, error) {
	dir := kv.DataDir()
	if dir == "" {
		return "", fmt.Errorf("no config directory available")
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadFile reads the TOML config file at path. A missing file is not
// an error and returns nil.
func LoadFile(path string) (*FileConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	// SECURITY: Config may hold an API key; keep it owner-only.
	if info, err := os.Stat(path); err == nil && info.Mode().Perm() != 0600 {
		os.Chmod(path, 0600)
	}

	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return &fc, nil
}

// SaveFile writes the TOML config file atomically with 0600
// permissions. The file may hold an API key, so a crash must never
// leave a partial or world-readable copy behind.
func SaveFile(fc *FileConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# sprychat configuration file\n")
	buf.WriteString("# Values here seed defaults; in-app settings take precedence.\n\n")
	if err := toml.NewEncoder(&buf).Encode(fc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyTo overwrites still-default fields of s with file values.
func (fc *FileConfig) applyTo(s *model.Settings) {
	if fc == nil {
		return
	}
	if fc.APIKey != "" && s.APIKey == "" {
		s.APIKey = fc.APIKey
	}
	if fc.BaseURL != "" && s.BaseURL == model.DefaultBaseURL {
		s.BaseURL = fc.BaseURL
	}
	if fc.Model != "" && s.Model == model.DefaultModel {
		s.Model = fc.Model
	}
	if fc.Language != "" {
		if lang := model.Language(fc.Language); lang.Valid() {
			s.Language = lang
		}
	}
	if fc.Theme != "" {
		if theme := model.Theme(fc.Theme); theme.Valid() {
			s.Theme = theme
		}
	}
	if fc.ShowAllModels != nil {
		s.ShowAllModels = *fc.ShowAllModels
	}
}

// =============================================================================
// FILE WATCHING
// =============================================================================

// watchDebounce coalesces the burst of events editors emit per save.
const watchDebounce = 250 * time.Millisecond

// Watch re-reads the config file whenever it changes and re-resolves
// the settings layers. Used by server mode; the TUI changes settings
// in-app instead. Blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files by
	// rename, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Printf("watch error: %v", err)

		case <-reload:
			fc, err := LoadFile(path)
			if err != nil {
				s.logger.Printf("config reload failed: %v", err)
				continue
			}
			s.SetFileDefaults(fc)
			next := s.Load()
			s.mu.Lock()
			subs := append([]func(model.Settings){}, s.subscribers...)
			s.mu.Unlock()
			for _, fn := range subs {
				fn(next)
			}
			s.logger.Printf("config reloaded from %s", path)
		}
	}
}
