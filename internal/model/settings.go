// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and settings.
package model

// =============================================================================
// SETTINGS ENUMS
// =============================================================================

// Language selects the UI language.
type Language string

const (
	LanguageChinese Language = "zh"
	LanguageEnglish Language = "en"
)

// Valid reports whether the language is a supported value.
func (l Language) Valid() bool {
	return l == LanguageChinese || l == LanguageEnglish
}

// Theme selects the UI color palette.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether the theme is a supported value.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// =============================================================================
// SETTINGS TYPE
// =============================================================================

// Settings holds the user-facing configuration.
type Settings struct {
	APIKey        string   `json:"apiKey"`
	BaseURL       string   `json:"baseURL"`
	Model         string   `json:"model"`
	Language      Language `json:"language"`
	Theme         Theme    `json:"theme"`
	ShowAllModels bool     `json:"showAllModels"`
}

// DefaultBaseURL is the API endpoint used when none is configured.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// DefaultModel is the model used when none is configured.
const DefaultModel = "google/gemma-2-9b-it:free"

// DefaultSettings returns the settings used for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		APIKey:        "",
		BaseURL:       DefaultBaseURL,
		Model:         DefaultModel,
		Language:      LanguageChinese,
		Theme:         ThemeLight,
		ShowAllModels: false,
	}
}

// Normalize replaces invalid or empty fields with their defaults.
// Stored settings may predate an enum change; normalizing on load keeps
// the rest of the application free of validity checks.
func (s *Settings) Normalize() {
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if !s.Language.Valid() {
		s.Language = LanguageChinese
	}
	if !s.Theme.Valid() {
		s.Theme = ThemeLight
	}
}
