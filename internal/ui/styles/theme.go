// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/sprychat/internal/model"
)

// Theme holds all the styled components for the application.
// The light/dark side of every adaptive color is selected from the
// stored theme setting so the palette follows the user, not the
// terminal emulator.
type Theme struct {
	IsDark bool

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER AND STATUS BAR
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	StatusBar   lipgloss.Style
	StatusKey   lipgloss.Style
	StatusValue lipgloss.Style

	// ==========================================================================
	// TRANSCRIPT
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserMessage    lipgloss.Style
	SystemNote     lipgloss.Style
	StreamCursor   lipgloss.Style
	EmptyHint      lipgloss.Style

	// ==========================================================================
	// INPUT AREA
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
	Placeholder    lipgloss.Style

	// ==========================================================================
	// OVERLAYS: CONVERSATION PICKER, MODEL SELECTOR, SETTINGS
	// ==========================================================================

	OverlayBox    lipgloss.Style
	OverlayTitle  lipgloss.Style
	ListItem      lipgloss.Style
	ListSelected  lipgloss.Style
	ListMeta      lipgloss.Style
	FreeBadge     lipgloss.Style
	SettingsLabel lipgloss.Style
	SettingsValue lipgloss.Style

	// ==========================================================================
	// FEEDBACK
	// ==========================================================================

	Spinner  lipgloss.Style
	ErrorBox lipgloss.Style
	Warning  lipgloss.Style
	HelpKey  lipgloss.Style
	HelpDesc lipgloss.Style
}

// New creates a theme for the given setting. An invalid value falls
// back to terminal background detection.
func New(setting model.Theme) *Theme {
	var dark bool
	switch setting {
	case model.ThemeDark:
		dark = true
	case model.ThemeLight:
		dark = false
	default:
		dark = termenv.HasDarkBackground()
	}

	// Adaptive colors resolve against the default renderer, so pin its
	// background to the chosen palette before styles are built.
	lipgloss.SetHasDarkBackground(dark)

	t := &Theme{IsDark: dark}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Header and status bar
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Indigo).
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusKey = lipgloss.NewStyle().
		Foreground(Indigo).
		Bold(true)

	t.StatusValue = lipgloss.NewStyle().
		Foreground(TextSecondary)

	// Transcript
	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(UserLabelFg)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(AssistantLabelFg)

	t.UserMessage = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBorder).
		PaddingLeft(1)

	t.SystemNote = lipgloss.NewStyle().
		Foreground(SystemFg).
		Italic(true)

	t.StreamCursor = lipgloss.NewStyle().
		Foreground(Indigo).
		Bold(true)

	t.EmptyHint = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		Padding(1, 2)

	// Input area
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Sky).
		Bold(true)

	t.Placeholder = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	// Overlays
	t.OverlayBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Indigo).
		Padding(1, 2)

	t.OverlayTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Indigo).
		MarginBottom(1)

	t.ListItem = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)

	t.ListSelected = lipgloss.NewStyle().
		Foreground(Indigo).
		Bold(true)

	t.ListMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.FreeBadge = lipgloss.NewStyle().
		Foreground(Emerald)

	t.SettingsLabel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Width(14)

	t.SettingsValue = lipgloss.NewStyle().
		Foreground(TextPrimary)

	// Feedback
	t.Spinner = lipgloss.NewStyle().
		Foreground(Indigo)

	t.ErrorBox = lipgloss.NewStyle().
		Foreground(Rose).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(Rose).
		PaddingLeft(1)

	t.Warning = lipgloss.NewStyle().
		Foreground(Amber)

	t.HelpKey = lipgloss.NewStyle().
		Foreground(Sky).
		Bold(true)

	t.HelpDesc = lipgloss.NewStyle().
		Foreground(TextMuted)
}

// SetSize updates the theme dimensions for layout calculations.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GlamourStyle returns the glamour standard style name matching the
// theme's palette.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}
