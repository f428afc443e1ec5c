// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the SpryChat TUI.
// All colors use Lip Gloss AdaptiveColor pairs; which side renders is
// decided by the theme setting, not terminal detection (see theme.go).
package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Indigo - Primary accent, selections, the brand color
var Indigo = lipgloss.AdaptiveColor{Light: "#4F46E5", Dark: "#818CF8"}

// Sky - Secondary accent, user messages, links
var Sky = lipgloss.AdaptiveColor{Light: "#0284C7", Dark: "#38BDF8"}

// Emerald - Success states, free-model badges
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Amber - Warnings, degraded-storage notices
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// Rose - Errors, destructive actions
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// =============================================================================
// SURFACE COLORS
// =============================================================================

// Surface - Main background
var Surface = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}

// SurfaceDim - Header/footer background
var SurfaceDim = lipgloss.AdaptiveColor{Light: "#F4F4F5", Dark: "#181825"}

// Overlay - Borders and separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E4E4E7", Dark: "#313244"}

// =============================================================================
// TEXT COLORS
// =============================================================================

// TextPrimary - Main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#18181B", Dark: "#CDD6F4"}

// TextSecondary - Labels, metadata
var TextSecondary = lipgloss.AdaptiveColor{Light: "#52525B", Dark: "#A6ADC8"}

// TextMuted - Hints, timestamps, placeholders
var TextMuted = lipgloss.AdaptiveColor{Light: "#A1A1AA", Dark: "#6C7086"}

// =============================================================================
// MESSAGE COLORS
// =============================================================================

// User messages - sky tones
var UserLabelFg = lipgloss.AdaptiveColor{Light: "#0369A1", Dark: "#7DD3FC"}
var UserBorder = lipgloss.AdaptiveColor{Light: "#38BDF8", Dark: "#0284C7"}

// Assistant messages - indigo tones
var AssistantLabelFg = lipgloss.AdaptiveColor{Light: "#4338CA", Dark: "#A5B4FC"}
var AssistantBorder = lipgloss.AdaptiveColor{Light: "#A5B4FC", Dark: "#4F46E5"}

// System notices - amber tones
var SystemFg = lipgloss.AdaptiveColor{Light: "#92400E", Dark: "#FDE68A"}
