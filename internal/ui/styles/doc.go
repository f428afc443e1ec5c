// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the SpryChat TUI.

# Color System (colors.go)

All colors are Lip Gloss AdaptiveColor pairs grouped by role:

  - Indigo - Primary accent, selections, brand
  - Sky - User messages and links
  - Emerald / Amber / Rose - Success, warning, and error states
  - Surface / SurfaceDim / Overlay - Layered backgrounds and borders
  - TextPrimary / TextSecondary / TextMuted - Text hierarchy

# Theme System (theme.go)

Unlike a terminal-detected palette, the active side of each adaptive
pair follows the stored theme setting:

	theme := styles.New(settings.Theme)
	header := theme.Header.Render("SpryChat")

An invalid or unset theme value falls back to termenv background
detection. GlamourStyle exposes the matching markdown style name for
rendering assistant replies.
*/
package styles
