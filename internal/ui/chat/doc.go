// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat implements the interactive terminal chat view.

# Architecture

The package is a single Bubble Tea model composed from bubbles
components: a textarea for input, a viewport for the transcript, and a
spinner shown while a reply streams. Assistant messages are rendered as
markdown through glamour once their stream completes.

The model does not talk to the network itself. It binds a session
controller for streaming, a conversation repository for persistence, a
settings store for preferences, and a model catalog for the selector
overlay. Controller events arrive as SessionEventMsg values through a
channel pump command that re-arms itself after every event.

# Overlays

Four modal overlays are layered over the transcript:

  - conversation picker (ctrl+o): switch with enter, delete with ctrl+d
  - model selector (ctrl+p): cached list shown immediately, refreshed
    in the background
  - settings (ctrl+e): language, theme, and model visibility toggles
  - help (ctrl+h): key reference

Theme changes take effect immediately: the lipgloss palette and the
glamour style are rebuilt from the stored setting, not from terminal
background detection.
*/
package chat
