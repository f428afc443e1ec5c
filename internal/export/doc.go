// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversations to portable formats.
//
// # Supported Formats
//
//   - JSON: machine-readable, complete conversation record
//   - Markdown: human-readable with YAML frontmatter metadata
//   - HTML: self-contained page with embedded light/dark styling
//
// # Usage
//
// Render to bytes:
//
//	content, err := export.Render(conv, "markdown", nil)
//
// Or write straight to a timestamped file:
//
//	exporter, _ := export.ForFormat("html", opts)
//	path, err := export.ExportToFile(conv, exporter, opts)
package export
