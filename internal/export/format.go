// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"

	"github.com/jeranaias/sprychat/internal/model"
)

// =============================================================================
// FORMAT SELECTION
// =============================================================================

// ForFormat returns the exporter for a format name.
// Recognized names: markdown/md, json, html/htm.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch format {
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// Render converts a conversation using the named format and returns the
// content without touching the filesystem. Callers that want a file use
// ExportToFile instead.
func Render(conv *model.Conversation, format string, opts *Options) ([]byte, error) {
	exporter, err := ForFormat(format, opts)
	if err != nil {
		return nil, err
	}
	return exporter.Export(conv)
}
