// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package cli implements command-line parsing and the non-TUI surfaces
of sprychat.

# Commands

The default invocation starts the chat TUI. Everything else is routed
through Parse:

  - --plain: a liner-based REPL with slash commands for conversation
    and model management
  - serve: the API proxy server
  - sessions, export, clear: conversation maintenance

# Structure

Parse maps os.Args to a Command plus Args. The handlers hang off App,
which bundles the repository, session controller, upstream client, and
settings store so main stays a thin composition root. Stdout and Stdin
are injectable for tests.
*/
package cli
