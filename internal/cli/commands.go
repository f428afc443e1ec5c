// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - maintenance command handlers: sessions, export, clear.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/sprychat/internal/catalog"
	"github.com/jeranaias/sprychat/internal/export"
	"github.com/jeranaias/sprychat/internal/i18n"
	"github.com/jeranaias/sprychat/internal/model"
	"github.com/jeranaias/sprychat/internal/session"
	"github.com/jeranaias/sprychat/internal/settings"
	"github.com/jeranaias/sprychat/internal/store"
	"github.com/jeranaias/sprychat/internal/upstream"
	"github.com/jeranaias/sprychat/internal/util"
)

// App bundles the collaborators the command handlers need. Stdout and
// Stdin are injectable for tests.
type App struct {
	Repo     *store.Repository
	Ctrl     *session.Controller
	Client   *upstream.Client
	Fetcher  *catalog.Fetcher
	Settings *settings.Store
	Lang     model.Language

	Stdout io.Writer
	Stdin  io.Reader
}

// =============================================================================
// SESSIONS
// =============================================================================

// HandleSessions lists saved conversations, newest first.
func (a *App) HandleSessions() error {
	list := a.Repo.List()
	if len(list) == 0 {
		fmt.Fprintln(a.Stdout, i18n.T(a.Lang, "conversation.empty"))
		return nil
	}

	current := a.Repo.CurrentID()
	fmt.Fprintf(a.Stdout, "%-3s %-10s %-30s %-5s %s\n", "", "ID", "TITLE", "MSGS", "UPDATED")
	for i, meta := range list {
		marker := " "
		if meta.ID == current {
			marker = "*"
		}
		fmt.Fprintf(a.Stdout, "%d.%s %-10s %-30s %-5d %s\n",
			i+1,
			marker,
			shortID(meta.ID),
			util.TruncateWidth(meta.Title, 30),
			meta.MessageCount,
			meta.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	return nil
}

// =============================================================================
// EXPORT
// =============================================================================

// HandleExport writes one conversation to stdout in the given format.
func (a *App) HandleExport(id, format string) error {
	conv, err := a.findConversation(id)
	if err != nil {
		return err
	}

	content, err := export.Render(conv, format, nil)
	if err != nil {
		return err
	}

	_, err = a.Stdout.Write(content)
	return err
}

// findConversation resolves an ID argument: list number, exact ID, or
// unique ID prefix.
func (a *App) findConversation(arg string) (*model.Conversation, error) {
	if arg == "" {
		return nil, fmt.Errorf("conversation id required")
	}

	list := a.Repo.List()

	// List number as printed by the sessions command.
	var n int
	if _, err := fmt.Sscanf(arg, "%d", &n); err == nil && n >= 1 && n <= len(list) {
		return a.Repo.Get(list[n-1].ID)
	}

	if conv, err := a.Repo.Get(arg); err == nil {
		return conv, nil
	}

	// Unique prefix match.
	var matches []string
	for _, meta := range list {
		if strings.HasPrefix(meta.ID, arg) {
			matches = append(matches, meta.ID)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("conversation %q not found", arg)
	case 1:
		return a.Repo.Get(matches[0])
	default:
		return nil, fmt.Errorf("ambiguous id prefix %q matches %s", arg, strings.Join(matches, ", "))
	}
}

// =============================================================================
// CLEAR
// =============================================================================

// HandleClear deletes every conversation after a confirmation prompt.
// skipConfirm bypasses the prompt (--yes).
func (a *App) HandleClear(skipConfirm bool) error {
	if !skipConfirm {
		fmt.Fprint(a.Stdout, i18n.T(a.Lang, "clear.confirm"))
		reader := bufio.NewReader(a.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(a.Stdout, "Aborted.")
			return nil
		}
	}

	count := a.Repo.Len()
	fresh := a.Repo.ClearAll()
	if a.Ctrl != nil {
		a.Ctrl.Bind(fresh.ID)
	}
	a.Repo.Flush()

	fmt.Fprintf(a.Stdout, "Deleted %d conversation(s).\n", count)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// shortID returns the display form of a conversation ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
