// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Message types and the commands that produce them. Session controller
// events are pumped into the program one at a time: each
// SessionEventMsg re-arms the wait command.

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sprychat/internal/catalog"
	"github.com/jeranaias/sprychat/internal/session"
	"github.com/jeranaias/sprychat/internal/upstream"
)

// =============================================================================
// MESSAGES
// =============================================================================

// SessionEventMsg wraps a session controller event as a Bubble Tea message.
type SessionEventMsg struct {
	Event session.Event
}

// ModelsLoadedMsg delivers the model catalog for the selector overlay.
type ModelsLoadedMsg struct {
	Models []upstream.ModelInfo
}

// SendFailedMsg signals that a send was rejected before streaming began.
type SendFailedMsg struct {
	Err error
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForEvent blocks on the controller's event channel and delivers
// the next event. The Update loop re-issues it after every event.
func waitForEvent(ctrl *session.Controller) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ctrl.Events()
		if !ok {
			return nil
		}
		return SessionEventMsg{Event: ev}
	}
}

// fetchModels loads the model catalog; the fetcher degrades to its
// last-known-good list on failure, so the command never errors.
func fetchModels(fetcher *catalog.Fetcher) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return ModelsLoadedMsg{Models: fetcher.Fetch(ctx)}
	}
}

// sendMessage submits the prompt to the controller. Stream progress
// arrives through the event channel; only immediate rejections (not
// bound, already streaming) come back as a message.
func sendMessage(ctrl *session.Controller, content string) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.Send(context.Background(), content); err != nil {
			return SendFailedMsg{Err: err}
		}
		return nil
	}
}
