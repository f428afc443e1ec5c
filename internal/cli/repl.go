// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - plain line-mode chat loop for terminals where the TUI is
// unwanted (pipes, screen readers, minimal environments).
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/sprychat/internal/catalog"
	"github.com/jeranaias/sprychat/internal/i18n"
	"github.com/jeranaias/sprychat/internal/session"
	"github.com/jeranaias/sprychat/internal/settings"
)

const replHelp = `Commands:
  /new            Start a new conversation
  /list           List conversations
  /switch <n|id>  Switch to a conversation
  /title <text>   Rename the current conversation
  /model <id>     Switch model
  /help           Show this help
  /quit           Exit`

// RunREPL runs the plain chat loop until /quit or EOF.
func (a *App) RunREPL() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if a.Ctrl.BoundID() == "" {
		conv := a.Repo.CreateNew("")
		a.Ctrl.Bind(conv.ID)
	}
	drainEvents(a.Ctrl)

	fmt.Fprintf(a.Stdout, "sprychat %s | model: %s | /help for commands\n",
		Version, catalog.DisplayName(a.Client.GetModel()))

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if a.handleSlashCommand(input) {
				break
			}
			continue
		}

		if err := a.streamExchange(input); err != nil {
			fmt.Fprintf(a.Stdout, "error: %v\n", err)
		}
	}

	a.Ctrl.PersistNow()
	a.Repo.Flush()
	return nil
}

// streamExchange sends one prompt and prints the streamed reply.
// Ctrl+C during the stream cancels it without exiting the loop.
func (a *App) streamExchange(content string) error {
	if err := a.Ctrl.Send(context.Background(), content); err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	var title string
	for {
		select {
		case <-interrupt:
			a.Ctrl.Stop()

		case ev := <-a.Ctrl.Events():
			switch ev.Kind {
			case session.Delta:
				fmt.Fprint(a.Stdout, ev.Content)

			case session.TitleChanged:
				title = ev.Title

			case session.StreamDone:
				fmt.Fprintln(a.Stdout)
				if title != "" {
					fmt.Fprintf(a.Stdout, "(titled: %s)\n", title)
				}
				return nil

			case session.StreamFailed:
				fmt.Fprintln(a.Stdout)
				if errors.Is(ev.Err, context.Canceled) {
					fmt.Fprintln(a.Stdout, i18n.T(a.Lang, "chat.stream_cancelled"))
					return nil
				}
				return ev.Err
			}
		}
	}
}

// handleSlashCommand dispatches a /command line. Returns true to exit.
func (a *App) handleSlashCommand(input string) bool {
	parts := strings.SplitN(input, " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		return true

	case "/help", "/h":
		fmt.Fprintln(a.Stdout, replHelp)

	case "/new":
		conv := a.Repo.CreateNew("")
		a.Ctrl.Bind(conv.ID)
		drainEvents(a.Ctrl)
		fmt.Fprintf(a.Stdout, "New conversation: %s\n", conv.Title)

	case "/list", "/ls":
		a.HandleSessions() //nolint:errcheck // listing never fails

	case "/switch", "/sw":
		a.switchConversation(arg)

	case "/title":
		if arg == "" {
			fmt.Fprintln(a.Stdout, "usage: /title <text>")
			return false
		}
		if err := a.Repo.UpdateTitle(a.Ctrl.BoundID(), arg); err != nil {
			fmt.Fprintf(a.Stdout, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(a.Stdout, "Renamed to: %s\n", arg)

	case "/model":
		if arg == "" {
			fmt.Fprintf(a.Stdout, "Current model: %s\n", a.Client.GetModel())
			return false
		}
		a.switchModel(arg)

	default:
		fmt.Fprintf(a.Stdout, "Unknown command %s (try /help)\n", cmd)
	}
	return false
}

func (a *App) switchConversation(arg string) {
	conv, err := a.findConversation(arg)
	if err != nil {
		fmt.Fprintf(a.Stdout, "error: %v\n", err)
		return
	}
	if err := a.Repo.SwitchTo(conv.ID); err != nil {
		fmt.Fprintf(a.Stdout, "error: %v\n", err)
		return
	}
	a.Ctrl.Bind(conv.ID)
	drainEvents(a.Ctrl)
	fmt.Fprintf(a.Stdout, "Switched to: %s\n", conv.Title)
}

func (a *App) switchModel(id string) {
	a.Ctrl.PersistNow()
	a.Settings.Update(settings.Patch{Model: &id})
	a.Client.SetModel(id)
	if bound := a.Ctrl.BoundID(); bound != "" {
		if err := a.Repo.UpdateModel(bound, id); err != nil {
			fmt.Fprintf(a.Stdout, "error: %v\n", err)
			return
		}
	}
	fmt.Fprintf(a.Stdout, "Model: %s\n", catalog.DisplayName(id))
}

// drainEvents discards buffered controller events. Bind emits a
// transcript reset the REPL has no use for.
func drainEvents(c *session.Controller) {
	for {
		select {
		case <-c.Events():
		default:
			return
		}
	}
}
