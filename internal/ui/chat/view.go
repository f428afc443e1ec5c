// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/sprychat/internal/catalog"
	"github.com/jeranaias/sprychat/internal/i18n"
	"github.com/jeranaias/sprychat/internal/model"
	"github.com/jeranaias/sprychat/internal/util"
)

// View renders the full terminal frame.
func (m *Model) View() string {
	if !m.ready {
		return ""
	}

	if m.active != overlayNone {
		return m.renderOverlay()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

// =============================================================================
// HEADER AND STATUS BAR
// =============================================================================

func (m *Model) renderHeader() string {
	title := i18n.DefaultTitle(m.lang)
	modelID := m.client.GetModel()
	if conv, ok := m.repo.Current(); ok {
		title = conv.Title
		if conv.Model != "" {
			modelID = conv.Model
		}
	}

	left := m.theme.HeaderTitle.Render(util.TruncateWidth(title, m.width/2))
	right := m.theme.StatusValue.Render(catalog.DisplayName(modelID))
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m *Model) renderStatusBar() string {
	if m.lastErr != nil {
		return m.theme.ErrorBox.Width(m.width - 2).Render(m.lastErr.Error())
	}
	if m.statusMsg != "" {
		return m.theme.StatusBar.Width(m.width).Render(m.statusMsg)
	}

	hints := []struct{ key, desc string }{
		{"enter", "send"},
		{"ctrl+n", "new"},
		{"ctrl+o", "chats"},
		{"ctrl+p", "model"},
		{"ctrl+e", "settings"},
		{"ctrl+h", "help"},
		{"ctrl+c", "quit"},
	}
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, m.theme.HelpKey.Render(h.key)+" "+m.theme.HelpDesc.Render(h.desc))
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshTranscript re-renders the transcript into the viewport.
func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
}

func (m *Model) renderTranscript() string {
	if len(m.transcript) == 0 && !m.streaming {
		return m.theme.EmptyHint.Render(i18n.T(m.lang, "conversation.empty"))
	}

	var b strings.Builder
	for i, msg := range m.transcript {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	if m.streaming && !m.hasStreamingReply() {
		b.WriteString("\n")
		b.WriteString(m.spin.View())
		b.WriteString(" ")
		b.WriteString(m.theme.SystemNote.Render(i18n.T(m.lang, "chat.thinking")))
		b.WriteString("\n")
	}
	return b.String()
}

// hasStreamingReply reports whether the transcript already contains a
// partially streamed assistant message, in which case the thinking
// indicator is redundant.
func (m *Model) hasStreamingReply() bool {
	for _, msg := range m.transcript {
		if msg.IsStreaming && !msg.IsEmpty() {
			return true
		}
	}
	return false
}

func (m *Model) renderMessage(msg *model.Message) string {
	content := msg.GetDisplayContent()

	switch msg.Role {
	case model.RoleUser:
		label := m.theme.UserLabel.Render(msg.Role.DisplayName())
		return label + "\n" + m.theme.UserMessage.Width(m.width-4).Render(content)

	case model.RoleAssistant:
		label := m.theme.AssistantLabel.Render(msg.Role.DisplayName())
		body := content
		// Partial markdown renders badly mid-stream; format only once
		// the message is complete.
		if m.renderer != nil && !msg.IsStreaming {
			if rendered, err := m.renderer.Render(content); err == nil {
				body = strings.TrimRight(rendered, "\n")
			}
		}
		if msg.IsStreaming {
			body += m.theme.StreamCursor.Render("▌")
		}
		return label + "\n" + body

	default:
		return m.theme.SystemNote.Render(content)
	}
}

// =============================================================================
// OVERLAYS
// =============================================================================

func (m *Model) renderOverlay() string {
	var body string
	switch m.active {
	case overlayPicker:
		body = m.renderPicker()
	case overlayModels:
		body = m.renderModels()
	case overlaySettings:
		body = m.renderSettings()
	case overlayHelp:
		body = m.renderHelp()
	}

	box := m.theme.OverlayBox.Width(min(m.width-4, 72)).Render(body)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m *Model) renderPicker() string {
	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render(i18n.T(m.lang, "picker.title")))
	b.WriteString("\n")

	if len(m.pickerItems) == 0 {
		b.WriteString(m.theme.ListMeta.Render(i18n.T(m.lang, "conversation.empty")))
		return b.String()
	}

	for i, meta := range m.pickerItems {
		line := util.TruncateWidth(meta.Title, 40)
		count := m.theme.ListMeta.Render(fmt.Sprintf(" (%d)", meta.MessageCount))
		if i == m.pickerIndex {
			b.WriteString(m.theme.ListSelected.Render("> " + line))
		} else {
			b.WriteString(m.theme.ListItem.Render(line))
		}
		b.WriteString(count)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.HelpDesc.Render("enter switch · ctrl+d delete · esc close"))
	return b.String()
}

func (m *Model) renderModels() string {
	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render(i18n.T(m.lang, "models.title")))
	b.WriteString("\n")

	if m.modelsBusy && len(m.modelItems) == 0 {
		b.WriteString(m.spin.View())
		b.WriteString(" ")
		b.WriteString(m.theme.ListMeta.Render(i18n.T(m.lang, "models.loading")))
		return b.String()
	}

	// Keep the cursor visible inside a window of the full list.
	const window = 12
	start := 0
	if m.modelIndex >= window {
		start = m.modelIndex - window + 1
	}
	end := min(start+window, len(m.modelItems))

	for i := start; i < end; i++ {
		info := m.modelItems[i]
		line := util.TruncateWidth(catalog.DisplayName(info.ID), 48)
		if i == m.modelIndex {
			b.WriteString(m.theme.ListSelected.Render("> " + line))
		} else {
			b.WriteString(m.theme.ListItem.Render(line))
		}
		if info.Pricing.IsFree() {
			b.WriteString(" ")
			b.WriteString(m.theme.FreeBadge.Render("free"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.HelpDesc.Render("enter select · esc close"))
	return b.String()
}

func (m *Model) renderSettings() string {
	cfg := m.settings.Current()

	row := func(label, value string) string {
		return m.theme.SettingsLabel.Render(label) + m.theme.SettingsValue.Render(value) + "\n"
	}

	showAll := "off"
	if cfg.ShowAllModels {
		showAll = "on"
	}

	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render(i18n.T(m.lang, "settings.title")))
	b.WriteString("\n")
	b.WriteString(row("[l] language", string(cfg.Language)))
	b.WriteString(row("[t] theme", string(cfg.Theme)))
	b.WriteString(row("[a] all models", showAll))
	b.WriteString(row("model", catalog.DisplayName(cfg.Model)))
	b.WriteString("\n")
	b.WriteString(m.theme.HelpDesc.Render("esc close"))
	return b.String()
}

func (m *Model) renderHelp() string {
	rows := []struct{ key, desc string }{
		{"enter", "send message"},
		{"esc", "cancel stream / close overlay"},
		{"ctrl+n", "new conversation"},
		{"ctrl+o", "conversation picker"},
		{"ctrl+d", "delete (in picker)"},
		{"ctrl+p", "model selector"},
		{"ctrl+e", "settings"},
		{"pgup/pgdn", "scroll transcript"},
		{"ctrl+c", "quit"},
	}

	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render("Keys"))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(m.theme.HelpKey.Width(12).Render(r.key))
		b.WriteString(m.theme.HelpDesc.Render(r.desc))
		b.WriteString("\n")
	}
	return b.String()
}
