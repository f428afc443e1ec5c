// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sprychat/internal/catalog"
	"github.com/jeranaias/sprychat/internal/i18n"
	"github.com/jeranaias/sprychat/internal/model"
	"github.com/jeranaias/sprychat/internal/session"
	"github.com/jeranaias/sprychat/internal/settings"
)

// Update handles all Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		if !m.streaming && !m.modelsBusy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case SessionEventMsg:
		return m.handleSessionEvent(msg.Event)

	case ModelsLoadedMsg:
		m.modelsBusy = false
		cfg := m.settings.Current()
		m.modelItems = catalog.Resolve(msg.Models, cfg.Model, cfg.ShowAllModels)
		m.selectCurrentModel(cfg.Model)
		return m, nil

	case SendFailedMsg:
		m.streaming = false
		m.lastErr = msg.Err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// =============================================================================
// SESSION EVENTS
// =============================================================================

// handleSessionEvent applies a controller event and re-arms the pump.
func (m *Model) handleSessionEvent(ev session.Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case session.TranscriptReset:
		m.transcript = m.ctrl.Messages()
		m.streaming = false
		m.lastErr = nil
		m.refreshTranscript()
		m.viewport.GotoBottom()

	case session.Delta:
		// Deltas may be dropped under load, so the token itself is not
		// applied; each delta re-reads the authoritative snapshot.
		m.transcript = m.ctrl.Messages()
		m.refreshTranscript()
		m.viewport.GotoBottom()

	case session.StreamDone:
		m.streaming = false
		m.transcript = m.ctrl.Messages()
		m.refreshTranscript()
		m.viewport.GotoBottom()

	case session.StreamFailed:
		m.streaming = false
		m.lastErr = ev.Err
		m.transcript = m.ctrl.Messages()
		m.refreshTranscript()

	case session.TitleChanged:
		m.statusMsg = ev.Title
	}

	return m, waitForEvent(m.ctrl)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.statusMsg = ""

	if key.Matches(msg, m.keys.Quit) {
		m.ctrl.PersistNow()
		m.repo.Flush()
		return m, tea.Quit
	}

	if m.active != overlayNone {
		return m.handleOverlayKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Cancel):
		if m.streaming {
			m.ctrl.Stop()
		}
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		conv := m.repo.CreateNew("")
		m.ctrl.Bind(conv.ID)
		return m, nil

	case key.Matches(msg, m.keys.Picker):
		m.openPicker()
		return m, nil

	case key.Matches(msg, m.keys.Models):
		return m.openModels()

	case key.Matches(msg, m.keys.Settings):
		m.active = overlaySettings
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.active = overlayHelp
		return m, nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the composed prompt to the controller.
func (m *Model) submit() (tea.Model, tea.Cmd) {
	if m.streaming {
		return m, nil
	}
	content := strings.TrimSpace(m.input.Value())
	if content == "" {
		return m, nil
	}

	m.input.Reset()
	m.streaming = true
	m.lastErr = nil

	return m, tea.Batch(sendMessage(m.ctrl, content), m.spin.Tick)
}

// =============================================================================
// OVERLAY KEY HANDLING
// =============================================================================

func (m *Model) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Cancel) {
		m.active = overlayNone
		return m, nil
	}

	switch m.active {
	case overlayPicker:
		return m.handlePickerKey(msg)
	case overlayModels:
		return m.handleModelsKey(msg)
	case overlaySettings:
		return m.handleSettingsKey(msg)
	case overlayHelp:
		m.active = overlayNone
	}
	return m, nil
}

func (m *Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.pickerIndex > 0 {
			m.pickerIndex--
		}
	case key.Matches(msg, m.keys.Down):
		if m.pickerIndex < len(m.pickerItems)-1 {
			m.pickerIndex++
		}
	case key.Matches(msg, m.keys.Delete):
		m.deletePicked()
	case key.Matches(msg, m.keys.Submit):
		if m.pickerIndex < len(m.pickerItems) {
			id := m.pickerItems[m.pickerIndex].ID
			if err := m.repo.SwitchTo(id); err == nil {
				m.ctrl.Bind(id)
			}
		}
		m.active = overlayNone
	}
	return m, nil
}

// deletePicked removes the selected conversation and rebinds to
// whatever the repository promoted to current.
func (m *Model) deletePicked() {
	if m.pickerIndex >= len(m.pickerItems) {
		return
	}
	id := m.pickerItems[m.pickerIndex].ID
	if err := m.repo.Delete(id); err != nil {
		m.lastErr = err
		return
	}

	current := m.repo.CurrentID()
	if current == "" {
		conv := m.repo.CreateNew("")
		current = conv.ID
	}
	if id == m.ctrl.BoundID() {
		m.ctrl.Bind(current)
	}

	m.pickerItems = m.repo.List()
	if m.pickerIndex >= len(m.pickerItems) {
		m.pickerIndex = len(m.pickerItems) - 1
	}
	if m.pickerIndex < 0 {
		m.pickerIndex = 0
	}
}

func (m *Model) handleModelsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.modelIndex > 0 {
			m.modelIndex--
		}
	case key.Matches(msg, m.keys.Down):
		if m.modelIndex < len(m.modelItems)-1 {
			m.modelIndex++
		}
	case key.Matches(msg, m.keys.Submit):
		m.applySelectedModel()
		m.active = overlayNone
	}
	return m, nil
}

// applySelectedModel persists the model choice and applies it to the
// live client and the bound conversation.
func (m *Model) applySelectedModel() {
	if m.modelIndex >= len(m.modelItems) {
		return
	}
	id := m.modelItems[m.modelIndex].ID

	// The transcript is written durably before the model changes, so
	// the exchange so far is never attributed to the new model.
	m.ctrl.PersistNow()

	m.settings.Update(settings.Patch{Model: &id})
	m.client.SetModel(id)
	if bound := m.ctrl.BoundID(); bound != "" {
		if err := m.repo.UpdateModel(bound, id); err != nil {
			m.lastErr = err
		}
	}
	m.statusMsg = catalog.DisplayName(id)
}

func (m *Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "l":
		m.toggleLanguage()
	case "t":
		m.toggleTheme()
	case "a":
		show := !m.settings.Current().ShowAllModels
		m.settings.Update(settings.Patch{ShowAllModels: &show})
	}
	return m, nil
}

func (m *Model) toggleLanguage() {
	cfg := m.settings.Current()
	lang := model.LanguageChinese
	if cfg.Language == model.LanguageChinese {
		lang = model.LanguageEnglish
	}
	m.settings.Update(settings.Patch{Language: &lang})
	m.lang = lang
	m.repo.SetLanguage(lang)
	m.input.Placeholder = i18n.T(lang, "chat.input_placeholder")
}

func (m *Model) toggleTheme() {
	cfg := m.settings.Current()
	next := model.ThemeDark
	if cfg.Theme == model.ThemeDark {
		next = model.ThemeLight
	}
	m.settings.Update(settings.Patch{Theme: &next})
	m.applyTheme(next)
}

// =============================================================================
// OVERLAY OPENERS
// =============================================================================

func (m *Model) openPicker() {
	m.pickerItems = m.repo.List()
	m.pickerIndex = 0
	bound := m.ctrl.BoundID()
	for i, meta := range m.pickerItems {
		if meta.ID == bound {
			m.pickerIndex = i
			break
		}
	}
	m.active = overlayPicker
}

func (m *Model) openModels() (tea.Model, tea.Cmd) {
	cfg := m.settings.Current()
	m.modelItems = catalog.Resolve(m.fetcher.LastKnown(), cfg.Model, cfg.ShowAllModels)
	m.selectCurrentModel(cfg.Model)
	m.modelsBusy = true
	m.active = overlayModels
	return m, tea.Batch(fetchModels(m.fetcher), m.spin.Tick)
}

// selectCurrentModel positions the cursor on the configured model.
func (m *Model) selectCurrentModel(selected string) {
	m.modelIndex = 0
	for i, info := range m.modelItems {
		if info.ID == selected {
			m.modelIndex = i
			break
		}
	}
}
