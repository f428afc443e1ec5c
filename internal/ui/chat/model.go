// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/sprychat/internal/catalog"
	"github.com/jeranaias/sprychat/internal/i18n"
	"github.com/jeranaias/sprychat/internal/model"
	"github.com/jeranaias/sprychat/internal/session"
	"github.com/jeranaias/sprychat/internal/settings"
	"github.com/jeranaias/sprychat/internal/store"
	"github.com/jeranaias/sprychat/internal/ui/styles"
	"github.com/jeranaias/sprychat/internal/upstream"
)

// =============================================================================
// OVERLAYS
// =============================================================================

// overlay identifies which modal pane is open over the transcript.
type overlay int

const (
	overlayNone overlay = iota
	overlayPicker
	overlayModels
	overlaySettings
	overlayHelp
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// Collaborators
	repo     *store.Repository
	ctrl     *session.Controller
	client   *upstream.Client
	fetcher  *catalog.Fetcher
	settings *settings.Store

	// Styling
	theme *styles.Theme
	lang  model.Language
	keys  KeyMap

	// UI components
	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer

	// Transcript mirror. Holds the controller's latest snapshot; the
	// messages are copies, never the live ones the stream mutates.
	transcript []*model.Message
	streaming  bool

	// Overlay state
	active      overlay
	pickerItems []model.ConversationMeta
	pickerIndex int
	modelItems  []upstream.ModelInfo
	modelIndex  int
	modelsBusy  bool

	// Transient status line, cleared on the next key press.
	statusMsg string
	lastErr   error

	// Dimensions
	width  int
	height int
	ready  bool
}

// New creates the chat view over an already-bound session controller.
func New(repo *store.Repository, ctrl *session.Controller, client *upstream.Client, fetcher *catalog.Fetcher, st *settings.Store) *Model {
	cfg := st.Current()
	theme := styles.New(cfg.Theme)

	input := textarea.New()
	input.Placeholder = i18n.T(cfg.Language, "chat.input_placeholder")
	input.ShowLineNumbers = false
	input.SetHeight(2)
	input.CharLimit = 0
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = theme.Spinner

	return &Model{
		repo:       repo,
		ctrl:       ctrl,
		client:     client,
		fetcher:    fetcher,
		settings:   st,
		theme:      theme,
		lang:       cfg.Language,
		keys:       DefaultKeyMap(),
		input:      input,
		spin:       spin,
		transcript: ctrl.Messages(),
	}
}

// Init starts the event pump, spinner, and cursor blink.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spin.Tick,
		waitForEvent(m.ctrl),
	)
}

// =============================================================================
// LAYOUT
// =============================================================================

// setSize recomputes component dimensions after a terminal resize.
func (m *Model) setSize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)

	inputHeight := m.input.Height() + 2 // top border + padding
	headerHeight := 1
	statusHeight := 1

	vpHeight := height - inputHeight - headerHeight - statusHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(width - 2)

	m.rebuildRenderer()
	m.refreshTranscript()
}

// rebuildRenderer recreates the glamour renderer for the current width
// and theme. A nil renderer falls back to plain text.
func (m *Model) rebuildRenderer() {
	wrap := m.width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme.GlamourStyle()),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
}

// applyTheme rebuilds styles after a theme setting change.
func (m *Model) applyTheme(setting model.Theme) {
	m.theme = styles.New(setting)
	m.spin.Style = m.theme.Spinner
	m.rebuildRenderer()
	m.refreshTranscript()
}
