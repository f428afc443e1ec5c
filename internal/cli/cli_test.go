// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/sprychat/internal/kv"
	"github.com/jeranaias/sprychat/internal/model"
	"github.com/jeranaias/sprychat/internal/session"
	"github.com/jeranaias/sprychat/internal/settings"
	"github.com/jeranaias/sprychat/internal/store"
	"github.com/jeranaias/sprychat/internal/upstream"
)

// =============================================================================
// PARSE
// =============================================================================

func TestParse_Commands(t *testing.T) {
	cases := []struct {
		argv []string
		want Command
	}{
		{nil, CmdTUI},
		{[]string{"tui"}, CmdTUI},
		{[]string{"--plain"}, CmdPlain},
		{[]string{"-p"}, CmdPlain},
		{[]string{"serve"}, CmdServe},
		{[]string{"sessions"}, CmdSessions},
		{[]string{"session"}, CmdSessions},
		{[]string{"export", "abc"}, CmdExport},
		{[]string{"clear"}, CmdClear},
		{[]string{"version"}, CmdVersion},
		{[]string{"help"}, CmdHelp},
		{[]string{"--help"}, CmdHelp},
		{[]string{"bogus"}, CmdHelp},
	}

	for _, tc := range cases {
		cmd, _ := Parse(tc.argv)
		if cmd != tc.want {
			t.Errorf("Parse(%v) = %v, want %v", tc.argv, cmd, tc.want)
		}
	}
}

func TestParse_ServeAddr(t *testing.T) {
	_, args := Parse([]string{"serve", "--addr", "0.0.0.0:9000"})
	if args.Addr != "0.0.0.0:9000" {
		t.Errorf("Addr = %q, want %q", args.Addr, "0.0.0.0:9000")
	}
}

func TestParse_ExportFormat(t *testing.T) {
	_, args := Parse([]string{"export", "abc123"})
	if args.ID != "abc123" || args.Format != "markdown" {
		t.Errorf("got id=%q format=%q, want abc123/markdown", args.ID, args.Format)
	}

	_, args = Parse([]string{"export", "abc123", "--json"})
	if args.Format != "json" {
		t.Errorf("--json: format = %q, want json", args.Format)
	}

	_, args = Parse([]string{"export", "abc123", "--format", "html"})
	if args.Format != "html" {
		t.Errorf("--format html: format = %q", args.Format)
	}
}

func TestParse_ClearYes(t *testing.T) {
	_, args := Parse([]string{"clear", "--yes"})
	if !args.Yes {
		t.Error("--yes not parsed")
	}
}

// =============================================================================
// ARG PARSER
// =============================================================================

func TestArgParser_Formats(t *testing.T) {
	p := NewArgParser([]string{"abc", "--format", "json", "--since=2024-01-01", "--yes", "-v"})

	if p.Positional(0) != "abc" {
		t.Errorf("Positional(0) = %q", p.Positional(0))
	}
	if p.Flag("format") != "json" {
		t.Errorf("Flag(format) = %q", p.Flag("format"))
	}
	if p.Flag("since") != "2024-01-01" {
		t.Errorf("Flag(since) = %q", p.Flag("since"))
	}
	if !p.BoolFlag("yes") || !p.BoolFlag("v") {
		t.Error("boolean flags not parsed")
	}
	if p.Flag("missing") != "" || p.BoolFlag("missing") {
		t.Error("missing flags should be zero-valued")
	}
}

func TestArgParser_ExplicitBool(t *testing.T) {
	p := NewArgParser([]string{"--json=false", "--color=true"})
	if p.BoolFlag("json") {
		t.Error("--json=false parsed as true")
	}
	if !p.BoolFlag("color") {
		t.Error("--color=true parsed as false")
	}
}

func TestArgParser_FlagOrDefault(t *testing.T) {
	p := NewArgParser([]string{"--format", "md"})
	if got := p.FlagOrDefault("format", "json"); got != "md" {
		t.Errorf("FlagOrDefault = %q, want md", got)
	}
	if got := p.FlagOrDefault("output", "stdout"); got != "stdout" {
		t.Errorf("FlagOrDefault default = %q, want stdout", got)
	}
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	kvStore, err := kv.Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	t.Cleanup(func() { kvStore.Close() })

	repo := store.New(kvStore, model.LanguageEnglish, log.New(io.Discard, "", 0))
	repo.Load()

	var out bytes.Buffer
	return &App{
		Repo:   repo,
		Lang:   model.LanguageEnglish,
		Stdout: &out,
		Stdin:  strings.NewReader(""),
	}, &out
}

func seedConversation(t *testing.T, app *App, title string) *model.Conversation {
	t.Helper()
	conv := app.Repo.CreateNew("")
	if err := app.Repo.UpdateTitle(conv.ID, title); err != nil {
		t.Fatalf("title: %v", err)
	}
	msgs := []*model.Message{
		model.NewUserMessage("hello"),
		model.NewMessage(model.RoleAssistant, "hi there"),
	}
	if err := app.Repo.UpdateMessages(conv.ID, msgs); err != nil {
		t.Fatalf("seed messages: %v", err)
	}
	return conv
}

func TestHandleSessions_ListsConversations(t *testing.T) {
	app, out := newTestApp(t)
	seedConversation(t, app, "First topic")
	seedConversation(t, app, "Second topic")

	if err := app.HandleSessions(); err != nil {
		t.Fatalf("sessions: %v", err)
	}

	s := out.String()
	if !strings.Contains(s, "First topic") || !strings.Contains(s, "Second topic") {
		t.Errorf("listing missing titles:\n%s", s)
	}
	// current conversation is marked
	if !strings.Contains(s, "*") {
		t.Error("current conversation not marked")
	}
}

func TestHandleSessions_Empty(t *testing.T) {
	app, out := newTestApp(t)
	if err := app.HandleSessions(); err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if out.Len() == 0 {
		t.Error("no output for empty listing")
	}
}

func TestHandleExport_Markdown(t *testing.T) {
	app, out := newTestApp(t)
	conv := seedConversation(t, app, "Export me")

	if err := app.HandleExport(conv.ID, "markdown"); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out.String(), "# Export me") {
		t.Errorf("markdown export missing title:\n%s", out.String())
	}
}

func TestHandleExport_JSON(t *testing.T) {
	app, out := newTestApp(t)
	conv := seedConversation(t, app, "Export me")

	if err := app.HandleExport(conv.ID, "json"); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out.String(), `"id"`) {
		t.Error("JSON export missing fields")
	}
}

func TestHandleExport_ByListNumber(t *testing.T) {
	app, out := newTestApp(t)
	seedConversation(t, app, "Numbered")

	if err := app.HandleExport("1", "markdown"); err != nil {
		t.Fatalf("export by number: %v", err)
	}
	if !strings.Contains(out.String(), "Numbered") {
		t.Error("export by list number picked the wrong conversation")
	}
}

func TestHandleExport_UnknownID(t *testing.T) {
	app, _ := newTestApp(t)
	if err := app.HandleExport("nope", "markdown"); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestFindConversation_PrefixMatch(t *testing.T) {
	app, _ := newTestApp(t)
	conv := seedConversation(t, app, "Prefixed")

	got, err := app.findConversation(conv.ID[:6])
	if err != nil {
		t.Fatalf("prefix lookup: %v", err)
	}
	if got.ID != conv.ID {
		t.Errorf("resolved %q, want %q", got.ID, conv.ID)
	}
}

func TestFindConversation_AmbiguousPrefixListsCandidates(t *testing.T) {
	app, _ := newTestApp(t)
	a := seedConversation(t, app, "First")
	b := seedConversation(t, app, "Second")

	// Every conversation ID starts with the same prefix.
	_, err := app.findConversation("conv_")
	if err == nil {
		t.Fatal("ambiguous prefix should error")
	}
	for _, id := range []string{a.ID, b.ID} {
		if !strings.Contains(err.Error(), id) {
			t.Errorf("error %q does not name candidate %s", err, id)
		}
	}
}

func TestHandleClear_RequiresConfirmation(t *testing.T) {
	app, out := newTestApp(t)
	seedConversation(t, app, "Keep me")
	app.Stdin = strings.NewReader("n\n")

	if err := app.HandleClear(false); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if app.Repo.Len() != 1 {
		t.Error("conversation deleted despite declined confirmation")
	}
	if !strings.Contains(out.String(), "Aborted") {
		t.Error("no abort notice printed")
	}
}

func TestHandleClear_Confirmed(t *testing.T) {
	app, out := newTestApp(t)
	seedConversation(t, app, "Doomed")
	seedConversation(t, app, "Also doomed")
	app.Stdin = strings.NewReader("y\n")

	if err := app.HandleClear(false); err != nil {
		t.Fatalf("clear: %v", err)
	}
	// ClearAll leaves exactly one fresh conversation behind.
	if app.Repo.Len() != 1 {
		t.Errorf("conversations after clear = %d, want 1", app.Repo.Len())
	}
	if !strings.Contains(out.String(), "Deleted 2") {
		t.Errorf("deletion count missing:\n%s", out.String())
	}
}

func TestHandleClear_SkipConfirm(t *testing.T) {
	app, _ := newTestApp(t)
	seedConversation(t, app, "Doomed")

	if err := app.HandleClear(true); err != nil {
		t.Fatalf("clear --yes: %v", err)
	}
	if app.Repo.Len() != 1 {
		t.Errorf("conversations after clear = %d, want 1", app.Repo.Len())
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func TestSwitchModel_PersistsTranscriptFirst(t *testing.T) {
	kvStore, err := kv.Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	t.Cleanup(func() { kvStore.Close() })

	logger := log.New(io.Discard, "", 0)
	repo := store.New(kvStore, model.LanguageEnglish, logger)
	repo.Load()
	st := settings.NewStore(kvStore, logger)
	st.Load()
	client := upstream.NewClient(upstream.Config{Model: "old-model"})

	var out bytes.Buffer
	app := &App{
		Repo:     repo,
		Ctrl:     session.New(repo, client, logger),
		Client:   client,
		Settings: st,
		Lang:     model.LanguageEnglish,
		Stdout:   &out,
	}

	conv := app.Repo.CreateNew("")
	app.Repo.CacheMessages(conv.ID, []*model.Message{model.NewUserMessage("so far")})
	app.Ctrl.Bind(conv.ID)

	app.switchModel("openai/gpt-4o-mini")

	got, err := app.Repo.Get(conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "so far" {
		t.Errorf("durable messages = %+v, want the transcript written before the switch", got.Messages)
	}
	if app.Client.GetModel() != "openai/gpt-4o-mini" {
		t.Errorf("client model = %q", app.Client.GetModel())
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abcdefghijkl"); got != "abcdefgh" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID short input = %q", got)
	}
}
