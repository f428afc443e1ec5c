// sprychat - terminal chat client for OpenAI-compatible APIs.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sprychat/internal/catalog"
	"github.com/jeranaias/sprychat/internal/cli"
	"github.com/jeranaias/sprychat/internal/kv"
	"github.com/jeranaias/sprychat/internal/model"
	"github.com/jeranaias/sprychat/internal/server"
	"github.com/jeranaias/sprychat/internal/session"
	"github.com/jeranaias/sprychat/internal/settings"
	"github.com/jeranaias/sprychat/internal/store"
	"github.com/jeranaias/sprychat/internal/ui/chat"
	"github.com/jeranaias/sprychat/internal/upstream"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	switch cmd {
	case cli.CmdTUI:
		runTUI()
	case cli.CmdPlain:
		runPlain()
	case cli.CmdServe:
		runServe(args)
	case cli.CmdSessions:
		runMaintenance(func(app *cli.App) error { return app.HandleSessions() })
	case cli.CmdExport:
		runMaintenance(func(app *cli.App) error { return app.HandleExport(args.ID, args.Format) })
	case cli.CmdClear:
		runMaintenance(func(app *cli.App) error { return app.HandleClear(args.Yes) })
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	}
}

// =============================================================================
// COMPOSITION
// =============================================================================

// buildApp wires the full application stack. The returned cleanup
// flushes pending writes and closes the store.
func buildApp(logger *log.Logger) (*cli.App, func()) {
	kvStore := kv.OpenDefault(logger)

	st := settings.NewStore(kvStore, logger)
	if path, err := settings.ConfigPath(); err == nil {
		switch fc, err := settings.LoadFile(path); {
		case err != nil:
			logger.Printf("config file ignored: %v", err)
		case fc == nil:
			// First run: write a commented template the user can edit.
			if err := settings.SaveFile(&settings.FileConfig{}, path); err != nil {
				logger.Printf("config template not written: %v", err)
			}
		default:
			st.SetFileDefaults(fc)
		}
	}
	cfg := st.Load()

	repo := store.New(kvStore, cfg.Language, logger)
	repo.Load()

	client := upstream.NewClient(upstream.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})

	ctrl := session.New(repo, client, logger)
	fetcher := catalog.NewFetcher(client, logger)

	app := &cli.App{
		Repo:     repo,
		Ctrl:     ctrl,
		Client:   client,
		Fetcher:  fetcher,
		Settings: st,
		Lang:     cfg.Language,
		Stdout:   os.Stdout,
		Stdin:    os.Stdin,
	}

	cleanup := func() {
		repo.Flush()
		kvStore.Close()
	}
	return app, cleanup
}

// fileLogger logs to sprychat.log in the data directory so log output
// never corrupts the alternate screen. Falls back to discarding.
func fileLogger() *log.Logger {
	dir := kv.DataDir()
	if dir == "" {
		return log.New(io.Discard, "", 0)
	}
	f, err := os.OpenFile(filepath.Join(dir, "sprychat.log"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return log.New(io.Discard, "", 0)
	}
	return log.New(f, "", log.LstdFlags)
}

// bindCurrent points the controller at the current conversation,
// creating one on first run.
func bindCurrent(app *cli.App) {
	id := app.Repo.CurrentID()
	if id == "" {
		id = app.Repo.CreateNew("").ID
	}
	app.Ctrl.Bind(id)
}

// =============================================================================
// SURFACES
// =============================================================================

func runTUI() {
	logger := fileLogger()
	app, cleanup := buildApp(logger)
	defer cleanup()

	bindCurrent(app)

	m := chat.New(app.Repo, app.Ctrl, app.Client, app.Fetcher, app.Settings)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runPlain() {
	logger := fileLogger()
	app, cleanup := buildApp(logger)
	defer cleanup()

	bindCurrent(app)

	if err := app.RunREPL(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runMaintenance(fn func(*cli.App) error) {
	logger := log.New(io.Discard, "", 0)
	app, cleanup := buildApp(logger)
	defer cleanup()

	if err := fn(app); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args cli.Args) {
	logger := log.New(os.Stdout, "", 0)

	// The proxy resolves credentials per request from headers and the
	// environment; settings only seed the environment so a configured
	// key works without headers. Explicit environment always wins.
	kvStore := kv.OpenDefault(logger)
	defer kvStore.Close()

	st := settings.NewStore(kvStore, logger)
	configPath, pathErr := settings.ConfigPath()
	if pathErr == nil {
		if fc, err := settings.LoadFile(configPath); err == nil {
			st.SetFileDefaults(fc)
		} else {
			logger.Printf("config file ignored: %v", err)
		}
	}
	seedProxyEnv(st.Load())
	st.Subscribe(seedProxyEnv)

	if pathErr == nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := st.Watch(ctx, configPath); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("config watch stopped: %v", err)
			}
		}()
	}

	srv := server.New(args.Addr).WithLogger(logger)
	if err := srv.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// seedProxyEnv exports configured values for the proxy's per-request
// env fallbacks without clobbering what the operator set explicitly.
func seedProxyEnv(cfg model.Settings) {
	setIfEmpty := func(key, value string) {
		if value != "" && os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	setIfEmpty("SPRYCHAT_API_KEY", cfg.APIKey)
	setIfEmpty("SPRYCHAT_BASE_URL", cfg.BaseURL)
	setIfEmpty("SPRYCHAT_MODEL", cfg.Model)
}
