// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - argument parsing and command routing for sprychat.
package cli

import (
	"fmt"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdPlain
	CmdServe
	CmdSessions
	CmdExport
	CmdClear
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// serve
	Addr string

	// export
	ID     string
	Format string

	// clear
	Yes bool

	// Raw args remaining after the command name.
	Raw []string
}

const usageText = `sprychat - terminal chat client for OpenAI-compatible APIs

Usage:
  sprychat                    Start the chat TUI (default)
  sprychat --plain            Plain line-mode REPL (no alternate screen)
  sprychat serve [--addr A]   Run the API proxy server (default 127.0.0.1:8787)
  sprychat sessions           List saved conversations
  sprychat export <id>        Export a conversation as Markdown
    --json                    Export as JSON instead
    --format md|json|html     Explicit format selection
  sprychat clear              Delete all conversations (asks for confirmation)
    --yes                     Skip the confirmation prompt
  sprychat version            Show version information
  sprychat help               Show this help

REPL commands (inside --plain mode):
  /new            Start a new conversation
  /list           List conversations
  /switch <n|id>  Switch to a conversation by list number or id
  /title <text>   Rename the current conversation
  /model <id>     Switch model
  /quit           Exit

Configuration:
  Settings persist in the data directory (SPRYCHAT_DATA_DIR overrides
  the default). API credentials come from settings or the environment:
  SPRYCHAT_API_KEY, OPENROUTE_API_KEY, OPENAI_API_KEY.

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("sprychat version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and its arguments.
func Parse(argv []string) (Command, Args) {
	var args Args

	if len(argv) == 0 {
		return CmdTUI, args
	}

	// Global flags may precede the command.
	rest := argv
	plain := false
	for len(rest) > 0 && strings.HasPrefix(rest[0], "-") {
		switch rest[0] {
		case "--plain", "-p":
			plain = true
		case "--help", "-h":
			return CmdHelp, args
		case "--version":
			return CmdVersion, args
		}
		rest = rest[1:]
	}
	if plain {
		return CmdPlain, args
	}
	if len(rest) == 0 {
		return CmdTUI, args
	}

	cmd := strings.ToLower(rest[0])
	rest = rest[1:]
	args.Raw = rest

	switch cmd {
	case "tui":
		return CmdTUI, args

	case "serve":
		parser := NewArgParser(rest)
		args.Addr = parser.Flag("addr")
		return CmdServe, args

	case "sessions", "session", "list":
		return CmdSessions, args

	case "export":
		parser := NewArgParser(rest)
		args.ID = parser.Positional(0)
		args.Format = parser.FlagOrDefault("format", "markdown")
		if parser.BoolFlag("json") {
			args.Format = "json"
		}
		return CmdExport, args

	case "clear":
		parser := NewArgParser(rest)
		args.Yes = parser.BoolFlag("yes") || parser.BoolFlag("y")
		return CmdClear, args

	case "version":
		return CmdVersion, args

	case "help":
		return CmdHelp, args

	default:
		fmt.Printf("Unknown command: %s\n\n", cmd)
		return CmdHelp, args
	}
}
