// promptpilot - a terminal client for the PromptPilot chat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jeranaias/promptpilot/internal/backend"
	"github.com/jeranaias/promptpilot/internal/cli"
	"github.com/jeranaias/promptpilot/internal/config"
	"github.com/jeranaias/promptpilot/internal/conversation"
	"github.com/jeranaias/promptpilot/internal/store"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "promptpilot: %v\n", err)
		os.Exit(1)
	}
}

func run(rawArgs []string) error {
	args := cli.NewArgParser(rawArgs)

	if args.BoolFlag("version") || args.Positional(0) == "version" {
		fmt.Printf("promptpilot %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return nil
	}
	if args.BoolFlag("help") || args.BoolFlag("h") || args.Positional(0) == "help" {
		printUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cfg, args)
	if err := cfg.Validate(); err != nil {
		return err
	}

	dbPath, err := cfg.ResolvedDatabasePath()
	if err != nil {
		return err
	}
	st, err := store.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	client := backend.NewClient(cfg.BaseURL).
		WithTimeouts(cfg.Timeouts.Connect(), cfg.Timeouts.Read()).
		WithUploadTimeout(cfg.Timeouts.Upload()).
		WithRateLimit(cfg.RequestsPerMinute)

	transport := conversation.NewClientTransport(client)
	transport.IdleTimeout = cfg.Timeouts.Idle()
	transport.OverallTimeout = cfg.Timeouts.Overall()

	chat := cli.NewChat(cfg, st, transport)

	// Hot-reload session settings when the config file changes on disk.
	if path, pathErr := config.ConfigPath(); pathErr == nil {
		watcher, watchErr := config.Watch(path, func(next *config.Config) {
			log.Printf("Configuration reloaded from %s", path)
			chat.ApplyConfig(next)
		})
		if watchErr == nil {
			defer watcher.Close()
		}
	}

	return chat.Run()
}

// applyFlags overlays command line flags on the loaded config.
func applyFlags(cfg *config.Config, args *cli.ArgParser) {
	if modelID := args.FlagOrDefault("model", args.Flag("m")); modelID != "" {
		cfg.DefaultModel = modelID
	}
	if agent := args.Flag("agent"); agent != "" {
		cfg.DefaultAgent = strings.ToUpper(agent)
	}
	if baseURL := args.Flag("base-url"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if uid := args.Flag("uid"); uid != "" {
		cfg.UserID = uid
	}
	if db := args.Flag("db"); db != "" {
		cfg.DatabasePath = db
	}
	if args.HasFlag("search") {
		cfg.WebSearch = args.BoolFlag("search")
	}
}

func printUsage() {
	fmt.Println(`promptpilot - AI chat in your terminal

Usage:
  promptpilot [flags]

Flags:
  -m, --model NAME    Model to use (alias like "flash"/"pro" or full ID)
  --agent NAME        Agent persona (general, coding, business, ...)
  --base-url URL      Chat backend endpoint
  --uid ID            User identifier sent to the backend
  --db PATH           History database path
  --search            Enable backend web search
  --version           Print version and exit
  --help              Show this help

Configuration lives at ~/.promptpilot/config.toml; PROMPTPILOT_* environment
variables override it. Run "promptpilot" and type /help for chat commands.`)
}
