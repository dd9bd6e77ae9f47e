// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/kestrelab/braid/internal/config"
	"github.com/kestrelab/braid/internal/export"
	"github.com/kestrelab/braid/internal/llm"
	"github.com/kestrelab/braid/internal/logging"
	"github.com/kestrelab/braid/internal/session"
	"github.com/kestrelab/braid/internal/thread"
	"github.com/kestrelab/braid/internal/ui/chat"
	"github.com/kestrelab/braid/internal/ui/styles"
)

// Version is stamped at build time.
var Version = "dev"

// Run executes the parsed command line and returns a process exit code.
func Run(opts *Options) int {
	switch opts.Command {
	case CommandVersion:
		fmt.Println("braid " + Version)
		return 0
	case CommandHelp:
		fmt.Print(Usage)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "braid:", err)
		return 1
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, "braid:", err)
		return 1
	}
	logger, closeLog, err := logging.New(logPath, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "braid:", err)
		return 1
	}
	defer closeLog()

	switch opts.Command {
	case CommandAsk:
		if err := Ask(context.Background(), cfg, opts.Question, logger, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "braid:", err)
			return 1
		}
		return 0
	default:
		if err := runTUI(opts, cfg, logger); err != nil {
			fmt.Fprintln(os.Stderr, "braid:", err)
			return 1
		}
		return 0
	}
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig(opts *Options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.ConfigPath != "" {
		cfg, err = config.LoadFromPath(opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.DBPath != "" {
		cfg.Storage.DBPath = opts.DBPath
	}
	if opts.Model != "" {
		cfg.Model.Default = opts.Model
	}
	return cfg, nil
}

// runTUI wires the store, model client, export writer and coordinator
// into a Bubble Tea program and blocks until it exits.
func runTUI(opts *Options, cfg *config.Config, logger *zap.Logger) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("stdout is not a terminal; use 'braid ask' for non-interactive use")
	}

	dbPath, err := cfg.DBPath()
	if err != nil {
		return err
	}
	store, err := thread.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer store.Close()

	exportDir, err := cfg.ExportDir()
	if err != nil {
		return err
	}
	writer := export.NewWriter(exportDir)

	client := llm.NewClient(llm.Config{
		BaseURL:      cfg.Model.BaseURL,
		APIKey:       cfg.Model.APIKey,
		DefaultModel: cfg.Model.Default,
		Timeout:      cfg.Timeout(),
	}, logger)

	// The dispatcher closes over the program pointer: coordinator events
	// produced before the program starts are dropped, everything after
	// flows through program.Send into the update loop.
	var program *tea.Program
	dispatcher := chat.NewDispatcher(func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	})

	coordinator := session.New(store, client, writer, dispatcher, session.Options{
		Model:       cfg.Model.Default,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
		Theme:       cfg.UI.Theme,
	}, logger)

	model := chat.New(coordinator, styles.ByName(cfg.UI.Theme), logger)
	program = tea.NewProgram(model, tea.WithAltScreen())

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if opts.ConfigPath == "" {
		if path, perr := config.DefaultPath(); perr == nil {
			go func() {
				_ = config.Watch(watchCtx, path, logger, func(c *config.Config) {
					program.Send(chat.ConfigReloadedMsg{Theme: c.UI.Theme})
				})
			}()
		}
	}

	_, err = program.Run()
	return err
}
