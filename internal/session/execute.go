// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelab/braid/internal/commands"
	"github.com/kestrelab/braid/internal/thread"
)

// Execute runs one parsed command. Malformed input and recoverable
// failures are reported through the display and logged; only ErrQuit and
// storage failures propagate to the caller.
func (c *Coordinator) Execute(ctx context.Context, inv *commands.Invocation) error {
	switch inv.Name {
	case commands.CmdQuit:
		c.Cancel()
		c.logger.Info("session ended", zap.String("session", c.id))
		return ErrQuit

	case commands.CmdWrite:
		var filename string
		if len(inv.Args) == 1 {
			filename = inv.Args[0]
		}
		path, err := c.WriteTranscript(ctx, filename)
		if err != nil {
			c.display.ShowError(err)
			return err
		}
		c.display.ShowMessage("wrote " + path)
		return nil

	case commands.CmdModel:
		c.mu.Lock()
		c.opts.Model = inv.Args[0]
		c.mu.Unlock()
		c.pushStatus()
		c.display.ShowMessage("model set to " + inv.Args[0])
		return nil

	case commands.CmdThread:
		return c.executeThread(ctx, inv)

	case commands.CmdSearch:
		query := strings.Join(inv.Args, " ")
		results, err := c.store.Search(ctx, query)
		if err != nil {
			serr := &StorageError{Op: "search", Cause: err}
			c.display.ShowError(serr)
			return serr
		}
		c.display.UpdateThreadList(results)
		c.display.ShowMessage(fmt.Sprintf("%d result(s) for %q", len(results), query))
		return nil

	case commands.CmdHelp:
		var topic string
		if len(inv.Args) == 1 {
			topic = inv.Args[0]
		}
		text, err := commands.Help(topic)
		if err != nil {
			c.display.ShowError(err)
			return nil
		}
		c.display.ShowHelp(text)
		return nil

	case commands.CmdSet:
		return c.executeSet(inv)
	}

	err := fmt.Errorf("unhandled command: %s", inv.Name)
	c.display.ShowError(err)
	return err
}

func (c *Coordinator) executeThread(ctx context.Context, inv *commands.Invocation) error {
	switch inv.Sub {
	case commands.ThreadList:
		c.refreshRecent(ctx)
		return nil

	case commands.ThreadNew:
		c.Cancel()
		c.mu.Lock()
		c.current = nil
		c.usage = nil
		c.mu.Unlock()
		c.pushStatus()
		c.display.UpdateStreaming("")
		c.display.ShowMessage("new thread; next message starts it")
		return nil

	case commands.ThreadBranch:
		c.mu.Lock()
		parent := c.current
		c.mu.Unlock()
		if parent == nil {
			c.display.ShowError(&commands.UsageError{Message: "no active thread to branch from"})
			return nil
		}
		c.Cancel()
		parentID := parent.ID
		conv, err := c.createConversation(ctx, "", &parentID)
		if err != nil {
			return err
		}
		c.display.ShowMessage(fmt.Sprintf("branched thread %d from %d", conv.ID, parentID))
		return c.SwitchThread(ctx, conv.ID)

	case commands.ThreadDelete:
		if err := c.store.DeleteConversation(ctx, inv.ThreadID); err != nil {
			if errors.Is(err, thread.ErrHasChildren) || errors.Is(err, thread.ErrNotFound) {
				c.display.ShowError(err)
				return nil
			}
			serr := &StorageError{Op: "delete conversation", Cause: err}
			c.display.ShowError(serr)
			return serr
		}
		c.logger.Info("conversation deleted", zap.Int64("conversation", inv.ThreadID))
		c.mu.Lock()
		if c.current != nil && c.current.ID == inv.ThreadID {
			c.current = nil
		}
		c.mu.Unlock()
		c.pushStatus()
		c.refreshRecent(ctx)
		c.display.ShowMessage(fmt.Sprintf("deleted thread %d", inv.ThreadID))
		return nil

	case commands.ThreadSwitch:
		return c.SwitchThread(ctx, inv.ThreadID)
	}

	c.display.ShowError(&commands.UsageError{Message: "unknown thread subcommand: " + inv.Sub})
	return nil
}

func (c *Coordinator) executeSet(inv *commands.Invocation) error {
	opt, err := commands.ParseSetOption(inv.Args[0], inv.Args[1])
	if err != nil {
		c.display.ShowError(err)
		return nil
	}

	c.mu.Lock()
	switch opt.Option {
	case "temperature":
		c.opts.Temperature = opt.Temperature
	case "max_tokens":
		c.opts.MaxTokens = opt.MaxTokens
	case "theme":
		c.theme = opt.Theme
	}
	c.mu.Unlock()

	c.pushStatus()
	c.display.ShowMessage(fmt.Sprintf("%s set to %s", opt.Option, inv.Args[1]))
	return nil
}
