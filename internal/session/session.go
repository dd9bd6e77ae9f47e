// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session coordinates one interactive chat session: conversation
// lifecycle, message persistence, response streaming and command dispatch.
//
// The Coordinator owns a small state machine (idle / awaiting response)
// guarded by a mutex. All collaborators are injected as interfaces; the
// UI consumes coordinator output purely through the Display sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelab/braid/internal/export"
	"github.com/kestrelab/braid/internal/llm"
	"github.com/kestrelab/braid/internal/thread"
	"github.com/kestrelab/braid/internal/util"
)

// State is the coordinator's response-cycle state.
type State int

const (
	// StateIdle means no model request is in flight.
	StateIdle State = iota
	// StateAwaitingResponse means a streaming response is being consumed.
	StateAwaitingResponse
)

func (s State) String() string {
	if s == StateAwaitingResponse {
		return "awaiting"
	}
	return "idle"
}

// RecentLimit bounds the thread list fetched for navigation.
const RecentLimit = 25

// titleLen bounds default conversation titles derived from the first
// user message.
const titleLen = 48

// ErrQuit is returned by Execute when the user asked to exit. The UI
// translates it into program shutdown.
var ErrQuit = errors.New("quit requested")

// =============================================================================
// ERRORS
// =============================================================================

// StreamError reports a failed or aborted model stream. Text already
// shown stays on screen; nothing is persisted.
type StreamError struct {
	Cause error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed: %v", e.Cause)
}

func (e *StreamError) Unwrap() error { return e.Cause }

// StorageError reports a failed store operation.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Store is the conversation persistence surface the coordinator needs.
// *thread.Store satisfies it.
type Store interface {
	CreateConversation(ctx context.Context, title string, parentID *int64) (*thread.Conversation, error)
	Conversation(ctx context.Context, id int64) (*thread.Conversation, error)
	DeleteConversation(ctx context.Context, id int64) error
	AppendMessage(ctx context.Context, msg *thread.Message) (*thread.Message, error)
	Messages(ctx context.Context, conversationID int64) ([]thread.Message, error)
	Recent(ctx context.Context, limit int) ([]thread.Summary, error)
	Thread(ctx context.Context, id int64) ([]thread.Conversation, error)
	Search(ctx context.Context, query string) ([]thread.Summary, error)
}

// Streamer produces model responses as an async fragment sequence.
// *llm.Client satisfies it.
type Streamer interface {
	StreamChan(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) <-chan llm.StreamChunk
}

// FileWriter persists exported files. *export.Writer satisfies it.
type FileWriter interface {
	Write(conversationID int64, f export.File) (string, error)
}

// Status is a snapshot of session state pushed to the display after
// every transition.
type Status struct {
	State          State
	ConversationID int64
	Title          string
	Model          string
	Temperature    float64
	MaxTokens      int
	Theme          string
	Usage          *llm.Usage
}

// Display is the UI sink. Calls arrive from the coordinator's goroutines;
// implementations must be safe for concurrent use. The coordinator never
// reads anything back from it.
type Display interface {
	AppendMessage(msg thread.Message)
	UpdateStreaming(text string)
	UpdateThreadList(items []thread.Summary)
	UpdateStatus(status Status)
	ShowError(err error)
	ShowHelp(text string)
	ShowMessage(text string)
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator drives one interactive session.
type Coordinator struct {
	store   Store
	model   Streamer
	files   FileWriter
	display Display
	logger  *zap.Logger

	id string // session correlation id

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	current   *thread.Conversation
	recent    []thread.Summary
	recentIdx int
	opts      llm.GenerateOptions
	theme     string
	usage     *llm.Usage
}

// Options configures a new Coordinator.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Theme       string
}

// New builds a Coordinator. A nil logger is replaced with a no-op one.
func New(store Store, model Streamer, files FileWriter, display Display, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		store:   store,
		model:   model,
		files:   files,
		display: display,
		logger:  logger,
		id:      uuid.NewString(),
		opts: llm.GenerateOptions{
			Model:       opts.Model,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		},
		theme:     opts.Theme,
		recentIdx: -1,
	}
	c.logger.Info("session started", zap.String("session", c.id), zap.String("model", opts.Model))
	return c
}

// Start pushes the initial status and thread list to the display.
func (c *Coordinator) Start(ctx context.Context) {
	c.refreshRecent(ctx)
	c.pushStatus()
}

// State returns the current response-cycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// pushStatus sends a status snapshot; callers must not hold the mutex.
func (c *Coordinator) pushStatus() {
	c.mu.Lock()
	st := Status{
		State:       c.state,
		Model:       c.opts.Model,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Theme:       c.theme,
		Usage:       c.usage,
	}
	if c.current != nil {
		st.ConversationID = c.current.ID
		st.Title = c.current.Title
	}
	c.mu.Unlock()
	c.display.UpdateStatus(st)
}

// =============================================================================
// SUBMIT / STREAM
// =============================================================================

// Submit sends user input to the model. A submit that arrives while a
// response is in flight is dropped. The user message is persisted before
// any model call; persistence failure aborts the whole submit.
func (c *Coordinator) Submit(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.state == StateAwaitingResponse {
		c.mu.Unlock()
		c.display.ShowMessage("response in progress, input dropped")
		return nil
	}

	conv := c.current
	c.mu.Unlock()

	if conv == nil {
		created, err := c.createConversation(ctx, text, nil)
		if err != nil {
			c.display.ShowError(err)
			return err
		}
		conv = created
	}

	stored, err := c.store.AppendMessage(ctx, &thread.Message{
		ConversationID: conv.ID,
		Role:           thread.RoleUser,
		Content:        text,
	})
	if err != nil {
		serr := &StorageError{Op: "append user message", Cause: err}
		c.logger.Error("user message persist failed", zap.String("session", c.id), zap.Error(err))
		c.display.ShowError(serr)
		return serr
	}
	c.display.AppendMessage(*stored)

	history, err := c.store.Messages(ctx, conv.ID)
	if err != nil {
		serr := &StorageError{Op: "load history", Cause: err}
		c.display.ShowError(serr)
		return serr
	}

	c.mu.Lock()
	c.state = StateAwaitingResponse
	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	opts := c.opts
	c.mu.Unlock()
	c.pushStatus()

	go c.consume(streamCtx, conv, toPrompt(history), opts)
	return nil
}

// toPrompt converts stored history into model input, oldest first.
func toPrompt(history []thread.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// consume drains one model stream: display increments go to the UI in
// arrival order, export directives become files, and the final display
// text is persisted as the assistant message.
func (c *Coordinator) consume(ctx context.Context, conv *thread.Conversation, prompt []llm.Message, opts llm.GenerateOptions) {
	defer c.finishStream()

	var (
		proc  export.Processor
		shown string
		usage *llm.Usage
	)

	for chunk := range c.model.StreamChan(ctx, prompt, opts) {
		if chunk.Err != nil {
			if errors.Is(chunk.Err, context.Canceled) {
				c.logger.Info("stream cancelled", zap.String("session", c.id), zap.Int64("conversation", conv.ID))
				c.display.ShowMessage("response cancelled")
				return
			}
			serr := &StreamError{Cause: chunk.Err}
			c.logger.Error("stream failed", zap.String("session", c.id), zap.Error(chunk.Err))
			c.display.ShowError(serr)
			return
		}
		if chunk.Done {
			usage = chunk.Usage
			break
		}

		text, files := proc.Feed(chunk.Content)
		if text != "" {
			shown += text
			c.display.UpdateStreaming(shown)
		}
		for _, f := range files {
			path, err := c.files.Write(conv.ID, f)
			if err != nil {
				c.logger.Error("export write failed", zap.String("name", f.Name), zap.Error(err))
				c.display.ShowError(fmt.Errorf("export %s: %w", f.Name, err))
				continue
			}
			c.logger.Info("file exported", zap.Int64("conversation", conv.ID), zap.String("path", path))
			c.display.ShowMessage("exported " + path)
		}
	}

	// A cancelled stream may close its channel without an error chunk.
	if ctx.Err() != nil {
		c.logger.Info("stream cancelled", zap.String("session", c.id), zap.Int64("conversation", conv.ID))
		c.display.ShowMessage("response cancelled")
		return
	}

	tail, err := proc.Finish()
	if err != nil {
		// Ending mid-directive abandons the response: shown text stays on
		// screen, nothing is persisted.
		serr := &StreamError{Cause: err}
		c.logger.Error("stream ended mid export", zap.String("session", c.id), zap.Error(err))
		c.display.ShowError(serr)
		return
	}
	if tail != "" {
		shown += tail
		c.display.UpdateStreaming(shown)
	}

	msg := &thread.Message{
		ConversationID: conv.ID,
		Role:           thread.RoleAssistant,
		Content:        shown,
		Model:          opts.Model,
	}
	if usage != nil {
		msg.TokenCount = usage.CompletionTokens
	}
	stored, err := c.store.AppendMessage(context.Background(), msg)
	if err != nil {
		serr := &StorageError{Op: "append assistant message", Cause: err}
		c.logger.Error("assistant message persist failed", zap.String("session", c.id), zap.Error(err))
		c.display.ShowError(serr)
		return
	}

	c.mu.Lock()
	c.usage = usage
	c.mu.Unlock()
	c.display.UpdateStreaming("")
	c.display.AppendMessage(*stored)
}

// finishStream returns the coordinator to idle after a stream ends for
// any reason.
func (c *Coordinator) finishStream() {
	c.mu.Lock()
	c.state = StateIdle
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.pushStatus()
}

// Cancel aborts an in-flight response, if any. Already-shown text stays
// visible; nothing is persisted.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// CONVERSATIONS / NAVIGATION
// =============================================================================

// createConversation makes a new conversation current, deriving a title
// from the first user message when given one.
func (c *Coordinator) createConversation(ctx context.Context, firstMessage string, parentID *int64) (*thread.Conversation, error) {
	title := util.Truncate(util.Flatten(firstMessage), titleLen)
	if title == "" {
		title = "chat " + time.Now().Format("2006-01-02 15:04")
	}
	conv, err := c.store.CreateConversation(ctx, title, parentID)
	if err != nil {
		return nil, &StorageError{Op: "create conversation", Cause: err}
	}
	c.logger.Info("conversation created",
		zap.String("session", c.id),
		zap.Int64("conversation", conv.ID),
		zap.String("path", conv.ThreadPath))

	c.mu.Lock()
	c.current = conv
	c.mu.Unlock()
	c.pushStatus()
	return conv, nil
}

// SwitchThread cancels any in-flight response and loads the target
// conversation's whole branch, root to leaf, for display.
func (c *Coordinator) SwitchThread(ctx context.Context, id int64) error {
	c.Cancel()

	branch, err := c.store.Thread(ctx, id)
	if err != nil {
		serr := &StorageError{Op: "load thread", Cause: err}
		c.display.ShowError(serr)
		return serr
	}

	var target *thread.Conversation
	for i := range branch {
		if branch[i].ID == id {
			target = &branch[i]
			break
		}
	}
	if target == nil {
		serr := &StorageError{Op: "load thread", Cause: thread.ErrNotFound}
		c.display.ShowError(serr)
		return serr
	}

	c.mu.Lock()
	c.current = target
	c.usage = nil
	c.mu.Unlock()

	// Status first: a conversation change tells the display to reset its
	// transcript before the branch history is replayed into it.
	c.pushStatus()
	c.display.UpdateStreaming("")
	for _, conv := range branch {
		msgs, err := c.store.Messages(ctx, conv.ID)
		if err != nil {
			c.display.ShowError(&StorageError{Op: "load messages", Cause: err})
			return err
		}
		for _, m := range msgs {
			c.display.AppendMessage(m)
		}
	}
	return nil
}

// NextThread and PrevThread navigate the most recent top-level list,
// updated_at descending. Selection wraps at neither end.
func (c *Coordinator) NextThread(ctx context.Context) error { return c.stepThread(ctx, 1) }
func (c *Coordinator) PrevThread(ctx context.Context) error { return c.stepThread(ctx, -1) }

func (c *Coordinator) stepThread(ctx context.Context, delta int) error {
	c.mu.Lock()
	if len(c.recent) == 0 {
		c.mu.Unlock()
		c.refreshRecent(ctx)
		c.mu.Lock()
	}
	if len(c.recent) == 0 {
		c.mu.Unlock()
		c.display.ShowMessage("no threads yet")
		return nil
	}
	idx := c.recentIdx + delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.recent) {
		idx = len(c.recent) - 1
	}
	c.recentIdx = idx
	id := c.recent[idx].ID
	c.mu.Unlock()

	return c.SwitchThread(ctx, id)
}

// refreshRecent refetches the navigation list and pushes it to the display.
func (c *Coordinator) refreshRecent(ctx context.Context) {
	items, err := c.store.Recent(ctx, RecentLimit)
	if err != nil {
		c.logger.Warn("recent list fetch failed", zap.Error(err))
		c.display.ShowError(&StorageError{Op: "list threads", Cause: err})
		return
	}
	c.mu.Lock()
	c.recent = items
	if c.recentIdx >= len(items) {
		c.recentIdx = len(items) - 1
	}
	c.mu.Unlock()
	c.display.UpdateThreadList(items)
}
