// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelab/braid/internal/commands"
	"github.com/kestrelab/braid/internal/export"
	"github.com/kestrelab/braid/internal/llm"
	"github.com/kestrelab/braid/internal/thread"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	convs      map[int64]*thread.Conversation
	msgs       map[int64][]thread.Message
	appendErr  error
	appendSeen int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID: 1,
		convs:  make(map[int64]*thread.Conversation),
		msgs:   make(map[int64][]thread.Message),
	}
}

func (s *fakeStore) CreateConversation(_ context.Context, title string, parentID *int64) (*thread.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := &thread.Conversation{ID: s.nextID, Title: title, ParentID: parentID, CreatedAt: time.Now()}
	if parentID != nil {
		parent, ok := s.convs[*parentID]
		if !ok {
			return nil, thread.ErrNotFound
		}
		conv.ThreadPath = parent.SelfPath()
	}
	s.nextID++
	s.convs[conv.ID] = conv
	return conv, nil
}

func (s *fakeStore) Conversation(_ context.Context, id int64) (*thread.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil, thread.ErrNotFound
	}
	return conv, nil
}

func (s *fakeStore) DeleteConversation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return thread.ErrNotFound
	}
	for _, conv := range s.convs {
		if conv.ParentID != nil && *conv.ParentID == id {
			return thread.ErrHasChildren
		}
	}
	delete(s.convs, id)
	delete(s.msgs, id)
	return nil
}

func (s *fakeStore) AppendMessage(_ context.Context, msg *thread.Message) (*thread.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendSeen++
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	if _, ok := s.convs[msg.ConversationID]; !ok {
		return nil, thread.ErrNotFound
	}
	stored := *msg
	stored.ID = int64(len(s.msgs[msg.ConversationID]) + 1)
	stored.CreatedAt = time.Now()
	s.msgs[msg.ConversationID] = append(s.msgs[msg.ConversationID], stored)
	return &stored, nil
}

func (s *fakeStore) Messages(_ context.Context, conversationID int64) ([]thread.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[conversationID]; !ok {
		return nil, thread.ErrNotFound
	}
	return append([]thread.Message(nil), s.msgs[conversationID]...), nil
}

func (s *fakeStore) Recent(_ context.Context, limit int) ([]thread.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []thread.Summary
	for _, conv := range s.convs {
		if conv.ParentID == nil {
			out = append(out, thread.Summary{Conversation: *conv, MessageCount: len(s.msgs[conv.ID])})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Thread(_ context.Context, id int64) ([]thread.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.convs[id]
	if !ok {
		return nil, thread.ErrNotFound
	}
	var out []thread.Conversation
	self := target.SelfPath()
	for _, conv := range s.convs {
		if conv.ID == id || conv.ThreadPath == self || strings.HasPrefix(conv.ThreadPath, self+".") {
			out = append(out, *conv)
			continue
		}
		// ancestors
		for _, aid := range target.AncestorIDs() {
			if conv.ID == aid {
				out = append(out, *conv)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) Search(_ context.Context, query string) ([]thread.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []thread.Summary
	for _, conv := range s.convs {
		if strings.Contains(strings.ToLower(conv.Title), strings.ToLower(query)) {
			out = append(out, thread.Summary{Conversation: *conv})
		}
	}
	return out, nil
}

// fakeStreamer replays scripted fragments. A non-nil gate blocks the
// stream until released, for exercising the in-flight state.
type fakeStreamer struct {
	fragments []string
	err       error
	usage     *llm.Usage
	gate      chan struct{}
}

func (f *fakeStreamer) StreamChan(ctx context.Context, _ []llm.Message, _ llm.GenerateOptions) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		if f.gate != nil {
			select {
			case <-f.gate:
			case <-ctx.Done():
				ch <- llm.StreamChunk{Err: ctx.Err()}
				return
			}
		}
		for _, frag := range f.fragments {
			select {
			case ch <- llm.StreamChunk{Content: frag}:
			case <-ctx.Done():
				ch <- llm.StreamChunk{Err: ctx.Err()}
				return
			}
		}
		if f.err != nil {
			ch <- llm.StreamChunk{Err: f.err}
			return
		}
		ch <- llm.StreamChunk{Done: true, Usage: f.usage}
	}()
	return ch
}

type fakeDisplay struct {
	mu        sync.Mutex
	appended  []thread.Message
	streaming []string
	lists     [][]thread.Summary
	statuses  []Status
	errs      []error
	messages  []string
	help      []string
}

func (d *fakeDisplay) AppendMessage(msg thread.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appended = append(d.appended, msg)
}

func (d *fakeDisplay) UpdateStreaming(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streaming = append(d.streaming, text)
}

func (d *fakeDisplay) UpdateThreadList(items []thread.Summary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lists = append(d.lists, items)
}

func (d *fakeDisplay) UpdateStatus(status Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, status)
}

func (d *fakeDisplay) ShowError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, err)
}

func (d *fakeDisplay) ShowHelp(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.help = append(d.help, text)
}

func (d *fakeDisplay) ShowMessage(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, text)
}

type fakeWriter struct {
	mu    sync.Mutex
	files map[string]string
	err   error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{files: make(map[string]string)}
}

func (w *fakeWriter) Write(conversationID int64, f export.File) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	path := strconv.FormatInt(conversationID, 10) + "/" + export.SanitizeFilename(f.Name)
	w.files[path] = f.Content
	return path, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func newTestCoordinator(store Store, model Streamer, files FileWriter) (*Coordinator, *fakeDisplay) {
	display := &fakeDisplay{}
	c := New(store, model, files, display, Options{Model: "test-model", Temperature: 0.7, Theme: "dark"}, nil)
	return c, display
}

func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == StateIdle {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("coordinator did not return to idle")
}

func waitAppended(t *testing.T, d *fakeDisplay, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		got := len(d.appended)
		d.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("display never saw %d appended messages", n)
}

// =============================================================================
// TESTS
// =============================================================================

func TestSubmitFullCycle(t *testing.T) {
	store := newFakeStore()
	model := &fakeStreamer{
		fragments: []string{"Hello", " there"},
		usage:     &llm.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
	}
	c, display := newTestCoordinator(store, model, newFakeWriter())

	err := c.Submit(context.Background(), "what is a goroutine and how do I start one?")
	require.NoError(t, err)
	waitIdle(t, c)
	waitAppended(t, display, 2)

	display.mu.Lock()
	defer display.mu.Unlock()

	require.Len(t, display.appended, 2)
	require.Equal(t, thread.RoleUser, display.appended[0].Role)
	require.Equal(t, thread.RoleAssistant, display.appended[1].Role)
	require.Equal(t, "Hello there", display.appended[1].Content)
	require.Equal(t, "test-model", display.appended[1].Model)
	require.Equal(t, 2, display.appended[1].TokenCount)

	// Streaming increments arrive in order and accumulate.
	require.Equal(t, []string{"Hello", "Hello there", ""}, display.streaming)

	// Title defaults from the first user message, truncated rune-safe.
	conv, err := store.Conversation(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "what is a goroutine and how do I start one?", conv.Title)

	msgs, err := store.Messages(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestSubmitWhileAwaitingIsDropped(t *testing.T) {
	store := newFakeStore()
	model := &fakeStreamer{fragments: []string{"ok"}, gate: make(chan struct{})}
	c, display := newTestCoordinator(store, model, newFakeWriter())

	require.NoError(t, c.Submit(context.Background(), "first"))
	require.Equal(t, StateAwaitingResponse, c.State())

	require.NoError(t, c.Submit(context.Background(), "second"))

	display.mu.Lock()
	dropped := len(display.messages) > 0 && strings.Contains(display.messages[0], "dropped")
	display.mu.Unlock()
	require.True(t, dropped, "second submit should be reported as dropped")

	close(model.gate)
	waitIdle(t, c)

	// Only the first user message and one assistant message persisted.
	msgs, err := store.Messages(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "first", msgs[0].Content)
}

func TestStreamErrorKeepsShownTextPersistsNothing(t *testing.T) {
	store := newFakeStore()
	model := &fakeStreamer{fragments: []string{"partial "}, err: errors.New("connection reset")}
	c, display := newTestCoordinator(store, model, newFakeWriter())

	require.NoError(t, c.Submit(context.Background(), "hi"))
	waitIdle(t, c)

	display.mu.Lock()
	require.NotEmpty(t, display.streaming)
	require.Equal(t, "partial ", display.streaming[len(display.streaming)-1])
	require.NotEmpty(t, display.errs)
	var serr *StreamError
	require.True(t, errors.As(display.errs[0], &serr))
	display.mu.Unlock()

	// Only the user message is in the store.
	msgs, err := store.Messages(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, thread.RoleUser, msgs[0].Role)
}

func TestUserPersistFailureAbortsBeforeModelCall(t *testing.T) {
	store := newFakeStore()
	store.appendErr = errors.New("disk full")
	model := &fakeStreamer{fragments: []string{"never"}}
	c, display := newTestCoordinator(store, model, newFakeWriter())

	err := c.Submit(context.Background(), "hi")
	var serr *StorageError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, StateIdle, c.State())

	display.mu.Lock()
	require.Empty(t, display.streaming, "no stream should start")
	display.mu.Unlock()
}

func TestExportDirectiveWritesFileNotDisplay(t *testing.T) {
	store := newFakeStore()
	writer := newFakeWriter()
	model := &fakeStreamer{fragments: []string{
		"Saving now: <FileExp",
		"ort name=\"notes.txt\">secret body</FileExport>",
		"all done",
	}}
	c, display := newTestCoordinator(store, model, writer)

	require.NoError(t, c.Submit(context.Background(), "export my notes"))
	waitIdle(t, c)
	waitAppended(t, display, 2)

	writer.mu.Lock()
	require.Equal(t, "secret body", writer.files["1/notes.txt"])
	writer.mu.Unlock()

	display.mu.Lock()
	defer display.mu.Unlock()
	require.Equal(t, "Saving now: all done", display.appended[1].Content)
	require.NotContains(t, display.appended[1].Content, "secret body")
	for _, s := range display.streaming {
		require.NotContains(t, s, "secret body")
		require.NotContains(t, s, "FileExport")
	}
}

func TestIncompleteExportAbandonsResponse(t *testing.T) {
	store := newFakeStore()
	writer := newFakeWriter()
	model := &fakeStreamer{fragments: []string{
		"hello ",
		`<FileExport name="x">partial`,
	}}
	c, display := newTestCoordinator(store, model, writer)

	require.NoError(t, c.Submit(context.Background(), "hi"))
	waitIdle(t, c)

	display.mu.Lock()
	require.NotEmpty(t, display.streaming)
	require.Equal(t, "hello ", display.streaming[len(display.streaming)-1], "shown text stays as-is")
	require.NotEmpty(t, display.errs)
	var serr *StreamError
	require.True(t, errors.As(display.errs[0], &serr))
	var incomplete *export.IncompleteExportError
	require.True(t, errors.As(display.errs[0], &incomplete))
	display.mu.Unlock()

	// The directive content is discarded, never written.
	writer.mu.Lock()
	require.Empty(t, writer.files)
	writer.mu.Unlock()

	// Only the user message persists.
	msgs, err := store.Messages(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, thread.RoleUser, msgs[0].Role)
}

func TestCancelKeepsTextPersistsNothing(t *testing.T) {
	store := newFakeStore()
	model := &fakeStreamer{fragments: []string{"some text"}, gate: make(chan struct{})}
	c, _ := newTestCoordinator(store, model, newFakeWriter())

	require.NoError(t, c.Submit(context.Background(), "hi"))
	c.Cancel()
	waitIdle(t, c)

	msgs, err := store.Messages(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "only the user message persists after cancel")
}

func TestExecuteSetUpdatesStatus(t *testing.T) {
	c, display := newTestCoordinator(newFakeStore(), &fakeStreamer{}, newFakeWriter())

	inv, err := commands.Parse("set temperature 1.5")
	require.NoError(t, err)
	require.NoError(t, c.Execute(context.Background(), inv))

	inv, err = commands.Parse("set theme mono")
	require.NoError(t, err)
	require.NoError(t, c.Execute(context.Background(), inv))

	display.mu.Lock()
	defer display.mu.Unlock()
	last := display.statuses[len(display.statuses)-1]
	require.Equal(t, 1.5, last.Temperature)
	require.Equal(t, "mono", last.Theme)
}

func TestExecuteQuit(t *testing.T) {
	c, _ := newTestCoordinator(newFakeStore(), &fakeStreamer{}, newFakeWriter())
	inv, err := commands.Parse("q")
	require.NoError(t, err)
	require.ErrorIs(t, c.Execute(context.Background(), inv), ErrQuit)
}

func TestThreadBranchInheritsPath(t *testing.T) {
	store := newFakeStore()
	model := &fakeStreamer{fragments: []string{"root reply"}}
	c, _ := newTestCoordinator(store, model, newFakeWriter())

	require.NoError(t, c.Submit(context.Background(), "root message"))
	waitIdle(t, c)

	inv, err := commands.Parse("thread branch")
	require.NoError(t, err)
	require.NoError(t, c.Execute(context.Background(), inv))

	child, err := store.Conversation(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	require.Equal(t, int64(1), *child.ParentID)
	require.Equal(t, "1", child.ThreadPath)
}

func TestThreadDeleteWithChildrenReported(t *testing.T) {
	store := newFakeStore()
	parent, err := store.CreateConversation(context.Background(), "root", nil)
	require.NoError(t, err)
	_, err = store.CreateConversation(context.Background(), "child", &parent.ID)
	require.NoError(t, err)

	c, display := newTestCoordinator(store, &fakeStreamer{}, newFakeWriter())
	inv, err := commands.Parse(fmt.Sprintf("thread delete %d", parent.ID))
	require.NoError(t, err)
	require.NoError(t, c.Execute(context.Background(), inv), "has-children is reported, not fatal")

	display.mu.Lock()
	defer display.mu.Unlock()
	require.NotEmpty(t, display.errs)
	require.ErrorIs(t, display.errs[0], thread.ErrHasChildren)
}

func TestSwitchThreadReplaysBranch(t *testing.T) {
	store := newFakeStore()
	root, err := store.CreateConversation(context.Background(), "root", nil)
	require.NoError(t, err)
	child, err := store.CreateConversation(context.Background(), "child", &root.ID)
	require.NoError(t, err)
	for _, m := range []thread.Message{
		{ConversationID: root.ID, Role: thread.RoleUser, Content: "root q"},
		{ConversationID: child.ID, Role: thread.RoleUser, Content: "child q"},
	} {
		_, err := store.AppendMessage(context.Background(), &m)
		require.NoError(t, err)
	}

	c, display := newTestCoordinator(store, &fakeStreamer{}, newFakeWriter())
	require.NoError(t, c.SwitchThread(context.Background(), child.ID))

	display.mu.Lock()
	defer display.mu.Unlock()
	require.Len(t, display.appended, 2, "branch replay covers root and child")
	last := display.statuses[len(display.statuses)-1]
	require.Equal(t, child.ID, last.ConversationID)
}

func TestWriteTranscript(t *testing.T) {
	store := newFakeStore()
	writer := newFakeWriter()
	model := &fakeStreamer{fragments: []string{"the answer"}}
	c, _ := newTestCoordinator(store, model, writer)

	require.NoError(t, c.Submit(context.Background(), "a question"))
	waitIdle(t, c)

	path, err := c.WriteTranscript(context.Background(), "out.md")
	require.NoError(t, err)
	require.Equal(t, "1/out.md", path)

	writer.mu.Lock()
	defer writer.mu.Unlock()
	body := writer.files[path]
	require.Contains(t, body, "# a question")
	require.Contains(t, body, "a question")
	require.Contains(t, body, "the answer")
}

func TestWriteTranscriptWithoutConversation(t *testing.T) {
	c, _ := newTestCoordinator(newFakeStore(), &fakeStreamer{}, newFakeWriter())
	_, err := c.WriteTranscript(context.Background(), "")
	require.Error(t, err)
}
