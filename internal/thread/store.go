// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thread

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SearchLimit caps the number of search results returned.
const SearchLimit = 50

// Store persists conversations and messages in an embedded SQLite
// database. It has no UI or network knowledge.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection keeps the
	// driver from queueing writers behind SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation inserts a new conversation. When parentID is set the
// new conversation branches under the parent and its thread path becomes
// the parent's path with the parent's id appended; a missing parent is
// ErrNotFound. Root conversations carry an empty path.
func (s *Store) CreateConversation(ctx context.Context, title string, parentID *int64) (*Conversation, error) {
	var path sql.NullString
	if parentID != nil {
		parent, err := s.Conversation(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		path = sql.NullString{String: parent.SelfPath(), Valid: true}
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (title, parent_id, thread_path, metadata, created_at, updated_at)
		VALUES (?, ?, ?, '{}', ?, ?)
	`, title, nullableID(parentID), path, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation id: %w", err)
	}

	return &Conversation{
		ID:         id,
		Title:      title,
		ParentID:   parentID,
		ThreadPath: path.String,
		Metadata:   map[string]string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Conversation fetches one conversation by id, or ErrNotFound.
func (s *Store) Conversation(ctx context.Context, id int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, parent_id, thread_path, metadata, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return conv, err
}

// DeleteConversation removes a conversation and its messages. Deleting a
// conversation that still has children fails with ErrHasChildren, so no
// stored thread path is ever left pointing at a missing ancestor.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	var children int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE parent_id = ?`, id).Scan(&children); err != nil {
		return fmt.Errorf("failed to check children: %w", err)
	}
	if children > 0 {
		return ErrHasChildren
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	return tx.Commit()
}

// =============================================================================
// MESSAGES
// =============================================================================

// AppendMessage stores msg and bumps the owning conversation's update
// timestamp in the same transaction. Messages are append-only; the
// returned copy carries the assigned id and creation time.
func (s *Store) AppendMessage(ctx context.Context, msg *Message) (*Message, error) {
	if !msg.Role.Valid() {
		return nil, ErrInvalidRole
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, msg.ConversationID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check conversation: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	meta, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, model, token_count, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ConversationID, string(msg.Role), msg.Content, msg.Model, msg.TokenCount, meta, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now.UnixNano(), msg.ConversationID); err != nil {
		return nil, fmt.Errorf("failed to bump conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}

	stored := *msg
	stored.ID = id
	stored.CreatedAt = now
	return &stored, nil
}

// Messages returns the full message history of a conversation ordered by
// creation time ascending. A missing conversation is ErrNotFound.
func (s *Store) Messages(ctx context.Context, conversationID int64) ([]Message, error) {
	if _, err := s.Conversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, model, token_count, metadata, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m       Message
			role    string
			meta    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Model, &m.TokenCount, &meta, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = Role(role)
		m.Metadata = unmarshalMetadata(meta)
		m.CreatedAt = time.Unix(0, created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// =============================================================================
// LISTING, THREAD VIEW AND SEARCH
// =============================================================================

// Recent returns the most recently updated top-level conversations with
// message counts and last-message times, newest update first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.parent_id, c.thread_path, c.metadata, c.created_at, c.updated_at,
		       COUNT(m.id), COALESCE(MAX(m.created_at), 0)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.parent_id IS NULL
		GROUP BY c.id
		ORDER BY c.updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// Thread materializes the whole branch for a conversation: its ancestors,
// itself and every descendant found by path-prefix match, ordered by
// creation timestamp. Never stored, always recomputed.
func (s *Store) Thread(ctx context.Context, id int64) ([]Conversation, error) {
	conv, err := s.Conversation(ctx, id)
	if err != nil {
		return nil, err
	}

	self := conv.SelfPath()
	ids := append(conv.AncestorIDs(), conv.ID)

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	for _, v := range ids {
		args = append(args, v)
	}
	args = append(args, self, self+".%")

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, parent_id, thread_path, metadata, created_at, updated_at
		FROM conversations
		WHERE id IN (`+placeholders+`) OR thread_path = ? OR thread_path LIKE ?
		ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// Search finds conversations whose title or any message content contains
// query as a case-insensitive substring, ranked by update time descending
// and capped at SearchLimit.
func (s *Store) Search(ctx context.Context, query string) ([]Summary, error) {
	q := strings.ToLower(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.parent_id, c.thread_path, c.metadata, c.created_at, c.updated_at,
		       COUNT(m.id), COALESCE(MAX(m.created_at), 0)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE instr(lower(c.title), ?) > 0
		   OR EXISTS (
		        SELECT 1 FROM messages sm
		        WHERE sm.conversation_id = c.id AND instr(lower(sm.content), ?) > 0
		      )
		GROUP BY c.id
		ORDER BY c.updated_at DESC
		LIMIT ?
	`, q, q, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		c       Conversation
		parent  sql.NullInt64
		path    sql.NullString
		meta    string
		created int64
		updated int64
	)
	if err := row.Scan(&c.ID, &c.Title, &parent, &path, &meta, &created, &updated); err != nil {
		return nil, err
	}
	if parent.Valid {
		pid := parent.Int64
		c.ParentID = &pid
	}
	c.ThreadPath = path.String
	c.Metadata = unmarshalMetadata(meta)
	c.CreatedAt = time.Unix(0, created)
	c.UpdatedAt = time.Unix(0, updated)
	return &c, nil
}

func scanSummaries(rows *sql.Rows) ([]Summary, error) {
	var out []Summary
	for rows.Next() {
		var (
			s       Summary
			parent  sql.NullInt64
			path    sql.NullString
			meta    string
			created int64
			updated int64
			lastMsg int64
		)
		if err := rows.Scan(&s.ID, &s.Title, &parent, &path, &meta, &created, &updated, &s.MessageCount, &lastMsg); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if parent.Valid {
			pid := parent.Int64
			s.ParentID = &pid
		}
		s.ThreadPath = path.String
		s.Metadata = unmarshalMetadata(meta)
		s.CreatedAt = time.Unix(0, created)
		s.UpdatedAt = time.Unix(0, updated)
		if lastMsg > 0 {
			s.LastMessageAt = time.Unix(0, lastMsg)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(raw string) map[string]string {
	m := map[string]string{}
	if raw == "" {
		return m
	}
	// Corrupt metadata is tolerated; the entity itself is still usable.
	_ = json.Unmarshal([]byte(raw), &m)
	return m
}

// FormatThreadPath renders a path plus self id for display, e.g. "3.7.9".
func FormatThreadPath(c *Conversation) string {
	return c.SelfPath()
}
