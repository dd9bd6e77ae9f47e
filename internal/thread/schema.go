// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thread

// Schema creates the two-table store. Additive-only: every statement is
// idempotent and there is no migration machinery beyond create-if-absent.
//
// Timestamps are stored as unix nanoseconds so message ordering within a
// conversation is strict even for rapid appends.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT NOT NULL,
	parent_id   INTEGER REFERENCES conversations(id),
	thread_path TEXT,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	model           TEXT NOT NULL DEFAULT '',
	token_count     INTEGER NOT NULL DEFAULT 0,
	metadata        TEXT NOT NULL DEFAULT '{}',
	created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_thread_path ON conversations(thread_path);
CREATE INDEX IF NOT EXISTS idx_conversations_parent_id ON conversations(parent_id);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
`
