// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package thread owns the conversation and message entities and the
// materialized-path tree that threads conversations together.
package thread

import (
	"strconv"
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Conversation is one topic in the thread tree.
//
// ThreadPath is the dotted list of ancestor ids, root first (e.g. "3.7"
// means ancestor 3, then ancestor 7, then this conversation). A root
// conversation has an empty ThreadPath. The invariant is that a child's
// path is exactly the parent's path with the parent's own id appended.
type Conversation struct {
	ID         int64
	Title      string
	ParentID   *int64
	ThreadPath string
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SelfPath returns the path a child of this conversation would carry.
func (c *Conversation) SelfPath() string {
	if c.ThreadPath == "" {
		return strconv.FormatInt(c.ID, 10)
	}
	return c.ThreadPath + "." + strconv.FormatInt(c.ID, 10)
}

// AncestorIDs parses the thread path into the ordered ancestor id list.
// Malformed segments are skipped; the store never writes them.
func (c *Conversation) AncestorIDs() []int64 {
	if c.ThreadPath == "" {
		return nil
	}
	parts := strings.Split(c.ThreadPath, ".")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Message is one exchange entry within a conversation. Messages are
// append-only and ordered strictly by creation timestamp.
type Message struct {
	ID             int64
	ConversationID int64
	Role           Role
	Content        string
	Model          string
	TokenCount     int
	Metadata       map[string]string
	CreatedAt      time.Time
}

// Summary is the listing projection of a conversation: the conversation
// plus aggregate message count and last-message time.
type Summary struct {
	Conversation
	MessageCount  int
	LastMessageAt time.Time
}

// Preview returns a one-line title suitable for thread lists.
func (s *Summary) Preview(maxLen int) string {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = "Untitled"
	}
	runes := []rune(title)
	if maxLen > 3 && len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return title
}
