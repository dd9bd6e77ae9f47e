// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/kestrelab/braid/internal/util"
)

// Writer persists completed export directives under a per-conversation
// directory: <root>/<conversation-id>/<sanitized-filename>. Two directives
// in one stream that collide after sanitization overwrite silently; that
// is accepted behavior, not an error.
type Writer struct {
	root string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir}
}

// Root returns the export root directory.
func (w *Writer) Root() string {
	return w.root
}

// Write stores one exported file for a conversation and returns the path
// it was written to.
func (w *Writer) Write(conversationID int64, f File) (string, error) {
	name := SanitizeFilename(f.Name)
	switch name {
	case "":
		return "", fmt.Errorf("export has empty filename")
	case ".", "..":
		// Dots survive sanitization, so these would escape the
		// per-conversation directory.
		return "", fmt.Errorf("export has invalid filename %q", f.Name)
	}

	path := filepath.Join(w.root, strconv.FormatInt(conversationID, 10), name)
	if err := util.AtomicWriteFile(path, []byte(f.Content), 0644); err != nil {
		return "", fmt.Errorf("failed to write export %s: %w", name, err)
	}
	return path, nil
}
