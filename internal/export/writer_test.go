// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriter_LayoutAndOverwrite(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	path, err := w.Write(7, File{Name: "my report.txt", Content: "v1"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := filepath.Join(root, "7", "my_report.txt")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("content = %q", data)
	}

	// A later directive with the same post-sanitization name overwrites
	// silently.
	if _, err := w.Write(7, File{Name: "my*report.txt", Content: "v2"}); err != nil {
		t.Fatalf("Write overwrite: %v", err)
	}
	data, _ = os.ReadFile(want)
	if string(data) != "v2" {
		t.Errorf("content after overwrite = %q, want v2", data)
	}
}

func TestWriter_EmptyName(t *testing.T) {
	w := NewWriter(t.TempDir())
	if _, err := w.Write(1, File{Name: "", Content: "x"}); err == nil {
		t.Error("expected error for empty filename")
	}
}

func TestWriter_DotNames(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	// "." and ".." survive sanitization; joined onto the conversation
	// directory they would resolve to it or to the export root.
	for _, name := range []string{".", ".."} {
		if _, err := w.Write(1, File{Name: name, Content: "x"}); err == nil {
			t.Errorf("Write(%q) should be rejected", name)
		}
	}

	// A traversal attempt with other characters is neutralized by
	// sanitization instead: "../x" becomes ".._x" inside the directory.
	path, err := w.Write(1, File{Name: "../x", Content: "x"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := filepath.Join(root, "1", ".._x"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}
