// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"strings"
	"testing"
)

// feedAll runs a fragment sequence through a fresh processor and returns
// the concatenated display text, all completed files, and the Finish error.
func feedAll(fragments []string) (string, []File, error) {
	p := NewProcessor()
	var display strings.Builder
	var files []File

	for _, frag := range fragments {
		d, fs := p.Feed(frag)
		display.WriteString(d)
		files = append(files, fs...)
	}

	tail, err := p.Finish()
	display.WriteString(tail)
	return display.String(), files, err
}

func TestProcessor_MarkerSplitAcrossFragments(t *testing.T) {
	fragments := []string{"<FileExp", "ort name=\"a.txt\">hi</FileExport> done"}

	p := NewProcessor()

	// Nothing from the first fragment may reach the display.
	d1, f1 := p.Feed(fragments[0])
	if d1 != "" || len(f1) != 0 {
		t.Fatalf("first fragment leaked: display=%q files=%d", d1, len(f1))
	}

	d2, f2 := p.Feed(fragments[1])
	if len(f2) != 1 {
		t.Fatalf("expected 1 file, got %d", len(f2))
	}
	if f2[0].Name != "a.txt" || f2[0].Content != "hi" {
		t.Errorf("file = %+v, want a.txt with content hi", f2[0])
	}
	if d2 != " done" {
		t.Errorf("display = %q, want %q", d2, " done")
	}

	tail, err := p.Finish()
	if err != nil || tail != "" {
		t.Errorf("Finish = %q, %v, want empty and nil", tail, err)
	}
}

func TestProcessor_IncompleteExport(t *testing.T) {
	display, files, err := feedAll([]string{`<FileExport name="x">partial`})

	if len(files) != 0 {
		t.Fatalf("expected zero file-ready events, got %d", len(files))
	}
	if display != "" {
		t.Errorf("display = %q, want empty", display)
	}

	var incomplete *IncompleteExportError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteExportError, got %v", err)
	}
	if incomplete.Name != "x" {
		t.Errorf("error names %q, want x", incomplete.Name)
	}
}

func TestProcessor_PlainTextPassesThrough(t *testing.T) {
	display, files, err := feedAll([]string{"hello ", "world"})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("unexpected files: %d", len(files))
	}
	if display != "hello world" {
		t.Errorf("display = %q", display)
	}
}

func TestProcessor_TrailingPartialMarkerFlushedAtEnd(t *testing.T) {
	// Looks like a marker start but the stream ends in the scanning state,
	// so the residual is flushed as display text.
	display, files, err := feedAll([]string{"text <FileExp"})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("unexpected files: %d", len(files))
	}
	if display != "text <FileExp" {
		t.Errorf("display = %q", display)
	}
}

func TestProcessor_MultipleDirectivesOneFragment(t *testing.T) {
	in := `a<FileExport name="1.txt">one</FileExport>b<FileExport name="2.txt">two</FileExport>c`
	display, files, err := feedAll([]string{in})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if display != "abc" {
		t.Errorf("display = %q, want abc", display)
	}
	if len(files) != 2 || files[0].Content != "one" || files[1].Content != "two" {
		t.Errorf("files = %+v", files)
	}
}

func TestProcessor_ChunkInvariance(t *testing.T) {
	input := `intro text <FileExport name="main.go">package main

func main() {}
</FileExport> middle "<quoted>" <FileExport name="notes.md"># notes
- a < b
</FileExport> outro`

	wantDisplay, wantFiles, err := feedAll([]string{input})
	if err != nil {
		t.Fatalf("single-fragment Finish: %v", err)
	}

	// Every split width from 1 byte up must produce identical results.
	for width := 1; width <= 13; width++ {
		var fragments []string
		for i := 0; i < len(input); i += width {
			end := i + width
			if end > len(input) {
				end = len(input)
			}
			fragments = append(fragments, input[i:end])
		}

		display, files, err := feedAll(fragments)
		if err != nil {
			t.Fatalf("width %d: Finish: %v", width, err)
		}
		if display != wantDisplay {
			t.Errorf("width %d: display = %q, want %q", width, display, wantDisplay)
		}
		if len(files) != len(wantFiles) {
			t.Fatalf("width %d: %d files, want %d", width, len(files), len(wantFiles))
		}
		for i := range files {
			if files[i] != wantFiles[i] {
				t.Errorf("width %d file %d: %+v, want %+v", width, i, files[i], wantFiles[i])
			}
		}
	}
}

func TestProcessor_RoundTrip(t *testing.T) {
	input := `before <FileExport name="f.txt">body text</FileExport> after`

	display, files, err := feedAll([]string{input[:7], input[7:20], input[20:]})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %d", len(files))
	}

	// Reinserting the original markers around the captured content must
	// reproduce the input byte for byte.
	rebuilt := strings.Replace(display, "before  after",
		`before <FileExport name="`+files[0].Name+`">`+files[0].Content+`</FileExport> after`, 1)
	if rebuilt != input {
		t.Errorf("round trip failed:\n got %q\nwant %q", rebuilt, input)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.txt", "a.txt"},
		{"my file.txt", "my_file.txt"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"ok-name.2.md", "ok-name.2.md"},
		{"weird!@#", "weird___"},
		{"日本語.txt", "___.txt"},
	}

	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
