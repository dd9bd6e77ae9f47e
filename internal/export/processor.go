// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export splits a streamed model response into display text and
// embedded file-export directives, and writes the exported files.
//
// Fragments arrive at whatever granularity the upstream model emits, so a
// directive marker can be split across any fragment boundary. The
// processor holds back the longest trailing run that could still be the
// prefix of a marker and re-evaluates it when the next fragment arrives;
// partial markup is never emitted as display text.
package export

import "strings"

// Directive markers.
const (
	openPrefix  = `<FileExport name="`
	openSuffix  = `">`
	closeMarker = `</FileExport>`
)

// File is a completed export directive: the declared (unsanitized) name
// and the full content between the markers.
type File struct {
	Name    string
	Content string
}

// IncompleteExportError reports a stream that ended while a directive was
// still open. The accumulated content is discarded, never written.
type IncompleteExportError struct {
	Name string
}

func (e *IncompleteExportError) Error() string {
	return "stream ended inside file export " + e.Name
}

type state int

const (
	stateScanning   state = iota // not inside a directive
	stateCollecting              // inside a directive, accumulating content
)

// Processor is the incremental directive scanner. Feed it fragments in
// arrival order; each call returns the display increment that is safe to
// show immediately plus any directives completed within the fragment.
// Processor is not safe for concurrent use; the session coordinator feeds
// it from a single control flow.
type Processor struct {
	state    state
	residual string

	// Pending export, valid only while collecting.
	name    string
	content strings.Builder
}

// NewProcessor returns a processor in the scanning state.
func NewProcessor() *Processor {
	return &Processor{}
}

// Collecting reports whether the processor is currently inside a directive.
func (p *Processor) Collecting() bool {
	return p.state == stateCollecting
}

// Feed consumes one fragment and returns the display increment (possibly
// empty) and zero or more completed files, in the order they closed.
func (p *Processor) Feed(fragment string) (string, []File) {
	buf := p.residual + fragment
	p.residual = ""

	var display strings.Builder
	var files []File

	for buf != "" {
		if p.state == stateScanning {
			var done bool
			buf, done = p.scan(buf, &display)
			if done {
				break
			}
			continue
		}

		var done bool
		buf, files, done = p.collect(buf, files)
		if done {
			break
		}
	}

	return display.String(), files
}

// scan looks for a complete opening marker in buf. It returns the
// remaining unconsumed text and whether processing of this fragment is
// finished (the remainder went into the residual).
func (p *Processor) scan(buf string, display *strings.Builder) (string, bool) {
	idx := strings.Index(buf, openPrefix)
	if idx < 0 {
		// No full prefix. Hold back a tail that could still be the start
		// of one; everything before it is safe to display.
		hold := partialMarkerLen(buf, openPrefix)
		display.WriteString(buf[:len(buf)-hold])
		p.residual = buf[len(buf)-hold:]
		return "", true
	}

	rest := buf[idx+len(openPrefix):]
	end := strings.Index(rest, openSuffix)
	if end < 0 {
		// Opening marker started but the name is not finished yet.
		display.WriteString(buf[:idx])
		p.residual = buf[idx:]
		return "", true
	}

	display.WriteString(buf[:idx])
	p.name = rest[:end]
	p.content.Reset()
	p.state = stateCollecting
	return rest[end+len(openSuffix):], false
}

// collect accumulates directive content until the closing marker.
func (p *Processor) collect(buf string, files []File) (string, []File, bool) {
	idx := strings.Index(buf, closeMarker)
	if idx < 0 {
		hold := partialMarkerLen(buf, closeMarker)
		p.content.WriteString(buf[:len(buf)-hold])
		p.residual = buf[len(buf)-hold:]
		return "", files, true
	}

	p.content.WriteString(buf[:idx])
	files = append(files, File{Name: p.name, Content: p.content.String()})
	p.name = ""
	p.content.Reset()
	p.state = stateScanning
	return buf[idx+len(closeMarker):], files, false
}

// Finish signals end of stream. In the scanning state any held-back
// residual is flushed as display text; ending inside a directive is an
// incomplete export and the accumulated content is discarded.
func (p *Processor) Finish() (string, error) {
	if p.state == stateCollecting {
		name := p.name
		p.name = ""
		p.content.Reset()
		p.residual = ""
		p.state = stateScanning
		return "", &IncompleteExportError{Name: name}
	}

	display := p.residual
	p.residual = ""
	return display, nil
}

// partialMarkerLen returns the length of the longest suffix of s that is
// a proper prefix of marker. That suffix must be held back because the
// next fragment could complete the marker.
func partialMarkerLen(s, marker string) int {
	max := len(marker) - 1
	if len(s) < max {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if s[len(s)-k:] == marker[:k] {
			return k
		}
	}
	return 0
}

// SanitizeFilename replaces every character outside [A-Za-z0-9.-] with an
// underscore so a declared name is always a safe single path component.
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
