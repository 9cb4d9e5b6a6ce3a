// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/relay-tui/internal/flush"
	"github.com/jeranaias/relay-tui/internal/ui/styles"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// Renderer renders assistant output for terminal display.
// USABILITY: Renders markdown responses with syntax highlighting and formatting.
type Renderer struct {
	markdown    *glamour.TermRenderer
	width       int
	showReasons bool
}

// NewRenderer creates a renderer wrapping at the given width. A zero or
// negative width falls back to 80 columns.
func NewRenderer(width int, showReasons bool) *Renderer {
	if width <= 0 {
		width = 80
	}

	// Fallback to plain text if renderer initialization fails.
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		md = nil
	}

	return &Renderer{
		markdown:    md,
		width:       width,
		showReasons: showReasons,
	}
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Markdown renders markdown content for terminal display.
// Returns the original content if rendering fails.
func (r *Renderer) Markdown(content string) string {
	if r.markdown == nil {
		return content
	}
	rendered, err := r.markdown.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// Segment renders one flushed segment: the raw text, optionally annotated
// with a muted flush-reason badge on its own line.
func (r *Renderer) Segment(seg flush.Segment) string {
	if !r.showReasons || seg.Reason == flush.ReasonNoFlush {
		return seg.Text
	}
	badge := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Render("[" + seg.Reason.String() + "]")
	if seg.Text == "" {
		return badge
	}
	return seg.Text + "\n" + badge + "\n"
}

// Transcript renders a full assistant reply from its flushed segments.
// Segments are concatenated before markdown rendering so fenced blocks that
// were flushed across several segments still render as one block.
func (r *Renderer) Transcript(segments []flush.Segment) string {
	var raw strings.Builder
	for _, seg := range segments {
		raw.WriteString(seg.Text)
	}
	return r.Markdown(raw.String())
}
