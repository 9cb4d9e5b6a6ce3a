// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/relay-tui/internal/flush"
)

// =============================================================================
// RENDERER TESTS
// =============================================================================

func TestMarkdownRendersContent(t *testing.T) {
	r := NewRenderer(80, false)

	out := r.Markdown("# Title\n\nSome text.")
	if !strings.Contains(out, "Title") {
		t.Errorf("Rendered output should contain heading text, got %q", out)
	}
}

func TestMarkdownFallbackWithoutRenderer(t *testing.T) {
	r := &Renderer{markdown: nil, width: 80}
	if got := r.Markdown("plain"); got != "plain" {
		t.Errorf("Markdown = %q, want passthrough", got)
	}
}

func TestSegmentWithoutReasons(t *testing.T) {
	r := NewRenderer(80, false)
	seg := flush.Segment{Text: "hello", Reason: flush.ReasonParagraphBreak}
	if got := r.Segment(seg); got != "hello" {
		t.Errorf("Segment = %q, want raw text", got)
	}
}

func TestSegmentWithReasonBadge(t *testing.T) {
	r := NewRenderer(80, true)
	seg := flush.Segment{Text: "hello", Reason: flush.ReasonParagraphBreak}
	got := r.Segment(seg)
	if !strings.Contains(got, "hello") || !strings.Contains(got, "PARAGRAPH_BREAK") {
		t.Errorf("Segment = %q, want text plus reason badge", got)
	}
}

func TestTranscriptJoinsSegments(t *testing.T) {
	r := &Renderer{markdown: nil, width: 80}
	segments := []flush.Segment{
		{Text: "first ", Reason: flush.ReasonLengthThreshold},
		{Text: "second", Reason: flush.ReasonStreamEnd},
	}
	if got := r.Transcript(segments); got != "first second" {
		t.Errorf("Transcript = %q", got)
	}
}

// =============================================================================
// CODE BLOCK TESTS
// =============================================================================

func TestCodeBlockRenderIncludesCode(t *testing.T) {
	cb := NewCodeBlock("go", "package main\n\nfunc main() {}")
	out := cb.Render()
	if !strings.Contains(out, "main") {
		t.Errorf("Rendered block should contain the code, got %q", out)
	}
}

func TestHighlightFallsBackToPlain(t *testing.T) {
	code := "some plain text"
	out := Highlight(code, "no-such-language")
	if out == "" {
		t.Error("Highlight should never return empty output")
	}
}

func TestDetectLanguageGo(t *testing.T) {
	code := "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(\"hi\") }\n"
	lang := DetectLanguage(code)
	if lang == "" {
		t.Skip("chroma analysis inconclusive for sample")
	}
	if !strings.EqualFold(lang, "go") {
		t.Errorf("DetectLanguage = %q, want Go", lang)
	}
}

// =============================================================================
// PACER TESTS
// =============================================================================

func TestPacerAllowsFirstRepaint(t *testing.T) {
	p := NewPacer(30)
	if !p.Allow() {
		t.Error("First repaint should be allowed")
	}
}

func TestPacerThrottlesBurst(t *testing.T) {
	p := NewPacer(1) // one repaint per second

	if !p.Allow() {
		t.Fatal("First repaint should be allowed")
	}
	if p.Allow() {
		t.Error("Second immediate repaint should be throttled at 1 FPS")
	}
}

func TestPacerUnpaced(t *testing.T) {
	p := NewPacer(0)
	for i := 0; i < 100; i++ {
		if !p.Allow() {
			t.Fatal("Unpaced pacer should always allow")
		}
	}
}

func TestPacerWaitHonorsContext(t *testing.T) {
	p := NewPacer(1)
	p.Allow() // consume the burst

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := p.Wait(ctx); err == nil {
		t.Error("Wait should fail when the context expires before a token")
	}
}
