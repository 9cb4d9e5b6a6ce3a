// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relay-tui/internal/flush"
	"github.com/jeranaias/relay-tui/internal/ollama"
)

// =============================================================================
// STREAM MESSAGES
// =============================================================================

// SegmentMsg carries one flushed segment of the active stream.
type SegmentMsg struct {
	SessionID string
	Segment   flush.Segment
	Seq       int
}

// StreamDoneMsg signals that the active stream finished.
type StreamDoneMsg struct {
	SessionID string
	Err       error
	Stats     *ollama.StreamStats
	Aborted   bool
}

// =============================================================================
// OLLAMA MESSAGES
// =============================================================================

// OllamaStatusMsg reports the result of the startup health check.
type OllamaStatusMsg struct {
	Running bool
	Err     error
}

// OllamaModelsMsg carries the installed model list.
type OllamaModelsMsg struct {
	Models []ollama.ModelInfo
	Err    error
}

// =============================================================================
// UI MESSAGES
// =============================================================================

// StatusMsg shows a transient line in the status bar.
type StatusMsg struct {
	Text string
}

// statusClearMsg clears an expired status line.
type statusClearMsg struct {
	at time.Time
}

// HistoryMsg carries a listing of stored transcripts.
type HistoryMsg struct {
	Text string
}

// ExportDoneMsg reports the result of a transcript export.
type ExportDoneMsg struct {
	Path string
	Err  error
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForStream reads the next message produced by the streaming goroutine.
// It is re-issued after every SegmentMsg until StreamDoneMsg arrives.
func waitForStream(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// clearStatusAfter schedules the status line to clear.
func clearStatusAfter(d time.Duration) tea.Cmd {
	deadline := time.Now().Add(d)
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusClearMsg{at: deadline}
	})
}
