// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relay-tui/internal/util"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand dispatches a /command typed at the prompt.
func (m Model) handleCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], "/")
	args := fields[1:]

	switch name {
	case "help":
		m.showHelp = !m.showHelp
		return m, nil

	case "clear", "new":
		m.entries = nil
		m.history = nil
		m.lastStats = nil
		m.repaint()
		return m, nil

	case "models":
		return m, m.listModels()

	case "model":
		if len(args) == 0 {
			m.statusMsg = "current model: " + m.modelName
			return m, clearStatusAfter(4 * time.Second)
		}
		return m.switchModel(args[0])

	case "export":
		path := "relay-transcript.md"
		if len(args) > 0 {
			path = args[0]
		}
		return m, m.exportConversation(path)

	case "history":
		return m, m.listTranscripts()

	case "quit", "exit":
		m.cancelMgr.cancel()
		m.registry.CloseAll()
		return m, tea.Quit

	default:
		m.statusMsg = "unknown command: /" + name
		return m, clearStatusAfter(4 * time.Second)
	}
}

func (m Model) listModels() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		if client == nil {
			return OllamaModelsMsg{Err: fmt.Errorf("no client configured")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		models, err := client.ListModels(ctx)
		return OllamaModelsMsg{Models: models, Err: err}
	}
}

func (m Model) switchModel(name string) (tea.Model, tea.Cmd) {
	m.modelName = name
	if m.client != nil {
		m.client.SetModel(name)
	}
	m.entries = append(m.entries, Entry{Role: "system", Text: "Switched to model: " + name})
	m.repaint()
	m.viewport.GotoBottom()
	return m, nil
}

// exportConversation writes the visible conversation as markdown.
func (m Model) exportConversation(path string) tea.Cmd {
	entries := m.entries
	modelName := m.modelName
	return func() tea.Msg {
		var b strings.Builder
		b.WriteString("# relay conversation\n\n")
		b.WriteString("Model: " + modelName + "\n\n")
		for _, e := range entries {
			switch e.Role {
			case "user":
				b.WriteString("## You\n\n" + e.Text + "\n\n")
			case "assistant":
				b.WriteString("## Assistant\n\n" + e.Content() + "\n\n")
			case "system":
				b.WriteString("> " + e.Text + "\n\n")
			}
		}
		err := util.AtomicWriteFile(path, []byte(b.String()), 0644)
		return ExportDoneMsg{Path: path, Err: err}
	}
}

// listTranscripts shows recent stored transcripts as a system entry.
func (m Model) listTranscripts() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		if store == nil {
			return StatusMsg{Text: "transcript storage is disabled"}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		list, err := store.List(ctx, 10)
		if err != nil {
			return StatusMsg{Text: "history failed: " + err.Error()}
		}
		if len(list) == 0 {
			return StatusMsg{Text: "no stored transcripts"}
		}
		var b strings.Builder
		b.WriteString("Recent transcripts:\n")
		for _, t := range list {
			prompt := util.TruncateRunes(t.Prompt, 60)
			b.WriteString(fmt.Sprintf("  %s  %s  %s\n",
				t.CreatedAt.Format("2006-01-02 15:04"), t.ID[:8], prompt))
		}
		return HistoryMsg{Text: b.String()}
	}
}
