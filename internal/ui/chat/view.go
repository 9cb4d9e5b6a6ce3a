// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/relay-tui/internal/flush"
	"github.com/jeranaias/relay-tui/internal/ui/styles"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat view.
func (m Model) View() string {
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("relay")
	subtitle := m.theme.HeaderSubtitle.Render(" · " + m.modelName)
	return m.theme.Header.Width(m.width).Render(title + subtitle)
}

func (m Model) renderInput() string {
	if m.state == StateStreaming {
		line := m.spinner.View() + " " + m.theme.ThinkingText.Render(m.streamingLabel())
		return m.theme.InputContainer.Width(m.inputBoxWidth()).Render(line)
	}
	return m.theme.InputContainer.Width(m.inputBoxWidth()).Render(m.input.View())
}

func (m Model) streamingLabel() string {
	if m.thinking {
		return "thinking..."
	}
	return "streaming... (Esc to cancel)"
}

func (m Model) inputBoxWidth() int {
	w := m.width - 2
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) renderStatusBar() string {
	if m.statusMsg != "" {
		return m.theme.StatusBar.Width(m.width).Render(m.statusMsg)
	}

	parts := []string{m.theme.ModeLocal.Render("LOCAL")}
	if m.lastStats != nil {
		parts = append(parts, m.theme.ShortcutDesc.Render(m.lastStats.Format()))
	}
	for _, binding := range m.keyMap.ShortHelp() {
		parts = append(parts,
			m.theme.ShortcutKey.Render(binding.Help().Key)+
				m.theme.ShortcutDesc.Render(" "+binding.Help().Desc))
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("relay shortcuts"))
	b.WriteString("\n\n")
	for _, group := range m.keyMap.FullHelp() {
		for _, binding := range group {
			b.WriteString("  ")
			b.WriteString(m.theme.ShortcutKey.Render(binding.Help().Key))
			b.WriteString("  ")
			b.WriteString(m.theme.ShortcutDesc.Render(binding.Help().Desc))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(m.theme.ShortcutDesc.Render("Commands: /help /clear /models /model <name> /export [path] /history /quit"))
	b.WriteString("\n\n")
	b.WriteString(m.theme.ShortcutDesc.Render("Press C-h or Esc to close"))
	return m.theme.Container.Render(b.String())
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// repaint regenerates the viewport content from the conversation.
func (m *Model) repaint() {
	m.viewport.SetContent(m.renderEntries())
}

func (m Model) renderEntries() string {
	if len(m.entries) == 0 {
		return m.theme.ShortcutDesc.Render("\n  Start chatting. Replies stream in render-safe segments.\n")
	}

	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		switch e.Role {
		case "user":
			b.WriteString(m.theme.UserBubble.Render(e.Text))
		case "assistant":
			b.WriteString(m.renderAssistant(e))
		case "system":
			b.WriteString(m.theme.SystemBubble.Render(e.Text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderAssistant renders a streamed reply. Markdown is re-rendered over the
// whole accumulated text on every repaint, so a reply whose formatting spans
// segments still lays out correctly once the later segments arrive.
func (m Model) renderAssistant(e Entry) string {
	if len(e.Segments) == 0 {
		return m.theme.ThinkingText.Render("...")
	}

	body := m.renderer.Markdown(e.Content())
	body = strings.TrimRight(body, "\n")

	if m.showReasons {
		body += "\n" + m.renderReasonTrail(e.Segments)
	}
	return m.theme.AssistantBubble.Render(body)
}

// renderReasonTrail shows why each segment was released, in order.
func (m Model) renderReasonTrail(segments []flush.Segment) string {
	badges := make([]string, len(segments))
	for i, seg := range segments {
		badges[i] = "[" + seg.Reason.String() + "]"
	}
	return lipgloss.NewStyle().Foreground(styles.TextMuted).Render(strings.Join(badges, " "))
}
