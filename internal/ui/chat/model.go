// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/flush"
	"github.com/jeranaias/relay-tui/internal/ollama"
	"github.com/jeranaias/relay-tui/internal/render"
	"github.com/jeranaias/relay-tui/internal/session"
	"github.com/jeranaias/relay-tui/internal/storage"
	"github.com/jeranaias/relay-tui/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Receiving a streamed reply
)

// Entry is one item in the visible conversation.
type Entry struct {
	Role     string // "user", "assistant", "system"
	Text     string // user/system content
	Segments []flush.Segment
}

// Content returns the entry's full text.
func (e Entry) Content() string {
	if e.Role != "assistant" {
		return e.Text
	}
	var b strings.Builder
	for _, seg := range e.Segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	state State

	theme  *styles.Theme
	keyMap KeyMap

	width  int
	height int

	cfg      *config.Config
	client   *ollama.Client
	registry *session.Registry
	store    *storage.Store // nil when persistence is disabled

	renderer *render.Renderer
	pacer    *render.Pacer

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	entries []Entry
	history []ollama.Message

	// Active stream
	sessionID string
	streamCh  chan tea.Msg
	cancelMgr *cancelManager
	thinking  bool

	lastStats *ollama.StreamStats
	statusMsg string
	showHelp  bool

	modelName   string
	showReasons bool
}

// New creates the chat model. store may be nil to disable persistence.
func New(cfg *config.Config, client *ollama.Client, store *storage.Store, theme *styles.Theme) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message, or /help for commands..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)

	// ASCII frames render everywhere, including dumb terminals.
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	registry := session.NewRegistry(
		cfg.BuildCatalog(),
		cfg.Flush.LengthThreshold,
		cfg.Flush.DiscardOnCancel,
	)

	modelName := cfg.Local.OllamaModel
	if client != nil && client.GetDefaultModel() != "" {
		modelName = client.GetDefaultModel()
	}

	return Model{
		state:       StateReady,
		theme:       theme,
		keyMap:      DefaultKeyMap(),
		cfg:         cfg,
		client:      client,
		registry:    registry,
		store:       store,
		renderer:    render.NewRenderer(80, cfg.UI.ShowReasons),
		pacer:       render.NewPacer(cfg.UI.MaxFPS),
		viewport:    vp,
		input:       ti,
		spinner:     sp,
		cancelMgr:   newCancelManager(),
		modelName:   modelName,
		showReasons: cfg.UI.ShowReasons,
	}
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init runs the startup health check against Ollama.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.checkOllama())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SegmentMsg:
		return m.handleSegment(msg)

	case StreamDoneMsg:
		return m.handleStreamDone(msg)

	case OllamaStatusMsg:
		return m.handleOllamaStatus(msg)

	case OllamaModelsMsg:
		return m.handleOllamaModels(msg)

	case StatusMsg:
		m.statusMsg = msg.Text
		return m, clearStatusAfter(4 * time.Second)

	case statusClearMsg:
		if !time.Now().Before(msg.at) {
			m.statusMsg = ""
		}
		return m, nil

	case HistoryMsg:
		m.entries = append(m.entries, Entry{Role: "system", Text: msg.Text})
		m.repaint()
		m.viewport.GotoBottom()
		return m, nil

	case ExportDoneMsg:
		if msg.Err != nil {
			m.statusMsg = styles.RenderError("export failed: " + msg.Err.Error())
		} else {
			m.statusMsg = styles.RenderSuccess("exported to " + msg.Path)
		}
		return m, clearStatusAfter(4 * time.Second)

	case spinner.TickMsg:
		if m.thinking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmds []tea.Cmd
	if m.state == StateReady {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)
	return m, tea.Batch(cmds...)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.cancelMgr.cancel()
		m.registry.CloseAll()
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keyMap.Clear):
		if m.state == StateReady {
			m.entries = nil
			m.history = nil
			m.lastStats = nil
			m.repaint()
			m.statusMsg = "conversation cleared"
			return m, clearStatusAfter(2 * time.Second)
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Reasons):
		m.showReasons = !m.showReasons
		m.renderer = render.NewRenderer(m.contentWidth(), m.showReasons)
		m.repaint()
		return m, nil

	case key.Matches(msg, m.keyMap.Cancel):
		if m.state == StateStreaming {
			// The pump notices the cancelled context and aborts the
			// session; cleanup happens on StreamDoneMsg.
			m.cancelMgr.cancel()
			return m, nil
		}
		if m.showHelp {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keyMap.Up):
		m.viewport.LineUp(1)
		return m, nil
	case key.Matches(msg, m.keyMap.Down):
		m.viewport.LineDown(1)
		return m, nil
	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keyMap.Home):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keyMap.End):
		m.viewport.GotoBottom()
		return m, nil
	}

	if key.Matches(msg, m.keyMap.Submit) && m.state == StateReady {
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		if strings.HasPrefix(text, "/") {
			return m.handleCommand(text)
		}
		return m.submitPrompt(text)
	}

	if m.state == StateReady {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// submitPrompt sends a user prompt and starts streaming the reply.
func (m Model) submitPrompt(prompt string) (tea.Model, tea.Cmd) {
	if m.client == nil {
		m.statusMsg = styles.RenderError("Ollama client not configured")
		return m, clearStatusAfter(4 * time.Second)
	}

	m.entries = append(m.entries, Entry{Role: "user", Text: prompt})
	m.entries = append(m.entries, Entry{Role: "assistant"})
	m.history = append(m.history, ollama.NewUserMessage(prompt))

	// The emitter runs inside pump.Run on the stream goroutine, so both the
	// captured slice and seq counter are touched by one goroutine only.
	streamCh := make(chan tea.Msg, 64)
	var sessID string
	var persisted []flush.Segment
	seq := 0
	sess := m.registry.Open(func(seg flush.Segment) {
		persisted = append(persisted, seg)
		streamCh <- SegmentMsg{SessionID: sessID, Segment: seg, Seq: seq}
		seq++
	})
	sessID = sess.ID()

	m.sessionID = sess.ID()
	m.streamCh = streamCh
	m.state = StateStreaming
	m.thinking = true
	m.lastStats = nil

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelMgr.set(cancel)

	go m.runStream(ctx, sess, streamCh, prompt, &persisted)

	m.repaint()
	m.viewport.GotoBottom()
	return m, tea.Batch(m.spinner.Tick, waitForStream(streamCh))
}

// runStream drives the pump in a goroutine and persists the finished
// transcript. It owns streamCh and closes it when done.
func (m Model) runStream(ctx context.Context, sess *flush.Session, streamCh chan tea.Msg, prompt string, persisted *[]flush.Segment) {
	defer close(streamCh)

	sessID := sess.ID()
	pump := ollama.NewPump(m.client)
	err := pump.Run(ctx, m.modelName, m.history, sess)
	aborted := err != nil && ctx.Err() != nil

	m.registry.Remove(sessID)

	if m.store != nil && (err == nil || aborted) {
		// Persist with a fresh context so cancelling the stream does not
		// drop the partial transcript.
		pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pcancel()
		if id, berr := m.store.Begin(pctx, m.modelName, prompt); berr == nil {
			for i, seg := range *persisted {
				if aerr := m.store.AppendSegment(pctx, id, i, seg); aerr != nil {
					break
				}
			}
			m.store.Finish(pctx, id, aborted)
		}
	}

	streamCh <- StreamDoneMsg{
		SessionID: sessID,
		Err:       err,
		Stats:     pump.Stats(),
		Aborted:   aborted,
	}
}

func (m Model) handleSegment(msg SegmentMsg) (tea.Model, tea.Cmd) {
	if msg.SessionID != m.sessionID {
		if m.streamCh == nil {
			return m, nil
		}
		return m, waitForStream(m.streamCh)
	}

	m.thinking = false
	if n := len(m.entries); n > 0 && m.entries[n-1].Role == "assistant" {
		m.entries[n-1].Segments = append(m.entries[n-1].Segments, msg.Segment)
	}

	// PERFORMANCE: Repaint at most MaxFPS times per second; segments that
	// land between frames still accumulate and show on the next repaint.
	if m.pacer.Allow() {
		m.repaint()
		m.viewport.GotoBottom()
	}

	return m, waitForStream(m.streamCh)
}

func (m Model) handleStreamDone(msg StreamDoneMsg) (tea.Model, tea.Cmd) {
	if msg.SessionID != m.sessionID {
		return m, nil
	}

	m.state = StateReady
	m.thinking = false
	m.sessionID = ""
	m.streamCh = nil
	m.cancelMgr.cancel()
	m.lastStats = msg.Stats

	switch {
	case msg.Aborted:
		m.statusMsg = styles.RenderWarning("stream cancelled")
	case msg.Err != nil:
		m.statusMsg = styles.RenderError(msg.Err.Error())
		// Drop the empty assistant entry so the error does not leave a
		// blank bubble behind.
		if n := len(m.entries); n > 0 && m.entries[n-1].Role == "assistant" && len(m.entries[n-1].Segments) == 0 {
			m.entries = m.entries[:n-1]
		}
	default:
		if n := len(m.entries); n > 0 && m.entries[n-1].Role == "assistant" {
			m.history = append(m.history, ollama.NewAssistantMessage(m.entries[n-1].Content()))
		}
	}

	m.repaint()
	m.viewport.GotoBottom()
	m.input.Focus()

	var cmds []tea.Cmd
	cmds = append(cmds, textinput.Blink)
	if m.statusMsg != "" {
		cmds = append(cmds, clearStatusAfter(4*time.Second))
	}
	return m, tea.Batch(cmds...)
}

// =============================================================================
// OLLAMA STATUS
// =============================================================================

func (m *Model) checkOllama() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		if client == nil {
			return OllamaStatusMsg{Running: false, Err: ollama.ErrNotRunning}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := client.CheckRunning(ctx)
		return OllamaStatusMsg{Running: err == nil, Err: err}
	}
}

func (m Model) handleOllamaStatus(msg OllamaStatusMsg) (tea.Model, tea.Cmd) {
	if !msg.Running {
		text := "cannot reach Ollama"
		if msg.Err != nil {
			text = msg.Err.Error()
		}
		m.statusMsg = styles.RenderWarning(text)
		return m, clearStatusAfter(6 * time.Second)
	}
	return m, nil
}

func (m Model) handleOllamaModels(msg OllamaModelsMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.statusMsg = styles.RenderError("failed to list models: " + msg.Err.Error())
		return m, clearStatusAfter(4 * time.Second)
	}

	var names []string
	for _, info := range msg.Models {
		names = append(names, info.Name)
	}
	m.entries = append(m.entries, Entry{
		Role: "system",
		Text: "Installed models: " + strings.Join(names, ", "),
	})
	m.repaint()
	m.viewport.GotoBottom()
	return m, nil
}

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	const (
		headerHeight    = 2
		inputAreaHeight = 3
		statusBarHeight = 2
	)
	vpHeight := m.height - headerHeight - inputAreaHeight - statusBarHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	vpWidth := m.width
	if vpWidth < 1 {
		vpWidth = 1
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight

	inputWidth := m.width - 8
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth

	if m.theme != nil {
		m.theme.SetSize(m.width, m.height)
	}
	m.renderer = render.NewRenderer(m.contentWidth(), m.showReasons)

	m.repaint()
	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, vpCmd
}

func (m Model) contentWidth() int {
	w := m.width - 4
	if w < 20 {
		w = 80
	}
	return w
}

// =============================================================================
// ACCESSORS
// =============================================================================

// GetState returns the current view state.
func (m *Model) GetState() State {
	return m.state
}

// Entries returns the visible conversation.
func (m *Model) Entries() []Entry {
	return m.entries
}
