// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/relay-tui/internal/flush"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// chatLine builds one line of a streaming chat response.
func chatLine(content string, done bool) string {
	var b strings.Builder
	b.WriteString(`{"model":"test-model","message":{"role":"assistant","content":`)
	b.WriteString(quoteJSON(content))
	b.WriteString(`},"done":`)
	if done {
		b.WriteString(`true,"eval_count":42,"eval_duration":1000000000`)
	} else {
		b.WriteString("false")
	}
	b.WriteString("}\n")
	return b.String()
}

func quoteJSON(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func newTestClient(url string) *Client {
	return NewClientWithConfig(&ClientConfig{
		BaseURL:      url,
		Timeout:      5 * time.Second,
		DefaultModel: "test-model",
	})
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestCheckRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ollama is running"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if err := client.CheckRunning(context.Background()); err != nil {
		t.Errorf("CheckRunning failed: %v", err)
	}
}

func TestCheckRunningNotReachable(t *testing.T) {
	// Closed server to simulate Ollama being down.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(srv.URL)
	err := client.CheckRunning(context.Background())
	if !IsNotRunning(err) {
		t.Errorf("Expected not-running error, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"qwen2.5-coder:14b","size":9000000000},{"name":"llama3.2:3b","size":2000000000}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("Expected 2 models, got %d", len(models))
	}
	if models[0].Name != "qwen2.5-coder:14b" {
		t.Errorf("Model name = %q", models[0].Name)
	}
}

func TestGetModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.GetModel(context.Background(), "no-such-model")
	if !IsModelNotFound(err) {
		t.Errorf("Expected model-not-found error, got %v", err)
	}
}

func TestChatStreamDeliversChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatLine("Hello", false)))
		w.Write([]byte(chatLine(" world", false)))
		w.Write([]byte(chatLine("", true)))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	var got []string
	var final StreamChunk
	err := client.ChatStream(context.Background(), "", []Message{NewUserMessage("hi")}, func(chunk StreamChunk) {
		if chunk.Content != "" {
			got = append(got, chunk.Content)
		}
		if chunk.Done {
			final = chunk
		}
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if strings.Join(got, "") != "Hello world" {
		t.Errorf("Content = %q, want %q", strings.Join(got, ""), "Hello world")
	}
	if final.CompletionTokens != 42 {
		t.Errorf("CompletionTokens = %d, want 42", final.CompletionTokens)
	}
}

func TestChatStreamAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model requires more system memory"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.ChatStream(context.Background(), "", nil, func(StreamChunk) {})
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(err.Error(), "more system memory") {
		t.Errorf("Error should carry the API message, got %v", err)
	}
}

// =============================================================================
// STREAM READER TESTS
// =============================================================================

func TestStreamReaderSkipsMalformedLines(t *testing.T) {
	input := chatLine("ok", false) + "not json at all\n" + chatLine("", true)
	reader := NewStreamReader(strings.NewReader(input))

	var contents []string
	err := reader.Process(context.Background(), func(chunk StreamChunk) {
		if chunk.Content != "" {
			contents = append(contents, chunk.Content)
		}
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(contents) != 1 || contents[0] != "ok" {
		t.Errorf("Contents = %v, want [ok]", contents)
	}
}

func TestStreamReaderAccumulates(t *testing.T) {
	input := chatLine("a", false) + chatLine("b", false) + chatLine("", true)
	reader := NewStreamReader(strings.NewReader(input))

	if err := reader.Process(context.Background(), func(StreamChunk) {}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if reader.GetAccumulated() != "ab" {
		t.Errorf("Accumulated = %q, want ab", reader.GetAccumulated())
	}
	if reader.GetModel() != "test-model" {
		t.Errorf("Model = %q", reader.GetModel())
	}
}

func TestStreamReaderCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewStreamReader(strings.NewReader(chatLine("x", false)))
	err := reader.Process(ctx, func(StreamChunk) {})
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// =============================================================================
// UTF-8 GUARD TESTS
// =============================================================================

func TestRuneGuardPassesCompleteText(t *testing.T) {
	var g runeGuard
	if got := g.Write("héllo 世界"); got != "héllo 世界" {
		t.Errorf("Write = %q", got)
	}
}

func TestRuneGuardHoldsPartialSequence(t *testing.T) {
	var g runeGuard
	full := []byte("世") // 3 bytes

	if got := g.Write(string(full[:2])); got != "" {
		t.Errorf("Partial sequence should be held, got %q", got)
	}
	if got := g.Write(string(full[2:])); got != "世" {
		t.Errorf("Completed sequence = %q, want 世", got)
	}
}

func TestRuneGuardSplitAcrossPrefix(t *testing.T) {
	var g runeGuard
	full := []byte("ab界")

	first := g.Write(string(full[:3])) // "ab" + first byte of 界
	second := g.Write(string(full[3:]))

	if first != "ab" {
		t.Errorf("First = %q, want ab", first)
	}
	if second != "界" {
		t.Errorf("Second = %q, want 界", second)
	}
}

func TestRuneGuardDrain(t *testing.T) {
	var g runeGuard
	full := []byte("界")

	g.Write(string(full[:1]))
	if got := g.Drain(); got != string(full[:1]) {
		t.Errorf("Drain = %q, want raw held byte", got)
	}
	if got := g.Drain(); got != "" {
		t.Errorf("Second drain = %q, want empty", got)
	}
}

// =============================================================================
// PUMP TESTS
// =============================================================================

func TestPumpRunFlushesThroughSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatLine("let score = 0;", false)))
		w.Write([]byte(chatLine(" done", false)))
		w.Write([]byte(chatLine("", true)))
	}))
	defer srv.Close()

	var segments []flush.Segment
	session := flush.NewSession(flush.Options{}, func(seg flush.Segment) {
		segments = append(segments, seg)
	})

	pump := NewPump(newTestClient(srv.URL))
	err := pump.Run(context.Background(), "", []Message{NewUserMessage("write code")}, session)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !session.Closed() {
		t.Error("Session should be closed after Run")
	}
	if len(segments) < 2 {
		t.Fatalf("Expected at least 2 segments, got %d", len(segments))
	}
	if segments[0].Reason != flush.ReasonCodeStatementEnd {
		t.Errorf("First reason = %v, want CODE_STATEMENT_END", segments[0].Reason)
	}
	last := segments[len(segments)-1]
	if last.Reason != flush.ReasonStreamEnd {
		t.Errorf("Last reason = %v, want STREAM_END", last.Reason)
	}

	var all strings.Builder
	for _, seg := range segments {
		all.WriteString(seg.Text)
	}
	if all.String() != "let score = 0; done" {
		t.Errorf("Joined = %q", all.String())
	}
}

func TestPumpRunAbortsOnCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatLine("partial", false)))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())

	var segments []flush.Segment
	session := flush.NewSession(flush.Options{}, func(seg flush.Segment) {
		segments = append(segments, seg)
	})

	done := make(chan error, 1)
	pump := NewPump(newTestClient(srv.URL))
	go func() {
		done <- pump.Run(ctx, "", []Message{NewUserMessage("hi")}, session)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-done
	if err != context.Canceled {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if !session.Closed() {
		t.Error("Session should be terminated after cancel")
	}
	// Default policy still emits buffered content as the terminal segment.
	last := segments[len(segments)-1]
	if last.Reason != flush.ReasonStreamEnd {
		t.Errorf("Last reason = %v, want STREAM_END", last.Reason)
	}
}

func TestPumpStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatLine("hi", false)))
		w.Write([]byte(chatLine("", true)))
	}))
	defer srv.Close()

	session := flush.NewSession(flush.Options{}, nil)
	pump := NewPump(newTestClient(srv.URL))
	if err := pump.Run(context.Background(), "", nil, session); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stats := pump.Stats()
	if stats == nil {
		t.Fatal("Stats should be recorded")
	}
	if stats.CompletionTokens != 42 {
		t.Errorf("CompletionTokens = %d, want 42", stats.CompletionTokens)
	}
	if stats.TTFT <= 0 {
		t.Error("TTFT should be positive after first token")
	}
}
