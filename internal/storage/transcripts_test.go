// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/relay-tui/internal/flush"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBeginAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Begin(ctx, "qwen2.5-coder:14b", "explain goroutines")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-coder:14b", got.Model)
	assert.Equal(t, "explain goroutines", got.Prompt)
	assert.False(t, got.Aborted)
	assert.True(t, got.CompletedAt.IsZero())
	assert.Empty(t, got.Segments)
}

func TestAppendSegmentsPreserveOrderAndReason(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Begin(ctx, "m", "p")
	require.NoError(t, err)

	segs := []flush.Segment{
		{Text: "let x = 1;", Reason: flush.ReasonCodeStatementEnd},
		{Text: "\n\nNext paragraph.\n\n", Reason: flush.ReasonParagraphBreak},
		{Text: " done", Reason: flush.ReasonStreamEnd},
	}
	for i, seg := range segs {
		require.NoError(t, store.AppendSegment(ctx, id, i, seg))
	}
	require.NoError(t, store.Finish(ctx, id, false))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Segments, 3)
	assert.Equal(t, "CODE_STATEMENT_END", got.Segments[0].Reason)
	assert.Equal(t, "PARAGRAPH_BREAK", got.Segments[1].Reason)
	assert.Equal(t, "STREAM_END", got.Segments[2].Reason)
	assert.Equal(t, "let x = 1;\n\nNext paragraph.\n\n done", got.Text())
	assert.False(t, got.CompletedAt.IsZero())
}

func TestFinishAborted(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Begin(ctx, "m", "p")
	require.NoError(t, err)
	require.NoError(t, store.Finish(ctx, id, true))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Aborted)
}

func TestFinishUnknownTranscript(t *testing.T) {
	store := openTestStore(t)
	err := store.Finish(context.Background(), "no-such-id", false)
	assert.ErrorIs(t, err, ErrTranscriptNotFound)
}

func TestGetUnknownTranscript(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrTranscriptNotFound)
}

func TestListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// created_at has millisecond resolution; insert directly with distinct
	// timestamps so ordering is deterministic.
	for i, ts := range []int64{1000, 2000, 3000} {
		_, err := store.db.ExecContext(ctx,
			"INSERT INTO transcripts (id, model, prompt, created_at) VALUES (?, ?, ?, ?)",
			string(rune('a'+i)), "m", "p", ts)
		require.NoError(t, err)
	}

	list, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[2].ID)
	assert.Empty(t, list[0].Segments)
}

func TestListLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Begin(ctx, "m", "p")
		require.NoError(t, err)
	}

	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDeleteCascadesSegments(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Begin(ctx, "m", "p")
	require.NoError(t, err)
	require.NoError(t, store.AppendSegment(ctx, id, 0, flush.Segment{Text: "x", Reason: flush.ReasonStreamEnd}))

	require.NoError(t, store.Delete(ctx, id))

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrTranscriptNotFound)

	var n int
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM segments WHERE transcript_id = ?", id).Scan(&n))
	assert.Zero(t, n)
}

func TestDeleteUnknownTranscript(t *testing.T) {
	store := openTestStore(t)
	err := store.Delete(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrTranscriptNotFound)
}

func TestExportJSON(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Begin(ctx, "m", "write a haiku")
	require.NoError(t, err)
	require.NoError(t, store.AppendSegment(ctx, id, 0, flush.Segment{Text: "five syllables here", Reason: flush.ReasonStreamEnd}))
	require.NoError(t, store.Finish(ctx, id, false))

	out := filepath.Join(t.TempDir(), "export", "transcript.json")
	require.NoError(t, store.ExportJSON(ctx, id, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var got Transcript
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "write a haiku", got.Prompt)
	require.Len(t, got.Segments, 1)
	assert.Equal(t, "STREAM_END", got.Segments[0].Reason)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "db.sqlite")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
