// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"

	"github.com/jeranaias/relay-tui/internal/flush"
)

// =============================================================================
// STREAM PUMP
// =============================================================================

// Pump drives one streaming chat request into a flush session: each chunk's
// content is pushed as a fragment, and stream completion closes the session
// so the terminal flush fires. Cancellation aborts the session instead,
// which honors its discard-on-cancel setting.
type Pump struct {
	client *Client
	stats  *StreamStats
}

// NewPump creates a pump backed by the given client.
func NewPump(client *Client) *Pump {
	return &Pump{client: client}
}

// Stats returns the statistics of the most recent Run, or nil before the
// first call.
func (p *Pump) Stats() *StreamStats {
	return p.stats
}

// Run streams a chat completion into the session. The session is always
// terminated before Run returns: Close on natural completion, Abort on
// cancellation or transport failure. Push errors after termination are
// lifecycle bugs and are returned as-is.
func (p *Pump) Run(ctx context.Context, model string, messages []Message, session *flush.Session) error {
	stats := NewStreamStats()
	p.stats = stats

	var pushErr error
	streamErr := p.client.ChatStream(ctx, model, messages, func(chunk StreamChunk) {
		if pushErr != nil {
			return
		}
		if chunk.Content != "" {
			stats.RecordFirstToken()
			if err := session.Push(chunk.Content); err != nil {
				pushErr = err
				return
			}
		}
		if chunk.Done {
			stats.Finalize(chunk)
		}
	})

	if pushErr != nil {
		// The session rejected a fragment; make sure it still terminates.
		if !session.Closed() {
			session.Abort()
		}
		return pushErr
	}

	if streamErr != nil {
		// Abort may observe an already-closed session when the stream
		// errored after the final chunk; that is not a failure here.
		if !session.Closed() {
			session.Abort()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return streamErr
	}

	if err := session.Close(); err != nil && !errors.Is(err, flush.ErrClosed) {
		return err
	}
	return nil
}
