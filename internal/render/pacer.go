// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"context"

	"golang.org/x/time/rate"
)

// =============================================================================
// REPAINT PACER
// =============================================================================

// Pacer caps how often the view repaints while segments stream in. Fast local
// models can flush dozens of segments per second; repainting on every one
// burns CPU without improving readability.
//
// PERFORMANCE: Rate-limited repaints keep streaming smooth on slow terminals.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer allowing at most maxFPS repaints per second, with
// a burst of one. Zero or negative maxFPS means unpaced.
func NewPacer(maxFPS int) *Pacer {
	if maxFPS <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(maxFPS), 1)}
}

// Allow reports whether a repaint may happen now. Denied repaints are simply
// dropped; the next allowed repaint shows the accumulated state.
func (p *Pacer) Allow() bool {
	return p.limiter.Allow()
}

// Wait blocks until a repaint is permitted or the context is cancelled.
// Used by the final repaint, which must not be dropped.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
