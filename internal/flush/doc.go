// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package flush implements the streaming flush-decision engine.
//
// Model output arrives as an ordered stream of arbitrary-length text
// fragments with no boundary guarantees: a fragment may end mid-word,
// mid-token, or mid-statement. Releasing that text to the renderer at
// naive points (every N characters, or only on blank lines) corrupts
// structured content, most visibly source-code blocks.
//
// The engine accumulates fragments per session and decides, fragment by
// fragment, when the pending buffer is safe to release:
//
//	fragment -> Session.Push -> Accumulator -> Policy.Decide -> emit or hold
//
// Decisions consult a Detector backed by an immutable Catalog of
// per-language pattern rules. When the buffer looks like code, flushing
// waits for the strongest available boundary (statement end, then
// assignment, then line break) before the raw length threshold is allowed
// to trigger. Plain prose flushes on paragraph breaks as before.
//
// The engine performs no I/O and never blocks; sessions are independent
// and share only the read-only Catalog.
package flush
