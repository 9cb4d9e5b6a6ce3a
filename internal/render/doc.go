// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns flushed stream segments into styled terminal output.
//
// # Key Types
//
//   - Renderer: markdown rendering with syntax-highlighted code blocks
//   - Pacer: caps repaint frequency so fast streams don't thrash the terminal
//
// Rendering is applied per repaint over the accumulated transcript, not per
// segment, so partially streamed markdown never locks in a broken layout.
package render
