// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the interactive chat view for the relay TUI.
//
// The view streams Ollama replies through a flush session, so text reaches
// the screen in render-safe segments (statement ends, paragraph breaks,
// length overflow) rather than raw token-by-token. Each completed stream is
// optionally persisted to the transcript store.
package chat
