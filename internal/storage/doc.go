// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides transcript persistence for the relay TUI.
//
// Finished streams are stored in a local SQLite database, one row per
// transcript plus one row per flushed segment. Keeping segments (and their
// flush reasons) rather than a single blob preserves how a reply actually
// streamed, which is what the tuning commands inspect.
package storage
