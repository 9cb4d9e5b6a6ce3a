// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks the active stream sessions of the application.
//
// Each in-flight model response owns one flush.Session. The Registry is an
// arena keyed by session ID: the UI and the transport layer look sessions
// up by ID instead of sharing ambient mutable state, which keeps concurrent
// multi-stream operation safe. All sessions share the one read-only pattern
// catalog.
package session
