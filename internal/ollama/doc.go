// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with a local
// Ollama server.
//
// # Key Types
//
//   - Client: health checks, model listing, and chat requests
//   - StreamReader: line-delimited JSON parsing of streaming responses
//   - Pump: feeds stream fragments into a flush session
//
// Streaming responses arrive as one JSON object per line. Each object's
// message content is forwarded as a fragment; multi-byte characters split
// across chunks are held until complete.
package ollama
