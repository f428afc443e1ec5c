// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the chat proxy for browser-style clients.
//
// The proxy holds no conversation state: every request carries its own
// upstream configuration in headers, with environment fallbacks, and
// the response is relayed from the OpenAI-compatible upstream.
//
// # Endpoints
//
//   - POST /api/chat   - Relay a chat request as a verbatim SSE stream
//   - GET  /api/models - Relay the upstream model list, status included
//   - GET  /health     - Health check
//
// # Request Configuration
//
// Each request resolves its upstream settings from headers first, then
// the environment:
//
//   - X-API-Key  (SPRYCHAT_API_KEY, OPENROUTE_API_KEY, OPENAI_API_KEY)
//   - X-Base-URL (SPRYCHAT_BASE_URL)
//   - X-Model    (SPRYCHAT_MODEL)
//   - X-Title
//
// A request with no resolvable API key is rejected with 400 before any
// upstream traffic. Models classified as non-chat by the catalog are
// rejected with a structured 400 naming the endpoint that serves them.
//
// # Usage
//
//	srv := server.New("127.0.0.1:8787")
//	if err := srv.Run(); err != nil {
//		log.Fatal(err)
//	}
//
// Run blocks until SIGINT/SIGTERM and shuts down gracefully.
package server
