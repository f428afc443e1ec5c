// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upstream provides the client for OpenAI-compatible chat APIs.
//
// Any provider exposing the /chat/completions and /models endpoints works,
// including OpenRouter, OpenAI, and self-hosted gateways. The package
// implements retry with exponential backoff, SSE stream parsing, and raw
// stream relay for the proxy server.
//
// # Key Types
//
//   - Client: HTTP client with TLS, retry, and connection pooling
//   - ChatMessage: Chat message in the OpenAI wire format
//   - ChatRequest: Request structure for chat completions
//   - SSEReader: Server-Sent Events parser for streaming responses
//   - StreamError: Streaming failure carrying partial content
//
// # Usage
//
// Create a client and stream a chat completion:
//
//	client := upstream.NewClient(upstream.Config{APIKey: key, BaseURL: url})
//	err := client.ChatStream(ctx, []upstream.ChatMessage{
//	    upstream.NewUserMessage("Hello"),
//	}, func(chunk upstream.StreamChunk) {
//	    fmt.Print(chunk.GetContent())
//	})
//
// The proxy server uses OpenStream and ListModelsRaw instead, which hand
// back the upstream bytes untouched so clients see the provider's exact
// response.
//
// # Security
//
// API keys are never logged, all requests use TLS 1.2+, and response
// bodies are size-limited to prevent memory exhaustion.
package upstream
