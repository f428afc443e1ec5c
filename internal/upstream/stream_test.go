// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// sseChunk formats a content delta as a single SSE data line.
func sseChunk(content string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
}

// parseChunk builds a StreamChunk from raw JSON, failing the test on error.
func parseChunk(t *testing.T, raw string) StreamChunk {
	t.Helper()
	var chunk StreamChunk
	if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
		t.Fatalf("parse chunk: %v", err)
	}
	return chunk
}

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_ReadEvent(t *testing.T) {
	input := "data: first\n\ndata: second\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("data = %q, want %q", data, "first")
	}

	_, data, err = reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("data = %q, want %q", data, "second")
	}

	_, _, err = reader.ReadEvent()
	if err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestSSEReader_EventType(t *testing.T) {
	input := "event: ping\ndata: {}\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	eventType, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if eventType != "ping" {
		t.Errorf("eventType = %q, want %q", eventType, "ping")
	}
	if string(data) != "{}" {
		t.Errorf("data = %q, want %q", data, "{}")
	}
}

func TestSSEReader_CRLF(t *testing.T) {
	input := "data: hello\r\n\r\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q, want %q", data, "hello")
	}
}

func TestSSEReader_MultilineData(t *testing.T) {
	input := "data: line1\ndata: line2\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if string(data) != "line1\nline2" {
		t.Errorf("data = %q, want joined lines", data)
	}
}

func TestSSEReader_FlushesOnEOF(t *testing.T) {
	// Stream ends without a trailing blank line
	input := "data: tail\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if string(data) != "tail" {
		t.Errorf("data = %q, want %q", data, "tail")
	}
}

func TestSSEReader_IgnoresComments(t *testing.T) {
	input := ": keepalive\nid: 42\ndata: payload\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("data = %q, want %q", data, "payload")
	}
}

// =============================================================================
// STREAM CHUNK TESTS
// =============================================================================

func TestStreamChunk(t *testing.T) {
	var empty StreamChunk
	if empty.GetContent() != "" || empty.IsDone() || empty.GetFinishReason() != "" {
		t.Error("empty chunk should be inert")
	}

	chunk := parseChunk(t, `{"choices":[{"delta":{"content":"hi"},"finish_reason":"stop"}]}`)
	if chunk.GetContent() != "hi" {
		t.Errorf("content = %q", chunk.GetContent())
	}
	if !chunk.IsDone() {
		t.Error("chunk with finish_reason should be done")
	}
	if chunk.GetFinishReason() != "stop" {
		t.Errorf("finish reason = %q", chunk.GetFinishReason())
	}
}

func TestStreamError(t *testing.T) {
	base := errors.New("connection reset")
	err := &StreamError{Partial: "partial text", Err: base}

	if !errors.Is(err, base) {
		t.Error("StreamError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "partial") {
		t.Errorf("Error() = %q, should mention partial content", err.Error())
	}

	bare := &StreamError{Err: base}
	if strings.Contains(bare.Error(), "partial") {
		t.Errorf("Error() = %q, should not mention partial content", bare.Error())
	}
}

// =============================================================================
// STREAMING CHAT TESTS
// =============================================================================

func TestChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("Hello"))
		io.WriteString(w, sseChunk(", world"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})

	var got strings.Builder
	err := client.ChatStream(context.Background(), []ChatMessage{NewUserMessage("hi")}, func(chunk StreamChunk) {
		got.WriteString(chunk.GetContent())
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if got.String() != "Hello, world" {
		t.Errorf("content = %q, want %q", got.String(), "Hello, world")
	}
}

func TestChatStream_SkipsMalformedChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sseChunk("ok"))
		io.WriteString(w, "data: {not json\n\n")
		io.WriteString(w, sseChunk(" fine"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})

	var got strings.Builder
	err := client.ChatStream(context.Background(), nil, func(chunk StreamChunk) {
		got.WriteString(chunk.GetContent())
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if got.String() != "ok fine" {
		t.Errorf("content = %q, want malformed chunk skipped", got.String())
	}
}

func TestChatStream_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-bad", BaseURL: server.URL})
	err := client.ChatStream(context.Background(), nil, func(StreamChunk) {})
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("error = %v, want ErrAuthFailed", err)
	}
}

func TestOpenStream_RelaysRawBody(t *testing.T) {
	raw := sseChunk("verbatim") + "data: [DONE]\n\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, raw)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})
	body, err := client.OpenStream(context.Background(), ChatRequest{
		Messages: []ChatMessage{NewUserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer body.Close()

	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(got) != raw {
		t.Errorf("body = %q, want verbatim SSE bytes", got)
	}
}

func TestOpenStream_NotConfigured(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.OpenStream(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestChatStreamWithRetry_NoRetryOn4xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"no model"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})
	err := client.ChatStreamWithRetry(context.Background(), nil, func(StreamChunk) {})
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("error = %v, want ErrModelNotFound", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on 4xx)", attempts)
	}
}

func TestChatStreamAccumulate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sseChunk("a"))
		io.WriteString(w, sseChunk("b"))
		io.WriteString(w, sseChunk("c"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})
	content, err := client.ChatStreamAccumulate(context.Background(), nil)
	if err != nil {
		t.Fatalf("ChatStreamAccumulate failed: %v", err)
	}
	if content != "abc" {
		t.Errorf("content = %q, want %q", content, "abc")
	}
}

func TestChatStreamChan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sseChunk("x"))
		io.WriteString(w, sseChunk("y"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})
	chunks, errs := client.ChatStreamChan(context.Background(), nil)

	var got strings.Builder
	for chunk := range chunks {
		got.WriteString(chunk.GetContent())
	}
	if err := <-errs; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got.String() != "xy" {
		t.Errorf("content = %q, want %q", got.String(), "xy")
	}
}

// =============================================================================
// ACCUMULATOR TESTS
// =============================================================================

func TestStreamAccumulator(t *testing.T) {
	acc := NewStreamAccumulator()
	cb := acc.Callback()

	cb(parseChunk(t, `{"model":"test-model","choices":[{"delta":{"content":"hello "}}]}`))
	cb(parseChunk(t, `{"choices":[{"delta":{"content":"there"},"finish_reason":"stop"}]}`))

	if acc.GetContent() != "hello there" {
		t.Errorf("content = %q", acc.GetContent())
	}
	if !acc.Done {
		t.Error("accumulator should be done")
	}

	stats := acc.GetStats()
	if stats.TokenCount != 2 {
		t.Errorf("token count = %d, want 2", stats.TokenCount)
	}
	if stats.Model != "test-model" {
		t.Errorf("model = %q", stats.Model)
	}
	if acc.FirstTokenAt.IsZero() {
		t.Error("first token timestamp should be recorded")
	}
}
