// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jeranaias/sprychat/internal/upstream"
)

// clearProxyEnv blanks every environment variable the proxy consults
// so tests control credential resolution entirely through headers.
func clearProxyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"SPRYCHAT_API_KEY", "OPENROUTE_API_KEY", "OPENAI_API_KEY", "SPRYCHAT_BASE_URL", "SPRYCHAT_MODEL"} {
		t.Setenv(name, "")
	}
}

// upstreamCall records what the fake upstream received.
type upstreamCall struct {
	Auth    string
	Title   string
	Request struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Stream bool              `json:"stream"`
		Tools  []json.RawMessage `json:"tools"`
	}
}

// newFakeUpstream returns an httptest server that answers
// /chat/completions with the given SSE payload and /models with the
// given status and body, recording the last chat call.
func newFakeUpstream(t *testing.T, ssePayload string, modelsStatus int, modelsBody string) (*httptest.Server, *upstreamCall) {
	t.Helper()

	call := &upstreamCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			call.Auth = r.Header.Get("Authorization")
			call.Title = r.Header.Get("X-Title")
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &call.Request); err != nil {
				t.Errorf("fake upstream got unparseable body: %v", err)
			}
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, ssePayload)
		case strings.HasSuffix(r.URL.Path, "/models"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(modelsStatus)
			io.WriteString(w, modelsBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, call
}

func chatBody(t *testing.T, req ChatProxyRequest) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewBuffer(data)
}

func decodeFlatJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not JSON: %v (%s)", err, rec.Body.String())
	}
	return body
}

// =============================================================================
// SERVER CONSTRUCTION
// =============================================================================

func TestNew_DefaultAddr(t *testing.T) {
	s := New("")
	if s.Addr() != DefaultAddr {
		t.Errorf("Addr() = %s, want %s", s.Addr(), DefaultAddr)
	}
}

func TestNew_CustomAddr(t *testing.T) {
	s := New("127.0.0.1:9999")
	if s.Addr() != "127.0.0.1:9999" {
		t.Errorf("Addr() = %s, want 127.0.0.1:9999", s.Addr())
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHandleHealth(t *testing.T) {
	s := New("")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeFlatJSON(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status field = %q, want healthy", body["status"])
	}
	if body["version"] != Version {
		t.Errorf("version field = %q, want %s", body["version"], Version)
	}
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

func TestHandleChat_MissingKey(t *testing.T) {
	clearProxyEnv(t)
	s := New("")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", chatBody(t, ChatProxyRequest{
		Messages: []upstream.ChatMessage{upstream.NewUserMessage("hi")},
	}))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	msg := decodeFlatJSON(t, rec)["error"]
	for _, want := range []string{"X-API-Key", "SPRYCHAT_API_KEY", "OPENROUTE_API_KEY", "OPENAI_API_KEY"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not name %s", msg, want)
		}
	}
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	clearProxyEnv(t)
	s := New("")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleChat_EmptyMessages(t *testing.T) {
	clearProxyEnv(t)
	s := New("")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", chatBody(t, ChatProxyRequest{}))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleChat_NonChatModel(t *testing.T) {
	clearProxyEnv(t)
	s := New("")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", chatBody(t, ChatProxyRequest{
		Messages: []upstream.ChatMessage{upstream.NewUserMessage("draw a cat")},
	}))
	req.Header.Set("X-API-Key", "sk-test")
	req.Header.Set("X-Model", "dall-e-3")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body categoryError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not JSON: %v", err)
	}
	if body.ModelCategory != "images" {
		t.Errorf("modelCategory = %q, want images", body.ModelCategory)
	}
	if body.SuggestedEndpoint != "/images/generations" {
		t.Errorf("suggestedEndpoint = %q, want /images/generations", body.SuggestedEndpoint)
	}
	if body.Error == "" || body.Message == "" {
		t.Error("error and message fields should be populated")
	}
}

func TestHandleChat_RelaysStreamVerbatim(t *testing.T) {
	clearProxyEnv(t)

	payload := "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\", world\"}}]}\n\n" +
		"data: [DONE]\n\n"
	up, call := newFakeUpstream(t, payload, http.StatusOK, "{}")

	s := New("")
	req := httptest.NewRequest(http.MethodPost, "/api/chat", chatBody(t, ChatProxyRequest{
		Messages: []upstream.ChatMessage{upstream.NewUserMessage("hi")},
		System:   "be terse",
		Tools:    []json.RawMessage{json.RawMessage(`{"type":"function","function":{"name":"lookup"}}`)},
	}))
	req.Header.Set("X-API-Key", "sk-test")
	req.Header.Set("X-Base-URL", up.URL)
	req.Header.Set("X-Model", "openai/gpt-4o-mini")
	req.Header.Set("X-Title", "SpryChat")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("X-Accel-Buffering = %q, want no", got)
	}
	if rec.Body.String() != payload {
		t.Errorf("relayed body differs from upstream:\ngot:  %q\nwant: %q", rec.Body.String(), payload)
	}

	if call.Auth != "Bearer sk-test" {
		t.Errorf("upstream Authorization = %q, want Bearer sk-test", call.Auth)
	}
	if call.Request.Model != "openai/gpt-4o-mini" {
		t.Errorf("upstream model = %q", call.Request.Model)
	}
	if !call.Request.Stream {
		t.Error("upstream request should be streaming")
	}
	if len(call.Request.Messages) != 2 {
		t.Fatalf("upstream got %d messages, want 2", len(call.Request.Messages))
	}
	if call.Request.Messages[0].Role != "system" || call.Request.Messages[0].Content != "be terse" {
		t.Errorf("first message = %+v, want prepended system prompt", call.Request.Messages[0])
	}
	if call.Request.Messages[1].Role != "user" {
		t.Errorf("second message role = %q, want user", call.Request.Messages[1].Role)
	}
	if len(call.Request.Tools) != 1 || !strings.Contains(string(call.Request.Tools[0]), "lookup") {
		t.Errorf("tools were not forwarded untouched: %v", call.Request.Tools)
	}
}

func TestHandleChat_UpstreamAuthError(t *testing.T) {
	clearProxyEnv(t)

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	t.Cleanup(up.Close)

	s := New("")
	req := httptest.NewRequest(http.MethodPost, "/api/chat", chatBody(t, ChatProxyRequest{
		Messages: []upstream.ChatMessage{upstream.NewUserMessage("hi")},
	}))
	req.Header.Set("X-API-Key", "sk-bad")
	req.Header.Set("X-Base-URL", up.URL)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleChat_EnvKeyFallback(t *testing.T) {
	clearProxyEnv(t)

	up, call := newFakeUpstream(t, "data: [DONE]\n\n", http.StatusOK, "{}")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	s := New("")
	req := httptest.NewRequest(http.MethodPost, "/api/chat", chatBody(t, ChatProxyRequest{
		Messages: []upstream.ChatMessage{upstream.NewUserMessage("hi")},
	}))
	req.Header.Set("X-Base-URL", up.URL)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if call.Auth != "Bearer sk-from-env" {
		t.Errorf("upstream Authorization = %q, want env fallback key", call.Auth)
	}
}

// =============================================================================
// MODELS HANDLER
// =============================================================================

func TestHandleModels_RelaysStatusAndBody(t *testing.T) {
	clearProxyEnv(t)

	up, _ := newFakeUpstream(t, "", http.StatusForbidden, `{"error":"key disabled"}`)

	s := New("")
	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	req.Header.Set("X-API-Key", "sk-test")
	req.Header.Set("X-Base-URL", up.URL)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want upstream 403 relayed", rec.Code)
	}
	if rec.Body.String() != `{"error":"key disabled"}` {
		t.Errorf("body = %q, want upstream body verbatim", rec.Body.String())
	}
}

func TestHandleModels_NetworkFailure(t *testing.T) {
	clearProxyEnv(t)

	// A server that is already closed guarantees a dial failure.
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	s := New("")
	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	req.Header.Set("X-API-Key", "sk-test")
	req.Header.Set("X-Base-URL", deadURL)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	body := decodeFlatJSON(t, rec)
	if body["error"] == "" || body["detail"] == "" {
		t.Errorf("502 body should carry error and detail, got %v", body)
	}
}

func TestHandleModels_MissingKey(t *testing.T) {
	clearProxyEnv(t)
	s := New("")

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
