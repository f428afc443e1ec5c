// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog maintains the list of selectable upstream models:
// fetching with an in-flight guard and cooldown, free-model filtering,
// and category heuristics for routing non-chat models.
package catalog

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/sprychat/internal/upstream"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// FetchCooldown is the minimum interval between upstream catalog fetches.
	FetchCooldown = 30 * time.Second
)

// =============================================================================
// MODEL CATEGORIES
// =============================================================================

// Kind classifies a model by the API surface it serves.
type Kind string

const (
	KindChat   Kind = "chat"
	KindImages Kind = "images"
	KindAudio  Kind = "audio"
	KindVideos Kind = "videos"
)

// ModelCategory describes what a model does and which endpoint serves it.
type ModelCategory struct {
	Kind        Kind
	Subcategory string // images only: "generations" or "edits"
	Endpoint    string
}

// IsChat reports whether the model can serve chat completions.
func (c ModelCategory) IsChat() bool {
	return c.Kind == KindChat
}

// Category classifies a model by substring heuristics on its ID.
// Non-chat models are rejected by the chat proxy with the suggested
// endpoint so misconfigured clients get an actionable error.
func Category(modelID string) ModelCategory {
	id := strings.ToLower(modelID)

	if containsAny(id, "dall-e", "midjourney", "stable-diffusion", "flux", "imagen", "firefly", "playground") {
		if containsAny(id, "edit", "inpaint", "outpaint") {
			return ModelCategory{Kind: KindImages, Subcategory: "edits", Endpoint: "/images/edits"}
		}
		return ModelCategory{Kind: KindImages, Subcategory: "generations", Endpoint: "/images/generations"}
	}

	if containsAny(id, "whisper", "tts", "speech", "audio", "voice") {
		if containsAny(id, "tts", "speech") {
			return ModelCategory{Kind: KindAudio, Endpoint: "/audio/speech"}
		}
		return ModelCategory{Kind: KindAudio, Endpoint: "/audio/transcriptions"}
	}

	if containsAny(id, "sora", "runway", "pika", "video", "gen-2", "gen-3") {
		return ModelCategory{Kind: KindVideos, Endpoint: "/videos/generations"}
	}

	return ModelCategory{Kind: KindChat, Endpoint: "/chat/completions"}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// =============================================================================
// DEFAULT CATALOG
// =============================================================================

// DefaultModels returns the hard-coded free model list used when no
// fetch has ever succeeded. All entries are zero-cost on OpenRouter.
func DefaultModels() []upstream.ModelInfo {
	free := upstream.Pricing{Prompt: "0", Completion: "0"}
	return []upstream.ModelInfo{
		{ID: "openai/gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Pricing: free},
		{ID: "google/gemma-2-9b-it:free", Name: "Gemma 2 9B", Pricing: free},
		{ID: "meta-llama/llama-3.1-8b-instruct:free", Name: "Llama 3.1 8B", Pricing: free},
		{ID: "microsoft/wizardlm-2-8x22b:free", Name: "WizardLM 2 8x22B", Pricing: free},
		{ID: "moonshotai/kimi-k2:free", Name: "Kimi K2", Pricing: free},
		{ID: "mistralai/mistral-7b-instruct:free", Name: "Mistral 7B", Pricing: free},
	}
}

// DisplayName derives a short human-readable name from a model ID:
// the part after the provider prefix, with the ":free" suffix removed.
func DisplayName(modelID string) string {
	name := modelID
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSuffix(name, ":free")
	if name == "" {
		return modelID
	}
	return name
}

// =============================================================================
// LIST FILTERS
// =============================================================================

// FilterFree keeps only zero-cost models. When the upstream list has no
// free models at all, the full list is returned instead of an empty one.
func FilterFree(models []upstream.ModelInfo) []upstream.ModelInfo {
	var free []upstream.ModelInfo
	for _, m := range models {
		if m.Pricing.IsFree() {
			free = append(free, m)
		}
	}
	if len(free) == 0 {
		return models
	}
	return free
}

// EnsureSelected guarantees the selected model appears in the list,
// prepending a synthetic entry when the upstream catalog omits it.
func EnsureSelected(models []upstream.ModelInfo, selected string) []upstream.ModelInfo {
	if selected == "" {
		return models
	}
	for _, m := range models {
		if m.ID == selected {
			return models
		}
	}
	entry := upstream.ModelInfo{ID: selected, Name: DisplayName(selected)}
	return append([]upstream.ModelInfo{entry}, models...)
}

// Resolve applies the display filters: free-only unless showAll is set,
// then the selected-model guarantee.
func Resolve(models []upstream.ModelInfo, selected string, showAll bool) []upstream.ModelInfo {
	if !showAll {
		models = FilterFree(models)
	}
	return EnsureSelected(models, selected)
}

// =============================================================================
// FETCHER
// =============================================================================

// ModelLister fetches the raw model list from an upstream provider.
type ModelLister interface {
	ListModels(ctx context.Context) ([]upstream.ModelInfo, error)
}

// Fetcher retrieves the model catalog with an explicit in-flight guard
// and a cooldown between network fetches. Calls during flight or
// cooldown return the last-known-good list without touching the
// network; fetch failures also fall back to last-known-good, or to the
// default list when nothing has ever been fetched.
type Fetcher struct {
	mu       sync.Mutex
	lister   ModelLister
	limiter  *rate.Limiter
	inFlight bool
	lastGood []upstream.ModelInfo
	logger   *log.Logger
}

// NewFetcher creates a Fetcher around the given lister.
func NewFetcher(lister ModelLister, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[catalog] ", log.LstdFlags)
	}
	return &Fetcher{
		lister:  lister,
		limiter: rate.NewLimiter(rate.Every(FetchCooldown), 1),
		logger:  logger,
	}
}

// SetLister swaps the upstream lister (API key or base URL changed) and
// lifts the cooldown so the next Fetch hits the network immediately.
func (f *Fetcher) SetLister(lister ModelLister) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lister = lister
	f.limiter = rate.NewLimiter(rate.Every(FetchCooldown), 1)
}

// Fetch returns the current model catalog. The returned slice is never
// empty and never an error: degradation is silent apart from a log line.
func (f *Fetcher) Fetch(ctx context.Context) []upstream.ModelInfo {
	f.mu.Lock()
	if f.lister == nil || f.inFlight || !f.limiter.Allow() {
		cached := f.cachedLocked()
		f.mu.Unlock()
		return cached
	}
	f.inFlight = true
	lister := f.lister
	f.mu.Unlock()

	models, err := lister.ListModels(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false

	if err != nil {
		f.logger.Printf("model fetch failed, serving cached list: %v", err)
		return f.cachedLocked()
	}
	if len(models) == 0 {
		return f.cachedLocked()
	}

	f.lastGood = models
	return models
}

// LastKnown returns the most recent successful fetch result, or the
// default list when no fetch has succeeded yet.
func (f *Fetcher) LastKnown() []upstream.ModelInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cachedLocked()
}

func (f *Fetcher) cachedLocked() []upstream.ModelInfo {
	if len(f.lastGood) > 0 {
		return f.lastGood
	}
	return DefaultModels()
}
