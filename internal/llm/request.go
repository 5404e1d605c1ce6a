// Package llm implements the provider adapters and router: a uniform
// streaming contract over several vendor chat-completions dialects, picked
// per request by the ConfiguredModel's provider tag.
package llm

import (
	"context"

	"github.com/shriramnat/ai-decision-council/internal/domain"
)

// Turn is one message in a request's ordered conversation.
type Turn struct {
	Role    domain.Role
	Content string
}

// Request is the uniform completion request every adapter accepts,
// regardless of wire dialect.
type Request struct {
	Model            string
	Messages         []Turn
	Temperature      float64
	MaxTokens        int
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// AdapterConfig is the per-call, per-user material an adapter needs:
// resolved endpoint and plaintext key. Never logged, never persisted.
type AdapterConfig struct {
	Endpoint string
	APIKey   string
}

// Adapter streams one completion as a finite, single-pass sequence of
// ChunkEvent. The returned error channel carries at most one error and is
// always closed; a nil-valued close means the stream ended cleanly.
type Adapter interface {
	StreamCompletion(ctx context.Context, cfg AdapterConfig, req Request) (<-chan ChunkEvent, <-chan error)
}
