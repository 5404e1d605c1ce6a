package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/shriramnat/ai-decision-council/internal/apperr"
	"github.com/shriramnat/ai-decision-council/internal/credential"
	"github.com/shriramnat/ai-decision-council/internal/domain"
)

// Resolver is the subset of credential.Store the router needs; an interface
// so orchestrator/router tests can stub it without a real database.
type Resolver interface {
	Resolve(ctx context.Context, userEmail, modelName string) (credential.Resolved, error)
}

// Router resolves (user, modelName) to a provider and dispatches the
// request to that provider's Adapter. Unconfigured entries fail fast with
// apperr.NotConfigured; unimplemented provider tags fail with
// apperr.NotImplemented.
type Router struct {
	credentials Resolver
	adapters    map[domain.Provider]Adapter
}

// NewRouter builds a Router with one adapter per known provider tag, the
// three OpenAI-compatible dialects sharing one HTTP client.
func NewRouter(credentials Resolver) *Router {
	httpClient := &http.Client{Timeout: 60 * time.Minute} // the only deadline set here; ctx can end a call sooner
	return &Router{
		credentials: credentials,
		adapters: map[domain.Provider]Adapter{
			domain.ProviderOpenAI:    &OpenAICompatAdapter{Dialect: OpenAIDialect, HTTPClient: httpClient},
			domain.ProviderAzure:     &OpenAICompatAdapter{Dialect: AzureDialect, HTTPClient: httpClient},
			domain.ProviderXAI:       &OpenAICompatAdapter{Dialect: XAIDialect, HTTPClient: httpClient},
			domain.ProviderAnthropic: AnthropicAdapter{},
			domain.ProviderGoogle:    GoogleAdapter{},
		},
	}
}

func (r *Router) StreamCompletion(ctx context.Context, userEmail string, req Request) (<-chan ChunkEvent, <-chan error) {
	resolved, err := r.credentials.Resolve(ctx, userEmail, req.Model)
	if err != nil {
		return closedWithErr(err)
	}
	if resolved.PlaintextKey == "" {
		return closedWithErr(&apperr.NotConfigured{ModelNames: []string{req.Model}})
	}

	adapter, ok := r.adapters[resolved.Provider]
	if !ok {
		return closedWithErr(&apperr.NotImplemented{Provider: string(resolved.Provider)})
	}

	cfg := AdapterConfig{Endpoint: resolved.Endpoint, APIKey: resolved.PlaintextKey}
	return adapter.StreamCompletion(ctx, cfg, req)
}

func closedWithErr(err error) (<-chan ChunkEvent, <-chan error) {
	chunks := make(chan ChunkEvent)
	close(chunks)
	errc := make(chan error, 1)
	errc <- err
	close(errc)
	return chunks, errc
}
