package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/shriramnat/ai-decision-council/internal/apperr"
	"github.com/shriramnat/ai-decision-council/internal/domain"
)

// Dialect parameterizes OpenAICompatAdapter over the three wire variants
// that share one request/response shape: auth header, default endpoint,
// and whether penalty fields are sent at all.
type Dialect struct {
	Name             string
	AuthHeader       func(key string) (header, value string)
	DefaultEndpoint  string
	IncludePenalties bool
}

func bearerAuth(key string) (string, string) { return "Authorization", "Bearer " + key }
func apiKeyAuth(key string) (string, string) { return "api-key", key }

var (
	OpenAIDialect = Dialect{Name: "openai", AuthHeader: bearerAuth, IncludePenalties: true}
	AzureDialect  = Dialect{Name: "azure", AuthHeader: apiKeyAuth, IncludePenalties: true}
	XAIDialect    = Dialect{
		Name:             "xai",
		AuthHeader:       bearerAuth,
		DefaultEndpoint:  "https://api.x.ai/v1/chat/completions",
		IncludePenalties: false,
	}
)

// OpenAICompatAdapter streams a chat-completions request against any
// dialect that speaks OpenAI-shaped JSON over server-sent events. Request
// bodies are assembled with sjson and response chunks picked apart with
// gjson rather than typed structs, since the three dialects disagree on
// which fields exist and a typed struct would need per-dialect omitempty
// bookkeeping that buys nothing here.
type OpenAICompatAdapter struct {
	Dialect    Dialect
	HTTPClient *http.Client
}

func (a *OpenAICompatAdapter) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

func (a *OpenAICompatAdapter) StreamCompletion(ctx context.Context, cfg AdapterConfig, req Request) (<-chan ChunkEvent, <-chan error) {
	chunks := make(chan ChunkEvent)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = a.Dialect.DefaultEndpoint
		}

		body, err := a.buildBody(req)
		if err != nil {
			errc <- err
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			errc <- err
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		headerName, headerValue := a.Dialect.AuthHeader(cfg.APIKey)
		httpReq.Header.Set(headerName, headerValue)

		resp, err := a.client().Do(httpReq)
		if err != nil {
			errc <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(resp.Body)
			errc <- &apperr.ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
			return
		}

		a.consumeSSE(ctx, resp.StatusCode, resp.Body, chunks, errc)
	}()

	return chunks, errc
}

func (a *OpenAICompatAdapter) consumeSSE(ctx context.Context, statusCode int, r io.Reader, chunks chan<- ChunkEvent, errc chan<- error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue // tolerate blank lines and any non-"data:" line, e.g. SSE comments/event: lines
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return
		}
		if !gjson.Valid(payload) {
			errc <- &apperr.ProviderError{StatusCode: statusCode, Body: payload}
			return
		}
		parsed := gjson.Parse(payload)

		if delta := parsed.Get("choices.0.delta.content"); delta.Exists() && delta.String() != "" {
			select {
			case chunks <- TokenDelta{Text: delta.String()}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if fr := parsed.Get("choices.0.finish_reason"); fr.Exists() && fr.String() != "" {
			select {
			case chunks <- FinishReason{Kind: fr.String()}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if usage := parsed.Get("usage"); usage.Exists() {
			select {
			case chunks <- UsageReport{
				PromptTokens:     int(usage.Get("prompt_tokens").Int()),
				CompletionTokens: int(usage.Get("completion_tokens").Int()),
				TotalTokens:      int(usage.Get("total_tokens").Int()),
			}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		errc <- err
	}
}

func (a *OpenAICompatAdapter) buildBody(req Request) ([]byte, error) {
	body := "{}"
	var err error
	for _, set := range []struct {
		path string
		val  any
	}{
		{"model", req.Model},
		{"stream", true},
		{"temperature", req.Temperature},
		{"top_p", req.TopP},
		{"max_tokens", req.MaxTokens},
	} {
		if body, err = sjson.Set(body, set.path, set.val); err != nil {
			return nil, err
		}
	}
	if a.Dialect.IncludePenalties {
		if body, err = sjson.Set(body, "presence_penalty", req.PresencePenalty); err != nil {
			return nil, err
		}
		if body, err = sjson.Set(body, "frequency_penalty", req.FrequencyPenalty); err != nil {
			return nil, err
		}
	}

	messages := make([]map[string]string, len(req.Messages))
	for i, turn := range req.Messages {
		messages[i] = map[string]string{"role": wireRole(turn.Role), "content": turn.Content}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, err
	}
	if body, err = sjson.SetRaw(body, "messages", string(raw)); err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func wireRole(r domain.Role) string {
	switch r {
	case domain.RoleSystem:
		return "system"
	case domain.RoleAssistant:
		return "assistant"
	default:
		return "user"
	}
}
