package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/shriramnat/ai-decision-council/internal/domain"
)

func drain(t *testing.T, chunks <-chan ChunkEvent, errc <-chan error) ([]ChunkEvent, error) {
	t.Helper()
	var events []ChunkEvent
	var streamErr error

	chunksOpen, errOpen := true, true
	for chunksOpen || errOpen {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunksOpen = false
				continue
			}
			events = append(events, c)
		case e, ok := <-errc:
			if !ok {
				errOpen = false
				continue
			}
			streamErr = e
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining stream")
		}
	}
	return events, streamErr
}

func TestOpenAICompatAdapter_ParsesTokenDeltasAndDoneSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "gpt-4o", gjson.GetBytes(body, "model").String())

		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			": a comment line, not data",
			"",
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`data: {"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`,
			"data: [DONE]",
		}
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n", l)
		}
	}))
	defer srv.Close()

	adapter := &OpenAICompatAdapter{Dialect: OpenAIDialect, HTTPClient: srv.Client()}
	chunks, errc := adapter.StreamCompletion(context.Background(), AdapterConfig{Endpoint: srv.URL, APIKey: "sk-test"}, Request{
		Model: "gpt-4o",
		Messages: []Turn{
			{Role: domain.RoleSystem, Content: "be terse"},
			{Role: domain.RoleUser, Content: "hi"},
		},
	})

	events, err := drain(t, chunks, errc)
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, TokenDelta{Text: "Hel"}, events[0])
	require.Equal(t, TokenDelta{Text: "lo"}, events[1])
	require.Equal(t, FinishReason{Kind: "stop"}, events[2])
	require.Equal(t, UsageReport{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}, events[3])
}

func TestOpenAICompatAdapter_XAIDialectOmitsPenaltyFields(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	adapter := &OpenAICompatAdapter{Dialect: XAIDialect, HTTPClient: srv.Client()}
	chunks, errc := adapter.StreamCompletion(context.Background(), AdapterConfig{Endpoint: srv.URL, APIKey: "sk-xai"}, Request{
		Model:            "grok-4",
		PresencePenalty:  0.5,
		FrequencyPenalty: 0.5,
		Messages:         []Turn{{Role: domain.RoleUser, Content: "hi"}},
	})
	_, err := drain(t, chunks, errc)
	require.NoError(t, err)

	require.False(t, gjson.Get(gotBody, "presence_penalty").Exists())
	require.False(t, gjson.Get(gotBody, "frequency_penalty").Exists())
}

func TestOpenAICompatAdapter_AzureDialectUsesAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "sk-azure", r.Header.Get("api-key"))
		require.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	adapter := &OpenAICompatAdapter{Dialect: AzureDialect, HTTPClient: srv.Client()}
	chunks, errc := adapter.StreamCompletion(context.Background(), AdapterConfig{Endpoint: srv.URL, APIKey: "sk-azure"}, Request{
		Model:    "gpt-4o-deployment",
		Messages: []Turn{{Role: domain.RoleUser, Content: "hi"}},
	})
	_, err := drain(t, chunks, errc)
	require.NoError(t, err)
}

func TestOpenAICompatAdapter_NonTwoXXBecomesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"rate limited"}`)
	}))
	defer srv.Close()

	adapter := &OpenAICompatAdapter{Dialect: OpenAIDialect, HTTPClient: srv.Client()}
	chunks, errc := adapter.StreamCompletion(context.Background(), AdapterConfig{Endpoint: srv.URL, APIKey: "sk-test"}, Request{
		Model:    "gpt-4o",
		Messages: []Turn{{Role: domain.RoleUser, Content: "hi"}},
	})
	events, err := drain(t, chunks, errc)
	require.Empty(t, events)
	require.Error(t, err)

	var provErr interface {
		Error() string
	}
	require.ErrorAs(t, err, &provErr)
}
