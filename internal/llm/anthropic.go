package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/shriramnat/ai-decision-council/internal/domain"
)

// AnthropicAdapter streams completions through the vendor SDK rather than
// the hand-rolled SSE client: Anthropic's wire format and auth scheme are
// not one of the three dialects this system promises byte-level control
// over, and the SDK already accumulates content blocks correctly.
type AnthropicAdapter struct{}

func (AnthropicAdapter) StreamCompletion(ctx context.Context, cfg AdapterConfig, req Request) (<-chan ChunkEvent, <-chan error) {
	chunks := make(chan ChunkEvent)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithBaseURL(cfg.Endpoint))
		}
		client := anthropic.NewClient(opts...)

		var system []anthropic.TextBlockParam
		var messages []anthropic.MessageParam
		for _, turn := range req.Messages {
			switch turn.Role {
			case domain.RoleSystem:
				system = append(system, anthropic.TextBlockParam{Text: turn.Content})
			case domain.RoleAssistant:
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
			default:
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
			}
		}

		maxTokens := int64(req.MaxTokens)
		if maxTokens <= 0 {
			maxTokens = 4096
		}

		stream := client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(req.Model),
			MaxTokens:   maxTokens,
			Temperature: anthropic.Float(req.Temperature),
			TopP:        anthropic.Float(req.TopP),
			System:      system,
			Messages:    messages,
		})

		var msg anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				errc <- err
				return
			}

			switch delta := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
					select {
					case chunks <- TokenDelta{Text: text.Text}:
					case <-ctx.Done():
						errc <- ctx.Err()
						return
					}
				}
			case anthropic.MessageDeltaEvent:
				if delta.Delta.StopReason != "" {
					select {
					case chunks <- FinishReason{Kind: string(delta.Delta.StopReason)}:
					case <-ctx.Done():
						errc <- ctx.Err()
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			if !errors.Is(err, context.Canceled) {
				errc <- err
			}
			return
		}

		chunks <- UsageReport{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		}
	}()

	return chunks, errc
}
