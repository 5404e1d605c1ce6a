package llm

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/shriramnat/ai-decision-council/internal/domain"
)

// GoogleAdapter streams completions through the vendor SDK, mirroring
// AnthropicAdapter's reasoning: Google's dialect is an enrichment, not one
// of the three dialects the SSE client must control byte-for-byte.
type GoogleAdapter struct{}

func (GoogleAdapter) StreamCompletion(ctx context.Context, cfg AdapterConfig, req Request) (<-chan ChunkEvent, <-chan error) {
	chunks := make(chan ChunkEvent)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
		if err != nil {
			errc <- err
			return
		}

		var systemParts []string
		var contents []*genai.Content
		for _, turn := range req.Messages {
			switch turn.Role {
			case domain.RoleSystem:
				systemParts = append(systemParts, turn.Content)
			case domain.RoleAssistant:
				contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleModel))
			default:
				contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleUser))
			}
		}

		genConfig := &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(req.Temperature)),
			TopP:            genai.Ptr(float32(req.TopP)),
			MaxOutputTokens: int32(req.MaxTokens),
		}
		if len(systemParts) > 0 {
			genConfig.SystemInstruction = genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser)
		}

		var usage *genai.GenerateContentResponseUsageMetadata
		for result, streamErr := range client.Models.GenerateContentStream(ctx, req.Model, contents, genConfig) {
			if streamErr != nil {
				errc <- streamErr
				return
			}
			if text := result.Text(); text != "" {
				select {
				case chunks <- TokenDelta{Text: text}:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			if len(result.Candidates) > 0 && result.Candidates[0].FinishReason != "" {
				select {
				case chunks <- FinishReason{Kind: string(result.Candidates[0].FinishReason)}:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			if result.UsageMetadata != nil {
				usage = result.UsageMetadata
			}
		}

		if usage != nil {
			chunks <- UsageReport{
				PromptTokens:     int(usage.PromptTokenCount),
				CompletionTokens: int(usage.CandidatesTokenCount),
				TotalTokens:      int(usage.TotalTokenCount),
			}
		}
	}()

	return chunks, errc
}
