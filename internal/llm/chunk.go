package llm

// ChunkEvent is the sum type a provider adapter emits while streaming one
// completion: exactly one of TokenDelta, FinishReason, or UsageReport.
// Consumers dispatch with a type switch rather than a discriminator field.
type ChunkEvent interface {
	isChunkEvent()
}

// TokenDelta carries one incremental piece of assistant text.
type TokenDelta struct {
	Text string
}

func (TokenDelta) isChunkEvent() {}

// FinishReason marks the end of generation and why it stopped (e.g.
// "stop", "length", "max_tokens").
type FinishReason struct {
	Kind string
}

func (FinishReason) isChunkEvent() {}

// UsageReport carries token accounting for the completed request. Not
// every dialect reports usage; adapters omit it rather than emit zeros
// when the upstream response never included it.
type UsageReport struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func (UsageReport) isChunkEvent() {}
