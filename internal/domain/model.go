package domain

// Provider is the wire dialect tag a ConfiguredModel is resolved against.
type Provider string

const (
	ProviderOpenAI    Provider = "OpenAI"
	ProviderAzure     Provider = "Azure"
	ProviderGoogle    Provider = "Google"
	ProviderXAI       Provider = "XAI"
	ProviderAnthropic Provider = "Anthropic"
)

// ConfiguredModel is a per-user mapping of a model name to the endpoint,
// provider tag, and sealed key needed to call it. The plaintext key never
// lives on this struct; it exists only transiently in the return value of
// credential.Store.Resolve.
type ConfiguredModel struct {
	ID           string   `json:"id"`
	UserEmail    string   `json:"userEmail"`
	ModelName    string   `json:"modelName"`
	DisplayName  string   `json:"displayName"`
	Endpoint     string   `json:"endpoint"`
	Provider     Provider `json:"provider"`
	EncryptedKey []byte   `json:"-"`
}

// UserSettings is a thin per-user settings row, referenced by id only where
// the orchestrator core needs it.
type UserSettings struct {
	UserID             string `json:"userId"`
	NativeAgentModelID string `json:"nativeAgentModelId"`
}
