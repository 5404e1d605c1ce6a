// Package config loads and validates the process configuration: default
// models, orchestration tunables, persistence and rate-limit settings, and
// the optional notification sinks. Values are read from a base TOML file
// plus an environment-specific overlay, with ${VAR}/${VAR:default}
// placeholders expanded from the process environment (and an optional
// .env file) before parsing.
package config

import "github.com/shriramnat/ai-decision-council/utils"

// Config is the root configuration structure recognized by the process.
type Config struct {
	Server        ServerConfig            `toml:"server" validate:"required"`
	Log           LogConfig               `toml:"log"`
	DefaultCreatorModel  string           `toml:"defaultCreatorModel"`
	DefaultReviewerModel string           `toml:"defaultReviewerModel"`
	RequestTimeoutSeconds int             `toml:"requestTimeoutSeconds" validate:"gte=0"`
	MaxRetries    int                     `toml:"maxRetries" validate:"gte=0"`
	Models        []SeedModelConfig       `toml:"models" validate:"dive"`
	Orchestration OrchestrationConfig     `toml:"orchestration"`
	Persistence   PersistenceConfig       `toml:"persistence"`
	RateLimit     RateLimitConfig         `toml:"rateLimit"`
	Notifications NotificationsConfig     `toml:"notifications"`
}

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Addr    string         `toml:"addr" validate:"required,hostname_port"`
	Timeout utils.Duration `toml:"timeout"`
}

// LogConfig controls the slog handler installed at startup.
type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=json text"`
	Output string `toml:"output"`
}

// SeedModelConfig optionally pre-populates a ConfiguredModel row at process
// start (e.g. for a shared default model provisioned via config rather than
// through the per-user CRUD endpoints).
type SeedModelConfig struct {
	UserEmail   string `toml:"userEmail" validate:"required,email"`
	ModelName   string `toml:"modelName" validate:"required"`
	DisplayName string `toml:"displayName"`
	Endpoint    string `toml:"endpoint"`
	Provider    string `toml:"provider" validate:"required,oneof=OpenAI Azure Google XAI Anthropic"`
}

// OrchestrationConfig holds the orchestrator's tunables, recognized under
// the "orchestration" TOML table.
type OrchestrationConfig struct {
	DefaultMaxIterations   int    `toml:"defaultMaxIterations" validate:"gte=0"`
	DefaultStopMarker      string `toml:"defaultStopMarker"`
	StopOnReviewerApproved bool   `toml:"stopOnReviewerApproved"`
	MaxPromptChars         int    `toml:"maxPromptChars" validate:"gte=0"`
	MaxDraftChars          int    `toml:"maxDraftChars" validate:"gte=0"`
	ContextTurnsToSend     int    `toml:"contextTurnsToSend" validate:"gte=0"`
	ConcurrentReviewers    bool   `toml:"concurrentReviewers"`
}

// PersistenceConfig selects the SQLite database file backing the store.
type PersistenceConfig struct {
	Enabled          bool   `toml:"enabled"`
	ConnectionString string `toml:"connectionString"`
}

// RateLimitConfig holds the rateLimit section. Its values are loaded and
// validated; no handler or middleware in this module applies them, so request
// throughput is not limited.
type RateLimitConfig struct {
	PermitLimit   int `toml:"permitLimit" validate:"gte=0"`
	WindowSeconds int `toml:"windowSeconds" validate:"gte=0"`
}

// NotificationsConfig gates the three best-effort notifiers.
type NotificationsConfig struct {
	PagerDuty PagerDutyConfig `toml:"pagerduty"`
	Jira      JiraConfig      `toml:"jira"`
	OpenSearch OpenSearchConfig `toml:"opensearch"`
}

type PagerDutyConfig struct {
	Enabled    bool   `toml:"enabled"`
	RoutingKey string `toml:"routingKey"`
}

type JiraConfig struct {
	Enabled  bool   `toml:"enabled"`
	BaseURL  string `toml:"baseUrl"`
	Project  string `toml:"project"`
	Username string `toml:"username"`
	APIToken string `toml:"apiToken"`
}

type OpenSearchConfig struct {
	Enabled   bool     `toml:"enabled"`
	Addresses []string `toml:"addresses"`
	Username  string   `toml:"username"`
	Password  string   `toml:"password"`
}
