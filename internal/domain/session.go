// Package domain holds the persisted entities of the Creator-Reviewer
// deliberation loop: sessions, messages, feedback rounds, and the per-user
// model roster. Types here are plain data; behavior lives in the packages
// that own each entity (internal/orchestrator owns Session, internal/
// credential owns ConfiguredModel).
package domain

import "time"

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	StatusCreated   SessionStatus = "Created"
	StatusRunning   SessionStatus = "Running"
	StatusPaused    SessionStatus = "Paused"
	StatusCompleted SessionStatus = "Completed"
	StatusStopped   SessionStatus = "Stopped"
	StatusError     SessionStatus = "Error"
)

// StopReason explains why a Session left the Running state.
type StopReason string

const (
	StopReasonNone                 StopReason = "None"
	StopReasonFinalMarkerDetected  StopReason = "FinalMarkerDetected"
	StopReasonUserStopped          StopReason = "UserStopped"
	StopReasonMaxIterationsReached StopReason = "MaxIterationsReached"
	StopReasonReviewerApproved     StopReason = "ReviewerApproved"
	StopReasonError                StopReason = "Error"
)

// RunMode controls whether the orchestrator drives iterations continuously
// or pauses after each one.
type RunMode string

const (
	RunModeAuto RunMode = "Auto"
	RunModeStep RunMode = "Step"
)

// PersonaConfig is the Creator's configuration, snapshotted by value into a
// Session at creation time. Later edits to a user's model roster must never
// reach back into an in-flight session, so callers always pass and store
// copies, never pointers into shared config.
type PersonaConfig struct {
	RootPrompt        string  `json:"rootPrompt"`
	ModelName         string  `json:"modelName"`
	Temperature       float64 `json:"temperature"`
	MaxOutputTokens   int     `json:"maxOutputTokens"`
	TopP              float64 `json:"topP"`
	PresencePenalty   float64 `json:"presencePenalty"`
	FrequencyPenalty  float64 `json:"frequencyPenalty"`
}

// ReviewerConfig is a PersonaConfig plus the identity fields that make a
// reviewer addressable across iterations.
type ReviewerConfig struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PersonaConfig
}

// Session is the persisted orchestration context for one deliberation.
type Session struct {
	ID                     string          `json:"id"`
	UserEmail              string          `json:"userEmail"`
	Name                   string          `json:"name"`
	Status                 SessionStatus   `json:"status"`
	StopReason             StopReason      `json:"stopReason"`
	MaxIterations          int             `json:"maxIterations"`
	CurrentIteration       int             `json:"currentIteration"`
	FeedbackVersion        int             `json:"feedbackVersion"`
	StopMarker             string          `json:"stopMarker"`
	StopOnReviewerApproved bool            `json:"stopOnReviewerApproved"`
	NeedsFinalIteration    bool            `json:"needsFinalIteration"`
	RunMode                RunMode         `json:"runMode"`
	Topic                  string          `json:"topic"`
	FinalContent           string          `json:"finalContent"`
	CreatorConfig          PersonaConfig   `json:"creatorConfig"`
	ReviewersConfig        []ReviewerConfig `json:"reviewersConfig"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// ReviewerByID returns the reviewer config with the given id, if present.
func (s *Session) ReviewerByID(id string) (ReviewerConfig, bool) {
	for _, r := range s.ReviewersConfig {
		if r.ID == id {
			return r, true
		}
	}
	return ReviewerConfig{}, false
}

// Clone returns a deep copy so callers can mutate in place without aliasing
// the embedded config snapshots or the reviewer slice.
func (s *Session) Clone() *Session {
	cp := *s
	cp.ReviewersConfig = make([]ReviewerConfig, len(s.ReviewersConfig))
	copy(cp.ReviewersConfig, s.ReviewersConfig)
	return &cp
}
