// Package orchestrator drives the Creator-Reviewer iteration loop: one
// goroutine per actively running session, streaming each persona's
// completion through the Router, persisting messages and feedback rounds,
// and publishing progress to the Event Hub. It is the hardest subsystem in
// this codebase — it owns every state transition and stop-condition
// decision the rest of the system observes.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shriramnat/ai-decision-council/internal/apperr"
	"github.com/shriramnat/ai-decision-council/internal/domain"
	"github.com/shriramnat/ai-decision-council/internal/eventhub"
	"github.com/shriramnat/ai-decision-council/internal/llm"
	"github.com/shriramnat/ai-decision-council/internal/store"
)

// Router is the subset of llm.Router the orchestrator depends on.
type Router interface {
	StreamCompletion(ctx context.Context, userEmail string, req llm.Request) (<-chan llm.ChunkEvent, <-chan error)
}

// KeyChecker is the subset of credential.Store the start/step precondition
// gate depends on.
type KeyChecker interface {
	HasKey(ctx context.Context, userEmail, modelName string) (bool, error)
}

// Notifier receives every event this Manager publishes, for best-effort,
// asynchronous external notification. Notify must not block the caller;
// an implementation that needs to do I/O should hand the event to its own
// goroutine rather than perform it inline.
type Notifier interface {
	Notify(ev eventhub.Event)
}

// Config holds the orchestration tunables recognized under the
// "orchestration" config section.
type Config struct {
	ContextTurnsToSend      int
	MaxPromptChars          int
	MaxDraftChars           int
	MaxRetries              int
	RetryBaseDelay          time.Duration
	ConcurrentReviewers     bool
	DefaultMaxIterations    int
	DefaultStopMarker       string
	StopOnReviewerApproved  bool
}

func (c Config) withDefaults() Config {
	if c.ContextTurnsToSend <= 0 {
		c.ContextTurnsToSend = defaultContextTurnsToSend
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 250 * time.Millisecond
	}
	return c
}

// Manager owns the cancellation-token map and dispatches one goroutine per
// running session.
type Manager struct {
	store    store.Store
	creds    KeyChecker
	router   Router
	hub      *eventhub.Hub
	cfg      Config
	notifier Notifier

	mu                 sync.Mutex
	cancels            map[string]context.CancelFunc
	pendingInstruction map[string]string
}

// SetNotifier attaches a Notifier that receives every event published from
// this point on. Optional; a Manager with no Notifier just publishes to its
// Event Hub as before. Not safe to call concurrently with a running session.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// publish fans ev out to the Event Hub's websocket subscribers and, if a
// Notifier is attached, to it as well.
func (m *Manager) publish(ev eventhub.Event) {
	m.hub.Publish(ev)
	if m.notifier != nil {
		m.notifier.Notify(ev)
	}
}

func NewManager(db store.Store, creds KeyChecker, router Router, hub *eventhub.Hub, cfg Config) *Manager {
	return &Manager{
		store:              db,
		creds:              creds,
		router:             router,
		hub:                hub,
		cfg:                cfg.withDefaults(),
		cancels:            make(map[string]context.CancelFunc),
		pendingInstruction: make(map[string]string),
	}
}

func (m *Manager) setCancel(sessionID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[sessionID] = cancel
}

func (m *Manager) clearCancel(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, sessionID)
}

// Stop signals cancellation for a running session. Idempotent: stopping a
// session with no registered cancel function is a no-op.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	cancel, ok := m.cancels[sessionID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// IsRunning reports whether sessionID currently has an active orchestrator
// goroutine.
func (m *Manager) IsRunning(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cancels[sessionID]
	return ok
}

// distinctModels returns every model name referenced by the session's
// creator and reviewers, deduplicated and sorted for deterministic error
// messages.
func distinctModels(sess *domain.Session) []string {
	seen := make(map[string]struct{})
	seen[sess.CreatorConfig.ModelName] = struct{}{}
	for _, r := range sess.ReviewersConfig {
		seen[r.ModelName] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// checkModelsConfigured implements the start/step precondition: every
// distinct model referenced by the roster must resolve to a stored key for
// this session's user.
func (m *Manager) checkModelsConfigured(ctx context.Context, sess *domain.Session) error {
	var missing []string
	for _, name := range distinctModels(sess) {
		ok, err := m.creds.HasKey(ctx, sess.UserEmail, name)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &apperr.NotConfigured{ModelNames: missing}
	}
	return nil
}

// Start begins (or resumes from Paused) the loop in Auto mode.
func (m *Manager) Start(ctx context.Context, sessionID string) error {
	return m.begin(ctx, sessionID, domain.RunModeAuto)
}

// Step begins (or resumes from Paused) the loop for exactly one iteration.
func (m *Manager) Step(ctx context.Context, sessionID string) error {
	return m.begin(ctx, sessionID, domain.RunModeStep)
}

func (m *Manager) begin(ctx context.Context, sessionID string, mode domain.RunMode) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != domain.StatusCreated && sess.Status != domain.StatusPaused {
		return &apperr.ValidationError{Detail: fmt.Sprintf("cannot start/step a session in status %s", sess.Status)}
	}

	if err := m.checkModelsConfigured(ctx, sess); err != nil {
		return err
	}

	sess.RunMode = mode
	sess.Status = domain.StatusRunning
	sess.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.setCancel(sessionID, cancel)

	m.publish(eventhub.Event{Kind: eventhub.KindSessionStarted, SessionID: sessionID})
	go m.runSession(runCtx, sessionID)
	return nil
}

// ResetMemory deletes every message authored by personaID in sessionID,
// without altering session status or iteration counters.
func (m *Manager) ResetMemory(ctx context.Context, sessionID, personaID string) error {
	if err := m.store.DeleteMessagesByAuthor(ctx, sessionID, personaID); err != nil {
		return err
	}
	m.publish(eventhub.Event{Kind: eventhub.KindPersonaMemoryReset, SessionID: sessionID, PersonaID: personaID})
	return nil
}

// AttachFeedback attaches user-authored feedback text to a completed
// iteration's round, for display alongside reviewer summaries.
func (m *Manager) AttachFeedback(ctx context.Context, sessionID string, iteration int, text string) error {
	if text == "" {
		return &apperr.ValidationError{Detail: "feedback text must not be empty"}
	}
	return m.store.AttachUserFeedback(ctx, sessionID, iteration, text, time.Now())
}

// ReIterateInput is the post-completion re-iteration request body.
type ReIterateInput struct {
	Comments                string
	Tone                     string
	Length                   string
	Audience                 string
	MaxAdditionalIterations  int
}

// ReIterate implements post-completion re-iteration: verifies the session
// is Completed, synthesizes a user instruction from the requested
// tone/length/audience/comments, bumps maxIterations and feedbackVersion,
// and resumes the loop in Auto mode.
func (m *Manager) ReIterate(ctx context.Context, sessionID string, in ReIterateInput) error {
	if in.Comments == "" {
		return &apperr.ValidationError{Detail: "comments must not be empty"}
	}
	if in.MaxAdditionalIterations < 1 || in.MaxAdditionalIterations > 3 {
		return &apperr.ValidationError{Detail: "maxAdditionalIterations must be in [1,3]"}
	}

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != domain.StatusCompleted {
		return &apperr.ValidationError{Detail: fmt.Sprintf("cannot re-iterate a session in status %s", sess.Status)}
	}

	instruction := synthesizeReIterateInstruction(in)
	m.mu.Lock()
	m.pendingInstruction[sessionID] = instruction
	m.mu.Unlock()

	sess.MaxIterations += in.MaxAdditionalIterations
	sess.FeedbackVersion++
	sess.Status = domain.StatusRunning
	sess.StopReason = domain.StopReasonNone
	sess.RunMode = domain.RunModeAuto
	sess.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.setCancel(sessionID, cancel)

	m.publish(eventhub.Event{Kind: eventhub.KindSessionStarted, SessionID: sessionID})
	go m.runSession(runCtx, sessionID)
	return nil
}

func synthesizeReIterateInstruction(in ReIterateInput) string {
	instruction := "Incorporate the following feedback into the next revision."
	if in.Tone != "" {
		instruction += fmt.Sprintf(" Tone: %s.", in.Tone)
	}
	if in.Length != "" {
		instruction += fmt.Sprintf(" Length: %s.", in.Length)
	}
	if in.Audience != "" {
		instruction += fmt.Sprintf(" Audience: %s.", in.Audience)
	}
	instruction += " Comments: " + in.Comments
	return instruction
}

func (m *Manager) takePendingInstruction(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	instruction := m.pendingInstruction[sessionID]
	delete(m.pendingInstruction, sessionID)
	return instruction
}

func newMessageID() string { return uuid.NewString() }
