package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shriramnat/ai-decision-council/internal/apperr"
	"github.com/shriramnat/ai-decision-council/internal/domain"
	"github.com/shriramnat/ai-decision-council/internal/eventhub"
	"github.com/shriramnat/ai-decision-council/internal/llm"
	"github.com/shriramnat/ai-decision-council/internal/store"
)

// canned is one scripted response a stubRouter hands back, in call order.
type canned struct {
	text string
	err  error
}

// stubRouter replays a fixed script of responses in call order, regardless
// of which persona/model asked. Good enough for an orchestrator loop, whose
// call order (Creator then each Reviewer) is deterministic by construction.
type stubRouter struct {
	mu        sync.Mutex
	responses []canned
	idx       int
	requests  []llm.Request
}

func (s *stubRouter) StreamCompletion(_ context.Context, _ string, req llm.Request) (<-chan llm.ChunkEvent, <-chan error) {
	s.mu.Lock()
	i := s.idx
	s.idx++
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	chunks := make(chan llm.ChunkEvent, 1)
	errc := make(chan error, 1)
	if i >= len(s.responses) {
		close(chunks)
		errc <- fmt.Errorf("stubRouter: no scripted response for call %d", i)
		close(errc)
		return chunks, errc
	}
	c := s.responses[i]
	go func() {
		defer close(chunks)
		defer close(errc)
		if c.text != "" {
			chunks <- llm.TokenDelta{Text: c.text}
		}
		if c.err != nil {
			errc <- c.err
		}
	}()
	return chunks, errc
}

// blockingRouter emits one chunk then hangs until ctx is cancelled, used to
// exercise mid-stream user-stop cancellation.
type blockingRouter struct{}

func (blockingRouter) StreamCompletion(ctx context.Context, _ string, _ llm.Request) (<-chan llm.ChunkEvent, <-chan error) {
	chunks := make(chan llm.ChunkEvent, 1)
	errc := make(chan error, 1)
	chunks <- llm.TokenDelta{Text: "partial "}
	go func() {
		<-ctx.Done()
		close(chunks)
		close(errc)
	}()
	return chunks, errc
}

type stubKeyChecker struct{ missing map[string]bool }

func (s stubKeyChecker) HasKey(_ context.Context, _, modelName string) (bool, error) {
	return !s.missing[modelName], nil
}

func newTestManager(t *testing.T, router Router, keys KeyChecker, cfg Config) (*Manager, store.Store) {
	t.Helper()
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	hub := eventhub.New(32)
	return NewManager(db, keys, router, hub, cfg), db
}

func newTestSession(id string) *domain.Session {
	now := time.Now()
	return &domain.Session{
		ID:        id,
		UserEmail: "alice@example.com",
		Name:      "test session",
		Status:    domain.StatusCreated,
		RunMode:   domain.RunModeAuto,
		Topic:     "Quarterly planning memo",
		CreatorConfig: domain.PersonaConfig{
			RootPrompt: "You draft the memo.",
			ModelName:  "creator-model",
		},
		ReviewersConfig: []domain.ReviewerConfig{
			{
				ID:            "rev1",
				DisplayName:   "Reviewer One",
				PersonaConfig: domain.PersonaConfig{RootPrompt: "You review the memo.", ModelName: "reviewer-model"},
			},
		},
		MaxIterations: 5,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func waitForTerminal(t *testing.T, db store.Store, sessionID string, timeout time.Duration) *domain.Session {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		sess, err := db.GetSession(context.Background(), sessionID)
		require.NoError(t, err)
		if sess.Status != domain.StatusRunning {
			return sess
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for session to leave Running")
	return nil
}

func noMissingKeys() stubKeyChecker { return stubKeyChecker{missing: map[string]bool{}} }

// TestManager_HappyPathReviewerConsensus covers scenario 1 and property P1:
// approval triggers exactly one more iteration, then the session completes
// with ReviewerApproved, and message/feedback-round counts match the
// iterations actually run.
func TestManager_HappyPathReviewerConsensus(t *testing.T) {
	router := &stubRouter{responses: []canned{
		{text: "Draft one."},
		{text: "This needs work."},
		{text: "Draft two."},
		{text: "@@SIGNED OFF@@ Looks great."},
		{text: "Draft three, final polish."},
		{text: "@@SIGNED OFF@@ Confirmed."},
	}}
	mgr, db := newTestManager(t, router, noMissingKeys(), Config{})

	sess := newTestSession("sess-1")
	sess.StopOnReviewerApproved = true
	require.NoError(t, db.CreateSession(context.Background(), sess))

	require.NoError(t, mgr.Start(context.Background(), sess.ID))
	final := waitForTerminal(t, db, sess.ID, 3*time.Second)

	require.Equal(t, domain.StatusCompleted, final.Status)
	require.Equal(t, domain.StopReasonReviewerApproved, final.StopReason)
	require.Equal(t, 3, final.CurrentIteration)
	require.Equal(t, "Draft three, final polish.", final.FinalContent)
	require.False(t, final.NeedsFinalIteration)

	messages, err := db.ListMessages(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, messages, 6)

	rounds, err := db.ListFeedbackRounds(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
}

// TestManager_FinalMarkerShortCircuits covers scenario 2: a stop marker in
// the Creator's draft completes the session immediately, without running
// any reviewer.
func TestManager_FinalMarkerShortCircuits(t *testing.T) {
	router := &stubRouter{responses: []canned{
		{text: "Intro text @@FINAL@@ This is the final content."},
	}}
	mgr, db := newTestManager(t, router, noMissingKeys(), Config{})

	sess := newTestSession("sess-2")
	sess.StopMarker = "@@FINAL@@"
	require.NoError(t, db.CreateSession(context.Background(), sess))

	require.NoError(t, mgr.Start(context.Background(), sess.ID))
	final := waitForTerminal(t, db, sess.ID, 3*time.Second)

	require.Equal(t, domain.StatusCompleted, final.Status)
	require.Equal(t, domain.StopReasonFinalMarkerDetected, final.StopReason)
	require.Equal(t, "This is the final content.", final.FinalContent)
	require.Equal(t, 1, final.CurrentIteration)

	messages, err := db.ListMessages(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1, "no reviewer should run once the marker short-circuits the iteration")
}

// TestManager_MaxIterationsFloor covers scenario 3: reviewers never approve,
// so the session runs exactly maxIterations rounds and stops there.
func TestManager_MaxIterationsFloor(t *testing.T) {
	router := &stubRouter{responses: []canned{
		{text: "Draft one."}, {text: "Not ready."},
		{text: "Draft two."}, {text: "Still not ready."},
	}}
	mgr, db := newTestManager(t, router, noMissingKeys(), Config{})

	sess := newTestSession("sess-3")
	sess.MaxIterations = 2
	sess.StopOnReviewerApproved = true
	require.NoError(t, db.CreateSession(context.Background(), sess))

	require.NoError(t, mgr.Start(context.Background(), sess.ID))
	final := waitForTerminal(t, db, sess.ID, 3*time.Second)

	require.Equal(t, domain.StatusCompleted, final.Status)
	require.Equal(t, domain.StopReasonMaxIterationsReached, final.StopReason)
	require.Equal(t, 2, final.CurrentIteration)
}

// TestManager_UserStopMidStream covers scenario 4: Stop cancels the
// in-flight stream and the session lands in Stopped/UserStopped rather than
// completing or erroring.
func TestManager_UserStopMidStream(t *testing.T) {
	mgr, db := newTestManager(t, blockingRouter{}, noMissingKeys(), Config{})

	sess := newTestSession("sess-4")
	require.NoError(t, db.CreateSession(context.Background(), sess))

	require.NoError(t, mgr.Start(context.Background(), sess.ID))
	require.Eventually(t, func() bool { return mgr.IsRunning(sess.ID) }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mgr.Stop(sess.ID)

	final := waitForTerminal(t, db, sess.ID, 3*time.Second)
	require.Equal(t, domain.StatusStopped, final.Status)
	require.Equal(t, domain.StopReasonUserStopped, final.StopReason)
	require.Equal(t, 1, final.CurrentIteration)
}

// TestManager_MissingKeyGateBlocksStart covers scenario 5: Start refuses to
// launch a session referencing a model with no stored credential, and the
// session stays Created.
func TestManager_MissingKeyGateBlocksStart(t *testing.T) {
	router := &stubRouter{}
	keys := stubKeyChecker{missing: map[string]bool{"reviewer-model": true}}
	mgr, db := newTestManager(t, router, keys, Config{})

	sess := newTestSession("sess-5")
	require.NoError(t, db.CreateSession(context.Background(), sess))

	err := mgr.Start(context.Background(), sess.ID)
	require.Error(t, err)
	var notConfigured interface{ Error() string }
	require.ErrorAs(t, err, &notConfigured)

	stored, err := db.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCreated, stored.Status)
	require.False(t, mgr.IsRunning(sess.ID))
}

// TestManager_ReIterateInjectsSynthesizedInstruction covers scenario 6: a
// completed session re-armed via ReIterate resumes with a Creator turn that
// literally contains the feedback comments.
func TestManager_ReIterateInjectsSynthesizedInstruction(t *testing.T) {
	router := &stubRouter{responses: []canned{
		{text: "Intro @@FINAL@@ First final content."},
		{text: "Intro @@FINAL@@ Shortened final content."},
	}}
	mgr, db := newTestManager(t, router, noMissingKeys(), Config{})

	sess := newTestSession("sess-6")
	sess.StopMarker = "@@FINAL@@"
	require.NoError(t, db.CreateSession(context.Background(), sess))

	require.NoError(t, mgr.Start(context.Background(), sess.ID))
	first := waitForTerminal(t, db, sess.ID, 3*time.Second)
	require.Equal(t, domain.StatusCompleted, first.Status)

	err := mgr.ReIterate(context.Background(), sess.ID, ReIterateInput{
		Comments:                "Shorten.",
		MaxAdditionalIterations: 1,
	})
	require.NoError(t, err)

	second := waitForTerminal(t, db, sess.ID, 3*time.Second)
	require.Equal(t, domain.StatusCompleted, second.Status)
	require.Equal(t, "Shortened final content.", second.FinalContent)
	require.Equal(t, 2, second.FeedbackVersion)

	router.mu.Lock()
	defer router.mu.Unlock()
	require.Len(t, router.requests, 2)
	lastTurn := router.requests[1].Messages[len(router.requests[1].Messages)-1]
	require.Contains(t, lastTurn.Content, "Shorten.")
}

// TestManager_ReIterateRejectsNonCompletedSession enforces the precondition
// that re-iteration only applies to a Completed session.
func TestManager_ReIterateRejectsNonCompletedSession(t *testing.T) {
	mgr, db := newTestManager(t, &stubRouter{}, noMissingKeys(), Config{})
	sess := newTestSession("sess-7")
	require.NoError(t, db.CreateSession(context.Background(), sess))

	err := mgr.ReIterate(context.Background(), sess.ID, ReIterateInput{Comments: "x", MaxAdditionalIterations: 1})
	require.Error(t, err)
}

// TestManager_ProviderTransientErrorRetries exercises the retry/backoff
// path: a 5xx-equivalent transient error on the first attempt is retried
// and the iteration still completes once the retry succeeds.
func TestManager_ProviderTransientErrorRetries(t *testing.T) {
	router := &stubRouter{responses: []canned{
		{err: &apperr.ProviderError{StatusCode: 503, Body: "temporary upstream hiccup"}},
		{text: "Intro @@FINAL@@ Recovered content."},
	}}
	mgr, db := newTestManager(t, router, noMissingKeys(), Config{MaxRetries: 1, RetryBaseDelay: time.Millisecond})

	sess := newTestSession("sess-8")
	sess.StopMarker = "@@FINAL@@"
	require.NoError(t, db.CreateSession(context.Background(), sess))

	require.NoError(t, mgr.Start(context.Background(), sess.ID))
	final := waitForTerminal(t, db, sess.ID, 3*time.Second)
	require.Equal(t, domain.StatusCompleted, final.Status)
	require.Equal(t, "Recovered content.", final.FinalContent)
}
