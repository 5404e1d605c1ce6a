package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shriramnat/ai-decision-council/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLite(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSession(id string) *domain.Session {
	now := time.Now()
	return &domain.Session{
		ID:               id,
		UserEmail:        "alice@example.com",
		Name:             "roadmap debate",
		Status:           domain.StatusCreated,
		StopReason:       domain.StopReasonNone,
		MaxIterations:    5,
		CurrentIteration: 0,
		FeedbackVersion:  1,
		StopMarker:       "@@SIGNED OFF@@",
		RunMode:          domain.RunModeAuto,
		Topic:            "Q3 roadmap",
		CreatorConfig: domain.PersonaConfig{
			RootPrompt: "you are the creator",
			ModelName:  "gpt-4o",
		},
		ReviewersConfig: []domain.ReviewerConfig{
			{ID: "r1", DisplayName: "Security", PersonaConfig: domain.PersonaConfig{ModelName: "claude-3"}},
			{ID: "r2", DisplayName: "Product", PersonaConfig: domain.PersonaConfig{ModelName: "gemini-pro"}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteStore_SessionCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess := sampleSession("sess-1")
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, sess.Name, got.Name)
	require.Len(t, got.ReviewersConfig, 2)
	require.Equal(t, "claude-3", got.ReviewersConfig[0].ModelName)

	got.Status = domain.StatusRunning
	got.CurrentIteration = 1
	got.UpdatedAt = time.Now()
	require.NoError(t, s.UpdateSession(ctx, got))

	reloaded, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRunning, reloaded.Status)
	require.Equal(t, 1, reloaded.CurrentIteration)

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.GetSession(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_DeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess := sampleSession("sess-del")
	require.NoError(t, s.CreateSession(ctx, sess))
	require.NoError(t, s.AppendMessage(ctx, &domain.Message{
		MessageID: "m1", SessionID: "sess-del", Role: domain.RoleAssistant,
		Author: domain.CreatorAuthor, Iteration: 1, Content: "draft", CreatedAt: time.Now(),
	}))
	require.NoError(t, s.CreateFeedbackRound(ctx, &domain.FeedbackRound{
		FeedbackRoundID: "fr1", SessionID: "sess-del", Iteration: 1, DraftContent: "draft",
		ReviewerSummaries: []domain.ReviewerSummary{{ReviewerID: "r1", Approved: true}},
		CreatedAt:         time.Now(),
	}))

	require.NoError(t, s.DeleteSession(ctx, "sess-del"))

	_, err := s.GetSession(ctx, "sess-del")
	require.ErrorIs(t, err, ErrNotFound)

	msgs, err := s.ListMessages(ctx, "sess-del")
	require.NoError(t, err)
	require.Empty(t, msgs)

	rounds, err := s.ListFeedbackRounds(ctx, "sess-del")
	require.NoError(t, err)
	require.Empty(t, rounds)

	err = s.DeleteSession(ctx, "sess-del")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_MessagesOrderedByIteration(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(ctx, sampleSession("sess-msg")))

	for i, author := range []string{domain.CreatorAuthor, "r1", domain.CreatorAuthor, "r1"} {
		iter := 1
		if i >= 2 {
			iter = 2
		}
		require.NoError(t, s.AppendMessage(ctx, &domain.Message{
			MessageID: string(rune('a' + i)), SessionID: "sess-msg", Role: domain.RoleAssistant,
			Author: author, Iteration: iter, Content: "x", CreatedAt: time.Now(),
		}))
	}

	all, err := s.ListMessages(ctx, "sess-msg")
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, 1, all[0].Iteration)
	require.Equal(t, 2, all[3].Iteration)

	creatorOnly, err := s.ListMessagesByAuthor(ctx, "sess-msg", domain.CreatorAuthor)
	require.NoError(t, err)
	require.Len(t, creatorOnly, 2)

	require.NoError(t, s.DeleteMessagesByAuthor(ctx, "sess-msg", "r1"))
	remaining, err := s.ListMessages(ctx, "sess-msg")
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

func TestSQLiteStore_FeedbackRoundUniquePerIteration(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(ctx, sampleSession("sess-fb")))

	fr := &domain.FeedbackRound{
		FeedbackRoundID: "fr1", SessionID: "sess-fb", Iteration: 1, DraftContent: "v1",
		ReviewerSummaries: []domain.ReviewerSummary{
			{ReviewerID: "r1", Approved: true}, {ReviewerID: "r2", Approved: false},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateFeedbackRound(ctx, fr))

	dup := &domain.FeedbackRound{
		FeedbackRoundID: "fr2", SessionID: "sess-fb", Iteration: 1, DraftContent: "v2",
		CreatedAt: time.Now(),
	}
	err := s.CreateFeedbackRound(ctx, dup)
	require.ErrorIs(t, err, ErrConflict)

	got, err := s.GetFeedbackRound(ctx, "sess-fb", 1)
	require.NoError(t, err)
	require.Len(t, got.ReviewerSummaries, 2)
	require.False(t, got.AllReviewersApproved)
	require.Nil(t, got.UserFeedbackAt)

	now := time.Now()
	require.NoError(t, s.AttachUserFeedback(ctx, "sess-fb", 1, "please tighten the intro", now))

	got, err = s.GetFeedbackRound(ctx, "sess-fb", 1)
	require.NoError(t, err)
	require.Equal(t, "please tighten the intro", got.UserFeedback)
	require.NotNil(t, got.UserFeedbackAt)

	err = s.AttachUserFeedback(ctx, "sess-fb", 99, "x", now)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ConfiguredModelsUniquePerUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := &domain.ConfiguredModel{
		ID: "model-1", UserEmail: "alice@example.com", ModelName: "gpt-4o",
		Endpoint: "https://api.openai.com/v1", Provider: domain.ProviderOpenAI,
		EncryptedKey: []byte("sealed-bytes"),
	}
	require.NoError(t, s.AddModel(ctx, m))

	dup := &domain.ConfiguredModel{
		ID: "model-2", UserEmail: "alice@example.com", ModelName: "gpt-4o",
		Endpoint: "https://api.openai.com/v1", Provider: domain.ProviderOpenAI,
	}
	err := s.AddModel(ctx, dup)
	require.ErrorIs(t, err, ErrConflict)

	otherUser := &domain.ConfiguredModel{
		ID: "model-3", UserEmail: "bob@example.com", ModelName: "gpt-4o",
		Endpoint: "https://api.openai.com/v1", Provider: domain.ProviderOpenAI,
	}
	require.NoError(t, s.AddModel(ctx, otherUser))

	got, err := s.GetModel(ctx, "alice@example.com", "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "model-1", got.ID)

	err = s.UpdateModel(ctx, "alice@example.com", "model-1", func(cm *domain.ConfiguredModel) error {
		cm.DisplayName = "Primary GPT-4o"
		return nil
	})
	require.NoError(t, err)

	got, err = s.GetModel(ctx, "alice@example.com", "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "Primary GPT-4o", got.DisplayName)

	models, err := s.ListModels(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, models, 1)

	require.NoError(t, s.DeleteModel(ctx, "alice@example.com", "model-1"))
	_, err = s.GetModel(ctx, "alice@example.com", "gpt-4o")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UserSettingsUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetUserSettings(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutUserSettings(ctx, &domain.UserSettings{UserID: "u1", NativeAgentModelID: "gpt-4o"}))
	got, err := s.GetUserSettings(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", got.NativeAgentModelID)

	require.NoError(t, s.PutUserSettings(ctx, &domain.UserSettings{UserID: "u1", NativeAgentModelID: "claude-3"}))
	got, err = s.GetUserSettings(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "claude-3", got.NativeAgentModelID)
}
