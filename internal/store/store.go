// Package store is the transactional relational store for sessions,
// messages, feedback rounds, configured models, and user settings (spec
// §3, §6 "Persisted state"). The spec treats the storage engine itself as
// an external collaborator; this package picks SQLite as the concrete
// engine so the rest of the system has something real to run against.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shriramnat/ai-decision-council/internal/domain"
)

// ErrNotFound is returned when a lookup by id/name finds nothing.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned by AddModel when (userEmail, modelName) already
// exists, and by CreateFeedbackRound when (sessionID, iteration) already
// exists.
var ErrConflict = errors.New("store: conflict")

// Store is the full persistence surface the orchestrator, credential store,
// and request surface depend on.
type Store interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	ListSessions(ctx context.Context) ([]*domain.Session, error)
	UpdateSession(ctx context.Context, s *domain.Session) error
	DeleteSession(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, m *domain.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)
	ListMessagesByAuthor(ctx context.Context, sessionID, author string) ([]*domain.Message, error)
	DeleteMessagesByAuthor(ctx context.Context, sessionID, author string) error

	CreateFeedbackRound(ctx context.Context, f *domain.FeedbackRound) error
	ListFeedbackRounds(ctx context.Context, sessionID string) ([]*domain.FeedbackRound, error)
	GetFeedbackRound(ctx context.Context, sessionID string, iteration int) (*domain.FeedbackRound, error)
	AttachUserFeedback(ctx context.Context, sessionID string, iteration int, text string, at time.Time) error

	ListModels(ctx context.Context, userEmail string) ([]*domain.ConfiguredModel, error)
	GetModel(ctx context.Context, userEmail, modelName string) (*domain.ConfiguredModel, error)
	AddModel(ctx context.Context, m *domain.ConfiguredModel) error
	UpdateModel(ctx context.Context, userEmail, id string, mutate func(*domain.ConfiguredModel) error) error
	DeleteModel(ctx context.Context, userEmail, id string) error

	GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
	PutUserSettings(ctx context.Context, s *domain.UserSettings) error

	Close() error
}
