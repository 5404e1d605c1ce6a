// Package credential implements the Credential Store: a per-user mapping of
// model name to endpoint, provider tag, and sealed API key. It sits on top
// of internal/store for persistence and internal/crypto for sealing, and is
// the only package allowed to see plaintext key material outside a single
// Resolve call's return value.
package credential

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shriramnat/ai-decision-council/internal/apperr"
	"github.com/shriramnat/ai-decision-council/internal/crypto"
	"github.com/shriramnat/ai-decision-council/internal/domain"
	"github.com/shriramnat/ai-decision-council/internal/store"
)

// Resolved is the plaintext view of a ConfiguredModel returned only from
// Resolve, and only within the caller's stack frame. Never log this value.
type Resolved struct {
	Endpoint     string
	Provider     domain.Provider
	PlaintextKey string
}

// Store is the Credential Store described by the persisted-state section of
// the request surface: list/get/add/update/delete/resolve over
// ConfiguredModel rows, sealing and unsealing keys via an injected
// crypto.Protector so the backing store never sees plaintext.
type Store struct {
	db        store.Store
	protector crypto.Protector
}

func New(db store.Store, protector crypto.Protector) *Store {
	return &Store{db: db, protector: protector}
}

func (s *Store) List(ctx context.Context, userEmail string) ([]*domain.ConfiguredModel, error) {
	return s.db.ListModels(ctx, userEmail)
}

func (s *Store) Get(ctx context.Context, userEmail, modelName string) (*domain.ConfiguredModel, error) {
	m, err := s.db.GetModel(ctx, userEmail, modelName)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return m, nil
}

// AddInput is the caller-supplied view of a new ConfiguredModel; PlaintextKey
// is sealed before anything touches the store.
type AddInput struct {
	ModelName    string
	DisplayName  string
	Endpoint     string
	Provider     domain.Provider
	PlaintextKey string
}

func (s *Store) Add(ctx context.Context, userEmail string, in AddInput) (*domain.ConfiguredModel, error) {
	var sealed []byte
	if in.PlaintextKey != "" {
		var err error
		sealed, err = s.protector.Seal([]byte(in.PlaintextKey))
		if err != nil {
			return nil, &apperr.CryptoError{Cause: err}
		}
	}

	m := &domain.ConfiguredModel{
		ID:           uuid.NewString(),
		UserEmail:    userEmail,
		ModelName:    in.ModelName,
		DisplayName:  in.DisplayName,
		Endpoint:     in.Endpoint,
		Provider:     in.Provider,
		EncryptedKey: sealed,
	}
	if err := s.db.AddModel(ctx, m); err != nil {
		if err == store.ErrConflict {
			return nil, &apperr.ConflictError{Detail: fmt.Sprintf("model %q already configured for this user", in.ModelName)}
		}
		return nil, err
	}
	return m, nil
}

// UpdateInput carries only the fields the caller wants to change; a nil
// field leaves the stored value untouched. A non-nil PlaintextKey reseals
// and replaces the stored key.
type UpdateInput struct {
	ModelName    *string
	DisplayName  *string
	Endpoint     *string
	Provider     *domain.Provider
	PlaintextKey *string
}

func (s *Store) Update(ctx context.Context, userEmail, id string, in UpdateInput) error {
	err := s.db.UpdateModel(ctx, userEmail, id, func(m *domain.ConfiguredModel) error {
		if in.ModelName != nil {
			m.ModelName = *in.ModelName
		}
		if in.DisplayName != nil {
			m.DisplayName = *in.DisplayName
		}
		if in.Endpoint != nil {
			m.Endpoint = *in.Endpoint
		}
		if in.Provider != nil {
			m.Provider = *in.Provider
		}
		if in.PlaintextKey != nil {
			sealed, sealErr := s.protector.Seal([]byte(*in.PlaintextKey))
			if sealErr != nil {
				return &apperr.CryptoError{Cause: sealErr}
			}
			m.EncryptedKey = sealed
		}
		return nil
	})
	if err == store.ErrConflict {
		return &apperr.ConflictError{Detail: fmt.Sprintf("renaming to %q would collide with an existing entry", derefOr(in.ModelName, ""))}
	}
	if err == store.ErrNotFound {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) Delete(ctx context.Context, userEmail, id string) error {
	if err := s.db.DeleteModel(ctx, userEmail, id); err != nil {
		return mapNotFound(err)
	}
	return nil
}

// Resolve returns the plaintext key material for (userEmail, modelName), or
// PlaintextKey = "" if no key is stored — callers surface that as a
// configuration error rather than treating it as a crypto failure.
func (s *Store) Resolve(ctx context.Context, userEmail, modelName string) (Resolved, error) {
	m, err := s.db.GetModel(ctx, userEmail, modelName)
	if err != nil {
		return Resolved{}, mapNotFound(err)
	}

	var plaintext string
	if len(m.EncryptedKey) > 0 {
		opened, err := s.protector.Open(m.EncryptedKey)
		if err != nil {
			return Resolved{}, &apperr.CryptoError{Cause: err}
		}
		plaintext = string(opened)
	}

	return Resolved{
		Endpoint:     m.Endpoint,
		Provider:     m.Provider,
		PlaintextKey: plaintext,
	}, nil
}

// HasKey reports whether (userEmail, modelName) resolves to a non-empty
// plaintext key, without ever returning the key itself. It is used by the
// request surface's start/step precondition check.
func (s *Store) HasKey(ctx context.Context, userEmail, modelName string) (bool, error) {
	resolved, err := s.Resolve(ctx, userEmail, modelName)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resolved.PlaintextKey != "", nil
}

func mapNotFound(err error) error {
	if err == store.ErrNotFound {
		return store.ErrNotFound
	}
	return err
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
