package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/shriramnat/ai-decision-council/config"
	"github.com/shriramnat/ai-decision-council/internal/api"
	"github.com/shriramnat/ai-decision-council/internal/credential"
	"github.com/shriramnat/ai-decision-council/internal/crypto"
	"github.com/shriramnat/ai-decision-council/internal/domain"
	"github.com/shriramnat/ai-decision-council/internal/eventhub"
	"github.com/shriramnat/ai-decision-council/internal/llm"
	"github.com/shriramnat/ai-decision-council/internal/logger"
	"github.com/shriramnat/ai-decision-council/internal/notify"
	"github.com/shriramnat/ai-decision-council/internal/orchestrator"
	"github.com/shriramnat/ai-decision-council/internal/store"
)

func main() {
	configDir := flag.String("config-dir", ".", "directory holding config.toml and its environment overlay")
	flag.Parse()

	loader, err := config.NewLoader(*configDir)
	if err != nil {
		slog.Error("failed to build config loader", "error", err)
		os.Exit(1)
	}
	cfg, err := loader.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Initialize(cfg)
	slog.Info("starting decision council server", "addr", cfg.Server.Addr)

	db, err := store.NewSQLite(cfg.Persistence.ConnectionString)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close store", "error", closeErr)
		}
	}()

	protector, err := newProtector()
	if err != nil {
		slog.Error("failed to build credential protector", "error", err)
		os.Exit(1)
	}

	creds := credential.New(db, protector)
	seedModels(cfg, creds)

	router := llm.NewRouter(creds)
	hub := eventhub.New(256)

	mgr := orchestrator.NewManager(db, creds, router, hub, orchestrator.Config{
		ContextTurnsToSend:     cfg.Orchestration.ContextTurnsToSend,
		MaxPromptChars:         cfg.Orchestration.MaxPromptChars,
		MaxDraftChars:          cfg.Orchestration.MaxDraftChars,
		MaxRetries:             cfg.MaxRetries,
		ConcurrentReviewers:    cfg.Orchestration.ConcurrentReviewers,
		DefaultMaxIterations:   cfg.Orchestration.DefaultMaxIterations,
		DefaultStopMarker:      cfg.Orchestration.DefaultStopMarker,
		StopOnReviewerApproved: cfg.Orchestration.StopOnReviewerApproved,
	})

	dispatcher, err := notify.NewDispatcher(cfg.Notifications)
	if err != nil {
		slog.Error("failed to build notification dispatcher", "error", err)
		os.Exit(1)
	}
	mgr.SetNotifier(dispatcher)

	handler := api.NewHandler(db, creds, mgr, hub)
	r := api.NewRouter(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket event stream needs an unbounded write side
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}

// newProtector builds the credential-sealing Protector from a base64
// COUNCIL_ENCRYPTION_KEY naming a 32-byte XChaCha20-Poly1305 key. There is
// no fallback: a deployment with no key configured cannot safely store API
// keys, so it must fail at startup rather than seal under a key nobody set.
func newProtector() (crypto.Protector, error) {
	encoded := os.Getenv("COUNCIL_ENCRYPTION_KEY")
	if encoded == "" {
		return nil, errors.New("COUNCIL_ENCRYPTION_KEY is not set")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.New("COUNCIL_ENCRYPTION_KEY is not valid base64")
	}
	return crypto.NewAEADProtector(key)
}

// seedModels pre-populates any ConfiguredModel rows named in config, e.g. a
// shared default model provisioned once at deploy time rather than through
// the per-user CRUD endpoints. Plaintext keys are not accepted here: the
// config's seed entries name endpoint/provider only, and the key itself
// must still be added per-user through the API afterward.
func seedModels(cfg *config.Config, creds *credential.Store) {
	ctx := context.Background()
	for _, seed := range cfg.Models {
		existing, err := creds.List(ctx, seed.UserEmail)
		if err != nil {
			slog.Warn("failed to list models while seeding", "user", seed.UserEmail, "error", err)
			continue
		}
		found := false
		for _, m := range existing {
			if m.ModelName == seed.ModelName {
				found = true
				break
			}
		}
		if found {
			continue
		}

		if _, err := creds.Add(ctx, seed.UserEmail, credential.AddInput{
			ModelName:   seed.ModelName,
			DisplayName: seed.DisplayName,
			Endpoint:    seed.Endpoint,
			Provider:    domain.Provider(seed.Provider),
		}); err != nil {
			slog.Warn("failed to seed model", "user", seed.UserEmail, "model", seed.ModelName, "error", err)
		}
	}
}
