package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shriramnat/ai-decision-council/internal/apperr"
	"github.com/shriramnat/ai-decision-council/internal/domain"
	"github.com/shriramnat/ai-decision-council/internal/eventhub"
	"github.com/shriramnat/ai-decision-council/internal/llm"
)

// runSession is the long-running task for one Running session: it keeps
// pulling iterations until a stop condition fires, the run mode pauses it,
// or the caller cancels ctx.
func (m *Manager) runSession(ctx context.Context, sessionID string) {
	defer m.clearCancel(sessionID)

	for {
		sess, err := m.store.GetSession(ctx, sessionID)
		if err != nil {
			return
		}
		if sess.Status != domain.StatusRunning {
			return
		}

		outcome, err := m.runIteration(ctx, sess)
		if err != nil {
			m.finishError(sess, err)
			return
		}
		switch outcome {
		case outcomeTerminal, outcomePaused:
			return
		case outcomeContinue:
			// loop again
		}
	}
}

type iterationOutcome int

const (
	outcomeContinue iterationOutcome = iota
	outcomePaused
	outcomeTerminal
)

// runIteration executes one Creator+Reviewers cycle for sess, persisting
// state exactly once per artifact and publishing the event sequence
// IterationStarted -> Message* per persona -> IterationCompleted.
func (m *Manager) runIteration(ctx context.Context, sess *domain.Session) (iterationOutcome, error) {
	sess.CurrentIteration++
	sess.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return outcomeTerminal, err
	}
	m.publish(eventhub.Event{Kind: eventhub.KindIterationStarted, SessionID: sess.ID, Iteration: sess.CurrentIteration})

	history, err := m.store.ListMessages(ctx, sess.ID)
	if err != nil {
		return outcomeTerminal, err
	}

	pendingInstruction := m.takePendingInstruction(sess.ID)
	creatorTurns := buildCreatorTurns(sess, history, m.cfg.ContextTurnsToSend, pendingInstruction)
	creatorReq := llm.Request{
		Model:            sess.CreatorConfig.ModelName,
		Messages:         creatorTurns,
		Temperature:      sess.CreatorConfig.Temperature,
		MaxTokens:        sess.CreatorConfig.MaxOutputTokens,
		TopP:             sess.CreatorConfig.TopP,
		PresencePenalty:  sess.CreatorConfig.PresencePenalty,
		FrequencyPenalty: sess.CreatorConfig.FrequencyPenalty,
	}

	creatorContent, cancelled, err := m.streamPersona(ctx, sess, domain.CreatorAuthor, "", creatorReq)
	if err != nil {
		return outcomeTerminal, err
	}
	if cancelled {
		return m.finishStopped(sess, creatorContent)
	}

	if marker := sess.StopMarker; marker != "" && strings.Contains(creatorContent, marker) {
		return m.finishFinalMarker(sess, creatorContent, marker)
	}

	summaries, cancelled, err := m.runReviewers(ctx, sess, creatorContent)
	if err != nil {
		return outcomeTerminal, err
	}
	if cancelled {
		return m.finishStopped(sess, creatorContent)
	}

	allApproved := domain.ComputeAllApproved(summaries)
	if err := m.persistFeedbackRound(ctx, sess, creatorContent, summaries, allApproved); err != nil {
		return outcomeTerminal, err
	}
	m.publish(eventhub.Event{Kind: eventhub.KindIterationCompleted, SessionID: sess.ID, Iteration: sess.CurrentIteration})

	wasExtraIteration := sess.NeedsFinalIteration
	if wasExtraIteration {
		return m.finishReviewerApproved(sess, creatorContent)
	}
	if sess.StopOnReviewerApproved && allApproved {
		sess.NeedsFinalIteration = true
		if err := m.store.UpdateSession(ctx, sess); err != nil {
			return outcomeTerminal, err
		}
	} else if sess.CurrentIteration >= sess.MaxIterations {
		return m.finishMaxIterations(sess, creatorContent)
	}

	if sess.RunMode == domain.RunModeStep {
		sess.Status = domain.StatusPaused
		sess.UpdatedAt = time.Now()
		if err := m.store.UpdateSession(ctx, sess); err != nil {
			return outcomeTerminal, err
		}
		m.publish(eventhub.Event{Kind: eventhub.KindSessionPaused, SessionID: sess.ID})
		return outcomePaused, nil
	}
	return outcomeContinue, nil
}

// runReviewers runs every reviewer in sess.ReviewersConfig, sequentially by
// default. Concurrent mode (cfg.ConcurrentReviewers) fans them out with an
// error group while still writing results back in configuration order.
func (m *Manager) runReviewers(ctx context.Context, sess *domain.Session, latestCreatorContent string) ([]domain.ReviewerSummary, bool, error) {
	if m.cfg.ConcurrentReviewers {
		return m.runReviewersConcurrent(ctx, sess, latestCreatorContent)
	}

	summaries := make([]domain.ReviewerSummary, 0, len(sess.ReviewersConfig))
	for _, reviewer := range sess.ReviewersConfig {
		summary, cancelled, err := m.runOneReviewer(ctx, sess, reviewer, latestCreatorContent)
		if err != nil {
			return nil, false, err
		}
		if cancelled {
			return nil, true, nil
		}
		summaries = append(summaries, summary)
	}
	return summaries, false, nil
}

// runReviewersConcurrent fans reviewers out with an errgroup. Each
// goroutine writes to its own slot, so the result order matches
// sess.ReviewersConfig regardless of completion order; an error from one
// reviewer cancels the others via the errgroup's derived context.
func (m *Manager) runReviewersConcurrent(ctx context.Context, sess *domain.Session, latestCreatorContent string) ([]domain.ReviewerSummary, bool, error) {
	summaries := make([]domain.ReviewerSummary, len(sess.ReviewersConfig))
	cancelledFlags := make([]bool, len(sess.ReviewersConfig))

	g, gctx := errgroup.WithContext(ctx)
	for i, reviewer := range sess.ReviewersConfig {
		i, reviewer := i, reviewer
		g.Go(func() error {
			summary, cancelled, err := m.runOneReviewer(gctx, sess, reviewer, latestCreatorContent)
			if err != nil {
				return err
			}
			cancelledFlags[i] = cancelled
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	for _, c := range cancelledFlags {
		if c {
			return nil, true, nil
		}
	}
	return summaries, false, nil
}

func (m *Manager) runOneReviewer(ctx context.Context, sess *domain.Session, reviewer domain.ReviewerConfig, latestCreatorContent string) (domain.ReviewerSummary, bool, error) {
	reviewerHistory, err := m.store.ListMessagesByAuthor(ctx, sess.ID, reviewer.ID)
	if err != nil {
		return domain.ReviewerSummary{}, false, err
	}

	turns := buildReviewerTurns(sess, reviewer, reviewerHistory, latestCreatorContent, m.cfg.ContextTurnsToSend)
	req := llm.Request{
		Model:            reviewer.ModelName,
		Messages:         turns,
		Temperature:      reviewer.Temperature,
		MaxTokens:        reviewer.MaxOutputTokens,
		TopP:             reviewer.TopP,
		PresencePenalty:  reviewer.PresencePenalty,
		FrequencyPenalty: reviewer.FrequencyPenalty,
	}

	content, cancelled, err := m.streamPersona(ctx, sess, reviewer.ID, reviewer.DisplayName, req)
	if err != nil {
		return domain.ReviewerSummary{}, false, err
	}
	if cancelled {
		return domain.ReviewerSummary{}, true, nil
	}

	return domain.ReviewerSummary{
		ReviewerID:   reviewer.ID,
		ReviewerName: reviewer.DisplayName,
		Feedback:     content,
		Approved:     isApproved(content),
	}, false, nil
}

func (m *Manager) persistFeedbackRound(ctx context.Context, sess *domain.Session, draft string, summaries []domain.ReviewerSummary, allApproved bool) error {
	return m.store.CreateFeedbackRound(ctx, &domain.FeedbackRound{
		FeedbackRoundID:      newMessageID(),
		SessionID:            sess.ID,
		Iteration:            sess.CurrentIteration,
		DraftContent:         draft,
		AllReviewersApproved: allApproved,
		ReviewerSummaries:    summaries,
		CreatedAt:            time.Now(),
	})
}

// streamPersona streams one persona's completion, publishing MessageStarted
// -> MessageChunk* -> MessageCompleted, persisting the resulting message
// (full on normal completion, partial on cancellation), and retrying
// transient provider errors up to cfg.MaxRetries with exponential backoff.
func (m *Manager) streamPersona(ctx context.Context, sess *domain.Session, personaID, reviewerDisplayName string, req llm.Request) (content string, cancelled bool, err error) {
	messageID := newMessageID()
	m.publish(eventhub.Event{
		Kind: eventhub.KindMessageStarted, SessionID: sess.ID, MessageID: messageID,
		PersonaID: personaID, Iteration: sess.CurrentIteration,
	})

	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := m.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", true, nil
			}
		}

		text, wasCancelled, streamErr := m.consumeOneStream(ctx, sess, personaID, messageID, req)
		if wasCancelled {
			if text != "" {
				// ctx is cancelled here; persist the partial message against a
				// fresh context rather than one already past its deadline.
				if err := m.persistMessage(context.Background(), sess, personaID, reviewerDisplayName, messageID, text, req.Model); err != nil {
					return text, true, err
				}
				m.publish(eventhub.Event{Kind: eventhub.KindMessageCompleted, SessionID: sess.ID, MessageID: messageID, Text: text})
			}
			return text, true, nil
		}
		if streamErr == nil {
			if err := m.persistMessage(ctx, sess, personaID, reviewerDisplayName, messageID, text, req.Model); err != nil {
				return text, false, err
			}
			m.publish(eventhub.Event{Kind: eventhub.KindMessageCompleted, SessionID: sess.ID, MessageID: messageID, Text: text})
			return text, false, nil
		}

		lastErr = streamErr
		var provErr *apperr.ProviderError
		if errors.As(streamErr, &provErr) && provErr.Transient() && attempt < m.cfg.MaxRetries {
			continue
		}
		return "", false, streamErr
	}
	return "", false, lastErr
}

func (m *Manager) consumeOneStream(ctx context.Context, sess *domain.Session, personaID, messageID string, req llm.Request) (content string, cancelled bool, err error) {
	chunks, errc := m.router.StreamCompletion(ctx, sess.UserEmail, req)

	var builder strings.Builder
	var streamErr error

	for chunks != nil || errc != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if delta, ok := chunk.(llm.TokenDelta); ok && delta.Text != "" {
				builder.WriteString(delta.Text)
				m.publish(eventhub.Event{
					Kind: eventhub.KindMessageChunk, SessionID: sess.ID, MessageID: messageID, Text: delta.Text,
				})
			}
		case e, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			if e != nil {
				streamErr = e
			}
		case <-ctx.Done():
			return builder.String(), true, nil
		}
	}
	return builder.String(), false, streamErr
}

func (m *Manager) persistMessage(ctx context.Context, sess *domain.Session, personaID, reviewerDisplayName, messageID, content, modelUsed string) error {
	return m.store.AppendMessage(ctx, &domain.Message{
		MessageID:           messageID,
		SessionID:           sess.ID,
		Role:                domain.RoleAssistant,
		Author:              personaID,
		Iteration:           sess.CurrentIteration,
		Content:             content,
		ModelUsed:           modelUsed,
		ReviewerDisplayName: reviewerDisplayName,
		CreatedAt:           time.Now(),
	})
}

// The finish* helpers below always persist against context.Background()
// rather than whatever ctx the triggering iteration was running under: by
// the time any of them runs, that ctx may already be cancelled (user stop)
// or about to be torn down (process shutdown), and the whole point of a
// terminal transition is to record it durably regardless.

func (m *Manager) finishStopped(sess *domain.Session, lastCreatorContent string) (iterationOutcome, error) {
	sess.Status = domain.StatusStopped
	sess.StopReason = domain.StopReasonUserStopped
	sess.FinalContent = lastCreatorContent
	sess.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(context.Background(), sess); err != nil {
		return outcomeTerminal, err
	}
	m.publish(eventhub.Event{
		Kind: eventhub.KindSessionStopped, SessionID: sess.ID, Reason: string(sess.StopReason),
	})
	return outcomeTerminal, nil
}

func (m *Manager) finishFinalMarker(sess *domain.Session, creatorContent, marker string) (iterationOutcome, error) {
	idx := strings.Index(creatorContent, marker)
	final := strings.TrimSpace(creatorContent[idx+len(marker):])

	sess.Status = domain.StatusCompleted
	sess.StopReason = domain.StopReasonFinalMarkerDetected
	sess.FinalContent = final
	sess.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(context.Background(), sess); err != nil {
		return outcomeTerminal, err
	}
	m.publish(eventhub.Event{
		Kind: eventhub.KindSessionCompleted, SessionID: sess.ID, FinalContent: final, Reason: string(sess.StopReason),
	})
	return outcomeTerminal, nil
}

func (m *Manager) finishMaxIterations(sess *domain.Session, lastCreatorContent string) (iterationOutcome, error) {
	sess.Status = domain.StatusCompleted
	sess.StopReason = domain.StopReasonMaxIterationsReached
	sess.FinalContent = lastCreatorContent
	sess.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(context.Background(), sess); err != nil {
		return outcomeTerminal, err
	}
	m.publish(eventhub.Event{
		Kind: eventhub.KindSessionCompleted, SessionID: sess.ID, FinalContent: lastCreatorContent, Reason: string(sess.StopReason),
	})
	return outcomeTerminal, nil
}

func (m *Manager) finishReviewerApproved(sess *domain.Session, lastCreatorContent string) (iterationOutcome, error) {
	sess.Status = domain.StatusCompleted
	sess.StopReason = domain.StopReasonReviewerApproved
	sess.FinalContent = lastCreatorContent
	sess.NeedsFinalIteration = false
	sess.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(context.Background(), sess); err != nil {
		return outcomeTerminal, err
	}
	m.publish(eventhub.Event{
		Kind: eventhub.KindSessionCompleted, SessionID: sess.ID, FinalContent: lastCreatorContent, Reason: string(sess.StopReason),
	})
	return outcomeTerminal, nil
}

func (m *Manager) finishError(sess *domain.Session, cause error) {
	sess.Status = domain.StatusError
	sess.StopReason = domain.StopReasonError
	sess.UpdatedAt = time.Now()
	_ = m.store.UpdateSession(context.Background(), sess)
	m.publish(eventhub.Event{Kind: eventhub.KindSessionError, SessionID: sess.ID, Reason: cause.Error()})
}
