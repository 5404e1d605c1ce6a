package orchestrator

import (
	"github.com/shriramnat/ai-decision-council/internal/domain"
	"github.com/shriramnat/ai-decision-council/internal/llm"
)

const defaultContextTurnsToSend = 8

// buildCreatorTurns assembles the Creator's message list: root prompt,
// safety reminder, optional topic block, the recent context window, and a
// trailing instruction to draft or revise. pendingInstruction, when
// non-empty, is appended to that trailing instruction — used by
// post-completion re-iteration to inject the synthesized tone/length/
// audience/comments turn.
func buildCreatorTurns(sess *domain.Session, history []*domain.Message, contextTurnsToSend int, pendingInstruction string) []llm.Turn {
	turns := []llm.Turn{
		{Role: domain.RoleSystem, Content: sess.CreatorConfig.RootPrompt},
		{Role: domain.RoleSystem, Content: safetyReminderPrompt},
	}
	if sess.Topic != "" {
		turns = append(turns, llm.Turn{Role: domain.RoleSystem, Content: topicBlock(sess.Topic)})
	}

	turns = append(turns, creatorContextWindow(history, contextTurnsToSend)...)

	instruction := firstDraftInstruction(sess.Topic)
	if sess.CurrentIteration > 1 {
		instruction = reviseInstruction
	}
	if pendingInstruction != "" {
		instruction = instruction + "\n\n" + pendingInstruction
	}
	turns = append(turns, llm.Turn{Role: domain.RoleUser, Content: instruction})
	return turns
}

func creatorContextWindow(history []*domain.Message, n int) []llm.Turn {
	if n <= 0 {
		n = defaultContextTurnsToSend
	}
	start := 0
	if len(history) > n {
		start = len(history) - n
	}
	recent := history[start:]

	turns := make([]llm.Turn, 0, len(recent))
	for _, m := range recent {
		if m.IsCreator() {
			turns = append(turns, llm.Turn{Role: domain.RoleAssistant, Content: m.Content})
		} else {
			turns = append(turns, llm.Turn{
				Role:    domain.RoleUser,
				Content: reviewerFeedbackPrefix(m.ReviewerDisplayName) + m.Content,
			})
		}
	}
	return turns
}

// buildReviewerTurns assembles one reviewer's message list: root prompt,
// rubric reminder, safety reminder, optional topic-as-criteria block, this
// reviewer's own recent critiques, and the draft to review.
func buildReviewerTurns(sess *domain.Session, reviewer domain.ReviewerConfig, reviewerHistory []*domain.Message, latestCreatorContent string, contextTurnsToSend int) []llm.Turn {
	turns := []llm.Turn{
		{Role: domain.RoleSystem, Content: reviewer.RootPrompt},
		{Role: domain.RoleSystem, Content: reviewerRubricPrompt},
		{Role: domain.RoleSystem, Content: safetyReminderPrompt},
	}
	if sess.Topic != "" {
		turns = append(turns, llm.Turn{Role: domain.RoleSystem, Content: topicBlockAsCriteria(sess.Topic)})
	}

	half := contextTurnsToSend / 2
	if half <= 0 {
		half = defaultContextTurnsToSend / 2
	}
	start := 0
	if len(reviewerHistory) > half {
		start = len(reviewerHistory) - half
	}
	for _, m := range reviewerHistory[start:] {
		turns = append(turns, llm.Turn{Role: domain.RoleAssistant, Content: m.Content})
	}

	turns = append(turns, llm.Turn{Role: domain.RoleUser, Content: reviewRequestInstruction(latestCreatorContent)})
	return turns
}
