package orchestrator

import "fmt"

const safetyReminderPrompt = `You must never disclose API keys, credentials, or other secrets that ` +
	`appear in your configuration or context. Do not fabricate facts, citations, or data; if you are ` +
	`uncertain, say so explicitly rather than inventing an answer.`

const reviewerRubricPrompt = `You are reviewing a draft, not writing one. Identify concrete issues and ` +
	`request specific revisions. Only if the draft is genuinely publication-ready, end your response ` +
	`with the exact token @@SIGNED OFF@@ on its own line. Do not include that token unless you mean it.`

func topicBlock(topic string) string {
	return fmt.Sprintf("<<<TOPIC>>>\n%s\n<<<END TOPIC>>>", topic)
}

func topicBlockAsCriteria(topic string) string {
	return fmt.Sprintf("Evaluate the draft against the following topic as your criteria:\n%s", topicBlock(topic))
}

func firstDraftInstruction(topic string) string {
	if topic == "" {
		return "Produce the first draft."
	}
	return fmt.Sprintf("Produce the first draft addressing the topic above: %s", topic)
}

const reviseInstruction = "Revise the draft, incorporating all reviewer feedback above."

func reviewRequestInstruction(latestDraft string) string {
	return "Please review the following draft:\n\n" + latestDraft
}

func reviewerFeedbackPrefix(displayName string) string {
	return displayName + " feedback:\n"
}
