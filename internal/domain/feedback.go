package domain

import "time"

// ReviewerSummary is one reviewer's verdict for a completed iteration.
type ReviewerSummary struct {
	ReviewerID   string `json:"reviewerId"`
	ReviewerName string `json:"reviewerName"`
	Feedback     string `json:"feedback"`
	Approved     bool   `json:"approved"`
}

// FeedbackRound is written at most once per (SessionID, Iteration) and
// records the Creator's draft plus every reviewer's verdict for that
// iteration, along with any user-supplied feedback text attached later.
type FeedbackRound struct {
	FeedbackRoundID      string            `json:"feedbackRoundId"`
	SessionID            string            `json:"sessionId"`
	Iteration            int               `json:"iteration"`
	DraftContent         string            `json:"draftContent"`
	UserFeedback         string            `json:"userFeedback,omitempty"`
	UserFeedbackAt       *time.Time        `json:"userFeedbackAt,omitempty"`
	AllReviewersApproved bool              `json:"allReviewersApproved"`
	ReviewerSummaries    []ReviewerSummary `json:"reviewerSummaries"`
	CreatedAt            time.Time         `json:"createdAt"`
}

// ComputeAllApproved implements the FeedbackRound invariant: true iff every
// reviewer summary approved and the list is non-empty.
func ComputeAllApproved(summaries []ReviewerSummary) bool {
	if len(summaries) == 0 {
		return false
	}
	for _, s := range summaries {
		if !s.Approved {
			return false
		}
	}
	return true
}
