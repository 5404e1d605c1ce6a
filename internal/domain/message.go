package domain

import "time"

// Role is the chat role of a Message or a provider request turn.
type Role string

const (
	RoleSystem    Role = "System"
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
)

// CreatorAuthor is the fixed author value used for every Creator message.
// Reviewer messages use the reviewer's id as Author.
const CreatorAuthor = "Creator"

// Message is one append-only turn written by the orchestrator. For any
// session, the set of messages at a given iteration contains exactly one
// Creator assistant message and, if the iteration completed normally, one
// assistant message per reviewer with matching Author = reviewer id.
type Message struct {
	MessageID           string    `json:"messageId"`
	SessionID           string    `json:"sessionId"`
	Role                Role      `json:"role"`
	Author              string    `json:"author"`
	Iteration           int       `json:"iteration"`
	Content             string    `json:"content"`
	ModelUsed           string    `json:"modelUsed"`
	ReviewerDisplayName string    `json:"reviewerDisplayName,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
}

// IsCreator reports whether this message was authored by the Creator.
func (m *Message) IsCreator() bool {
	return m.Author == CreatorAuthor
}
