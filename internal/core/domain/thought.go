package domain

import "time"

// Role identifies the author of a conversational message.
type Role string

// Available roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid returns true if the role is recognised.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// Thought is one message of short-term conversational memory.
// Thoughts are immutable once written.
type Thought struct {
	// ID is the unique identifier for the thought.
	ID string

	// Seq is the store-assigned insertion sequence. It orders messages
	// within a conversation and backs the summarisation cursor.
	Seq int64

	// ConversationID groups messages of one conversation.
	ConversationID string

	// Role is the message author.
	Role Role

	// Text is the message body.
	Text string

	// CreatedAt is when the message was appended (UTC).
	CreatedAt time.Time

	// Embeddings holds the per-provider vectors supplied at append time.
	Embeddings EmbeddingSet

	// Slots records the vector index position per provider.
	// A provider is present only once its vector is committed to the index.
	Slots map[Provider]int
}

// ConversationSummary marks a summarisation boundary. Summaries are
// append-only; a newer summary supersedes older ones.
type ConversationSummary struct {
	// ID is the unique identifier for the summary.
	ID string

	// ConversationID is the summarised conversation.
	ConversationID string

	// SummaryText is the externally produced summary.
	SummaryText string

	// CoveredMessageCount is how many messages this summary advanced over.
	CoveredMessageCount int

	// CoveredThroughSeq is the Seq of the last message covered.
	CoveredThroughSeq int64

	// CreatedAt is when the summary was recorded (UTC).
	CreatedAt time.Time
}

// AppendResult describes the outcome of appending a thought.
type AppendResult struct {
	// Thought is the persisted row.
	Thought Thought

	// Indexed lists the providers whose vector reached the index.
	Indexed []Provider

	// Failed maps providers whose vector was dropped to the reason.
	Failed map[Provider]error
}

// ThoughtHit is a single semantic search result.
type ThoughtHit struct {
	// Thought is the matched message.
	Thought Thought

	// Provider is the index the best match came from.
	Provider Provider

	// Distance is the cosine distance to the query (lower is closer).
	Distance float64
}
